package web

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/deemkeen/federatoad/db"
	"github.com/deemkeen/federatoad/util"
)

// GetWebfinger resolves a bare username (acct: prefix and local domain
// suffix already stripped by the caller) to a WebFinger JRD document
// pointing at the actor's ActivityPub and profile URLs.
func GetWebfinger(username string, conf *util.AppConfig) (error, string) {
	err, acc := db.GetDB().ReadAccByUsername(username)
	if err != nil {
		return err, GetWebFingerNotFound()
	}

	subject := fmt.Sprintf("acct:%s@%s", acc.Username, conf.Conf.SslDomain)
	actorURI := fmt.Sprintf("https://%s/users/%s", conf.Conf.SslDomain, acc.Username)
	profileURI := fmt.Sprintf("https://%s/u/%s", conf.Conf.SslDomain, acc.Username)

	return nil, fmt.Sprintf(
		`{
			"subject": "%s",
			"aliases": ["%s", "%s"],
			"links": [
				{
					"rel": "http://webfinger.net/rel/profile-page",
					"type": "text/html",
					"href": "%s"
				},
				{
					"rel": "self",
					"type": "application/activity+json",
					"href": "%s"
				}
			]
		}`,
		subject, actorURI, profileURI, profileURI, actorURI)
}

// GetWebFingerNotFound returns the JRD error body for an unresolvable
// or malformed WebFinger resource query.
func GetWebFingerNotFound() string {
	return `{"error": "resource not found"}`
}

// ResolveWebFinger looks up username@domain via the remote server's
// WebFinger endpoint and returns its ActivityPub actor URI.
func ResolveWebFinger(username, domain string) (string, error) {
	webfingerURL := fmt.Sprintf("https://%s/.well-known/webfinger?resource=acct:%s@%s", domain, username, domain)

	req, err := http.NewRequest(http.MethodGet, webfingerURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/jrd+json")
	req.Header.Set("User-Agent", "stegodon/1.0 ActivityPub")

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("webfinger request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("webfinger failed with status: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	type webFingerLink struct {
		Rel  string `json:"rel"`
		Type string `json:"type"`
		Href string `json:"href"`
	}
	type webFingerResponse struct {
		Subject string          `json:"subject"`
		Links   []webFingerLink `json:"links"`
	}

	var result webFingerResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("failed to parse webfinger response: %w", err)
	}

	for _, link := range result.Links {
		if link.Rel == "self" &&
			(link.Type == "application/activity+json" ||
				link.Type == `application/ld+json; profile="https://www.w3.org/ns/activitystreams"`) {
			return link.Href, nil
		}
	}

	return "", fmt.Errorf("no ActivityPub actor found in webfinger response")
}
