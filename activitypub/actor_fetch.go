package activitypub

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/deemkeen/federatoad/apmodel"
	"github.com/deemkeen/federatoad/domain"
	"github.com/google/uuid"
)

// defaultHTTPClient is the production HTTPClient used by entry points that
// don't take an explicit InboxDeps/OutboxDeps (HandleInbox, SendActivity,
// and friends).
var defaultHTTPClient HTTPClient = NewDefaultHTTPClient(10 * time.Second)

// actorCacheTTL bounds how long a cached RemoteAccount is trusted before
// GetOrFetchActorWithDeps refetches the actor document.
const actorCacheTTL = time.Hour

// GetOrFetchActorWithDeps returns the cached RemoteAccount for actorURI if
// it was fetched within actorCacheTTL, otherwise refetches and upserts it.
func GetOrFetchActorWithDeps(actorURI string, client HTTPClient, database Database) (*domain.RemoteAccount, error) {
	err, existing := database.ReadRemoteAccountByActorURI(actorURI)
	if err == nil && existing != nil && time.Since(existing.LastFetchedAt) < actorCacheTTL {
		return existing, nil
	}
	return FetchRemoteActorWithDeps(actorURI, client, database)
}

// FetchRemoteActorWithDeps fetches actorURI's actor document over HTTP,
// upserts it into the RemoteAccount store, and returns the stored row.
func FetchRemoteActorWithDeps(actorURI string, client HTTPClient, database Database) (*domain.RemoteAccount, error) {
	req, err := http.NewRequest(http.MethodGet, actorURI, nil)
	if err != nil {
		return nil, fmt.Errorf("actor fetch: build request: %w", err)
	}
	req.Header.Set("Accept", "application/activity+json")
	req.Header.Set("User-Agent", "stegodon/1.0 ActivityPub")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("actor fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("actor fetch: %s returned status %d", actorURI, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("actor fetch: read body: %w", err)
	}

	var doc apmodel.Actor
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("actor fetch: parse actor document: %w", err)
	}
	if doc.ID == "" || doc.Inbox == "" {
		return nil, fmt.Errorf("actor fetch: %s is missing id or inbox", actorURI)
	}

	remoteDomain := ""
	if parsed, err := url.Parse(doc.ID); err == nil {
		remoteDomain = parsed.Host
	}

	avatarURL := ""
	if doc.Icon != nil {
		avatarURL = doc.Icon.URL
	}

	err, existing := database.ReadRemoteAccountByActorURI(doc.ID)
	if err == nil && existing != nil {
		existing.Username = doc.PreferredUsername
		existing.Domain = remoteDomain
		existing.DisplayName = doc.Name
		existing.Summary = doc.Summary
		existing.InboxURI = doc.Inbox
		existing.OutboxURI = doc.Outbox
		existing.PublicKeyPem = doc.PublicKey.PublicKeyPem
		existing.AvatarURL = avatarURL
		existing.LastFetchedAt = time.Now()
		if err := database.UpdateRemoteAccount(existing); err != nil {
			return nil, fmt.Errorf("actor fetch: update cached actor: %w", err)
		}
		return existing, nil
	}

	remoteAccount := &domain.RemoteAccount{
		Id:            uuid.New(),
		Username:      doc.PreferredUsername,
		Domain:        remoteDomain,
		ActorURI:      doc.ID,
		DisplayName:   doc.Name,
		Summary:       doc.Summary,
		InboxURI:      doc.Inbox,
		OutboxURI:     doc.Outbox,
		PublicKeyPem:  doc.PublicKey.PublicKeyPem,
		AvatarURL:     avatarURL,
		LastFetchedAt: time.Now(),
	}
	if err := database.CreateRemoteAccount(remoteAccount); err != nil {
		return nil, fmt.Errorf("actor fetch: store actor: %w", err)
	}
	return remoteAccount, nil
}
