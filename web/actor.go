package web

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/deemkeen/federatoad/apmodel"
	"github.com/deemkeen/federatoad/db"
	"github.com/deemkeen/federatoad/domain"
	"github.com/deemkeen/federatoad/util"
	"github.com/google/uuid"
)

type action uint

const (
	id action = iota
	inbox
	outbox
	followers
	following
	sharedInbox
)

// GetActor returns the Person actor document for a local account.
func GetActor(actor string, conf *util.AppConfig) (error, string) {
	err, acc := db.GetDB().ReadAccByUsername(actor)
	if err != nil {
		return err, "{}"
	}
	return nil, buildPersonActorJSON(acc, conf)
}

// GetGroupActor returns the Group (Lemmy-style community) actor document
// addressable at /c/{handle}, sharing the account's keypair under its own
// main-key fragment. There is no dedicated community/membership model, so
// the owning account is always its sole moderator.
func GetGroupActor(actor string, conf *util.AppConfig) (error, string) {
	err, acc := db.GetDB().ReadAccByUsername(actor)
	if err != nil {
		return err, "{}"
	}
	return nil, buildGroupActorJSON(acc, conf)
}

func buildPersonActorJSON(acc *domain.Account, conf *util.AppConfig) string {
	username := acc.Username
	displayName := acc.DisplayName
	if displayName == "" {
		displayName = username
	}
	actorURI := getIRI(conf.Conf.SslDomain, username, id)
	logoURL := fmt.Sprintf("https://%s/static/stegologo.png", conf.Conf.SslDomain)

	doc := apmodel.Actor{
		Context:                   apmodel.PersonContext,
		ID:                        actorURI,
		Type:                      "Person",
		PreferredUsername:         username,
		Name:                      displayName,
		Summary:                   acc.Summary,
		URL:                       actorURI,
		Inbox:                     getIRI(conf.Conf.SslDomain, username, inbox),
		Outbox:                    getIRI(conf.Conf.SslDomain, username, outbox),
		Followers:                 getIRI(conf.Conf.SslDomain, username, followers),
		Following:                 getIRI(conf.Conf.SslDomain, username, following),
		Endpoints:                 &apmodel.Endpoints{SharedInbox: getIRI(conf.Conf.SslDomain, username, sharedInbox)},
		ManuallyApprovesFollowers: false,
		Discoverable:              true,
		Indexable:                 true,
		PublicKey: apmodel.PublicKey{
			ID:           actorURI + "#main-key",
			Owner:        actorURI,
			PublicKeyPem: acc.WebPublicKey,
		},
		Attachment: buildAttachments(acc.SocialLinks),
		Icon: &apmodel.Image{
			Type:      "Image",
			MediaType: "image/png",
			URL:       logoURL,
		},
	}

	return marshalActor(doc)
}

func buildGroupActorJSON(acc *domain.Account, conf *util.AppConfig) string {
	handle := acc.Username
	displayName := acc.DisplayName
	if displayName == "" {
		displayName = handle
	}
	groupURI := fmt.Sprintf("https://%s/c/%s", conf.Conf.SslDomain, handle)
	ownerURI := getIRI(conf.Conf.SslDomain, handle, id)

	doc := apmodel.Actor{
		Context:                 apmodel.GroupContext,
		ID:                      groupURI,
		Type:                    "Group",
		PreferredUsername:       handle,
		Name:                    displayName,
		Summary:                 acc.Summary,
		URL:                     groupURI,
		Inbox:                   groupURI + "/inbox",
		Outbox:                  groupURI + "/outbox",
		Followers:               groupURI + "/followers",
		Following:               groupURI + "/following",
		Endpoints:               &apmodel.Endpoints{SharedInbox: getIRI(conf.Conf.SslDomain, handle, sharedInbox)},
		Discoverable:            true,
		PostingRestrictedToMods: true,
		Moderators:              []string{ownerURI},
		Sensitive:               false,
		PublicKey: apmodel.PublicKey{
			ID:           groupURI + "#main-key",
			Owner:        groupURI,
			PublicKeyPem: acc.WebPublicKey,
		},
		Attachment: buildAttachments(acc.SocialLinks),
	}

	return marshalActor(doc)
}

func marshalActor(doc apmodel.Actor) string {
	jsonBytes, err := json.Marshal(doc)
	if err != nil {
		return "{}"
	}
	return string(jsonBytes)
}

// buildAttachments renders an account's social links as PropertyValue
// attachments, the Mastodon "verified links" convention: each value is
// expanded to a full URL (bare handles for twitter/github/linkedin, used
// verbatim otherwise) and wrapped in a rel="me" anchor.
func buildAttachments(links []domain.SocialLink) []apmodel.Attachment {
	if len(links) == 0 {
		return nil
	}
	attachments := make([]apmodel.Attachment, 0, len(links))
	for _, link := range links {
		url := expandSocialURL(link.Platform, link.Value)
		html := fmt.Sprintf(`<a href="%s" rel="me nofollow noreferrer" target="_blank">%s</a>`, url, url)
		attachments = append(attachments, apmodel.Attachment{
			Type:  "PropertyValue",
			Name:  link.Name,
			Value: html,
		})
	}
	return attachments
}

func expandSocialURL(platform, value string) string {
	switch strings.ToLower(platform) {
	case "twitter":
		return fmt.Sprintf("https://twitter.com/%s", strings.TrimPrefix(value, "@"))
	case "github":
		return fmt.Sprintf("https://github.com/%s", value)
	case "linkedin":
		return fmt.Sprintf("https://www.linkedin.com/in/%s", value)
	default:
		// mastodon and anything else is already a full URL
		return value
	}
}

func getIRI(domain string, username string, action action) string {

	prefix := fmt.Sprintf("https://%s/users/%s", domain, username)
	switch action {
	case inbox:
		return fmt.Sprintf("%s/inbox", prefix)
	case outbox:
		return fmt.Sprintf("%s/outbox", prefix)
	case followers:
		return fmt.Sprintf("%s/followers", prefix)
	case following:
		return fmt.Sprintf("%s/following", prefix)
	case id:
		return prefix
	case sharedInbox:
		return fmt.Sprintf("https://%s/inbox", domain)
	default:
		return ""
	}
}

// GetNoteObject returns a Note object as ActivityPub JSON
func GetNoteObject(noteId uuid.UUID, conf *util.AppConfig) (error, string) {
	database := db.GetDB()
	err, note := database.ReadNoteId(noteId)
	if err != nil {
		return err, "{}"
	}

	// Get the account to build actor URI
	err, account := database.ReadAccByUsername(note.CreatedBy)
	if err != nil {
		return err, "{}"
	}

	actorURI := fmt.Sprintf("https://%s/users/%s", conf.Conf.SslDomain, account.Username)
	noteURI := fmt.Sprintf("https://%s/notes/%s", conf.Conf.SslDomain, note.Id.String())

	// Convert Markdown links to HTML for ActivityPub content
	contentHTML := util.MarkdownLinksToHTML(note.Message)

	// Build the Note object
	noteObj := map[string]any{
		"@context":     "https://www.w3.org/ns/activitystreams",
		"id":           noteURI,
		"type":         "Note",
		"attributedTo": actorURI,
		"content":      contentHTML,
		"mediaType":    "text/html",
		"published":    note.CreatedAt.Format(time.RFC3339),
		"to": []string{
			"https://www.w3.org/ns/activitystreams#Public",
		},
		"cc": []string{
			fmt.Sprintf("https://%s/users/%s/followers", conf.Conf.SslDomain, account.Username),
		},
	}

	// Add updated field if note was edited
	if note.EditedAt != nil {
		noteObj["updated"] = note.EditedAt.Format(time.RFC3339)
	}

	jsonBytes, err := json.Marshal(noteObj)
	if err != nil {
		return err, "{}"
	}

	return nil, string(jsonBytes)
}

// GetFollowersCollection returns an ActivityPub OrderedCollection of followers
// Always uses paging for compatibility with Mastodon and other servers
func GetFollowersCollection(actor string, conf *util.AppConfig, followerURIs []string) string {
	collectionURI := fmt.Sprintf("https://%s/users/%s/followers", conf.Conf.SslDomain, actor)

	// Always use paging (Mastodon expects this)
	collection := map[string]any{
		"@context":   "https://www.w3.org/ns/activitystreams",
		"id":         collectionURI,
		"type":       "OrderedCollection",
		"totalItems": len(followerURIs),
		"first":      fmt.Sprintf("%s?page=1", collectionURI),
	}

	jsonBytes, err := json.Marshal(collection)
	if err != nil {
		return "{}"
	}
	return string(jsonBytes)
}

// GetFollowingCollection returns an ActivityPub OrderedCollection of following
// Always uses paging for compatibility with Mastodon and other servers
func GetFollowingCollection(actor string, conf *util.AppConfig, followingURIs []string) string {
	collectionURI := fmt.Sprintf("https://%s/users/%s/following", conf.Conf.SslDomain, actor)

	// Always use paging (Mastodon expects this)
	collection := map[string]any{
		"@context":   "https://www.w3.org/ns/activitystreams",
		"id":         collectionURI,
		"type":       "OrderedCollection",
		"totalItems": len(followingURIs),
		"first":      fmt.Sprintf("%s?page=1", collectionURI),
	}

	jsonBytes, err := json.Marshal(collection)
	if err != nil {
		return "{}"
	}
	return string(jsonBytes)
}

// GetFollowersPage returns an OrderedCollectionPage for followers
func GetFollowersPage(actor string, conf *util.AppConfig, followerURIs []string, page int) string {
	collectionURI := fmt.Sprintf("https://%s/users/%s/followers", conf.Conf.SslDomain, actor)
	pageURI := fmt.Sprintf("%s?page=%d", collectionURI, page)

	collectionPage := map[string]any{
		"@context":     "https://www.w3.org/ns/activitystreams",
		"id":           pageURI,
		"type":         "OrderedCollectionPage",
		"partOf":       collectionURI,
		"orderedItems": followerURIs,
		"totalItems":   len(followerURIs),
	}

	jsonBytes, err := json.Marshal(collectionPage)
	if err != nil {
		return "{}"
	}
	return string(jsonBytes)
}

// GetFollowingPage returns an OrderedCollectionPage for following
func GetFollowingPage(actor string, conf *util.AppConfig, followingURIs []string, page int) string {
	collectionURI := fmt.Sprintf("https://%s/users/%s/following", conf.Conf.SslDomain, actor)
	pageURI := fmt.Sprintf("%s?page=%d", collectionURI, page)

	collectionPage := map[string]any{
		"@context":     "https://www.w3.org/ns/activitystreams",
		"id":           pageURI,
		"type":         "OrderedCollectionPage",
		"partOf":       collectionURI,
		"orderedItems": followingURIs,
		"totalItems":   len(followingURIs),
	}

	jsonBytes, err := json.Marshal(collectionPage)
	if err != nil {
		return "{}"
	}
	return string(jsonBytes)
}
