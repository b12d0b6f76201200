package activitypub

import (
	"bytes"
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/deemkeen/federatoad/domain"
	"github.com/deemkeen/federatoad/federror"
	"github.com/deemkeen/federatoad/util"
	"github.com/google/uuid"
)

// deliveryDrainInterval is how often the worker sweeps the queue for
// tasks whose nextRetryAt has elapsed.
const deliveryDrainInterval = 5 * time.Second

// deliveryBatchSize bounds how many tasks a single drain pass claims.
const deliveryBatchSize = 50

// StartDeliveryWorker launches the background goroutine that drains the
// outbound delivery queue on a fixed interval and returns at once; the
// goroutine runs for the lifetime of the process.
func StartDeliveryWorker(conf *util.AppConfig) {
	go runDeliveryWorker(conf, NewDBWrapper(), defaultHTTPClient)
}

func runDeliveryWorker(conf *util.AppConfig, database Database, client HTTPClient) {
	ticker := time.NewTicker(deliveryDrainInterval)
	defer ticker.Stop()
	for range ticker.C {
		drainDeliveryQueue(conf, database, client)
	}
}

// drainDeliveryQueue implements the C10 drain algorithm: claim due tasks,
// attempt delivery, and apply the outcome policy (success removes the task,
// failure backs off exponentially up to maxDeliveryRetries).
func drainDeliveryQueue(conf *util.AppConfig, database Database, client HTTPClient) {
	if !conf.Conf.FederationEnabled {
		return
	}

	err, pending := database.ReadPendingDeliveries(deliveryBatchSize)
	if err != nil {
		log.Printf("Delivery worker: failed to read pending deliveries: %v", err)
		return
	}
	if pending == nil {
		return
	}

	maxRetries := conf.Conf.MaxDeliveryRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	for _, item := range *pending {
		deliverQueuedActivity(item, maxRetries, conf, database, client)
	}
}

func deliverQueuedActivity(item domain.DeliveryQueueItem, maxRetries int, conf *util.AppConfig, database Database, client HTTPClient) {
	var envelope struct {
		Actor string `json:"actor"`
	}
	if err := json.Unmarshal([]byte(item.ActivityJSON), &envelope); err != nil {
		log.Printf("Delivery worker: dropping malformed queued activity %s: %v", item.Id, err)
		if err := database.DeleteDelivery(item.Id); err != nil {
			log.Printf("Delivery worker: failed to drop malformed task %s: %v", item.Id, err)
		}
		return
	}

	req, err := http.NewRequest(http.MethodPost, item.InboxURI, bytes.NewReader([]byte(item.ActivityJSON)))
	if err != nil {
		log.Printf("Delivery worker: failed to build request for %s: %v", item.InboxURI, err)
		scheduleRedelivery(item, maxRetries, database)
		return
	}
	req.Header.Set("Content-Type", "application/activity+json")
	req.Header.Set("Accept", "application/activity+json")
	req.Header.Set("User-Agent", "stegodon/1.0 ActivityPub")
	req.Header.Set("Date", time.Now().UTC().Format(http.TimeFormat))
	req.Header.Set("Host", req.URL.Host)
	req.Header.Set("Digest", GenerateDigest([]byte(item.ActivityJSON)))

	if username := localUsernameFromActorURI(envelope.Actor, conf); username != "" {
		if err, localAccount := database.ReadAccByUsername(username); err == nil && localAccount != nil {
			if privateKey, err := ParsePrivateKey(localAccount.WebPrivateKey); err == nil {
				keyID := fmt.Sprintf("https://%s/users/%s#main-key", conf.Conf.SslDomain, localAccount.Username)
				if err := SignRequest(req, privateKey, keyID); err != nil {
					log.Printf("Delivery worker: failed to sign delivery to %s: %v", item.InboxURI, err)
				}
			}
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), conf.Conf.FederationTimeout())
	defer cancel()
	req = req.WithContext(ctx)

	resp, err := client.Do(req)
	if err != nil {
		log.Printf("Delivery worker: %s -> %s failed: %v", item.Id, item.InboxURI, err)
		scheduleRedelivery(item, maxRetries, database)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		log.Printf("Delivery worker: %s -> %s delivered (status %d)", item.Id, item.InboxURI, resp.StatusCode)
		if err := database.DeleteDelivery(item.Id); err != nil {
			log.Printf("Delivery worker: failed to remove delivered task %s: %v", item.Id, err)
		}
		return
	}

	log.Printf("Delivery worker: %s -> %s rejected (status %d)", item.Id, item.InboxURI, resp.StatusCode)
	scheduleRedelivery(item, maxRetries, database)
}

// scheduleRedelivery applies the backoff half of the C10 outcome policy:
// nextRetryAt = now + min(2^retryCount * 1s, 5min), or drops the task once
// retryCount reaches maxRetries (terminal failure).
func scheduleRedelivery(item domain.DeliveryQueueItem, maxRetries int, database Database) {
	attempts := item.Attempts + 1
	if attempts >= maxRetries {
		ferr := federror.Delivery(fmt.Sprintf("%s to %s exhausted %d retries", item.Id, item.InboxURI, maxRetries), nil)
		log.Printf("Delivery worker: %v, giving up", ferr)
		if err := database.DeleteDelivery(item.Id); err != nil {
			log.Printf("Delivery worker: failed to drop terminally-failed task %s: %v", item.Id, err)
		}
		return
	}

	backoff := time.Duration(1<<uint(attempts)) * time.Second
	if backoff > 5*time.Minute {
		backoff = 5 * time.Minute
	}
	if err := database.UpdateDeliveryAttempt(item.Id, attempts, time.Now().Add(backoff)); err != nil {
		log.Printf("Delivery worker: failed to update retry state for %s: %v", item.Id, err)
	}
}

// localUsernameFromActorURI extracts the username from a local actor URI of
// the form https://{sslDomain}/users/{username}, or "" if actorURI isn't ours.
func localUsernameFromActorURI(actorURI string, conf *util.AppConfig) string {
	prefix := fmt.Sprintf("https://%s/users/", conf.Conf.SslDomain)
	if !strings.HasPrefix(actorURI, prefix) {
		return ""
	}
	return strings.TrimPrefix(actorURI, prefix)
}

// SendActivity sends an activity to a remote inbox.
// This is the production wrapper that uses the default HTTP client.
func SendActivity(activity any, inboxURI string, localAccount *domain.Account, conf *util.AppConfig) error {
	return SendActivityWithDeps(activity, inboxURI, localAccount, conf, defaultHTTPClient)
}

// SendActivityWithDeps sends an activity to a remote inbox.
// This version accepts dependencies for testing.
func SendActivityWithDeps(activity any, inboxURI string, localAccount *domain.Account, conf *util.AppConfig, client HTTPClient) error {
	// Marshal activity to JSON
	activityJSON, err := json.Marshal(activity)
	if err != nil {
		return fmt.Errorf("failed to marshal activity: %w", err)
	}

	// Calculate digest for HTTP signature
	hash := sha256.Sum256(activityJSON)
	digest := "SHA-256=" + base64.StdEncoding.EncodeToString(hash[:])

	// Create HTTP request
	req, err := http.NewRequest("POST", inboxURI, bytes.NewReader(activityJSON))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/activity+json")
	req.Header.Set("Accept", "application/activity+json")
	req.Header.Set("User-Agent", "stegodon/1.0 ActivityPub")
	req.Header.Set("Date", time.Now().UTC().Format(http.TimeFormat))
	req.Header.Set("Host", req.URL.Host)
	req.Header.Set("Digest", digest)

	// Parse private key for signing
	privateKey, err := ParsePrivateKey(localAccount.WebPrivateKey)
	if err != nil {
		return fmt.Errorf("failed to parse private key: %w", err)
	}

	// Sign request
	keyID := fmt.Sprintf("https://%s/users/%s#main-key", conf.Conf.SslDomain, localAccount.Username)
	if err := SignRequest(req, privateKey, keyID); err != nil {
		return fmt.Errorf("failed to sign request: %w", err)
	}

	// Send request
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("remote server returned status: %d", resp.StatusCode)
	}

	log.Printf("Outbox: Sent %T to %s (status: %d)", activity, inboxURI, resp.StatusCode)
	return nil
}

// SendAccept sends an Accept activity in response to a Follow.
// This is the production wrapper that uses the default HTTP client.
func SendAccept(localAccount *domain.Account, remoteActor *domain.RemoteAccount, followID string, conf *util.AppConfig) error {
	return SendAcceptWithDeps(localAccount, remoteActor, followID, conf, defaultHTTPClient)
}

// SendAcceptWithDeps sends an Accept activity in response to a Follow.
// This version accepts dependencies for testing.
func SendAcceptWithDeps(localAccount *domain.Account, remoteActor *domain.RemoteAccount, followID string, conf *util.AppConfig, client HTTPClient) error {
	acceptID := fmt.Sprintf("https://%s/activities/%s", conf.Conf.SslDomain, uuid.New().String())
	actorURI := fmt.Sprintf("https://%s/users/%s", conf.Conf.SslDomain, localAccount.Username)

	accept := map[string]any{
		"@context": "https://www.w3.org/ns/activitystreams",
		"id":       acceptID,
		"type":     "Accept",
		"actor":    actorURI,
		"object": map[string]any{
			"id":     followID,
			"type":   "Follow",
			"actor":  remoteActor.ActorURI,
			"object": actorURI,
		},
	}

	return SendActivityWithDeps(accept, remoteActor.InboxURI, localAccount, conf, client)
}

// SendCreate sends a Create activity for a new note.
// This is the production wrapper that uses the default database.
func SendCreate(note *domain.Note, localAccount *domain.Account, conf *util.AppConfig) error {
	return SendCreateWithDeps(note, localAccount, conf, NewDBWrapper())
}

// SendCreateWithDeps sends a Create activity for a new note.
// This version accepts dependencies for testing.
func SendCreateWithDeps(note *domain.Note, localAccount *domain.Account, conf *util.AppConfig, database Database) error {
	if !conf.Conf.FederationEnabled {
		log.Printf("Outbox: federation disabled, skipping Create delivery for note %s", note.Id)
		return nil
	}

	actorURI := fmt.Sprintf("https://%s/users/%s", conf.Conf.SslDomain, localAccount.Username)
	noteURI := fmt.Sprintf("https://%s/notes/%s", conf.Conf.SslDomain, note.Id.String())
	createID := fmt.Sprintf("https://%s/activities/%s", conf.Conf.SslDomain, uuid.New().String())
	baseURL := fmt.Sprintf("https://%s", conf.Conf.SslDomain)

	// Convert Markdown links to HTML for ActivityPub content
	contentHTML := util.MarkdownLinksToHTML(note.Message)
	// Convert hashtags to ActivityPub-compliant HTML links
	contentHTML = util.HashtagsToActivityPubHTML(contentHTML, baseURL)

	followersURI := fmt.Sprintf("https://%s/users/%s/followers", conf.Conf.SslDomain, localAccount.Username)
	toList, ccList := addressingForVisibility(note.Visibility, actorURI, followersURI)

	// If this is a reply, add the parent author for delivery, following the
	// same to/cc split the visibility table uses for mentions.
	var parentAuthorURI string
	if note.InReplyToURI != "" {
		// Try to extract parent author from the inReplyToURI or fetch it
		parentAuthorURI = extractAuthorFromURI(note.InReplyToURI, database, conf)
		if parentAuthorURI != "" && parentAuthorURI != actorURI {
			if addressesDirectly(note.Visibility) {
				toList = append(toList, parentAuthorURI)
			} else {
				ccList = append(ccList, parentAuthorURI)
			}
		}
	}

	// Build the object - its AS type and type-specific shape follow the
	// note's content type (plain Note, Article, Event, Video, ...).
	asType := asObjectType(note.ContentType)
	noteObj := map[string]any{
		"id":           noteURI,
		"type":         asType,
		"attributedTo": actorURI,
		"content":      contentHTML,
		"mediaType":    "text/html",
		"published":    note.CreatedAt.Format(time.RFC3339),
		"url":          fmt.Sprintf("https://%s/u/%s/%s", conf.Conf.SslDomain, localAccount.Username, note.Id.String()),
		"to":           toList,
		"cc":           ccList,
	}
	applyContentTypeFields(noteObj, note, asType)

	// Add inReplyTo if this is a reply
	if note.InReplyToURI != "" {
		noteObj["inReplyTo"] = note.InReplyToURI
		log.Printf("Outbox: Note %s is a reply to %s", note.Id, note.InReplyToURI)
	}

	// Extract hashtags and add to tag array
	hashtags := util.ParseHashtags(note.Message)
	tags := make([]map[string]any, 0)

	for _, tag := range hashtags {
		tags = append(tags, map[string]any{
			"type": "Hashtag",
			"href": fmt.Sprintf("https://%s/tags/%s", conf.Conf.SslDomain, tag),
			"name": "#" + tag,
		})
	}

	// Extract mentions and resolve actor URIs
	mentions := util.ParseMentions(note.Message)
	mentionURIs := make(map[string]string)
	mentionedActors := make([]string, 0)

	for _, mention := range mentions {
		// Skip local mentions (same domain) - they don't need federation
		if strings.EqualFold(mention.Domain, conf.Conf.SslDomain) {
			continue
		}

		// Resolve via WebFinger
		actorURI, err := resolveMentionURI(mention.Username, mention.Domain)
		if err != nil {
			log.Printf("Outbox: Failed to resolve mention @%s@%s: %v", mention.Username, mention.Domain, err)
			continue
		}

		mentionKey := fmt.Sprintf("@%s@%s", mention.Username, mention.Domain)
		mentionURIs[mentionKey] = actorURI
		mentionedActors = append(mentionedActors, actorURI)

		tags = append(tags, map[string]any{
			"type": "Mention",
			"href": actorURI,
			"name": mentionKey,
		})
	}

	if len(tags) > 0 {
		noteObj["tag"] = tags
	}

	// Add mentioned actors per the visibility addressing table: public/
	// unlisted mentions ride along in cc, followers/direct mentions are
	// the actual recipients and go in to.
	for _, mentionActorURI := range mentionedActors {
		if addressesDirectly(note.Visibility) {
			toList = append(toList, mentionActorURI)
		} else {
			ccList = append(ccList, mentionActorURI)
		}
	}
	// Update noteObj with the expanded lists
	noteObj["to"] = toList
	noteObj["cc"] = ccList

	// Convert mentions to ActivityPub HTML (after we have resolved URIs)
	if len(mentionURIs) > 0 {
		contentHTML = util.MentionsToActivityPubHTML(contentHTML, mentionURIs)
		noteObj["content"] = contentHTML
	}

	// Build context - include Hashtag definition if we have hashtags
	var context any
	if len(hashtags) > 0 {
		context = []any{
			"https://www.w3.org/ns/activitystreams",
			map[string]any{
				"Hashtag": "as:Hashtag",
			},
		}
	} else {
		context = "https://www.w3.org/ns/activitystreams"
	}

	create := map[string]any{
		"@context":  context,
		"id":        createID,
		"type":      "Create",
		"actor":     actorURI,
		"published": note.CreatedAt.Format(time.RFC3339),
		"to":        toList,
		"cc":        ccList,
		"object":    noteObj,
	}

	// Collect inboxes to deliver to (followers + parent author for replies)
	inboxes := make(map[string]bool) // Use map to dedupe

	// Get all followers - private/direct notes never broadcast to the
	// full followers collection, only to explicitly addressed actors.
	if broadcastsToFollowers(note.Visibility) {
		err, followers := database.ReadFollowersByAccountId(localAccount.Id)
		if err != nil {
			log.Printf("Outbox: Failed to get followers: %v", err)
		} else if followers != nil {
			for _, follower := range *followers {
				// Skip local followers - they don't need federation delivery
				if follower.IsLocal {
					continue
				}
				err, remoteActor := database.ReadRemoteAccountById(follower.AccountId)
				if err != nil {
					log.Printf("Outbox: Failed to get remote actor %s: %v", follower.AccountId, err)
					continue
				}
				inboxes[remoteActor.InboxURI] = true
			}
		}
	}

	// If this is a reply, also deliver to the parent author's inbox
	if parentAuthorURI != "" && parentAuthorURI != actorURI {
		// First try as remote account
		err, parentAccount := database.ReadRemoteAccountByActorURI(parentAuthorURI)
		if err == nil && parentAccount != nil {
			inboxes[parentAccount.InboxURI] = true
			log.Printf("Outbox: Will also deliver reply to remote parent author %s@%s", parentAccount.Username, parentAccount.Domain)
		} else {
			// Try as local account - extract username from URI like https://domain/users/username
			if strings.Contains(parentAuthorURI, conf.Conf.SslDomain) {
				parts := strings.Split(parentAuthorURI, "/users/")
				if len(parts) == 2 {
					parentUsername := parts[1]
					// Verify this local user exists
					err, localParent := database.ReadAccByUsername(parentUsername)
					if err == nil && localParent != nil {
						// Construct local inbox URI
						localInboxURI := fmt.Sprintf("https://%s/users/%s/inbox", conf.Conf.SslDomain, parentUsername)
						inboxes[localInboxURI] = true
						log.Printf("Outbox: Will also deliver reply to local parent author %s", parentUsername)
					}
				}
			}
		}
	}

	// Also deliver to mentioned actors' inboxes
	for _, mentionActorURI := range mentionedActors {
		// Look up the remote account to get their inbox
		err, mentionedAccount := database.ReadRemoteAccountByActorURI(mentionActorURI)
		if err == nil && mentionedAccount != nil {
			inboxes[mentionedAccount.InboxURI] = true
			log.Printf("Outbox: Will also deliver to mentioned user %s@%s", mentionedAccount.Username, mentionedAccount.Domain)
		} else {
			// Fetch the actor if not cached
			mentionedAccount, err = FetchRemoteActorWithDeps(mentionActorURI, defaultHTTPClient, database)
			if err == nil && mentionedAccount != nil {
				inboxes[mentionedAccount.InboxURI] = true
				log.Printf("Outbox: Will also deliver to mentioned user %s@%s (fetched)", mentionedAccount.Username, mentionedAccount.Domain)
			} else {
				log.Printf("Outbox: Could not resolve inbox for mentioned actor %s: %v", mentionActorURI, err)
			}
		}
	}

	// Get active relays and add their inboxes
	err, relays := database.ReadActiveRelays()
	if err == nil && relays != nil {
		for _, relay := range *relays {
			inboxes[relay.InboxURI] = true
			log.Printf("Outbox: Will also deliver to relay %s", relay.ActorURI)
		}
	}

	if len(inboxes) == 0 {
		log.Printf("Outbox: No inboxes to deliver to")
		return nil
	}

	// Queue delivery to each unique inbox
	for inboxURI := range inboxes {
		queueItem := &domain.DeliveryQueueItem{
			Id:           uuid.New(),
			InboxURI:     inboxURI,
			ActivityJSON: mustMarshal(create),
			Attempts:     0,
			NextRetryAt:  time.Now(),
			CreatedAt:    time.Now(),
		}

		if err := database.EnqueueDelivery(queueItem); err != nil {
			log.Printf("Outbox: Failed to queue delivery to %s: %v", inboxURI, err)
		}
	}

	log.Printf("Outbox: Queued Create activity for note %s to %d inboxes", note.Id, len(inboxes))
	return nil
}

// SendUpdate sends an Update activity to all followers when a note is edited.
// This is the production wrapper that uses the default database.
func SendUpdate(note *domain.Note, localAccount *domain.Account, conf *util.AppConfig) error {
	return SendUpdateWithDeps(note, localAccount, conf, NewDBWrapper())
}

// SendUpdateWithDeps sends an Update activity to all followers when a note is edited.
// This version accepts dependencies for testing.
func SendUpdateWithDeps(note *domain.Note, localAccount *domain.Account, conf *util.AppConfig, database Database) error {
	if !conf.Conf.FederationEnabled {
		log.Printf("Outbox: federation disabled, skipping Update delivery for note %s", note.Id)
		return nil
	}

	actorURI := fmt.Sprintf("https://%s/users/%s", conf.Conf.SslDomain, localAccount.Username)
	noteURI := fmt.Sprintf("https://%s/notes/%s", conf.Conf.SslDomain, note.Id.String())
	updateID := fmt.Sprintf("https://%s/activities/%s", conf.Conf.SslDomain, uuid.New().String())
	baseURL := fmt.Sprintf("https://%s", conf.Conf.SslDomain)

	// Use EditedAt if available, otherwise use CreatedAt
	updatedTime := note.CreatedAt
	if note.EditedAt != nil {
		updatedTime = *note.EditedAt
	}

	// Convert Markdown links to HTML for ActivityPub content
	contentHTML := util.MarkdownLinksToHTML(note.Message)
	// Convert hashtags to ActivityPub-compliant HTML links
	contentHTML = util.HashtagsToActivityPubHTML(contentHTML, baseURL)

	followersURI := fmt.Sprintf("https://%s/users/%s/followers", conf.Conf.SslDomain, localAccount.Username)
	toList, ccList := addressingForVisibility(note.Visibility, actorURI, followersURI)

	// If this is a reply, add the parent author for delivery, following the
	// same to/cc split the visibility table uses for mentions.
	var parentAuthorURI string
	if note.InReplyToURI != "" {
		parentAuthorURI = extractAuthorFromURI(note.InReplyToURI, database, conf)
		if parentAuthorURI != "" && parentAuthorURI != actorURI {
			if addressesDirectly(note.Visibility) {
				toList = append(toList, parentAuthorURI)
			} else {
				ccList = append(ccList, parentAuthorURI)
			}
		}
	}

	// Build the object - its AS type and type-specific shape follow the
	// note's content type (plain Note, Article, Event, Video, ...).
	asType := asObjectType(note.ContentType)
	noteObj := map[string]any{
		"id":           noteURI,
		"type":         asType,
		"attributedTo": actorURI,
		"content":      contentHTML,
		"mediaType":    "text/html",
		"published":    note.CreatedAt.Format(time.RFC3339),
		"updated":      updatedTime.Format(time.RFC3339),
		"url":          fmt.Sprintf("https://%s/u/%s/%s", conf.Conf.SslDomain, localAccount.Username, note.Id.String()),
		"to":           toList,
		"cc":           ccList,
	}
	applyContentTypeFields(noteObj, note, asType)

	// Add inReplyTo if this is a reply
	if note.InReplyToURI != "" {
		noteObj["inReplyTo"] = note.InReplyToURI
	}

	// Extract hashtags and add to tag array
	hashtags := util.ParseHashtags(note.Message)
	tags := make([]map[string]any, 0)

	for _, tag := range hashtags {
		tags = append(tags, map[string]any{
			"type": "Hashtag",
			"href": fmt.Sprintf("https://%s/tags/%s", conf.Conf.SslDomain, tag),
			"name": "#" + tag,
		})
	}

	// Extract mentions and resolve actor URIs
	mentions := util.ParseMentions(note.Message)
	mentionURIs := make(map[string]string)
	mentionedActors := make([]string, 0)

	for _, mention := range mentions {
		// Skip local mentions (same domain) - they don't need federation
		if strings.EqualFold(mention.Domain, conf.Conf.SslDomain) {
			continue
		}

		// Resolve via WebFinger
		actorURI, err := resolveMentionURI(mention.Username, mention.Domain)
		if err != nil {
			log.Printf("Outbox: Failed to resolve mention @%s@%s: %v", mention.Username, mention.Domain, err)
			continue
		}

		mentionKey := fmt.Sprintf("@%s@%s", mention.Username, mention.Domain)
		mentionURIs[mentionKey] = actorURI
		mentionedActors = append(mentionedActors, actorURI)

		tags = append(tags, map[string]any{
			"type": "Mention",
			"href": actorURI,
			"name": mentionKey,
		})
	}

	if len(tags) > 0 {
		noteObj["tag"] = tags
	}

	// Add mentioned actors per the visibility addressing table.
	for _, mentionActorURI := range mentionedActors {
		if addressesDirectly(note.Visibility) {
			toList = append(toList, mentionActorURI)
		} else {
			ccList = append(ccList, mentionActorURI)
		}
	}
	// Update noteObj with the expanded lists
	noteObj["to"] = toList
	noteObj["cc"] = ccList

	// Convert mentions to ActivityPub HTML (after we have resolved URIs)
	if len(mentionURIs) > 0 {
		contentHTML = util.MentionsToActivityPubHTML(contentHTML, mentionURIs)
		noteObj["content"] = contentHTML
	}

	// Build context - include Hashtag definition if we have hashtags
	var context any
	if len(hashtags) > 0 {
		context = []any{
			"https://www.w3.org/ns/activitystreams",
			map[string]any{
				"Hashtag": "as:Hashtag",
			},
		}
	} else {
		context = "https://www.w3.org/ns/activitystreams"
	}

	update := map[string]any{
		"@context":  context,
		"id":        updateID,
		"type":      "Update",
		"actor":     actorURI,
		"published": updatedTime.Format(time.RFC3339),
		"to":        toList,
		"cc":        ccList,
		"object":    noteObj,
	}

	// Collect inboxes to deliver to (followers + parent author for replies)
	inboxes := make(map[string]bool)

	// Get all followers - private/direct notes never broadcast to the
	// full followers collection, only to explicitly addressed actors.
	if broadcastsToFollowers(note.Visibility) {
		err, followers := database.ReadFollowersByAccountId(localAccount.Id)
		if err != nil {
			log.Printf("Outbox: Failed to get followers for Update: %v", err)
		} else if followers != nil {
			for _, follower := range *followers {
				// Skip local followers - they don't need federation delivery
				if follower.IsLocal {
					continue
				}
				err, remoteActor := database.ReadRemoteAccountById(follower.AccountId)
				if err != nil {
					log.Printf("Outbox: Failed to get remote actor %s: %v", follower.AccountId, err)
					continue
				}
				inboxes[remoteActor.InboxURI] = true
			}
		}
	}

	// If this is a reply, also deliver to the parent author's inbox
	if parentAuthorURI != "" && parentAuthorURI != actorURI {
		// First try as remote account
		err, parentAccount := database.ReadRemoteAccountByActorURI(parentAuthorURI)
		if err == nil && parentAccount != nil {
			inboxes[parentAccount.InboxURI] = true
		} else {
			// Try as local account - extract username from URI like https://domain/users/username
			if strings.Contains(parentAuthorURI, conf.Conf.SslDomain) {
				parts := strings.Split(parentAuthorURI, "/users/")
				if len(parts) == 2 {
					parentUsername := parts[1]
					// Verify this local user exists
					err, localParent := database.ReadAccByUsername(parentUsername)
					if err == nil && localParent != nil {
						// Construct local inbox URI
						localInboxURI := fmt.Sprintf("https://%s/users/%s/inbox", conf.Conf.SslDomain, parentUsername)
						inboxes[localInboxURI] = true
					}
				}
			}
		}
	}

	// Also deliver to mentioned actors' inboxes
	for _, mentionActorURI := range mentionedActors {
		// Look up the remote account to get their inbox
		err, mentionedAccount := database.ReadRemoteAccountByActorURI(mentionActorURI)
		if err == nil && mentionedAccount != nil {
			inboxes[mentionedAccount.InboxURI] = true
			log.Printf("Outbox: Will also deliver Update to mentioned user %s@%s", mentionedAccount.Username, mentionedAccount.Domain)
		} else {
			// Fetch the actor if not cached
			mentionedAccount, err = FetchRemoteActorWithDeps(mentionActorURI, defaultHTTPClient, database)
			if err == nil && mentionedAccount != nil {
				inboxes[mentionedAccount.InboxURI] = true
				log.Printf("Outbox: Will also deliver Update to mentioned user %s@%s (fetched)", mentionedAccount.Username, mentionedAccount.Domain)
			} else {
				log.Printf("Outbox: Could not resolve inbox for mentioned actor %s: %v", mentionActorURI, err)
			}
		}
	}

	// Get active relays and add their inboxes
	err, relays := database.ReadActiveRelays()
	if err == nil && relays != nil {
		for _, relay := range *relays {
			inboxes[relay.InboxURI] = true
			log.Printf("Outbox: Will also deliver Update to relay %s", relay.ActorURI)
		}
	}

	if len(inboxes) == 0 {
		log.Printf("Outbox: No inboxes to deliver Update to")
		return nil
	}

	// Queue delivery to each unique inbox
	for inboxURI := range inboxes {
		queueItem := &domain.DeliveryQueueItem{
			Id:           uuid.New(),
			InboxURI:     inboxURI,
			ActivityJSON: mustMarshal(update),
			Attempts:     0,
			NextRetryAt:  time.Now(),
			CreatedAt:    time.Now(),
		}

		if err := database.EnqueueDelivery(queueItem); err != nil {
			log.Printf("Outbox: Failed to queue Update delivery to %s: %v", inboxURI, err)
		}
	}

	log.Printf("Outbox: Queued Update activity for note %s to %d inboxes", note.Id, len(inboxes))
	return nil
}

// SendDelete sends a Delete activity to all followers when a note is deleted.
// This is the production wrapper that uses the default database.
func SendDelete(noteId uuid.UUID, localAccount *domain.Account, conf *util.AppConfig) error {
	return SendDeleteWithDeps(noteId, localAccount, conf, NewDBWrapper())
}

// SendDeleteWithDeps sends a Delete activity to all followers when a note is deleted.
// This version accepts dependencies for testing.
func SendDeleteWithDeps(noteId uuid.UUID, localAccount *domain.Account, conf *util.AppConfig, database Database) error {
	if !conf.Conf.FederationEnabled {
		log.Printf("Outbox: federation disabled, skipping Delete delivery for note %s", noteId)
		return nil
	}

	actorURI := fmt.Sprintf("https://%s/users/%s", conf.Conf.SslDomain, localAccount.Username)
	noteURI := fmt.Sprintf("https://%s/notes/%s", conf.Conf.SslDomain, noteId.String())
	deleteID := fmt.Sprintf("https://%s/activities/%s", conf.Conf.SslDomain, uuid.New().String())

	// The Delete's object is a Tombstone, not a bare URI reference. Its
	// formerType is always "Note": only the note's id is passed in, so the
	// deleted note's content type is not known here.
	tombstone := map[string]any{
		"id":         noteURI,
		"type":       "Tombstone",
		"formerType": "Note",
		"deleted":    time.Now().Format(time.RFC3339),
	}

	deleteActivity := map[string]any{
		"@context":  "https://www.w3.org/ns/activitystreams",
		"id":        deleteID,
		"type":      "Delete",
		"actor":     actorURI,
		"published": time.Now().Format(time.RFC3339),
		"to": []string{
			"https://www.w3.org/ns/activitystreams#Public",
		},
		"cc": []string{
			fmt.Sprintf("https://%s/users/%s/followers", conf.Conf.SslDomain, localAccount.Username),
		},
		"object": tombstone,
	}

	// Collect inboxes to deliver to
	inboxes := make(map[string]bool)

	// Get all followers
	err, followers := database.ReadFollowersByAccountId(localAccount.Id)
	if err != nil {
		log.Printf("Outbox: Failed to get followers for Delete: %v", err)
	} else if followers != nil {
		for _, follower := range *followers {
			// Skip local followers - they don't need federation delivery
			if follower.IsLocal {
				continue
			}
			err, remoteActor := database.ReadRemoteAccountById(follower.AccountId)
			if err != nil {
				log.Printf("Outbox: Failed to get remote actor %s: %v", follower.AccountId, err)
				continue
			}
			inboxes[remoteActor.InboxURI] = true
		}
	}

	// Get active relays and add their inboxes
	err, relays := database.ReadActiveRelays()
	if err == nil && relays != nil {
		for _, relay := range *relays {
			inboxes[relay.InboxURI] = true
			log.Printf("Outbox: Will also deliver Delete to relay %s", relay.ActorURI)
		}
	}

	if len(inboxes) == 0 {
		log.Printf("Outbox: No inboxes to deliver Delete to")
		return nil
	}

	// Queue delivery to each unique inbox
	for inboxURI := range inboxes {
		queueItem := &domain.DeliveryQueueItem{
			Id:           uuid.New(),
			InboxURI:     inboxURI,
			ActivityJSON: mustMarshal(deleteActivity),
			Attempts:     0,
			NextRetryAt:  time.Now(),
			CreatedAt:    time.Now(),
		}

		if err := database.EnqueueDelivery(queueItem); err != nil {
			log.Printf("Outbox: Failed to queue Delete delivery to %s: %v", inboxURI, err)
		}
	}

	log.Printf("Outbox: Queued Delete activity for note %s to %d inboxes", noteId, len(inboxes))
	return nil
}

// SendFollow sends a Follow activity to a remote actor.
// This is the production wrapper that uses the default HTTP client and database.
func SendFollow(localAccount *domain.Account, remoteActorURI string, conf *util.AppConfig) error {
	return SendFollowWithDeps(localAccount, remoteActorURI, conf, defaultHTTPClient, NewDBWrapper())
}

// SendFollowWithDeps sends a Follow activity to a remote actor.
// This version accepts dependencies for testing.
func SendFollowWithDeps(localAccount *domain.Account, remoteActorURI string, conf *util.AppConfig, client HTTPClient, database Database) error {
	// Fetch remote actor
	remoteActor, err := GetOrFetchActorWithDeps(remoteActorURI, client, database)
	if err != nil {
		return fmt.Errorf("failed to fetch remote actor: %w", err)
	}

	// Check if trying to follow yourself
	if remoteActor.Domain == conf.Conf.SslDomain && remoteActor.Username == localAccount.Username {
		log.Printf("SendFollow: User %s attempted to follow themselves", localAccount.Username)
		return fmt.Errorf("self-follow not allowed on stegodon for now")
	}

	// Check if already following this user
	err, existingFollow := database.ReadFollowByAccountIds(localAccount.Id, remoteActor.Id)
	if err != sql.ErrNoRows && err != nil {
		// Database error (not "not found")
		log.Printf("SendFollow: Error checking existing follow: %v", err)
		return fmt.Errorf("failed to check existing follow: %w", err)
	}
	if existingFollow != nil {
		// Follow relationship already exists - check if accepted
		if existingFollow.Accepted {
			// Already following and accepted
			log.Printf("SendFollow: User %s is already following %s@%s (accepted)", localAccount.Username, remoteActor.Username, remoteActor.Domain)
			return fmt.Errorf("already following %s@%s", remoteActor.Username, remoteActor.Domain)
		} else {
			// Follow exists but pending acceptance
			log.Printf("SendFollow: User %s has pending follow request to %s@%s", localAccount.Username, remoteActor.Username, remoteActor.Domain)
			return fmt.Errorf("follow pending %s@%s", remoteActor.Username, remoteActor.Domain)
		}
	}

	// Not following yet, create the follow
	followID := fmt.Sprintf("https://%s/activities/%s", conf.Conf.SslDomain, uuid.New().String())
	actorURI := fmt.Sprintf("https://%s/users/%s", conf.Conf.SslDomain, localAccount.Username)

	follow := map[string]any{
		"@context": "https://www.w3.org/ns/activitystreams",
		"id":       followID,
		"type":     "Follow",
		"actor":    actorURI,
		"object":   remoteActorURI,
	}

	// Store follow relationship as pending
	followRecord := &domain.Follow{
		Id:              uuid.New(),
		AccountId:       localAccount.Id,
		TargetAccountId: remoteActor.Id,
		URI:             followID,
		Accepted:        false, // Pending until Accept received
		CreatedAt:       time.Now(),
	}

	if err := database.CreateFollow(followRecord); err != nil {
		return fmt.Errorf("failed to store follow: %w", err)
	}

	// Send Follow activity
	return SendActivityWithDeps(follow, remoteActor.InboxURI, localAccount, conf, client)
}

// SendUndo sends an Undo activity for a Follow (i.e., unfollow).
// This is the production wrapper that uses the default HTTP client.
func SendUndo(localAccount *domain.Account, follow *domain.Follow, remoteActor *domain.RemoteAccount, conf *util.AppConfig) error {
	return SendUndoWithDeps(localAccount, follow, remoteActor, conf, defaultHTTPClient)
}

// SendUndoWithDeps sends an Undo activity for a Follow (i.e., unfollow).
// This version accepts dependencies for testing.
func SendUndoWithDeps(localAccount *domain.Account, follow *domain.Follow, remoteActor *domain.RemoteAccount, conf *util.AppConfig, client HTTPClient) error {
	undoID := fmt.Sprintf("https://%s/activities/%s", conf.Conf.SslDomain, uuid.New().String())
	actorURI := fmt.Sprintf("https://%s/users/%s", conf.Conf.SslDomain, localAccount.Username)

	// Create Undo activity with embedded Follow object
	undo := map[string]any{
		"@context": "https://www.w3.org/ns/activitystreams",
		"id":       undoID,
		"type":     "Undo",
		"actor":    actorURI,
		"object": map[string]any{
			"id":     follow.URI,
			"type":   "Follow",
			"actor":  actorURI,
			"object": remoteActor.ActorURI,
		},
	}

	log.Printf("Outbox: Sending Undo (unfollow) from %s to %s@%s", localAccount.Username, remoteActor.Username, remoteActor.Domain)
	return SendActivityWithDeps(undo, remoteActor.InboxURI, localAccount, conf, client)
}

// SendLike sends a Like activity for a note.
// This is the production wrapper that uses the default HTTP client and database.
func SendLike(localAccount *domain.Account, noteURI string, conf *util.AppConfig) error {
	return SendLikeWithDeps(localAccount, noteURI, conf, defaultHTTPClient, NewDBWrapper())
}

// SendLikeWithDeps sends a Like activity for a note.
// This version accepts dependencies for testing.
func SendLikeWithDeps(localAccount *domain.Account, noteURI string, conf *util.AppConfig, client HTTPClient, database Database) error {
	// Find the author of the note to deliver the Like
	authorURI := extractAuthorFromURI(noteURI, database, conf)
	if authorURI == "" {
		return fmt.Errorf("could not determine note author for %s", noteURI)
	}

	// Check if this is a local note (don't send ActivityPub for local likes)
	if strings.Contains(authorURI, conf.Conf.SslDomain) {
		log.Printf("Outbox: Skipping Like delivery for local note %s", noteURI)
		return nil
	}

	// Fetch remote actor to get inbox
	remoteActor, err := GetOrFetchActorWithDeps(authorURI, client, database)
	if err != nil {
		return fmt.Errorf("failed to fetch note author: %w", err)
	}

	likeID := fmt.Sprintf("https://%s/activities/%s", conf.Conf.SslDomain, uuid.New().String())
	actorURI := fmt.Sprintf("https://%s/users/%s", conf.Conf.SslDomain, localAccount.Username)

	like := map[string]any{
		"@context": "https://www.w3.org/ns/activitystreams",
		"id":       likeID,
		"type":     "Like",
		"actor":    actorURI,
		"object":   noteURI,
	}

	log.Printf("Outbox: Sending Like from %s for note %s to %s@%s", localAccount.Username, noteURI, remoteActor.Username, remoteActor.Domain)
	return SendActivityWithDeps(like, remoteActor.InboxURI, localAccount, conf, client)
}

// SendUndoLike sends an Undo activity for a Like (i.e., unlike).
// This is the production wrapper that uses the default HTTP client and database.
func SendUndoLike(localAccount *domain.Account, noteURI string, likeURI string, conf *util.AppConfig) error {
	return SendUndoLikeWithDeps(localAccount, noteURI, likeURI, conf, defaultHTTPClient, NewDBWrapper())
}

// SendUndoLikeWithDeps sends an Undo activity for a Like (i.e., unlike).
// This version accepts dependencies for testing.
func SendUndoLikeWithDeps(localAccount *domain.Account, noteURI string, likeURI string, conf *util.AppConfig, client HTTPClient, database Database) error {
	// Find the author of the note to deliver the Undo
	authorURI := extractAuthorFromURI(noteURI, database, conf)
	if authorURI == "" {
		return fmt.Errorf("could not determine note author for %s", noteURI)
	}

	// Check if this is a local note (don't send ActivityPub for local unlikes)
	if strings.Contains(authorURI, conf.Conf.SslDomain) {
		log.Printf("Outbox: Skipping Undo Like delivery for local note %s", noteURI)
		return nil
	}

	// Fetch remote actor to get inbox
	remoteActor, err := GetOrFetchActorWithDeps(authorURI, client, database)
	if err != nil {
		return fmt.Errorf("failed to fetch note author: %w", err)
	}

	undoID := fmt.Sprintf("https://%s/activities/%s", conf.Conf.SslDomain, uuid.New().String())
	actorURI := fmt.Sprintf("https://%s/users/%s", conf.Conf.SslDomain, localAccount.Username)

	undo := map[string]any{
		"@context": "https://www.w3.org/ns/activitystreams",
		"id":       undoID,
		"type":     "Undo",
		"actor":    actorURI,
		"object": map[string]any{
			"id":     likeURI,
			"type":   "Like",
			"actor":  actorURI,
			"object": noteURI,
		},
	}

	log.Printf("Outbox: Sending Undo Like from %s for note %s to %s@%s", localAccount.Username, noteURI, remoteActor.Username, remoteActor.Domain)
	return SendActivityWithDeps(undo, remoteActor.InboxURI, localAccount, conf, client)
}

// SendRelayFollow subscribes to a relay by sending a Follow activity.
// This is the production wrapper that uses the default HTTP client and database.
func SendRelayFollow(localAccount *domain.Account, relayActorURI string, conf *util.AppConfig) error {
	return SendRelayFollowWithDeps(localAccount, relayActorURI, conf, defaultHTTPClient, NewDBWrapper())
}

// SendRelayFollowWithDeps subscribes to a relay by sending a Follow activity.
// This version accepts dependencies for testing.
func SendRelayFollowWithDeps(localAccount *domain.Account, relayActorURI string, conf *util.AppConfig, client HTTPClient, database Database) error {
	// Fetch the relay actor to get inbox and validate it's a relay
	relayActor, err := FetchRemoteActorWithDeps(relayActorURI, client, database)
	if err != nil {
		return fmt.Errorf("failed to fetch relay actor: %w", err)
	}

	// Check if already subscribed
	err, existingRelay := database.ReadRelayByActorURI(relayActorURI)
	if err == nil && existingRelay != nil {
		if existingRelay.Status == "active" {
			return fmt.Errorf("already subscribed to relay %s", relayActorURI)
		}
		if existingRelay.Status == "pending" {
			return fmt.Errorf("subscription to relay %s is pending", relayActorURI)
		}
		// If status is "failed", we allow retry by deleting and recreating
		if err := database.DeleteRelay(existingRelay.Id); err != nil {
			log.Printf("Outbox: Failed to delete old relay record: %v", err)
		}
	}

	// Create follow activity
	followID := fmt.Sprintf("https://%s/activities/%s", conf.Conf.SslDomain, uuid.New().String())
	actorURI := fmt.Sprintf("https://%s/users/%s", conf.Conf.SslDomain, localAccount.Username)

	// Use the public address as the object for relay follows
	// This is compatible with both FediBuzz and YUKIMOCHI Activity-Relay
	// YUKIMOCHI requires either object=Public or actor path ending in /relay
	follow := map[string]any{
		"@context": "https://www.w3.org/ns/activitystreams",
		"id":       followID,
		"type":     "Follow",
		"actor":    actorURI,
		"object":   "https://www.w3.org/ns/activitystreams#Public",
	}

	// Store relay record as pending (include follow URI for later Undo)
	relay := &domain.Relay{
		Id:        uuid.New(),
		ActorURI:  relayActorURI,
		InboxURI:  relayActor.InboxURI,
		FollowURI: followID,
		Name:      relayActor.DisplayName,
		Status:    "pending",
		CreatedAt: time.Now(),
	}

	if err := database.CreateRelay(relay); err != nil {
		return fmt.Errorf("failed to store relay: %w", err)
	}

	// Send Follow activity to relay
	log.Printf("Outbox: Sending Follow to relay %s from %s", relayActorURI, localAccount.Username)
	return SendActivityWithDeps(follow, relayActor.InboxURI, localAccount, conf, client)
}

// SendRelayUnfollow unsubscribes from a relay by sending an Undo Follow activity.
// This is the production wrapper that uses the default HTTP client.
func SendRelayUnfollow(localAccount *domain.Account, relay *domain.Relay, conf *util.AppConfig) error {
	return SendRelayUnfollowWithDeps(localAccount, relay, conf, defaultHTTPClient)
}

// SendRelayUnfollowWithDeps unsubscribes from a relay by sending an Undo Follow activity.
// This version accepts dependencies for testing.
func SendRelayUnfollowWithDeps(localAccount *domain.Account, relay *domain.Relay, conf *util.AppConfig, client HTTPClient) error {
	undoID := fmt.Sprintf("https://%s/activities/%s", conf.Conf.SslDomain, uuid.New().String())
	actorURI := fmt.Sprintf("https://%s/users/%s", conf.Conf.SslDomain, localAccount.Username)

	// Use the stored Follow URI if available, otherwise construct one
	followID := relay.FollowURI
	if followID == "" {
		// Fallback for relays created before we stored the follow URI
		followID = fmt.Sprintf("https://%s/relay-follows/%s", conf.Conf.SslDomain, relay.Id.String())
	}

	undo := map[string]any{
		"@context": "https://www.w3.org/ns/activitystreams",
		"id":       undoID,
		"type":     "Undo",
		"actor":    actorURI,
		"object": map[string]any{
			"id":     followID,
			"type":   "Follow",
			"actor":  actorURI,
			"object": "https://www.w3.org/ns/activitystreams#Public",
		},
	}

	log.Printf("Outbox: Sending Undo Follow (unsubscribe) to relay %s from %s", relay.ActorURI, localAccount.Username)
	return SendActivityWithDeps(undo, relay.InboxURI, localAccount, conf, client)
}

// addressingForVisibility returns the to/cc addressing pair for a note's
// visibility, per the addressing table: public rides the Public collection
// with followers cc'd, unlisted is the reverse, followers-only addresses the
// followers collection directly with no public trace, private addresses
// only the author, and direct addresses no collection at all (recipients
// come entirely from mentions). Unknown values fall back to public.
func addressingForVisibility(visibility, actorURI, followersURI string) (to []string, cc []string) {
	switch visibility {
	case "unlisted":
		return []string{followersURI}, []string{"https://www.w3.org/ns/activitystreams#Public"}
	case "followers":
		return []string{followersURI}, []string{}
	case "private":
		return []string{actorURI}, []string{}
	case "direct":
		return []string{}, []string{}
	default: // "public" and anything unrecognized
		return []string{"https://www.w3.org/ns/activitystreams#Public"}, []string{followersURI}
	}
}

// addressesDirectly reports whether visibility routes replies and mentions
// into "to" (the actual recipients) rather than "cc" (incidental addressees).
func addressesDirectly(visibility string) bool {
	switch visibility {
	case "followers", "private", "direct":
		return true
	default:
		return false
	}
}

// broadcastsToFollowers reports whether visibility permits delivering to the
// full followers collection. Private and direct notes only reach the actors
// explicitly addressed via replies and mentions.
func broadcastsToFollowers(visibility string) bool {
	switch visibility {
	case "private", "direct":
		return false
	default:
		return true
	}
}

// asObjectType maps a note's content type to the ActivityPub Object type it
// federates as. Plain microblog posts ("note", the default) stay Note;
// everything unrecognized falls back to the generic Object type.
func asObjectType(contentType string) string {
	switch contentType {
	case "blog", "blog-post":
		return "Article"
	case "product":
		return "Page"
	case "profile":
		return "Person"
	case "event", "program":
		return "Event"
	case "video":
		return "Video"
	case "image":
		return "Image"
	case "document":
		return "Document"
	case "note", "":
		return "Note"
	default:
		return "Object"
	}
}

// applyContentTypeFields layers the type-specific shape from the object
// table on top of obj's already-set common fields (id, attributedTo,
// content, to, cc, ...).
func applyContentTypeFields(obj map[string]any, note *domain.Note, asType string) {
	switch asType {
	case "Article":
		if note.Title != "" {
			obj["name"] = note.Title
		}
		if note.Summary != "" {
			obj["summary"] = note.Summary
		}
		if note.FeaturedImageURL != "" {
			obj["attachment"] = []map[string]any{
				{"type": "Image", "url": note.FeaturedImageURL},
			}
		}
	case "Event":
		if note.StartTime != nil {
			obj["startTime"] = note.StartTime.Format(time.RFC3339)
		} else {
			obj["startTime"] = note.CreatedAt.Format(time.RFC3339)
		}
		if note.EndTime != nil {
			obj["endTime"] = note.EndTime.Format(time.RFC3339)
		}
		if note.Location != "" {
			obj["location"] = map[string]any{"type": "Place", "name": note.Location}
		}
	case "Video":
		if note.MediaURL != "" {
			obj["url"] = note.MediaURL
		}
		if note.Duration != "" {
			obj["duration"] = note.Duration
		}
		if note.Width > 0 {
			obj["width"] = note.Width
		}
		if note.Height > 0 {
			obj["height"] = note.Height
		}
		if note.FeaturedImageURL != "" {
			obj["attachment"] = []map[string]any{
				{"type": "Image", "url": note.FeaturedImageURL, "name": "thumbnail"},
			}
		}
	case "Image", "Document":
		if note.MediaURL != "" {
			obj["url"] = note.MediaURL
		}
		if note.Title != "" {
			obj["name"] = note.Title
		}
	case "Page":
		if note.Title != "" {
			obj["name"] = note.Title
		}
		if note.Summary != "" {
			obj["summary"] = note.Summary
		}
	default: // Note
		if note.Summary != "" {
			obj["summary"] = note.Summary
		}
	}
}

// mustMarshal marshals v to JSON, panicking on error
func mustMarshal(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("failed to marshal: %v", err))
	}
	return string(b)
}

// extractAuthorFromURI attempts to extract the author URI from a note/activity URI
// This is used to add the parent author to cc when creating a reply
func extractAuthorFromURI(objectURI string, database Database, conf *util.AppConfig) string {
	// First, check if we have a stored activity with this object
	err, activity := database.ReadActivityByObjectURI(objectURI)
	if err == nil && activity != nil {
		return activity.ActorURI
	}

	// Try to check if it's a local note
	err, localNote := database.ReadNoteByURI(objectURI)
	if err == nil && localNote != nil {
		// It's a local note - return the local author's actor URI
		// This ensures replies to local users are delivered to their inbox
		return fmt.Sprintf("https://%s/users/%s", conf.Conf.SslDomain, localNote.CreatedBy)
	}

	// Can't determine author - caller should handle gracefully
	log.Printf("extractAuthorFromURI: Could not determine author for %s", objectURI)
	return ""
}

// resolveMentionURI resolves a @username@domain mention to an ActivityPub actor URI
// using WebFinger lookup
func resolveMentionURI(username, domain string) (string, error) {
	webfingerURL := fmt.Sprintf("https://%s/.well-known/webfinger?resource=acct:%s@%s",
		domain, username, domain)

	req, err := http.NewRequest("GET", webfingerURL, nil)
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

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	// WebFingerResponse structure for parsing
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

	// Find self link with ActivityPub-compatible type
	for _, link := range result.Links {
		if link.Rel == "self" {
			if link.Type == "application/activity+json" ||
				link.Type == "application/ld+json; profile=\"https://www.w3.org/ns/activitystreams\"" {
				return link.Href, nil
			}
		}
	}

	return "", fmt.Errorf("no ActivityPub actor found in webfinger response")
}
