package activitypub

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/deemkeen/federatoad/domain"
	"github.com/deemkeen/federatoad/federror"
	"github.com/deemkeen/federatoad/util"
	"github.com/google/uuid"
)

// InboxDeps holds dependencies for inbox handlers (for testing)
type InboxDeps struct {
	Database   Database
	HTTPClient HTTPClient
}

// Activity represents a generic ActivityPub activity
type Activity struct {
	Context any    `json:"@context"`
	ID      string `json:"id"`
	Type    string `json:"type"`
	Actor   string `json:"actor"`
	Object  any    `json:"object"`
}

// FollowActivity represents an ActivityPub Follow activity
type FollowActivity struct {
	Context any    `json:"@context"`
	ID      string `json:"id"`
	Type    string `json:"type"`
	Actor   string `json:"actor"`
	Object  string `json:"object"` // URI of the person being followed
}

// HandleInbox processes incoming ActivityPub activities
func HandleInbox(w http.ResponseWriter, r *http.Request, username string, conf *util.AppConfig) {
	deps := &InboxDeps{
		Database:   NewDBWrapper(),
		HTTPClient: defaultHTTPClient,
	}
	HandleInboxWithDeps(w, r, username, conf, deps)
}

// HandleInboxWithDeps processes incoming ActivityPub activities.
// This version accepts dependencies for testing.
func HandleInboxWithDeps(w http.ResponseWriter, r *http.Request, username string, conf *util.AppConfig, deps *InboxDeps) {
	// Verify HTTP signature
	signature := r.Header.Get("Signature")
	if signature == "" {
		ferr := federror.SignatureVerification("missing HTTP signature", nil)
		log.Printf("Inbox: %v", ferr)
		http.Error(w, "Missing signature", ferr.StatusCode())
		return
	}

	// Read request body with size limit (1MB max to prevent DoS)
	const maxBodySize = 1 * 1024 * 1024
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		log.Printf("Inbox: Failed to read body: %v", err)
		http.Error(w, "Failed to read body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	// Check if body was truncated (too large)
	if len(body) == maxBodySize {
		log.Printf("Inbox: Request body too large")
		http.Error(w, "Request too large", http.StatusRequestEntityTooLarge)
		return
	}

	// Parse activity
	var activity Activity
	if err := json.Unmarshal(body, &activity); err != nil {
		log.Printf("Inbox: Failed to parse activity: %v", err)
		http.Error(w, "Invalid activity", http.StatusBadRequest)
		return
	}

	log.Printf("Inbox: Received %s from %s", activity.Type, activity.Actor)

	// Fetch remote actor to verify and cache
	remoteActor, err := GetOrFetchActorWithDeps(activity.Actor, deps.HTTPClient, deps.Database)
	if err != nil {
		ferr := federror.BadRequest(fmt.Sprintf("failed to fetch actor %s", activity.Actor), err)
		log.Printf("Inbox: %v", ferr)
		http.Error(w, "Failed to verify actor", ferr.StatusCode())
		return
	}

	// Restore body for signature verification (body was consumed during read)
	r.Body = io.NopCloser(bytes.NewReader(body))

	// Verify HTTP signature with actor's public key
	_, err = VerifyRequest(r, remoteActor.PublicKeyPem)
	if err != nil {
		ferr := federror.SignatureVerification("signature verification failed", err)
		log.Printf("Inbox: %v", ferr)
		http.Error(w, "Invalid signature", ferr.StatusCode())
		return
	}

	// Store activity in database
	database := deps.Database

	// Extract ObjectURI from the activity's object field
	objectURI := ""
	if activity.Object != nil {
		switch obj := activity.Object.(type) {
		case string:
			// Object is a simple URI string (like in Follow, Undo, etc.)
			objectURI = obj
		case map[string]any:
			// Object is a full object (like in Create, Update)
			if id, ok := obj["id"].(string); ok {
				objectURI = id
			}
		}
	}

	activityRecord := &domain.Activity{
		Id:           uuid.New(),
		ActivityURI:  activity.ID,
		ActivityType: activity.Type,
		ActorURI:     activity.Actor,
		ObjectURI:    objectURI,
		RawJSON:      string(body),
		Processed:    false,
		Local:        false,
		CreatedAt:    time.Now(),
	}

	if err := database.CreateActivity(activityRecord); err != nil {
		// Check if this is a duplicate (already processed)
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			log.Printf("Inbox: Activity %s already processed, returning success", activity.ID)
			w.WriteHeader(http.StatusAccepted)
			return
		}
		log.Printf("Inbox: Failed to store activity: %v", err)
		// Don't fail the request, we'll process it anyway
	}

	// Process activity based on type
	switch activity.Type {
	case "Follow":
		if err := handleFollowActivityWithDeps(body, username, remoteActor, conf, deps); err != nil {
			log.Printf("Inbox: Failed to handle Follow: %v", err)
			http.Error(w, "Failed to process Follow", http.StatusInternalServerError)
			return
		}
	case "Undo":
		if err := handleUndoActivityWithDeps(body, username, remoteActor, deps); err != nil {
			log.Printf("Inbox: Failed to handle Undo: %v", err)
			http.Error(w, "Failed to process Undo", http.StatusInternalServerError)
			return
		}
	case "Create":
		if err := handleCreateActivityWithDeps(body, username, deps); err != nil {
			log.Printf("Inbox: Failed to handle Create: %v", err)
			http.Error(w, "Failed to process Create", http.StatusInternalServerError)
			return
		}
	case "Like":
		if err := handleLikeActivityWithDeps(body, username, deps); err != nil {
			log.Printf("Inbox: Failed to handle Like: %v", err)
			http.Error(w, "Failed to process Like", http.StatusInternalServerError)
			return
		}
	case "Accept":
		// Accept activities are confirmations of Follow requests
		if err := handleAcceptActivityWithDeps(body, username, deps); err != nil {
			log.Printf("Inbox: Failed to handle Accept: %v", err)
			// Don't fail the request
		}
	case "Update":
		if err := handleUpdateActivityWithDeps(body, username, deps); err != nil {
			log.Printf("Inbox: Failed to handle Update: %v", err)
			http.Error(w, "Failed to process Update", http.StatusInternalServerError)
			return
		}
	case "Delete":
		if err := handleDeleteActivityWithDeps(body, username, deps); err != nil {
			log.Printf("Inbox: Failed to handle Delete: %v", err)
			http.Error(w, "Failed to process Delete", http.StatusInternalServerError)
			return
		}
	case "Reject":
		// Reject activities are denials of Follow requests; don't fail the request
		if err := handleRejectActivityWithDeps(body, username, deps); err != nil {
			log.Printf("Inbox: Failed to handle Reject: %v", err)
		}
	case "Announce":
		if err := handleAnnounceActivityWithDeps(body, username, deps); err != nil {
			log.Printf("Inbox: Failed to handle Announce: %v", err)
			http.Error(w, "Failed to process Announce", http.StatusInternalServerError)
			return
		}
	default:
		log.Printf("Inbox: Unsupported activity type: %s", activity.Type)
	}

	// Mark activity as processed
	activityRecord.Processed = true
	if err := database.UpdateActivity(activityRecord); err != nil {
		log.Printf("Inbox: Failed to update activity: %v", err)
		// Continue anyway, this is not critical
	}

	// Return 202 Accepted
	w.WriteHeader(http.StatusAccepted)
}

// handleFollowActivity processes a Follow activity
func handleFollowActivity(body []byte, username string, remoteActor *domain.RemoteAccount, conf *util.AppConfig) error {
	deps := &InboxDeps{
		Database:   NewDBWrapper(),
		HTTPClient: defaultHTTPClient,
	}
	return handleFollowActivityWithDeps(body, username, remoteActor, conf, deps)
}

// handleFollowActivityWithDeps processes a Follow activity.
// This version accepts dependencies for testing.
func handleFollowActivityWithDeps(body []byte, username string, remoteActor *domain.RemoteAccount, conf *util.AppConfig, deps *InboxDeps) error {
	var follow FollowActivity
	if err := json.Unmarshal(body, &follow); err != nil {
		return fmt.Errorf("failed to parse Follow activity: %w", err)
	}

	log.Printf("Inbox: Processing Follow from %s@%s", remoteActor.Username, remoteActor.Domain)

	// Get local account
	database := deps.Database
	err, localAccount := database.ReadAccByUsername(username)
	if err != nil {
		return fmt.Errorf("local account not found: %w", err)
	}

	// Check if follow relationship already exists
	err, existingFollow := database.ReadFollowByAccountIds(remoteActor.Id, localAccount.Id)
	if err == nil && existingFollow != nil {
		// Follow already exists, just log and continue to send Accept
		log.Printf("Inbox: Follow relationship from %s@%s already exists, skipping duplicate", remoteActor.Username, remoteActor.Domain)
	} else {
		// Create follow relationship
		// When remote actor follows local account:
		// - AccountId = remote actor (the follower)
		// - TargetAccountId = local account (being followed)
		followRecord := &domain.Follow{
			Id:              uuid.New(),
			AccountId:       remoteActor.Id,  // The follower
			TargetAccountId: localAccount.Id, // The target being followed
			URI:             follow.ID,
			Accepted:        conf.Conf.AutoApproveFollows,
			CreatedAt:       time.Now(),
		}

		if err := database.CreateFollow(followRecord); err != nil {
			return fmt.Errorf("failed to create follow: %w", err)
		}
	}

	if !conf.Conf.AutoApproveFollows {
		log.Printf("Inbox: Follow from %s@%s is pending manual approval", remoteActor.Username, remoteActor.Domain)
		return nil
	}

	// Send Accept activity
	if err := SendAcceptWithDeps(localAccount, remoteActor, follow.ID, conf, deps.HTTPClient); err != nil {
		return fmt.Errorf("failed to send Accept: %w", err)
	}

	if err := database.CreateNotification(&domain.Notification{
		Id:               uuid.New(),
		AccountId:        localAccount.Id,
		NotificationType: domain.NotificationFollow,
		ActorId:          remoteActor.Id,
		ActorUsername:    remoteActor.Username,
		ActorDomain:      remoteActor.Domain,
		CreatedAt:        time.Now(),
	}); err != nil {
		log.Printf("Inbox: Failed to create follow notification: %v", err)
	}

	log.Printf("Inbox: Accepted follow from %s@%s", remoteActor.Username, remoteActor.Domain)
	return nil
}

// handleUndoActivity processes an Undo activity (e.g., Undo Follow)
func handleUndoActivity(body []byte, username string, remoteActor *domain.RemoteAccount) error {
	deps := &InboxDeps{
		Database:   NewDBWrapper(),
		HTTPClient: defaultHTTPClient,
	}
	return handleUndoActivityWithDeps(body, username, remoteActor, deps)
}

// handleUndoActivityWithDeps processes an Undo activity (e.g., Undo Follow).
// This version accepts dependencies for testing.
func handleUndoActivityWithDeps(body []byte, username string, remoteActor *domain.RemoteAccount, deps *InboxDeps) error {
	// Parse the Undo activity
	var undo struct {
		Type   string          `json:"type"`
		Actor  string          `json:"actor"`
		Object json.RawMessage `json:"object"`
	}
	if err := json.Unmarshal(body, &undo); err != nil {
		return fmt.Errorf("failed to parse Undo activity: %w", err)
	}

	// Parse the embedded object. For Like/Announce, Object carries the URI of
	// the note that was liked/boosted, needed to locate the local record.
	var obj struct {
		Type   string `json:"type"`
		ID     string `json:"id"`
		Object string `json:"object"`
	}
	if err := json.Unmarshal(undo.Object, &obj); err != nil {
		return fmt.Errorf("failed to parse Undo object: %w", err)
	}

	database := deps.Database

	switch obj.Type {
	case "Follow":
		// Verify authorization: Undo actor must match Follow actor

		// Fetch the follow to verify ownership
		err, follow := database.ReadFollowByURI(obj.ID)
		if err != nil {
			return fmt.Errorf("follow not found: %w", err)
		}
		if follow == nil {
			return fmt.Errorf("follow not found")
		}

		// Verify the Undo actor matches the Follow actor
		// For remote follows, the AccountId is the remote actor who created the follow
		err, followActor := database.ReadRemoteAccountById(follow.AccountId)
		if err != nil || followActor == nil {
			return fmt.Errorf("follow actor not found")
		}
		if followActor.ActorURI != undo.Actor {
			return fmt.Errorf("unauthorized: actor %s cannot undo follow created by %s", undo.Actor, followActor.ActorURI)
		}

		// Authorization passed, delete the follow relationship
		if err := database.DeleteFollowByURI(obj.ID); err != nil {
			return fmt.Errorf("failed to delete follow: %w", err)
		}
		log.Printf("Inbox: Removed follow from %s@%s", remoteActor.Username, remoteActor.Domain)

	case "Like":
		return undoLike(obj.ID, obj.Object, remoteActor, database)

	case "Announce":
		return undoAnnounce(obj.ID, obj.Object, remoteActor, database)

	default:
		log.Printf("Inbox: Unsupported Undo object type: %s", obj.Type)
	}

	return nil
}

// undoLike removes the Like that remoteActor placed on noteURI, if any, and
// decrements the note's like count. A missing like is not an error.
func undoLike(likeURI, noteURI string, remoteActor *domain.RemoteAccount, database Database) error {
	err, note := database.ReadNoteByURI(noteURI)
	if err != nil || note == nil {
		log.Printf("Inbox: Undo Like target %s not found locally, ignoring", noteURI)
		return nil
	}

	has, err := database.HasLike(remoteActor.Id, note.Id)
	if err != nil || !has {
		log.Printf("Inbox: No existing like %s from %s@%s, ignoring undo", likeURI, remoteActor.Username, remoteActor.Domain)
		return nil
	}

	if err := database.DeleteLikeByAccountAndNote(remoteActor.Id, note.Id); err != nil {
		return fmt.Errorf("failed to delete like: %w", err)
	}
	if err := database.DecrementLikeCountByNoteId(note.Id); err != nil {
		log.Printf("Inbox: Failed to decrement like count for %s: %v", note.Id, err)
	}
	log.Printf("Inbox: Removed like %s from %s@%s", likeURI, remoteActor.Username, remoteActor.Domain)
	return nil
}

// undoAnnounce removes the Boost that remoteActor placed on noteURI, if any,
// and decrements the note's boost count. A missing boost is not an error.
func undoAnnounce(announceURI, noteURI string, remoteActor *domain.RemoteAccount, database Database) error {
	err, note := database.ReadNoteByURI(noteURI)
	if err != nil || note == nil {
		log.Printf("Inbox: Undo Announce target %s not found locally, ignoring", noteURI)
		return nil
	}

	has, err := database.HasBoost(remoteActor.Id, note.Id)
	if err != nil || !has {
		log.Printf("Inbox: No existing boost %s from %s@%s, ignoring undo", announceURI, remoteActor.Username, remoteActor.Domain)
		return nil
	}

	if err := database.DeleteBoostByAccountAndNote(remoteActor.Id, note.Id); err != nil {
		return fmt.Errorf("failed to delete boost: %w", err)
	}
	if err := database.DecrementBoostCountByNoteId(note.Id); err != nil {
		log.Printf("Inbox: Failed to decrement boost count for %s: %v", note.Id, err)
	}
	log.Printf("Inbox: Removed boost %s from %s@%s", announceURI, remoteActor.Username, remoteActor.Domain)
	return nil
}

// extractObjectJSON pulls the raw "object" member out of an activity
// envelope's JSON body, re-marshaled on its own so the remote-content
// mirror stores the object rather than the wrapping activity.
func extractObjectJSON(body []byte) (string, error) {
	var envelope struct {
		Object json.RawMessage `json:"object"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return "", err
	}
	return string(envelope.Object), nil
}

// handleCreateActivity processes a Create activity (incoming post/note)
func handleCreateActivity(body []byte, username string) error {
	deps := &InboxDeps{
		Database:   NewDBWrapper(),
		HTTPClient: defaultHTTPClient,
	}
	return handleCreateActivityWithDeps(body, username, deps)
}

// handleCreateActivityWithDeps processes a Create activity (incoming post/note).
// This version accepts dependencies for testing.
func handleCreateActivityWithDeps(body []byte, username string, deps *InboxDeps) error {
	var create struct {
		ID     string `json:"id"`
		Type   string `json:"type"`
		Actor  string `json:"actor"`
		Object struct {
			ID           string `json:"id"`
			Type         string `json:"type"`
			Content      string `json:"content"`
			Published    string `json:"published"`
			AttributedTo string `json:"attributedTo"`
			InReplyTo    string `json:"inReplyTo"`
			Tag          []struct {
				Type string `json:"type"`
				Href string `json:"href"`
				Name string `json:"name"`
			} `json:"tag"`
		} `json:"object"`
	}

	if err := json.Unmarshal(body, &create); err != nil {
		return fmt.Errorf("failed to parse Create activity: %w", err)
	}

	log.Printf("Inbox: Received post from %s", create.Actor)

	// Log if this is a reply
	if create.Object.InReplyTo != "" {
		log.Printf("Inbox: Post is a reply to %s", create.Object.InReplyTo)
	}

	database := deps.Database

	// Get the local account
	err, localAccount := database.ReadAccByUsername(username)
	if err != nil {
		log.Printf("Inbox: Failed to get local account %s: %v", username, err)
		return fmt.Errorf("failed to get local account: %w", err)
	}
	log.Printf("Inbox: Local account: %s (ID: %s)", localAccount.Username, localAccount.Id)

	// Get the remote actor (try cache first, fetch if not found)
	err, remoteActor := database.ReadRemoteAccountByActorURI(create.Actor)
	if err != nil || remoteActor == nil {
		// Not in cache, try to fetch it
		log.Printf("Inbox: Actor %s not cached, fetching...", create.Actor)
		remoteActor, err = FetchRemoteActorWithDeps(create.Actor, deps.HTTPClient, deps.Database)
		if err != nil {
			log.Printf("Inbox: Failed to fetch actor %s: %v", create.Actor, err)
			return fmt.Errorf("unknown actor")
		}
	}
	log.Printf("Inbox: Remote actor: %s@%s (ID: %s)", remoteActor.Username, remoteActor.Domain, remoteActor.Id)

	// Check if we follow this actor
	err, follow := database.ReadFollowByAccountIds(localAccount.Id, remoteActor.Id)
	isFollowing := err == nil && follow != nil

	if isFollowing {
		log.Printf("Inbox: Accepted post from followed user %s@%s (follow accepted: %v)", remoteActor.Username, remoteActor.Domain, follow.Accepted)
	} else {
		// Not following - only accept if this is a reply to one of our posts
		isReplyToOurPost := false
		if create.Object.InReplyTo != "" {
			// Check if the parent post belongs to the local user
			err, parentNote := database.ReadNoteByURI(create.Object.InReplyTo)
			if err == nil && parentNote != nil && parentNote.CreatedBy == username {
				isReplyToOurPost = true
				log.Printf("Inbox: This is a reply to our post, accepting without follow check")
			}
		}

		if !isReplyToOurPost {
			log.Printf("Inbox: Rejecting Create from %s - not following and not a reply to our post", create.Actor)
			return fmt.Errorf("not following this actor")
		}
	}

	// Increment reply count on the parent post if this is a reply
	// But skip if this activity is a duplicate of a local note (our own post coming back via federation)
	if create.Object.InReplyTo != "" {
		// Check if this activity's object_uri matches an existing local note
		// This happens when our own post is federated out and comes back
		err, existingNote := database.ReadNoteByURI(create.Object.ID)
		isDuplicate := err == nil && existingNote != nil

		if isDuplicate {
			log.Printf("Inbox: Skipping reply count increment - activity %s is a duplicate of local note", create.Object.ID)
		} else {
			if err := database.IncrementReplyCountByURI(create.Object.InReplyTo); err != nil {
				log.Printf("Inbox: Failed to increment reply count for %s: %v", create.Object.InReplyTo, err)
				// Don't fail the activity processing for this
			} else {
				log.Printf("Inbox: Incremented reply count for %s", create.Object.InReplyTo)
			}
		}
	}

	// Process tags (hashtags and mentions) from the incoming activity
	// Store mentions in the database for future notification support
	if len(create.Object.Tag) > 0 {
		// Get the activity record to link mentions to it
		err, activityRecord := database.ReadActivityByObjectURI(create.Object.ID)
		if err != nil || activityRecord == nil {
			log.Printf("Inbox: Could not find activity record for %s, skipping mention storage", create.Object.ID)
		}

		for _, tag := range create.Object.Tag {
			switch tag.Type {
			case "Mention":
				log.Printf("Inbox: Post mentions %s (%s)", tag.Name, tag.Href)

				// Store the mention in the database
				if activityRecord != nil {
					// Parse username and domain from @username@domain format
					mentionName := strings.TrimPrefix(tag.Name, "@")
					parts := strings.SplitN(mentionName, "@", 2)
					if len(parts) == 2 {
						mention := &domain.NoteMention{
							Id:                uuid.New(),
							NoteId:            activityRecord.Id, // Use activity ID as the note reference
							MentionedActorURI: tag.Href,
							MentionedUsername: parts[0],
							MentionedDomain:   parts[1],
							CreatedAt:         time.Now(),
						}
						if err := database.CreateNoteMention(mention); err != nil {
							log.Printf("Inbox: Failed to store mention %s: %v", tag.Name, err)
						} else {
							log.Printf("Inbox: Stored mention %s for activity %s", tag.Name, activityRecord.Id)
						}
					}
				}
			case "Hashtag":
				// Hashtags are already included in the stored activity raw JSON
				log.Printf("Inbox: Post contains hashtag %s", tag.Name)
			}
		}
	}

	// Note: Activity is already stored in HandleInbox before this function is called
	// No need to store it again here

	// Mirror the delivered object into the remote-content store so it can be
	// located again by object id when an Update or Delete for it arrives.
	objectJSON, err := extractObjectJSON(body)
	if err != nil {
		log.Printf("Inbox: Failed to extract object for remote content mirror %s: %v", create.Object.ID, err)
	} else {
		remoteContent := &domain.RemoteContent{
			Id:          uuid.New(),
			AccountId:   localAccount.Id,
			ActivityId:  create.ID,
			ObjectId:    create.Object.ID,
			ObjectType:  create.Object.Type,
			ActorURI:    create.Actor,
			ActorHandle: fmt.Sprintf("%s@%s", remoteActor.Username, remoteActor.Domain),
			Object:      objectJSON,
			ReceivedAt:  time.Now(),
			Published:   create.Object.Published,
		}
		if err := database.CreateRemoteContent(remoteContent); err != nil {
			log.Printf("Inbox: Failed to mirror remote content %s: %v", create.Object.ID, err)
		}
	}

	return nil
}

// handleLikeActivity processes a Like activity
func handleLikeActivity(body []byte, username string) error {
	deps := &InboxDeps{
		Database:   NewDBWrapper(),
		HTTPClient: defaultHTTPClient,
	}
	return handleLikeActivityWithDeps(body, username, deps)
}

// handleLikeActivityWithDeps processes a Like activity.
// This version accepts dependencies for testing.
func handleLikeActivityWithDeps(body []byte, username string, deps *InboxDeps) error {
	var like struct {
		ID     string `json:"id"`
		Type   string `json:"type"`
		Actor  string `json:"actor"`
		Object string `json:"object"`
	}
	if err := json.Unmarshal(body, &like); err != nil {
		return fmt.Errorf("failed to parse Like activity: %w", err)
	}

	database := deps.Database

	err, note := database.ReadNoteByURI(like.Object)
	if err != nil || note == nil {
		log.Printf("Inbox: Liked object %s not found locally, ignoring", like.Object)
		return nil
	}

	remoteActor, err := GetOrFetchActorWithDeps(like.Actor, deps.HTTPClient, database)
	if err != nil {
		return fmt.Errorf("failed to fetch actor for Like: %w", err)
	}

	if has, err := database.HasLike(remoteActor.Id, note.Id); err == nil && has {
		log.Printf("Inbox: Duplicate like from %s@%s on %s, ignoring", remoteActor.Username, remoteActor.Domain, note.ObjectURI)
		return nil
	}

	likeRecord := &domain.Like{
		Id:        uuid.New(),
		AccountId: remoteActor.Id,
		NoteId:    note.Id,
		URI:       like.ID,
		CreatedAt: time.Now(),
	}
	if err := database.CreateLike(likeRecord); err != nil {
		return fmt.Errorf("failed to store like: %w", err)
	}
	if err := database.IncrementLikeCountByNoteId(note.Id); err != nil {
		log.Printf("Inbox: Failed to increment like count for %s: %v", note.Id, err)
	}

	if err, author := database.ReadAccByUsername(note.CreatedBy); err == nil && author != nil {
		if err := database.CreateNotification(&domain.Notification{
			Id:               uuid.New(),
			AccountId:        author.Id,
			NotificationType: domain.NotificationLike,
			ActorId:          remoteActor.Id,
			ActorUsername:    remoteActor.Username,
			ActorDomain:      remoteActor.Domain,
			NoteId:           note.Id,
			NoteURI:          note.ObjectURI,
			CreatedAt:        time.Now(),
		}); err != nil {
			log.Printf("Inbox: Failed to create like notification: %v", err)
		}
	}

	log.Printf("Inbox: Stored like from %s@%s on %s", remoteActor.Username, remoteActor.Domain, note.ObjectURI)
	return nil
}

// handleAcceptActivity processes an Accept activity (response to Follow)
func handleAcceptActivity(body []byte, username string) error {
	deps := &InboxDeps{
		Database:   NewDBWrapper(),
		HTTPClient: defaultHTTPClient,
	}
	return handleAcceptActivityWithDeps(body, username, deps)
}

// handleAcceptActivityWithDeps processes an Accept activity (response to Follow).
// This version accepts dependencies for testing.
func handleAcceptActivityWithDeps(body []byte, username string, deps *InboxDeps) error {
	var accept struct {
		Type   string `json:"type"`
		Actor  string `json:"actor"`
		Object any    `json:"object"`
	}

	if err := json.Unmarshal(body, &accept); err != nil {
		return fmt.Errorf("failed to parse Accept activity: %w", err)
	}

	// Extract Follow ID from object (can be string or object)
	var followID string
	switch obj := accept.Object.(type) {
	case string:
		// Object is a simple URI string (common in Accept responses)
		followID = obj
	case map[string]any:
		// Object is a full Follow object
		if id, ok := obj["id"].(string); ok {
			followID = id
		}
	}

	if followID == "" {
		return fmt.Errorf("could not extract Follow ID from Accept object")
	}

	// Update the follow to accepted=true
	database := deps.Database
	if err := database.AcceptFollowByURI(followID); err != nil {
		return fmt.Errorf("failed to accept follow: %w", err)
	}

	log.Printf("Inbox: Follow %s was accepted by %s", followID, accept.Actor)
	return nil
}

// handleRejectActivity processes a Reject activity (denial of a Follow request)
func handleRejectActivity(body []byte, username string) error {
	deps := &InboxDeps{
		Database:   NewDBWrapper(),
		HTTPClient: defaultHTTPClient,
	}
	return handleRejectActivityWithDeps(body, username, deps)
}

// handleRejectActivityWithDeps processes a Reject activity (denial of a Follow request).
// This version accepts dependencies for testing.
func handleRejectActivityWithDeps(body []byte, username string, deps *InboxDeps) error {
	var reject struct {
		Type   string `json:"type"`
		Actor  string `json:"actor"`
		Object any    `json:"object"`
	}

	if err := json.Unmarshal(body, &reject); err != nil {
		return fmt.Errorf("failed to parse Reject activity: %w", err)
	}

	var followID string
	switch obj := reject.Object.(type) {
	case string:
		followID = obj
	case map[string]any:
		if id, ok := obj["id"].(string); ok {
			followID = id
		}
	}

	if followID == "" {
		return fmt.Errorf("could not extract Follow ID from Reject object")
	}

	database := deps.Database
	if err := database.DeleteFollowByURI(followID); err != nil {
		return fmt.Errorf("failed to remove rejected follow: %w", err)
	}

	log.Printf("Inbox: Follow %s was rejected by %s", followID, reject.Actor)
	return nil
}

// handleUpdateActivity processes an Update activity (e.g., profile updates, post edits)
func handleUpdateActivity(body []byte, username string) error {
	deps := &InboxDeps{
		Database:   NewDBWrapper(),
		HTTPClient: defaultHTTPClient,
	}
	return handleUpdateActivityWithDeps(body, username, deps)
}

// handleUpdateActivityWithDeps processes an Update activity (e.g., profile updates, post edits).
// This version accepts dependencies for testing.
func handleUpdateActivityWithDeps(body []byte, username string, deps *InboxDeps) error {
	var update struct {
		ID     string          `json:"id"`
		Type   string          `json:"type"`
		Actor  string          `json:"actor"`
		Object json.RawMessage `json:"object"`
	}

	if err := json.Unmarshal(body, &update); err != nil {
		return fmt.Errorf("failed to parse Update activity: %w", err)
	}

	// Parse the object to determine what type it is
	var objectType struct {
		Type string `json:"type"`
		ID   string `json:"id"`
	}
	if err := json.Unmarshal(update.Object, &objectType); err != nil {
		return fmt.Errorf("failed to parse Update object: %w", err)
	}

	log.Printf("Inbox: Processing Update for %s (type: %s) from %s", objectType.ID, objectType.Type, update.Actor)

	database := deps.Database

	switch objectType.Type {
	case "Person":
		// Profile update - re-fetch and update cached actor
		remoteActor, err := GetOrFetchActorWithDeps(update.Actor, deps.HTTPClient, deps.Database)
		if err != nil {
			return fmt.Errorf("failed to fetch updated actor: %w", err)
		}
		log.Printf("Inbox: Updated profile for %s@%s", remoteActor.Username, remoteActor.Domain)

	case "Note", "Article", "Event", "Video", "Image", "Document", "Page":
		// Post edit - find the existing activity that contains this object.
		// The activity is stored with the Create activity ID, but we need to find it by the object ID
		err, existingActivity := database.ReadActivityByObjectURI(objectType.ID)
		if err != nil || existingActivity == nil {
			log.Printf("Inbox: object %s not found for update, ignoring", objectType.ID)
			return nil
		}

		// Update the stored activity with new content but keep activity_type as 'Create'
		// so it still shows up in the timeline
		existingActivity.RawJSON = string(body)
		// Don't change the ActivityType - keep it as 'Create' so it shows in timeline
		if err := database.UpdateActivity(existingActivity); err != nil {
			return fmt.Errorf("failed to update activity: %w", err)
		}
		log.Printf("Inbox: Updated object %s", objectType.ID)

		// Replace the mirrored object in the remote-content store, keyed by
		// the object's own id. A no-op if no mirror row exists.
		if objectJSON, err := json.Marshal(update.Object); err == nil {
			if err := database.UpdateRemoteContentByObjectId(objectType.ID, string(objectJSON), update.ID); err != nil {
				log.Printf("Inbox: Failed to update remote content mirror %s: %v", objectType.ID, err)
			}
		}

	default:
		log.Printf("Inbox: Unsupported Update object type: %s", objectType.Type)
	}

	return nil
}

// handleDeleteActivity processes a Delete activity (e.g., post deletion, account deletion)
func handleDeleteActivity(body []byte, username string) error {
	deps := &InboxDeps{
		Database:   NewDBWrapper(),
		HTTPClient: defaultHTTPClient,
	}
	return handleDeleteActivityWithDeps(body, username, deps)
}

// handleDeleteActivityWithDeps processes a Delete activity (e.g., post deletion, account deletion).
// This version accepts dependencies for testing.
func handleDeleteActivityWithDeps(body []byte, username string, deps *InboxDeps) error {
	var delete struct {
		ID     string `json:"id"`
		Type   string `json:"type"`
		Actor  string `json:"actor"`
		Object any    `json:"object"`
	}

	if err := json.Unmarshal(body, &delete); err != nil {
		return fmt.Errorf("failed to parse Delete activity: %w", err)
	}

	database := deps.Database

	// Object can be either a string URI or an embedded object
	var objectURI string
	switch obj := delete.Object.(type) {
	case string:
		objectURI = obj
	case map[string]any:
		if id, ok := obj["id"].(string); ok {
			objectURI = id
		}
		if typ, ok := obj["type"].(string); ok && typ == "Tombstone" {
			// Tombstone object indicates a deletion
			if id, ok := obj["id"].(string); ok {
				objectURI = id
			}
		}
	}

	if objectURI == "" {
		return fmt.Errorf("could not determine object URI from Delete activity")
	}

	log.Printf("Inbox: Processing Delete for %s from %s", objectURI, delete.Actor)

	// Check if it's an actor deletion (URI matches the actor)
	if objectURI == delete.Actor {
		// Actor deletion - remove all their activities and follows
		log.Printf("Inbox: Actor %s deleted their account", delete.Actor)

		// Delete remote account
		err, remoteAcc := database.ReadRemoteAccountByActorURI(objectURI)
		if err == nil && remoteAcc != nil {
			// Delete all follows to/from this actor
			database.DeleteFollowsByRemoteAccountId(remoteAcc.Id)
			// Delete the remote account
			database.DeleteRemoteAccount(remoteAcc.Id)
			log.Printf("Inbox: Removed actor %s and all associated data", objectURI)
		}
	} else {
		// Object deletion (post, note, etc.) - find the activity containing this object
		err, activity := database.ReadActivityByObjectURI(objectURI)
		if err != nil || activity == nil {
			log.Printf("Inbox: Activity with object %s not found for deletion, ignoring", objectURI)
			return nil
		}

		// Verify authorization: Delete actor must match Activity actor
		if activity.ActorURI != delete.Actor {
			return fmt.Errorf("unauthorized: actor %s cannot delete content created by %s", delete.Actor, activity.ActorURI)
		}

		// Authorization passed, delete the activity from the database
		if err := database.DeleteActivity(activity.Id); err != nil {
			return fmt.Errorf("failed to delete activity: %w", err)
		}
		log.Printf("Inbox: Deleted activity containing object %s", objectURI)

		// Soft-delete the remote-content mirror row: the object is replaced
		// with a Tombstone but the row itself is kept for federation
		// compliance. A no-op if no mirror row exists for this object.
		if err, mirrored := database.ReadRemoteContentByObjectId(objectURI); err == nil && mirrored != nil {
			tombstone := map[string]any{
				"id":         objectURI,
				"type":       "Tombstone",
				"formerType": mirrored.ObjectType,
				"deleted":    time.Now().Format(time.RFC3339),
			}
			tombstoneJSON, _ := json.Marshal(tombstone)
			if err := database.SoftDeleteRemoteContentByObjectId(objectURI, string(tombstoneJSON)); err != nil {
				log.Printf("Inbox: Failed to soft-delete remote content mirror %s: %v", objectURI, err)
			}
		}
	}

	return nil
}

// handleAnnounceActivity processes an Announce activity (boost/reblog or relay relay forward)
func handleAnnounceActivity(body []byte, username string) error {
	deps := &InboxDeps{
		Database:   NewDBWrapper(),
		HTTPClient: defaultHTTPClient,
	}
	return handleAnnounceActivityWithDeps(body, username, deps)
}

// announceObject is the shape of an Announce activity's object, whether it
// arrives embedded or is fetched separately by URI.
type announceObject struct {
	ID           string `json:"id"`
	Type         string `json:"type"`
	AttributedTo string `json:"attributedTo"`
	Content      string `json:"content"`
	Published    string `json:"published"`
}

// handleAnnounceActivityWithDeps processes an Announce activity. Two shapes
// are handled: a regular boost of a note we already store locally, and a
// relay forward, where the announcing actor is a subscribed relay and the
// announced object is content we've never seen. Relay forwards are recorded
// as synthetic Create activities so they appear in the timeline like any
// other federated post.
func handleAnnounceActivityWithDeps(body []byte, username string, deps *InboxDeps) error {
	var announce struct {
		ID     string          `json:"id"`
		Type   string          `json:"type"`
		Actor  string          `json:"actor"`
		Object json.RawMessage `json:"object"`
	}
	if err := json.Unmarshal(body, &announce); err != nil {
		return fmt.Errorf("failed to parse Announce activity: %w", err)
	}

	database := deps.Database

	var objectURI string
	var embedded *announceObject
	var objectURIString string
	if err := json.Unmarshal(announce.Object, &objectURIString); err == nil {
		objectURI = objectURIString
	} else {
		var doc announceObject
		if err := json.Unmarshal(announce.Object, &doc); err != nil {
			return fmt.Errorf("failed to parse Announce object: %w", err)
		}
		embedded = &doc
		objectURI = doc.ID
	}

	if isActorFromAnyRelay(announce.Actor, database) {
		return handleRelayAnnounce(announce.ID, objectURI, embedded, deps)
	}

	// Regular boost of a locally-known note.
	err, note := database.ReadNoteByURI(objectURI)
	if err != nil || note == nil {
		log.Printf("Inbox: Announce target %s not found locally, ignoring", objectURI)
		return nil
	}

	remoteActor, err := GetOrFetchActorWithDeps(announce.Actor, deps.HTTPClient, database)
	if err != nil {
		return fmt.Errorf("failed to fetch actor for Announce: %w", err)
	}

	if has, err := database.HasBoost(remoteActor.Id, note.Id); err == nil && has {
		log.Printf("Inbox: Duplicate boost from %s@%s on %s, ignoring", remoteActor.Username, remoteActor.Domain, note.ObjectURI)
		return nil
	}

	boost := &domain.Boost{
		Id:        uuid.New(),
		AccountId: remoteActor.Id,
		NoteId:    note.Id,
		URI:       announce.ID,
		CreatedAt: time.Now(),
	}
	if err := database.CreateBoost(boost); err != nil {
		return fmt.Errorf("failed to store boost: %w", err)
	}
	if err := database.IncrementBoostCountByNoteId(note.Id); err != nil {
		log.Printf("Inbox: Failed to increment boost count for %s: %v", note.Id, err)
	}

	if err, author := database.ReadAccByUsername(note.CreatedBy); err == nil && author != nil {
		if err := database.CreateNotification(&domain.Notification{
			Id:               uuid.New(),
			AccountId:        author.Id,
			NotificationType: domain.NotificationAnnounce,
			ActorId:          remoteActor.Id,
			ActorUsername:    remoteActor.Username,
			ActorDomain:      remoteActor.Domain,
			NoteId:           note.Id,
			NoteURI:          note.ObjectURI,
			CreatedAt:        time.Now(),
		}); err != nil {
			log.Printf("Inbox: Failed to create boost notification: %v", err)
		}
	}

	log.Printf("Inbox: Stored boost from %s@%s on %s", remoteActor.Username, remoteActor.Domain, note.ObjectURI)
	return nil
}

// handleRelayAnnounce records an Announce coming from a subscribed relay as a
// synthetic Create activity, attributed to the original author rather than
// the relay. The object is fetched over HTTP unless it arrived embedded.
func handleRelayAnnounce(announceID, objectURI string, embedded *announceObject, deps *InboxDeps) error {
	database := deps.Database

	// Relays frequently redeliver the same content; dedupe both by the
	// announce's own activity URI and by the object it points at.
	if err, existing := database.ReadActivityByURI(announceID); err == nil && existing != nil {
		log.Printf("Inbox: Relay announce %s already processed, ignoring", announceID)
		return nil
	}
	if err, existing := database.ReadActivityByObjectURI(objectURI); err == nil && existing != nil {
		log.Printf("Inbox: Relay content %s already processed, ignoring", objectURI)
		return nil
	}

	doc := embedded
	rawJSON := ""
	if doc == nil {
		req, err := http.NewRequest(http.MethodGet, objectURI, nil)
		if err != nil {
			return fmt.Errorf("relay announce: build request: %w", err)
		}
		req.Header.Set("Accept", "application/activity+json")

		resp, err := deps.HTTPClient.Do(req)
		if err != nil {
			return fmt.Errorf("relay announce: fetch object: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return fmt.Errorf("relay announce: %s returned status %d", objectURI, resp.StatusCode)
		}

		objBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return fmt.Errorf("relay announce: read object body: %w", err)
		}
		rawJSON = string(objBody)

		var fetched announceObject
		if err := json.Unmarshal(objBody, &fetched); err != nil {
			return fmt.Errorf("relay announce: parse object: %w", err)
		}
		doc = &fetched
	}

	if doc.AttributedTo == "" {
		return fmt.Errorf("relay announce: object %s has no attributedTo", objectURI)
	}

	remoteActor, err := GetOrFetchActorWithDeps(doc.AttributedTo, deps.HTTPClient, database)
	if err != nil {
		return fmt.Errorf("relay announce: fetch author: %w", err)
	}

	activityRecord := &domain.Activity{
		Id:           uuid.New(),
		ActivityURI:  announceID,
		ActivityType: "Create",
		ActorURI:     remoteActor.ActorURI,
		ObjectURI:    objectURI,
		RawJSON:      rawJSON,
		Processed:    true,
		Local:        false,
		FromRelay:    true,
		CreatedAt:    time.Now(),
	}
	if err := database.CreateActivity(activityRecord); err != nil {
		return fmt.Errorf("relay announce: store activity: %w", err)
	}

	log.Printf("Inbox: Recorded relay content %s from %s@%s", objectURI, remoteActor.Username, remoteActor.Domain)
	return nil
}

// extractDomainFromURI returns the host component of uri, or "" if uri is
// not a well-formed http(s) URL.
func extractDomainFromURI(uri string) string {
	parsed, err := url.Parse(uri)
	if err != nil {
		return ""
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return ""
	}
	return parsed.Host
}

// extractDomainFromURL returns the host component of raw, or raw itself if
// it doesn't parse as a URL with a host (e.g. a bare domain name).
func extractDomainFromURL(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Host == "" {
		return raw
	}
	return parsed.Host
}

// isActorFromAnyRelay reports whether actorURI shares a domain with any
// active relay we're subscribed to. Relays publish under varying tag paths
// on the same host, so domain equality (not exact URI match) is what
// identifies relay-originated traffic.
func isActorFromAnyRelay(actorURI string, database Database) bool {
	domain := extractDomainFromURI(actorURI)
	if domain == "" {
		return false
	}

	err, relays := database.ReadActiveRelays()
	if err != nil || relays == nil {
		return false
	}

	for _, relay := range *relays {
		if extractDomainFromURI(relay.ActorURI) == domain {
			return true
		}
	}
	return false
}
