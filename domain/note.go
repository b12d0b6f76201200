package domain

import (
	"time"

	"github.com/google/uuid"
)

// Note represents a local post. Nearly every note composed through the TUI
// is ContentType "note" (a plain microblog post), but the field and the
// metadata alongside it let the same row carry richer content - Article,
// Event, Video, Image, Document or Page - so the outbox converter can emit
// the matching ActivityPub object shape instead of a bare Note.
type Note struct {
	Id           uuid.UUID
	CreatedBy    string
	Message      string
	CreatedAt    time.Time
	EditedAt     *time.Time
	InReplyToURI string
	ObjectURI    string
	Visibility   string
	LikeCount    int
	BoostCount   int
	ContentType  string

	// Type-specific metadata, populated only for non-"note" content types.
	Title            string
	Summary          string
	FeaturedImageURL string
	MediaURL         string
	StartTime        *time.Time
	EndTime          *time.Time
	Location         string
	Duration         string
	Width            int
	Height           int
}

// SaveNote carries a new note's content from the compose UI through to
// persistence and federation.
type SaveNote struct {
	UserId  uuid.UUID
	Message string
}

// HomePost is a unified row for the home timeline, merging local notes with
// federated activities so both render in the same chronological list.
type HomePost struct {
	ID         uuid.UUID
	Author     string
	Content    string
	Time       time.Time
	ObjectURI  string
	IsLocal    bool
	NoteID     uuid.UUID
	ReplyCount int
	LikeCount  int
	BoostCount int
}
