package domain

import (
	"time"

	"github.com/google/uuid"
)

// FirstTimeLogin sentinel values for Account.FirstTimeLogin.
const (
	TRUE  = 1
	FALSE = 0
)

// Account represents a local user of this instance.
type Account struct {
	Id             uuid.UUID
	Username       string
	Publickey      string
	CreatedAt      time.Time
	FirstTimeLogin int64
	WebPublicKey   string
	WebPrivateKey  string
	DisplayName    string
	Summary        string
	AvatarURL      string
	IsAdmin        bool
	Muted          bool
	SocialLinks    []SocialLink
}

// SocialLink is a single verified-link profile field, rendered as a
// PropertyValue attachment on the actor document. Platform drives how
// Value is expanded into a URL: "twitter", "github" and "linkedin" take a
// bare handle and are host-prefixed; "mastodon" and anything else is used
// verbatim as a URL.
type SocialLink struct {
	Platform string `json:"platform"`
	Name     string `json:"name"`
	Value    string `json:"value"`
}
