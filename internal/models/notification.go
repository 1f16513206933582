package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Kind classifies a notification for the client UI.
type Kind string

const (
	KindReminder    Kind = "reminder"
	KindAchievement Kind = "achievement"
	KindAlert       Kind = "alert"
	KindSocial      Kind = "social"
	KindCareer      Kind = "career"
)

type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Notification is one message destined for one user. The pipeline only ever
// sees records with Sent=false; ClaimedID is nil until a pass owns it.
type Notification struct {
	ID        string     `json:"id" db:"id" bson:"_id" validate:"required"`
	UserID    string     `json:"userId" db:"user_id" bson:"userId" validate:"required"`
	Kind      Kind       `json:"type" db:"kind" bson:"type" validate:"required,oneof=reminder achievement alert social career"`
	Title     string     `json:"title" db:"title" bson:"title" validate:"required,max=200"`
	Message   string     `json:"message" db:"message" bson:"message" validate:"required,max=4000"`
	Link      string     `json:"link,omitempty" db:"link" bson:"link,omitempty"`
	Priority  Priority   `json:"priority" db:"priority" bson:"priority" validate:"required,oneof=high medium low"`
	CreatedAt time.Time  `json:"createdAt" db:"created_at" bson:"createdAt" validate:"required"`
	Sent      bool       `json:"sent" db:"sent" bson:"sent"`
	SentAt    *time.Time `json:"sentAt,omitempty" db:"sent_at" bson:"sentAt,omitempty"`
	ClaimedID *string    `json:"claimedId,omitempty" db:"claimed_id" bson:"claimedId,omitempty"`
	ClaimedAt *time.Time `json:"claimedAt,omitempty" db:"claimed_at" bson:"claimedAt,omitempty"`
}

var validate = validator.New()

// Normalize fills the defaults a collaborator may leave out.
func (n *Notification) Normalize() {
	if n.Priority == "" {
		n.Priority = PriorityMedium
	}
	if n.Kind == "" {
		n.Kind = KindReminder
	}
	n.Kind = Kind(strings.ToLower(string(n.Kind)))
	n.Priority = Priority(strings.ToLower(string(n.Priority)))
}

// Validate rejects records that do not match the notification shape.
func (n *Notification) Validate() error {
	if err := validate.Struct(n); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok {
			problems := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				problems = append(problems, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
			}
			return fmt.Errorf("invalid notification: %s", strings.Join(problems, ", "))
		}
		return fmt.Errorf("invalid notification: %w", err)
	}
	if n.Sent && n.SentAt == nil {
		return fmt.Errorf("invalid notification: sent without sentAt")
	}
	return nil
}

// IsClaimed reports whether some pass owns (or finished) this record.
func (n *Notification) IsClaimed() bool {
	return n.ClaimedID != nil && *n.ClaimedID != ""
}

// IsDue mirrors the claim filter: unsent, unclaimed and not future-dated.
func (n *Notification) IsDue(now time.Time) bool {
	return !n.Sent && !n.IsClaimed() && !n.CreatedAt.After(now)
}
