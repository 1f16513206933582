package models

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func validNotification() *Notification {
	return &Notification{
		ID:        "n-1",
		UserID:    "u-1",
		Kind:      KindReminder,
		Title:     "Mock interview",
		Message:   "Your mock interview starts in 15 minutes",
		Link:      "/calendar",
		Priority:  PriorityHigh,
		CreatedAt: time.Now(),
	}
}

func TestNotification_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(n *Notification)
		wantErr string
	}{
		{name: "valid", mutate: func(n *Notification) {}},
		{name: "missing user", mutate: func(n *Notification) { n.UserID = "" }, wantErr: "UserID"},
		{name: "unknown kind", mutate: func(n *Notification) { n.Kind = "marketing" }, wantErr: "Kind"},
		{name: "unknown priority", mutate: func(n *Notification) { n.Priority = "urgent" }, wantErr: "Priority"},
		{name: "missing message", mutate: func(n *Notification) { n.Message = "" }, wantErr: "Message"},
		{name: "message too long", mutate: func(n *Notification) { n.Message = strings.Repeat("a", 4001) }, wantErr: "Message"},
		{
			name: "sent without timestamp",
			mutate: func(n *Notification) {
				n.Sent = true
			},
			wantErr: "sentAt",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := validNotification()
			tt.mutate(n)
			err := n.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestNotification_Normalize(t *testing.T) {
	n := &Notification{Kind: "ALERT"}
	n.Normalize()
	assert.Equal(t, KindAlert, n.Kind)
	assert.Equal(t, PriorityMedium, n.Priority)
}

func TestNotification_IsDue(t *testing.T) {
	now := time.Now()
	token := "claim-1"

	n := validNotification()
	n.CreatedAt = now.Add(-time.Second)
	assert.True(t, n.IsDue(now))

	future := validNotification()
	future.CreatedAt = now.Add(time.Minute)
	assert.False(t, future.IsDue(now))

	claimed := validNotification()
	claimed.ClaimedID = &token
	assert.False(t, claimed.IsDue(now))

	sent := validNotification()
	sent.Sent = true
	assert.False(t, sent.IsDue(now))
}

func TestUser_Preferences(t *testing.T) {
	var nilUser *User
	assert.False(t, nilUser.WantsEmail())

	u := &User{ID: "u-1", Email: "ada@example.com"}
	assert.False(t, u.WantsEmail())

	u.Settings.Notifications.Reminders = true
	assert.True(t, u.WantsEmail())

	u.Settings.Notifications.SMS = true
	assert.False(t, u.WantsSMS(), "no phone on file")
	u.Phone = "555-01"
	assert.False(t, u.WantsSMS(), "too short to dial")
	u.Phone = "+15550100199"
	assert.True(t, u.WantsSMS())

	u.Email = "ada@"
	assert.False(t, u.WantsEmail(), "malformed address")
}
