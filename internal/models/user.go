package models

import "riseready-notifications/internal/common/validation"

// User is read-only from the pipeline's point of view.
type User struct {
	ID       string       `json:"id" db:"id" bson:"_id"`
	Email    string       `json:"email" db:"email" bson:"email"`
	Phone    string       `json:"phone,omitempty" db:"phone" bson:"phone,omitempty"`
	Settings UserSettings `json:"settings" bson:"settings"`
}

type UserSettings struct {
	Notifications NotificationPreferences `json:"notifications" bson:"notifications"`
}

type NotificationPreferences struct {
	Reminders bool `json:"reminders" db:"notify_reminders" bson:"reminders"`
	SMS       bool `json:"sms" db:"notify_sms" bson:"sms"`
}

// WantsEmail reports the email opt-in with a usable address.
func (u *User) WantsEmail() bool {
	return u != nil && u.Settings.Notifications.Reminders && validation.ValidateEmail(u.Email)
}

// WantsSMS reports the SMS opt-in with a usable phone number.
func (u *User) WantsSMS() bool {
	return u != nil && u.Settings.Notifications.SMS && validation.ValidatePhone(u.Phone)
}
