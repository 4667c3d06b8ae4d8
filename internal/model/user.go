package model

import (
	"strings"
	"time"
)

type User struct {
	ID                   int64
	Username             string
	FirstName            string
	LastName             string
	Phone                string
	NotifyEnabled        bool
	PendingAppointmentID *int64
	CreatedAt            time.Time
}

func (u *User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// DeepLink returns a stable Telegram reference to the user.
func (u *User) DeepLink() string {
	if u.Username != "" {
		return "https://t.me/" + strings.TrimPrefix(u.Username, "@")
	}
	return "tg://user?id=" + itoa(u.ID)
}
