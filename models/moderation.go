package models

import (
	"time"
)

// User-submitted report of a post. Append-only: duplicates from the same
// reporter are retained; rows are removed only when the post is deleted.
type Report struct {
	ID             uint64    `gorm:"primaryKey;autoIncrement"`
	PostID         uint64    `gorm:"index;not null"`
	ReporterHandle string    `gorm:"not null"`
	Reason         string    `gorm:"not null"`
	CreatedAt      time.Time `gorm:"not null"`
}

// The identity making a call. Populated by the outer session layer; the
// stores never read cookies or sessions themselves.
type Actor struct {
	Handle        string
	Authenticated bool
	Staff         bool
}

func Anonymous() Actor {
	return Actor{}
}

func StaffActor(handle string) Actor {
	return Actor{Handle: handle, Authenticated: true, Staff: true}
}

func UserActor(handle string) Actor {
	return Actor{Handle: handle, Authenticated: true}
}
