package models

import "time"

// User mirrors the user directory row this service consumes. Profile fields
// are owned by the user service; the presence fields are mutated here.
type User struct {
	ID             int        `db:"id" json:"id"`
	Username       string     `db:"username" json:"username"`
	FirstName      string     `db:"first_name" json:"first_name"`
	LastName       string     `db:"last_name" json:"last_name"`
	ProfilePicture *string    `db:"profile_picture" json:"profile_picture"`
	IsOnline       bool       `db:"is_online" json:"is_online"`
	LastSeen       *time.Time `db:"last_seen" json:"last_seen"`
}

// Presence is the online/last-seen snapshot for one user. The flag is a
// hint only: it is set on activity and never demoted by a sweep, so readers
// apply a freshness window to LastSeen instead of trusting it.
type Presence struct {
	IsOnline bool       `db:"is_online" json:"is_online"`
	LastSeen *time.Time `db:"last_seen" json:"last_seen"`
}
