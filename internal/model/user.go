// Package model defines the data structures used throughout the application.
package model

import "time"

// User represents a registered account.
//
// Password and RefreshToken never leave the process: both carry json:"-" so
// encoding/json skips them, and services hand callers Sanitized() copies so a
// struct logged or passed around after a handler cannot leak them either.
//
// WHY RefreshToken *string?
// The stored refresh token has two states that matter: set (the one valid
// token), and cleared after logout. A nil pointer maps to SQL NULL and to an
// absent document field, so "cleared" is distinguishable from an empty value.
type User struct {
	ID           string    `json:"_id"          bson:"_id"`
	Username     string    `json:"username"     bson:"username"`
	Email        string    `json:"email"        bson:"email"`
	FullName     string    `json:"fullName"     bson:"fullName"`
	Avatar       string    `json:"avatar"       bson:"avatar"`               // public URL, required
	CoverImage   string    `json:"coverImage"   bson:"coverImage"`           // public URL, "" when absent
	WatchHistory []string  `json:"watchHistory" bson:"watchHistory"`         // video ids, oldest first
	Password     string    `json:"-"            bson:"password"`             // bcrypt hash, never plaintext
	RefreshToken *string   `json:"-"            bson:"refreshToken,omitempty"`
	CreatedAt    time.Time `json:"createdAt"    bson:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"    bson:"updatedAt"`
}

// Sanitized returns a copy of u with the password hash and refresh token
// removed. It is applied to every user a service returns to a caller.
func (u *User) Sanitized() *User {
	if u == nil {
		return nil
	}
	c := *u
	c.Password = ""
	c.RefreshToken = nil
	if c.WatchHistory == nil {
		c.WatchHistory = []string{}
	}
	return &c
}

// HasRefreshToken reports whether token is the user's current refresh token.
func (u *User) HasRefreshToken(token string) bool {
	return u.RefreshToken != nil && token != "" && *u.RefreshToken == token
}

// UserUpdate lists the profile fields a findByIdAndUpdate-style write may
// change. Nil fields are left untouched.
type UserUpdate struct {
	FullName   *string
	Email      *string
	Avatar     *string
	CoverImage *string
}

// IsEmpty reports whether the update would change nothing.
func (u UserUpdate) IsEmpty() bool {
	return u.FullName == nil && u.Email == nil && u.Avatar == nil && u.CoverImage == nil
}
