package model

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// User is an anonymous collaborator identity. The JSON id field is "_id"
// because that is the key the web client stores and sends back.
type User struct {
	ID        string    `json:"_id" bson:"_id"`
	Username  string    `json:"username" bson:"username"`
	Avatar    string    `json:"avatar" bson:"avatar"`
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
}

// Validate guards the invariant that no identity is persisted half-initialized.
func (u User) Validate() error {
	return validation.ValidateStruct(&u,
		validation.Field(&u.ID, validation.Required),
		validation.Field(&u.Username, validation.Required),
		validation.Field(&u.Avatar, validation.Required),
	)
}

// Profile is the public part of a user shown to room peers.
type Profile struct {
	Username string `json:"username"`
	Avatar   string `json:"avatar"`
}

func (u User) Profile() Profile {
	return Profile{Username: u.Username, Avatar: u.Avatar}
}
