package model

import (
	"time"

	usermodel "codocs/internal/user/model"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Document is a shared plain-text document. Access only ever grows.
type Document struct {
	DocID     string    `json:"docId" bson:"docId"`
	Content   string    `json:"content" bson:"content"`
	Owner     string    `json:"owner" bson:"owner"`
	Access    []string  `json:"access" bson:"access"`
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt" bson:"updatedAt"`
}

func (d Document) HasAccess(userID string) bool {
	for _, id := range d.Access {
		if id == userID {
			return true
		}
	}
	return false
}

type CreateDocRequest struct {
	Owner string `json:"owner"`
}

type JoinDocRequest struct {
	DocID  string `json:"docId"`
	UserID string `json:"userId"`
}

// MembershipResponse is returned by both create and join.
type MembershipResponse struct {
	Message string          `json:"message"`
	User    *usermodel.User `json:"user"`
	DocID   string          `json:"docId"`
}

func (r JoinDocRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.DocID, validation.Required),
	)
}

type ListRequest struct {
	UserID string `json:"userId"`
}

func (r ListRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.UserID, validation.Required),
	)
}

type DocumentSummary struct {
	DocID     string    `json:"docId"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

type ListResponse struct {
	User      *usermodel.User   `json:"user"`
	Documents []DocumentSummary `json:"documents"`
}

type ErrorResponse struct {
	Message string `json:"message"`
}

// Snapshot is the initial state delivered to a connection joining a room.
type Snapshot struct {
	Content string              `json:"content"`
	Users   []usermodel.Profile `json:"users"`
}
