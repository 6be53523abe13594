package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"codocs/internal/document/model"
	"codocs/internal/document/repository"
	usermodel "codocs/internal/user/model"
	"codocs/pkg/apperror"
	"codocs/pkg/logger"

	"github.com/google/uuid"
)

const maxIDAttempts = 5

type Repository interface {
	Create(ctx context.Context, doc model.Document) error
	FindByID(ctx context.Context, docID string) (*model.Document, error)
	AddAccess(ctx context.Context, docID, userID string) error
	ListByOwner(ctx context.Context, ownerID string) ([]model.Document, error)
	UpdateContent(ctx context.Context, docID, content string) error
}

// Identities resolves user ids, provisioning a new user for an empty id.
type Identities interface {
	Resolve(ctx context.Context, id string) (*usermodel.User, error)
	ResolveMany(ctx context.Context, ids []string) ([]usermodel.User, error)
}

type DocumentService struct {
	Repo  Repository
	Users Identities
	NewID func() string
}

func NewDocumentService(repo Repository, users Identities) *DocumentService {
	return &DocumentService{Repo: repo, Users: users, NewID: uuid.NewString}
}

// CreateDocument resolves (or provisions) the owner and creates an empty
// document that only the owner can access.
func (s *DocumentService) CreateDocument(ctx context.Context, ownerID string) (*usermodel.User, string, error) {
	owner, err := s.Users.Resolve(ctx, ownerID)
	if err != nil {
		return nil, "", fmt.Errorf("resolve owner: %w", err)
	}

	now := time.Now().UTC()
	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		doc := model.Document{
			DocID:     s.NewID(),
			Content:   "",
			Owner:     owner.ID,
			Access:    []string{owner.ID},
			CreatedAt: now,
			UpdatedAt: now,
		}
		err := s.Repo.Create(ctx, doc)
		if errors.Is(err, repository.ErrDuplicateID) {
			logger.Sugar.Warnf("Document id collision on %s, regenerating", doc.DocID)
			continue
		}
		if err != nil {
			return nil, "", fmt.Errorf("create document: %w", err)
		}
		logger.Sugar.Infof("Created document %s for user %s", doc.DocID, owner.ID)
		return owner, doc.DocID, nil
	}
	return nil, "", apperror.Upstream("create document", fmt.Errorf("no free id after %d attempts", maxIDAttempts))
}

// JoinDocument grants the resolved user access to an existing document.
func (s *DocumentService) JoinDocument(ctx context.Context, req model.JoinDocRequest) (*usermodel.User, string, error) {
	req.DocID = strings.TrimSpace(req.DocID)
	if err := req.Validate(); err != nil {
		return nil, "", apperror.Invalid(err)
	}

	// Check the document first so an unknown docId never provisions a user.
	doc, err := s.Repo.FindByID(ctx, req.DocID)
	if err != nil {
		return nil, "", err
	}

	user, err := s.Users.Resolve(ctx, req.UserID)
	if err != nil {
		return nil, "", fmt.Errorf("resolve user: %w", err)
	}

	if !doc.HasAccess(user.ID) {
		if err := s.Repo.AddAccess(ctx, doc.DocID, user.ID); err != nil {
			return nil, "", fmt.Errorf("grant access: %w", err)
		}
		logger.Sugar.Infof("User %s joined document %s", user.ID, doc.DocID)
	}
	return user, doc.DocID, nil
}

// ListByOwner returns the user's own documents, newest first.
func (s *DocumentService) ListByOwner(ctx context.Context, req model.ListRequest) (*usermodel.User, []model.DocumentSummary, error) {
	req.UserID = strings.TrimSpace(req.UserID)
	if err := req.Validate(); err != nil {
		return nil, nil, apperror.Invalid(err)
	}

	user, err := s.Users.Resolve(ctx, req.UserID)
	if err != nil {
		return nil, nil, err
	}

	docs, err := s.Repo.ListByOwner(ctx, user.ID)
	if err != nil {
		return nil, nil, err
	}
	summaries := make([]model.DocumentSummary, 0, len(docs))
	for _, d := range docs {
		summaries = append(summaries, model.DocumentSummary{DocID: d.DocID, Content: d.Content, CreatedAt: d.CreatedAt})
	}
	return user, summaries, nil
}

func (s *DocumentService) Fetch(ctx context.Context, docID string) (*model.Document, error) {
	return s.Repo.FindByID(ctx, docID)
}

// UpdateContent replaces the stored text wholesale. Only the autosaver calls it.
func (s *DocumentService) UpdateContent(ctx context.Context, docID, content string) error {
	return s.Repo.UpdateContent(ctx, docID, content)
}

// Snapshot loads the content and the collaborator profiles of a document.
func (s *DocumentService) Snapshot(ctx context.Context, docID string) (*model.Snapshot, error) {
	doc, err := s.Repo.FindByID(ctx, docID)
	if err != nil {
		return nil, err
	}
	users, err := s.Users.ResolveMany(ctx, doc.Access)
	if err != nil {
		return nil, fmt.Errorf("resolve access list: %w", err)
	}
	profiles := make([]usermodel.Profile, 0, len(users))
	for _, u := range users {
		profiles = append(profiles, u.Profile())
	}
	return &model.Snapshot{Content: doc.Content, Users: profiles}, nil
}
