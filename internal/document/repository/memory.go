package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"codocs/internal/document/model"
	"codocs/pkg/apperror"
)

// MemoryRepository keeps documents in process memory. Used for local runs and tests.
type MemoryRepository struct {
	mu   sync.RWMutex
	docs map[string]*model.Document
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{docs: make(map[string]*model.Document)}
}

func (r *MemoryRepository) Create(_ context.Context, doc model.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.docs[doc.DocID]; ok {
		return ErrDuplicateID
	}
	if doc.UpdatedAt.IsZero() {
		doc.UpdatedAt = doc.CreatedAt
	}
	doc.Access = append([]string{}, doc.Access...)
	r.docs[doc.DocID] = &doc
	return nil
}

func (r *MemoryRepository) FindByID(_ context.Context, docID string) (*model.Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	doc, ok := r.docs[docID]
	if !ok {
		return nil, apperror.NotFound("document %s", docID)
	}
	return copyDoc(doc), nil
}

func (r *MemoryRepository) AddAccess(_ context.Context, docID, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[docID]
	if !ok {
		return apperror.NotFound("document %s", docID)
	}
	if !doc.HasAccess(userID) {
		doc.Access = append(doc.Access, userID)
	}
	return nil
}

func (r *MemoryRepository) ListByOwner(_ context.Context, ownerID string) ([]model.Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	docs := []model.Document{}
	for _, doc := range r.docs {
		if doc.Owner == ownerID {
			docs = append(docs, *copyDoc(doc))
		}
	}
	sort.SliceStable(docs, func(i, j int) bool {
		return docs[i].CreatedAt.After(docs[j].CreatedAt)
	})
	return docs, nil
}

func (r *MemoryRepository) UpdateContent(_ context.Context, docID, content string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[docID]
	if !ok {
		return apperror.NotFound("document %s", docID)
	}
	doc.Content = content
	doc.UpdatedAt = time.Now().UTC()
	return nil
}

func copyDoc(doc *model.Document) *model.Document {
	c := *doc
	c.Access = append([]string{}, doc.Access...)
	return &c
}
