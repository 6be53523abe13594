package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"time"

	"codocs/internal/user/model"
	"codocs/pkg/logger"

	"github.com/google/uuid"
)

const avatarURL = "https://api.dicebear.com/8.x/thumbs/svg?seed=%s"

type Repository interface {
	Create(ctx context.Context, u model.User) error
	FindByID(ctx context.Context, id string) (*model.User, error)
	FindByIDs(ctx context.Context, ids []string) ([]model.User, error)
}

// NameGenerator supplies display names for new users.
type NameGenerator interface {
	Generate(ctx context.Context) (string, error)
}

// UserService resolves existing identities and provisions anonymous ones.
type UserService struct {
	Repo  Repository
	Names NameGenerator
}

func NewUserService(repo Repository, names NameGenerator) *UserService {
	return &UserService{Repo: repo, Names: names}
}

// Resolve fetches the user with the given id, or provisions a new one when id is empty.
func (s *UserService) Resolve(ctx context.Context, id string) (*model.User, error) {
	id = strings.TrimSpace(id)
	if id != "" {
		return s.Repo.FindByID(ctx, id)
	}

	u := s.NewUser(ctx)
	if err := s.Repo.Create(ctx, u); err != nil {
		return nil, fmt.Errorf("provision user: %w", err)
	}
	logger.Sugar.Infof("Provisioned user %s (%s)", u.ID, u.Username)
	return &u, nil
}

// ResolveMany returns the profiles of ids that still exist, in the order given.
func (s *UserService) ResolveMany(ctx context.Context, ids []string) ([]model.User, error) {
	found, err := s.Repo.FindByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]model.User, len(found))
	for _, u := range found {
		byID[u.ID] = u
	}
	users := make([]model.User, 0, len(ids))
	for _, id := range ids {
		if u, ok := byID[id]; ok {
			users = append(users, u)
		}
	}
	return users, nil
}

// NewUser builds a fully populated identity. It never fails: an unavailable
// name service degrades to a Guest-<n> name.
func (s *UserService) NewUser(ctx context.Context) model.User {
	return model.User{
		ID:        uuid.NewString(),
		Username:  s.username(ctx),
		Avatar:    fmt.Sprintf(avatarURL, randomSeed()),
		CreatedAt: time.Now().UTC(),
	}
}

func (s *UserService) username(ctx context.Context) string {
	if s.Names != nil {
		name, err := s.Names.Generate(ctx)
		if err == nil && strings.TrimSpace(name) != "" {
			return name
		}
		logger.Sugar.Warnf("Username generation failed, using guest name: %v", err)
	}
	return fmt.Sprintf("Guest-%d", randomInt(1000))
}

func randomInt(max int64) int64 {
	n, err := rand.Int(rand.Reader, big.NewInt(max))
	if err != nil {
		return time.Now().UnixNano() % max
	}
	return n.Int64()
}

func randomSeed() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}
