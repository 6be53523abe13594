package repository

import (
	"context"
	"errors"
	"fmt"

	"codocs/internal/user/model"
	"codocs/pkg/apperror"
	"codocs/pkg/logger"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// MongoRepository stores users in the "users" collection keyed by _id.
type MongoRepository struct {
	c *mongo.Collection
}

func NewMongoRepository(db *mongo.Database) *MongoRepository {
	return &MongoRepository{c: db.Collection("users")}
}

func (r *MongoRepository) Create(ctx context.Context, u model.User) error {
	if err := u.Validate(); err != nil {
		return fmt.Errorf("user: %w", apperror.Invalid(err))
	}
	if _, err := r.c.InsertOne(ctx, u); err != nil {
		logger.Sugar.Errorf("Failed to create user %s: %v", u.ID, err)
		return apperror.Upstream("insert user", err)
	}
	return nil
}

func (r *MongoRepository) FindByID(ctx context.Context, id string) (*model.User, error) {
	var u model.User
	err := r.c.FindOne(ctx, bson.M{"_id": id}).Decode(&u)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperror.NotFound("user %s", id)
	}
	if err != nil {
		logger.Sugar.Errorf("Failed to get user %s: %v", id, err)
		return nil, apperror.Upstream("find user", err)
	}
	return &u, nil
}

func (r *MongoRepository) FindByIDs(ctx context.Context, ids []string) ([]model.User, error) {
	if len(ids) == 0 {
		return []model.User{}, nil
	}
	cur, err := r.c.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		logger.Sugar.Errorf("Failed to get users: %v", err)
		return nil, apperror.Upstream("find users", err)
	}
	users := make([]model.User, 0, len(ids))
	if err := cur.All(ctx, &users); err != nil {
		return nil, apperror.Upstream("decode users", err)
	}
	return users, nil
}
