package repository

import (
	"context"
	"errors"
	"time"

	"codocs/internal/document/model"
	"codocs/pkg/apperror"
	"codocs/pkg/logger"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoRepository stores documents in the "documents" collection. The access
// list is an embedded array maintained with $addToSet.
type MongoRepository struct {
	c *mongo.Collection
}

func NewMongoRepository(db *mongo.Database) *MongoRepository {
	return &MongoRepository{c: db.Collection("documents")}
}

func (r *MongoRepository) Create(ctx context.Context, doc model.Document) error {
	if doc.UpdatedAt.IsZero() {
		doc.UpdatedAt = doc.CreatedAt
	}
	if _, err := r.c.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicateID
		}
		logger.Sugar.Errorf("Failed to create document %s: %v", doc.DocID, err)
		return apperror.Upstream("insert document", err)
	}
	return nil
}

func (r *MongoRepository) FindByID(ctx context.Context, docID string) (*model.Document, error) {
	var doc model.Document
	err := r.c.FindOne(ctx, bson.M{"docId": docID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperror.NotFound("document %s", docID)
	}
	if err != nil {
		logger.Sugar.Errorf("Failed to get doc %s: %v", docID, err)
		return nil, apperror.Upstream("find document", err)
	}
	if doc.Access == nil {
		doc.Access = []string{}
	}
	return &doc, nil
}

func (r *MongoRepository) AddAccess(ctx context.Context, docID, userID string) error {
	res, err := r.c.UpdateOne(ctx,
		bson.M{"docId": docID},
		bson.M{"$addToSet": bson.M{"access": userID}},
	)
	if err != nil {
		logger.Sugar.Errorf("Failed to add %s to doc %s: %v", userID, docID, err)
		return apperror.Upstream("update document access", err)
	}
	if res.MatchedCount == 0 {
		return apperror.NotFound("document %s", docID)
	}
	return nil
}

func (r *MongoRepository) ListByOwner(ctx context.Context, ownerID string) ([]model.Document, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	cur, err := r.c.Find(ctx, bson.M{"owner": ownerID}, opts)
	if err != nil {
		logger.Sugar.Errorf("Failed to get documents for user %s: %v", ownerID, err)
		return nil, apperror.Upstream("find documents", err)
	}
	docs := []model.Document{}
	if err := cur.All(ctx, &docs); err != nil {
		return nil, apperror.Upstream("decode documents", err)
	}
	return docs, nil
}

func (r *MongoRepository) UpdateContent(ctx context.Context, docID, content string) error {
	res, err := r.c.UpdateOne(ctx,
		bson.M{"docId": docID},
		bson.M{"$set": bson.M{"content": content, "updatedAt": time.Now().UTC()}},
	)
	if err != nil {
		logger.Sugar.Errorf("Failed to update content for doc %s: %v", docID, err)
		return apperror.Upstream("update document content", err)
	}
	if res.MatchedCount == 0 {
		return apperror.NotFound("document %s", docID)
	}
	return nil
}
