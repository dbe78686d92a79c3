package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/pilab-dev/shadow-oauth/domain"
)

// CredentialRepository is a domain.CredentialStore on a MongoDB collection.
type CredentialRepository struct {
	coll  *mongo.Collection
	ids   *sequence
	clock domain.Clock
}

var _ domain.CredentialStore = (*CredentialRepository)(nil)

// NewCredentialRepository creates the repository and its indexes. A nil
// clock uses the system clock.
func NewCredentialRepository(ctx context.Context, db *mongo.Database, clock domain.Clock) (*CredentialRepository, error) {
	if clock == nil {
		clock = domain.SystemClock
	}

	r := &CredentialRepository{
		coll:  db.Collection(CredentialsCollection),
		ids:   newSequence(db, CredentialsCollection),
		clock: clock,
	}

	if err := r.createIndexes(ctx); err != nil {
		return nil, err
	}

	return r, nil
}

func (r *CredentialRepository) createIndexes(ctx context.Context) error {
	models := []mongo.IndexModel{
		{Keys: bson.D{{Key: "client_secret", Value: 1}, {Key: "_id", Value: -1}}},
		{Keys: bson.D{{Key: "expiration_date", Value: 1}}},
		{Keys: bson.D{{Key: "temporary_expiration_date", Value: 1}}},
	}

	// Empty tokens are allowed on many rows, so uniqueness only covers
	// non-empty strings.
	for _, field := range []string{"temporary_token", "access_token", "refresh_token"} {
		models = append(models, mongo.IndexModel{
			Keys: bson.D{{Key: field, Value: 1}},
			Options: options.Index().
				SetUnique(true).
				SetPartialFilterExpression(bson.M{field: bson.M{"$gt": ""}}),
		})
	}

	if _, err := r.coll.Indexes().CreateMany(ctx, models); err != nil {
		return fmt.Errorf("failed to create credential indexes: %w", err)
	}

	return nil
}

func (r *CredentialRepository) FindBySecretKey(ctx context.Context, key string) (domain.CredentialRecord, error) {
	return r.findOne(ctx, bson.M{"client_secret": key},
		options.FindOne().SetSort(bson.D{{Key: "_id", Value: -1}}))
}

func (r *CredentialRepository) FindByAccessToken(ctx context.Context, token string) (domain.CredentialRecord, error) {
	return r.findOne(ctx, bson.M{
		"access_token":    token,
		"expiration_date": bson.M{"$gt": r.clock.Now()},
	})
}

func (r *CredentialRepository) FindByRefreshToken(ctx context.Context, token string) (domain.CredentialRecord, error) {
	return r.findOne(ctx, bson.M{
		"refresh_token":   token,
		"expiration_date": bson.M{"$gt": r.clock.Now()},
	})
}

func (r *CredentialRepository) findOne(ctx context.Context, filter bson.M, opts ...options.Lister[options.FindOneOptions]) (domain.CredentialRecord, error) {
	var rec domain.CredentialRecord

	err := r.coll.FindOne(ctx, filter, opts...).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.CredentialRecord{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.CredentialRecord{}, fmt.Errorf("find credentials: %w", err)
	}

	return normalize(rec), nil
}

func (r *CredentialRepository) Insert(ctx context.Context, rec domain.CredentialRecord) (domain.CredentialRecord, error) {
	if rec.Persisted() {
		return rec, domain.ErrAlreadyPersisted
	}

	id, err := r.ids.next(ctx)
	if err != nil {
		return rec, err
	}

	rec.ID = id
	rec.Version = 1

	if _, err := r.coll.InsertOne(ctx, rec); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.CredentialRecord{}, domain.ErrDuplicateKey
		}
		return domain.CredentialRecord{}, fmt.Errorf("insert credentials: %w", err)
	}

	return rec, nil
}

func (r *CredentialRepository) Update(ctx context.Context, rec domain.CredentialRecord) (domain.CredentialRecord, error) {
	if !rec.Persisted() {
		return rec, domain.ErrNotPersisted
	}

	next := rec
	next.Version++

	res, err := r.coll.ReplaceOne(ctx, bson.M{"_id": rec.ID, "version": rec.Version}, next)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return rec, domain.ErrDuplicateKey
		}
		return rec, fmt.Errorf("update credentials: %w", err)
	}

	if res.MatchedCount == 0 {
		n, err := r.coll.CountDocuments(ctx, bson.M{"_id": rec.ID})
		if err != nil {
			return rec, fmt.Errorf("update credentials: %w", err)
		}
		if n == 0 {
			return rec, domain.ErrNotFound
		}
		return rec, domain.ErrConcurrentUpdate
	}

	return next, nil
}

func (r *CredentialRepository) Delete(ctx context.Context, rec domain.CredentialRecord) error {
	if _, err := r.coll.DeleteOne(ctx, bson.M{"_id": rec.ID}); err != nil {
		return fmt.Errorf("delete credentials: %w", err)
	}
	return nil
}

func (r *CredentialRepository) Clean(ctx context.Context) (int64, error) {
	cutoff := r.clock.Now().Add(-domain.CleanGrace)

	var removed int64
	for _, field := range []string{"expiration_date", "temporary_expiration_date"} {
		res, err := r.coll.DeleteMany(ctx, bson.M{
			field: bson.M{"$gt": time.Time{}, "$lt": cutoff},
		})
		if err != nil {
			return removed, fmt.Errorf("clean credentials: %w", err)
		}
		removed += res.DeletedCount
	}

	return removed, nil
}

// normalize maps decoded dates to UTC and the stored zero date back to
// time.Time{}.
func normalize(rec domain.CredentialRecord) domain.CredentialRecord {
	rec.ExpirationDate = utc(rec.ExpirationDate)
	rec.TemporaryExpirationDate = utc(rec.TemporaryExpirationDate)
	return rec
}

func utc(t time.Time) time.Time {
	if t.IsZero() {
		return time.Time{}
	}
	return t.UTC()
}
