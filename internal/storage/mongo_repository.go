package storage

import (
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/focusguard/backend/internal/models"
)

type MongoRepository struct {
	client     *mongo.Client
	db         *mongo.Database
	sites      *mongo.Collection
	limits     *mongo.Collection
	schedules  *mongo.Collection
	sessions   *mongo.Collection
	usage      *mongo.Collection
	blockPages *mongo.Collection
}

func NewMongoRepository(ctx context.Context, mongoURI, dbName string) (*MongoRepository, error) {
	if mongoURI == "" || dbName == "" {
		return nil, errors.New("mongo: uri and database are required")
	}

	opts := options.Client().ApplyURI(mongoURI)
	// Atlas clusters (mongodb+srv) fail TLS negotiation on some hosts unless
	// pinned to 1.2.
	if strings.HasPrefix(mongoURI, "mongodb+srv://") {
		opts.SetTLSConfig(&tls.Config{
			MinVersion: tls.VersionTLS12,
			MaxVersion: tls.VersionTLS12,
		})
	}

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}

	db := client.Database(dbName)
	r := &MongoRepository{
		client:     client,
		db:         db,
		sites:      db.Collection("blocked_sites"),
		limits:     db.Collection("time_limits"),
		schedules:  db.Collection("schedules"),
		sessions:   db.Collection("focus_sessions"),
		usage:      db.Collection("usage"),
		blockPages: db.Collection("block_pages"),
	}

	if err := r.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}

	slog.Info("MongoDB connected", "db", dbName)
	return r, nil
}

// ensureIndexes creates the unique indexes the repository relies on for
// conflict detection.
func (r *MongoRepository) ensureIndexes(ctx context.Context) error {
	userDomain := mongo.IndexModel{
		Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "domain", Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	if _, err := r.sites.Indexes().CreateOne(ctx, userDomain); err != nil {
		return err
	}
	if _, err := r.limits.Indexes().CreateOne(ctx, userDomain); err != nil {
		return err
	}
	if _, err := r.schedules.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: 1}},
	}); err != nil {
		return err
	}
	if _, err := r.sessions.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "user_id", Value: 1}},
			Options: options.Index().
				SetUnique(true).
				SetName("one_active_session").
				SetPartialFilterExpression(bson.M{"status": string(models.SessionActive)}),
		},
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "started_at", Value: -1}}},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "ends_at", Value: 1}}},
	}); err != nil {
		return err
	}
	_, err := r.usage.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "day", Value: 1}, {Key: "domain", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return err
}

func (r *MongoRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx, readpref.Primary())
}

func (r *MongoRepository) Close(ctx context.Context) error {
	return r.client.Disconnect(ctx)
}

func findAll[T any](ctx context.Context, col *mongo.Collection, filter any, opts ...*options.FindOptions) ([]T, error) {
	cur, err := col.Find(ctx, filter, opts...)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := make([]T, 0)
	for cur.Next(ctx) {
		var doc T
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, cur.Err()
}

func findOne[T any](ctx context.Context, col *mongo.Collection, filter any) (*T, error) {
	var doc T
	if err := col.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &doc, nil
}

func deleteOwned(ctx context.Context, col *mongo.Collection, userID, id string) error {
	res, err := col.DeleteOne(ctx, bson.M{"_id": id, "user_id": userID})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *MongoRepository) ListSites(ctx context.Context, userID string) ([]models.BlockedSite, error) {
	return findAll[models.BlockedSite](ctx, r.sites, bson.M{"user_id": userID},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
}

func (r *MongoRepository) AddSite(ctx context.Context, site *models.BlockedSite) error {
	if _, err := r.sites.InsertOne(ctx, site); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrConflict
		}
		return err
	}
	return nil
}

func (r *MongoRepository) DeleteSite(ctx context.Context, userID, id string) error {
	return deleteOwned(ctx, r.sites, userID, id)
}

func (r *MongoRepository) ListLimits(ctx context.Context, userID string) ([]models.TimeLimit, error) {
	return findAll[models.TimeLimit](ctx, r.limits, bson.M{"user_id": userID},
		options.Find().SetSort(bson.D{{Key: "domain", Value: 1}}))
}

func (r *MongoRepository) UpsertLimit(ctx context.Context, limit *models.TimeLimit) (*models.TimeLimit, error) {
	filter := bson.M{"user_id": limit.UserID, "domain": limit.Domain}
	update := bson.M{
		"$set": bson.M{
			"daily_minutes": limit.DailyMinutes,
			"updated_at":    limit.UpdatedAt,
		},
		"$setOnInsert": bson.M{
			"_id":        limit.ID,
			"created_at": limit.CreatedAt,
		},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var out models.TimeLimit
	if err := r.limits.FindOneAndUpdate(ctx, filter, update, opts).Decode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *MongoRepository) DeleteLimit(ctx context.Context, userID, id string) error {
	return deleteOwned(ctx, r.limits, userID, id)
}

func (r *MongoRepository) ListSchedules(ctx context.Context, userID string) ([]models.Schedule, error) {
	return findAll[models.Schedule](ctx, r.schedules, bson.M{"user_id": userID},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
}

func (r *MongoRepository) GetSchedule(ctx context.Context, userID, id string) (*models.Schedule, error) {
	return findOne[models.Schedule](ctx, r.schedules, bson.M{"_id": id, "user_id": userID})
}

func (r *MongoRepository) SaveSchedule(ctx context.Context, s *models.Schedule) error {
	_, err := r.schedules.ReplaceOne(ctx,
		bson.M{"_id": s.ID, "user_id": s.UserID},
		s,
		options.Replace().SetUpsert(true),
	)
	if mongo.IsDuplicateKeyError(err) {
		// the ID exists under another user
		return ErrNotFound
	}
	return err
}

func (r *MongoRepository) DeleteSchedule(ctx context.Context, userID, id string) error {
	return deleteOwned(ctx, r.schedules, userID, id)
}

func (r *MongoRepository) CreateSession(ctx context.Context, s *models.FocusSession) error {
	if _, err := r.sessions.InsertOne(ctx, s); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrConflict
		}
		return err
	}
	return nil
}

func (r *MongoRepository) ActiveSession(ctx context.Context, userID string) (*models.FocusSession, error) {
	return findOne[models.FocusSession](ctx, r.sessions, bson.M{"user_id": userID, "status": models.SessionActive})
}

func (r *MongoRepository) GetSession(ctx context.Context, userID, id string) (*models.FocusSession, error) {
	return findOne[models.FocusSession](ctx, r.sessions, bson.M{"_id": id, "user_id": userID})
}

func (r *MongoRepository) FinishSession(ctx context.Context, userID, id string, status models.SessionStatus, endedAt time.Time) (*models.FocusSession, error) {
	filter := bson.M{"_id": id, "user_id": userID, "status": models.SessionActive}
	update := bson.M{"$set": bson.M{"status": status, "ended_at": endedAt}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var out models.FocusSession
	err := r.sessions.FindOneAndUpdate(ctx, filter, update, opts).Decode(&out)
	if err == nil {
		return &out, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, err
	}

	// tell "already finished" apart from "never existed"
	if _, err := r.GetSession(ctx, userID, id); err != nil {
		return nil, err
	}
	return nil, ErrConflict
}

func (r *MongoRepository) ListSessions(ctx context.Context, userID string, limit int) ([]models.FocusSession, error) {
	opts := options.Find().SetSort(bson.D{{Key: "started_at", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	return findAll[models.FocusSession](ctx, r.sessions, bson.M{"user_id": userID}, opts)
}

func (r *MongoRepository) ExpiredSessions(ctx context.Context, now time.Time) ([]models.FocusSession, error) {
	return findAll[models.FocusSession](ctx, r.sessions, bson.M{
		"status":  models.SessionActive,
		"ends_at": bson.M{"$lte": now},
	})
}

func (r *MongoRepository) AddUsage(ctx context.Context, userID, day, domain string, seconds int, at time.Time) (*models.UsageEntry, error) {
	filter := bson.M{"user_id": userID, "day": day, "domain": domain}
	update := bson.M{
		"$inc": bson.M{"seconds": seconds},
		"$set": bson.M{"updated_at": at},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var out models.UsageEntry
	if err := r.usage.FindOneAndUpdate(ctx, filter, update, opts).Decode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *MongoRepository) ListUsage(ctx context.Context, userID, day string) ([]models.UsageEntry, error) {
	return findAll[models.UsageEntry](ctx, r.usage, bson.M{"user_id": userID, "day": day},
		options.Find().SetSort(bson.D{{Key: "seconds", Value: -1}}))
}

func (r *MongoRepository) GetBlockPage(ctx context.Context, userID string) (*models.BlockPage, error) {
	return findOne[models.BlockPage](ctx, r.blockPages, bson.M{"_id": userID})
}

func (r *MongoRepository) PutBlockPage(ctx context.Context, page *models.BlockPage) error {
	_, err := r.blockPages.ReplaceOne(ctx, bson.M{"_id": page.UserID}, page, options.Replace().SetUpsert(true))
	return err
}
