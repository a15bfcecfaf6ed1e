package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/ayush/medical-report-worker/internal/apperrors"
	"github.com/ayush/medical-report-worker/internal/models"
)

const (
	reportsCollection   = "medical_reports"
	usersCollection     = "users"
	knowledgeCollection = "knowledge_base"
)

// ConnectMongo connects and pings. The client is disconnected again when the
// ping fails.
func ConnectMongo(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, apperrors.TransientInfra("mongo connect", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, apperrors.TransientInfra("mongo ping", err)
	}
	return client, nil
}

// MongoStore handles reports, users and knowledge entries in MongoDB.
type MongoStore struct {
	reports   *mongo.Collection
	users     *mongo.Collection
	knowledge *mongo.Collection
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{
		reports:   db.Collection(reportsCollection),
		users:     db.Collection(usersCollection),
		knowledge: db.Collection(knowledgeCollection),
	}
}

// EnsureIndexes creates the indexes lookups rely on. It is safe to call on
// every start.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	indexes := map[*mongo.Collection][]mongo.IndexModel{
		s.knowledge: {
			{Keys: bson.D{{Key: "category", Value: 1}}},
			{Keys: bson.D{{Key: "status", Value: 1}}},
			{Keys: bson.D{{Key: "id", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		s.reports: {
			{Keys: bson.D{{Key: "report_id", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}}},
			{Keys: bson.D{{Key: "status", Value: 1}}},
		},
		s.users: {
			{Keys: bson.D{{Key: "user_id", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
	}
	for col, idx := range indexes {
		if _, err := col.Indexes().CreateMany(ctx, idx); err != nil {
			return fmt.Errorf("mongo indexes %s: %w", col.Name(), err)
		}
	}
	return nil
}

// ── Reports ──────────────────────────────────────────────

func (s *MongoStore) InsertReport(ctx context.Context, rep *models.StoredReport) error {
	if _, err := s.reports.InsertOne(ctx, rep); err != nil {
		return fmt.Errorf("mongo insert report %s: %w", rep.ReportID, err)
	}
	return nil
}

func (s *MongoStore) GetReport(ctx context.Context, reportID string) (*models.StoredReport, error) {
	var rep models.StoredReport
	err := s.reports.FindOne(ctx, bson.M{"report_id": reportID}).Decode(&rep)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperrors.NotFound("report")
	}
	if err != nil {
		return nil, fmt.Errorf("mongo get report %s: %w", reportID, err)
	}
	return &rep, nil
}

// ListUserReports returns a user's reports, most recent first.
func (s *MongoStore) ListUserReports(ctx context.Context, userID string, limit, skip int64) ([]models.StoredReport, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetSkip(skip)
	if limit > 0 {
		opts.SetLimit(limit)
	}
	cur, err := s.reports.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("mongo list reports: %w", err)
	}
	defer cur.Close(ctx)

	reports := []models.StoredReport{}
	if err := cur.All(ctx, &reports); err != nil {
		return nil, fmt.Errorf("mongo list reports: %w", err)
	}
	return reports, nil
}

func (s *MongoStore) CountUserReports(ctx context.Context, userID string) (int64, error) {
	n, err := s.reports.CountDocuments(ctx, bson.M{"user_id": userID})
	if err != nil {
		return 0, fmt.Errorf("mongo count reports: %w", err)
	}
	return n, nil
}

// ── Users ────────────────────────────────────────────────

// UpsertUser creates the user on first sight and bumps updated_at otherwise.
// created_at is only written on insert.
func (s *MongoStore) UpsertUser(ctx context.Context, userID string, now time.Time) error {
	_, err := s.users.UpdateOne(ctx,
		bson.M{"user_id": userID},
		bson.M{
			"$setOnInsert": bson.M{"user_id": userID, "created_at": now},
			"$set":         bson.M{"updated_at": now},
		},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("mongo upsert user %s: %w", userID, err)
	}
	return nil
}

func (s *MongoStore) GetUser(ctx context.Context, userID string) (*models.StoredUser, error) {
	var u models.StoredUser
	err := s.users.FindOne(ctx, bson.M{"user_id": userID}).Decode(&u)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperrors.NotFound("user")
	}
	if err != nil {
		return nil, fmt.Errorf("mongo get user %s: %w", userID, err)
	}
	return &u, nil
}

// ── Knowledge base ───────────────────────────────────────

// FindKnowledge returns entries for a category with the given status, in
// store order.
func (s *MongoStore) FindKnowledge(ctx context.Context, category, status string) ([]models.KnowledgeEntry, error) {
	cur, err := s.knowledge.Find(ctx, bson.M{"category": category, "status": status})
	if err != nil {
		return nil, fmt.Errorf("mongo find knowledge %s: %w", category, err)
	}
	defer cur.Close(ctx)

	var entries []models.KnowledgeEntry
	if err := cur.All(ctx, &entries); err != nil {
		return nil, fmt.Errorf("mongo find knowledge %s: %w", category, err)
	}
	return entries, nil
}

func (s *MongoStore) DistinctCategories(ctx context.Context, status string) ([]string, error) {
	vals, err := s.knowledge.Distinct(ctx, "category", bson.M{"status": status})
	if err != nil {
		return nil, fmt.Errorf("mongo distinct categories: %w", err)
	}
	out := make([]string, 0, len(vals))
	for _, v := range vals {
		if c, ok := v.(string); ok {
			out = append(out, c)
		}
	}
	return out, nil
}

// UpsertKnowledgeEntry replaces the entry with the same id, inserting it if
// absent. It reports whether a new document was created.
func (s *MongoStore) UpsertKnowledgeEntry(ctx context.Context, e *models.KnowledgeEntry) (bool, error) {
	res, err := s.knowledge.ReplaceOne(ctx, bson.M{"id": e.ID}, e, options.Replace().SetUpsert(true))
	if err != nil {
		return false, fmt.Errorf("mongo upsert knowledge %s: %w", e.ID, err)
	}
	return res.UpsertedCount > 0, nil
}
