package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	"github.com/ayush/medical-report-worker/internal/apperrors"
	"github.com/ayush/medical-report-worker/internal/models"
)

func reportDoc(id, user string) bson.D {
	return bson.D{
		{Key: "report_id", Value: id},
		{Key: "user_id", Value: user},
		{Key: "patient", Value: bson.D{{Key: "name", Value: "Jane Doe"}, {Key: "age", Value: 52}}},
		{Key: "category_reports", Value: bson.A{
			bson.D{{Key: "category", Value: "weight_management"}, {Key: "text", Value: "t"}},
		}},
		{Key: "status", Value: "completed"},
	}
}

func TestMongoStore_Reports(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("insert", func(mt *mtest.T) {
		s := NewMongoStore(mt.DB)
		mt.AddMockResponses(mtest.CreateSuccessResponse())
		err := s.InsertReport(context.Background(), &models.StoredReport{ReportID: "r-1", UserID: "u1"})
		require.NoError(mt, err)
	})

	mt.Run("insert duplicate", func(mt *mtest.T) {
		s := NewMongoStore(mt.DB)
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{
			Index: 0, Code: 11000, Message: "duplicate key error",
		}))
		err := s.InsertReport(context.Background(), &models.StoredReport{ReportID: "r-1"})
		assert.Error(mt, err)
	})

	mt.Run("get", func(mt *mtest.T) {
		s := NewMongoStore(mt.DB)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "medical_reports.medical_reports", mtest.FirstBatch, reportDoc("r-1", "u1")))

		rep, err := s.GetReport(context.Background(), "r-1")
		require.NoError(mt, err)
		assert.Equal(mt, "r-1", rep.ReportID)
		assert.Equal(mt, "Jane Doe", rep.Patient.Name)
		require.Len(mt, rep.CategoryReports, 1)
		assert.Equal(mt, "weight_management", rep.CategoryReports[0].Category)
	})

	mt.Run("get missing", func(mt *mtest.T) {
		s := NewMongoStore(mt.DB)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "medical_reports.medical_reports", mtest.FirstBatch))

		_, err := s.GetReport(context.Background(), "nope")
		assert.True(mt, apperrors.Is(err, apperrors.KindNotFound))
	})

	mt.Run("list by user", func(mt *mtest.T) {
		s := NewMongoStore(mt.DB)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "medical_reports.medical_reports", mtest.FirstBatch,
			reportDoc("r-2", "u1"), reportDoc("r-1", "u1")))

		reps, err := s.ListUserReports(context.Background(), "u1", 10, 0)
		require.NoError(mt, err)
		require.Len(mt, reps, 2)
		assert.Equal(mt, "r-2", reps[0].ReportID)
	})

	mt.Run("list empty is not nil", func(mt *mtest.T) {
		s := NewMongoStore(mt.DB)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "medical_reports.medical_reports", mtest.FirstBatch))

		reps, err := s.ListUserReports(context.Background(), "u2", 0, 0)
		require.NoError(mt, err)
		assert.NotNil(mt, reps)
		assert.Empty(mt, reps)
	})

	mt.Run("count", func(mt *mtest.T) {
		s := NewMongoStore(mt.DB)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "medical_reports.medical_reports", mtest.FirstBatch,
			bson.D{{Key: "n", Value: int32(3)}}))

		n, err := s.CountUserReports(context.Background(), "u1")
		require.NoError(mt, err)
		assert.Equal(mt, int64(3), n)
	})
}

func TestMongoStore_Users(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("upsert", func(mt *mtest.T) {
		s := NewMongoStore(mt.DB)
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 1},
			bson.E{Key: "nModified", Value: 1},
		))
		require.NoError(mt, s.UpsertUser(context.Background(), "u1", time.Now()))
	})

	mt.Run("upsert failure", func(mt *mtest.T) {
		s := NewMongoStore(mt.DB)
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{
			Code: 91, Name: "ShutdownInProgress", Message: "shutting down",
		}))
		assert.Error(mt, s.UpsertUser(context.Background(), "u1", time.Now()))
	})

	mt.Run("get", func(mt *mtest.T) {
		s := NewMongoStore(mt.DB)
		now := time.Now().UTC().Truncate(time.Millisecond)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "medical_reports.users", mtest.FirstBatch, bson.D{
			{Key: "user_id", Value: "u1"},
			{Key: "created_at", Value: now},
			{Key: "updated_at", Value: now},
		}))

		u, err := s.GetUser(context.Background(), "u1")
		require.NoError(mt, err)
		assert.Equal(mt, "u1", u.UserID)
		assert.True(mt, u.CreatedAt.Equal(now))
	})
}

func TestMongoStore_Knowledge(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("find", func(mt *mtest.T) {
		s := NewMongoStore(mt.DB)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "medical_reports.knowledge_base", mtest.FirstBatch,
			bson.D{
				{Key: "id", Value: "kb-1"},
				{Key: "title", Value: "Healthy weight"},
				{Key: "category", Value: "weight_management"},
				{Key: "status", Value: "draft"},
				{Key: "content", Value: "Body"},
			},
		))

		entries, err := s.FindKnowledge(context.Background(), "weight_management", models.KnowledgeStatusDraft)
		require.NoError(mt, err)
		require.Len(mt, entries, 1)
		assert.Equal(mt, "Healthy weight", entries[0].Title)
		assert.Equal(mt, "Body", entries[0].Content)
	})

	mt.Run("distinct", func(mt *mtest.T) {
		s := NewMongoStore(mt.DB)
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "values", Value: bson.A{"blood_pressure", "weight_management"}},
		))

		cats, err := s.DistinctCategories(context.Background(), models.KnowledgeStatusDraft)
		require.NoError(mt, err)
		assert.Equal(mt, []string{"blood_pressure", "weight_management"}, cats)
	})

	mt.Run("upsert inserts", func(mt *mtest.T) {
		s := NewMongoStore(mt.DB)
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 1},
			bson.E{Key: "nModified", Value: 0},
			bson.E{Key: "upserted", Value: bson.A{bson.D{{Key: "index", Value: 0}, {Key: "_id", Value: "x"}}}},
		))

		created, err := s.UpsertKnowledgeEntry(context.Background(), &models.KnowledgeEntry{ID: "kb-1"})
		require.NoError(mt, err)
		assert.True(mt, created)
	})

	mt.Run("upsert replaces", func(mt *mtest.T) {
		s := NewMongoStore(mt.DB)
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 1},
			bson.E{Key: "nModified", Value: 1},
		))

		created, err := s.UpsertKnowledgeEntry(context.Background(), &models.KnowledgeEntry{ID: "kb-1"})
		require.NoError(mt, err)
		assert.False(mt, created)
	})

	mt.Run("indexes", func(mt *mtest.T) {
		s := NewMongoStore(mt.DB)
		mt.AddMockResponses(
			mtest.CreateSuccessResponse(),
			mtest.CreateSuccessResponse(),
			mtest.CreateSuccessResponse(),
		)
		require.NoError(mt, s.EnsureIndexes(context.Background()))
	})
}

func TestConnectMongo_UnreachableIsTransient(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := ConnectMongo(ctx, "mongodb://127.0.0.1:1/?serverSelectionTimeoutMS=200&connectTimeoutMS=200")
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindTransientInfra))
}
