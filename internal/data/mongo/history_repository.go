// Package mongo stores the transaction history read model in MongoDB.
package mongo

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/personal-finance-ledger/internal/domain/ledger"
	"github.com/personal-finance-ledger/internal/domain/shared"
	"github.com/personal-finance-ledger/internal/platform/persistence"
)

// HistoryRepository implements the ledger.HistoryRepository interface for MongoDB
type HistoryRepository struct {
	db     *mongo.Database
	logger *slog.Logger
}

// NewHistoryRepository creates a new MongoDB history repository
func NewHistoryRepository(logger *slog.Logger, db *mongo.Database) ledger.HistoryRepository {
	return &HistoryRepository{
		db:     db,
		logger: logger,
	}
}

func (r *HistoryRepository) collection() *mongo.Collection {
	return r.db.Collection(persistence.HistoryCollectionName)
}

// Upsert replaces the record keyed by its transaction ID, inserting it when absent
func (r *HistoryRepository) Upsert(ctx context.Context, record *ledger.HistoryRecord) error {
	filter := bson.M{"_id": record.TransactionID}
	opts := options.Replace().SetUpsert(true)

	if _, err := r.collection().ReplaceOne(ctx, filter, record, opts); err != nil {
		r.logger.Error("Failed to upsert history record",
			"transaction_id", record.TransactionID.String(),
			"error", err)
		return shared.NewPersistenceError("upsert history record", err)
	}

	return nil
}

func ownerRangeFilter(ownerID uuid.UUID, from, to time.Time) bson.M {
	return bson.M{
		"owner_id": ownerID,
		"date": bson.M{
			"$gte": from,
			"$lte": to,
		},
	}
}

// ListByOwner retrieves a page of the owner's history within [from, to], newest first
func (r *HistoryRepository) ListByOwner(ctx context.Context, ownerID uuid.UUID, from, to time.Time, limit, offset int) ([]*ledger.HistoryRecord, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "date", Value: -1}, {Key: "recorded_at", Value: -1}}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit))

	cursor, err := r.collection().Find(ctx, ownerRangeFilter(ownerID, from, to), opts)
	if err != nil {
		r.logger.Error("Failed to list history records",
			"owner_id", ownerID.String(),
			"error", err)
		return nil, shared.NewPersistenceError("list history records", err)
	}
	defer cursor.Close(ctx)

	records := []*ledger.HistoryRecord{}
	if err := cursor.All(ctx, &records); err != nil {
		r.logger.Error("Failed to decode history records",
			"owner_id", ownerID.String(),
			"error", err)
		return nil, shared.NewPersistenceError("decode history records", err)
	}

	return records, nil
}

// CountByOwner counts the owner's history records within [from, to]
func (r *HistoryRepository) CountByOwner(ctx context.Context, ownerID uuid.UUID, from, to time.Time) (int64, error) {
	count, err := r.collection().CountDocuments(ctx, ownerRangeFilter(ownerID, from, to))
	if err != nil {
		r.logger.Error("Failed to count history records",
			"owner_id", ownerID.String(),
			"error", err)
		return 0, shared.NewPersistenceError("count history records", err)
	}

	return count, nil
}
