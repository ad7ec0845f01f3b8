package runlog

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore keeps runs in a collection keyed by runId.
type MongoStore struct {
	col *mongo.Collection
}

func NewMongoStore(col *mongo.Collection) *MongoStore {
	return &MongoStore{col: col}
}

// Save upserts the run by runId.
func (m *MongoStore) Save(ctx context.Context, r *Run) error {
	filter := bson.M{"runId": r.RunID}
	opts := options.Update().SetUpsert(true)
	if _, err := m.col.UpdateOne(ctx, filter, bson.M{"$set": r}, opts); err != nil {
		return fmt.Errorf("save sync run: %w", err)
	}
	return nil
}

func (m *MongoStore) Load(ctx context.Context, runID string) (*Run, error) {
	var r Run
	if err := m.col.FindOne(ctx, bson.M{"runId": runID}).Decode(&r); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &r, nil
}

func (m *MongoStore) Recent(ctx context.Context, limit int) ([]*Run, error) {
	opts := options.Find().SetSort(bson.D{{Key: "startedAt", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cur, err := m.col.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	out := []*Run{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
