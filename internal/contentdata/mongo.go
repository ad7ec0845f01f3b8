package contentdata

import (
	"context"
	"errors"
	"time"

	"github.com/siteadmin/content-services/internal/page"
	"github.com/siteadmin/content-services/internal/page/repository"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// referenceID is the _id of the single reference-data document.
const referenceID = "reference"

// MongoRepo stores the reference-data document in one collection and job
// openings, keyed by their id, in another.
type MongoRepo struct {
	data *mongo.Collection
	jobs *mongo.Collection
	now  func() time.Time
}

func NewMongoRepo(data, jobs *mongo.Collection) *MongoRepo {
	return &MongoRepo{data: data, jobs: jobs, now: time.Now}
}

type mongoDoc struct {
	ID        string    `bson:"_id"`
	Content   bson.M    `bson:"content"`
	UpdatedAt time.Time `bson:"updatedAt"`
}

func (d mongoDoc) content() page.Content {
	m, _ := repository.NormalizeBSON(d.Content).(map[string]interface{})
	return page.Content(m)
}

func (m *MongoRepo) GetReferenceData(ctx context.Context) (page.Content, error) {
	var d mongoDoc
	err := m.data.FindOne(ctx, bson.M{"_id": referenceID}).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return d.content(), nil
}

func (m *MongoRepo) upsert(ctx context.Context, col *mongo.Collection, id string, doc page.Content) error {
	update := bson.M{"$set": bson.M{"content": map[string]interface{}(doc), "updatedAt": m.now().UTC()}}
	_, err := col.UpdateOne(ctx, bson.M{"_id": id}, update, options.Update().SetUpsert(true))
	return err
}

func (m *MongoRepo) UpsertReferenceData(ctx context.Context, doc page.Content) error {
	return m.upsert(ctx, m.data, referenceID, doc)
}

func (m *MongoRepo) UpsertJobOpening(ctx context.Context, id string, doc page.Content) error {
	return m.upsert(ctx, m.jobs, id, doc)
}

func (m *MongoRepo) ListJobOpenings(ctx context.Context) ([]page.Content, error) {
	cur, err := m.jobs.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	out := []page.Content{}
	for cur.Next(ctx) {
		var d mongoDoc
		if err := cur.Decode(&d); err != nil {
			return nil, err
		}
		out = append(out, d.content())
	}
	return out, cur.Err()
}
