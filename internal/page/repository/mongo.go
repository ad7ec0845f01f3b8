package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/siteadmin/content-services/internal/page"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoRepo implements a MongoDB-backed repository for page records.
// Records use a UUID string as _id and carry a unique index on pageId.
type MongoRepo struct {
	col *mongo.Collection
	now func() time.Time
}

func NewMongoRepo(ctx context.Context, col *mongo.Collection) (*MongoRepo, error) {
	idxModel := mongo.IndexModel{Keys: bson.D{{Key: "pageId", Value: 1}}, Options: options.Index().SetUnique(true)}
	if _, err := col.Indexes().CreateOne(ctx, idxModel); err != nil {
		return nil, err
	}
	return &MongoRepo{col: col, now: time.Now}, nil
}

// mongoRecord mirrors page.Record; content is decoded loosely and normalized.
type mongoRecord struct {
	ID           string    `bson:"_id"`
	PageID       string    `bson:"pageId"`
	Title        string    `bson:"title"`
	Description  string    `bson:"description"`
	LastModified time.Time `bson:"lastModified"`
	IsPublished  bool      `bson:"isPublished"`
	Content      bson.M    `bson:"content"`
	CreatedAt    time.Time `bson:"createdAt"`
	UpdatedAt    time.Time `bson:"updatedAt"`
}

func (m mongoRecord) record() *page.Record {
	content, _ := NormalizeBSON(m.Content).(map[string]interface{})
	return &page.Record{
		ID:           m.ID,
		PageID:       m.PageID,
		Title:        m.Title,
		Description:  m.Description,
		LastModified: m.LastModified.UTC(),
		IsPublished:  m.IsPublished,
		Content:      page.Content(content),
		CreatedAt:    m.CreatedAt.UTC(),
		UpdatedAt:    m.UpdatedAt.UTC(),
	}
}

func (m *MongoRepo) Create(ctx context.Context, r *page.Record) (*page.Record, error) {
	rec := r.Clone()
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	now := m.now().UTC()
	rec.CreatedAt = now
	page.Patch{}.Apply(rec, now)
	if _, err := m.col.InsertOne(ctx, rec); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, ErrConflict
		}
		return nil, err
	}
	return rec, nil
}

func (m *MongoRepo) findOne(ctx context.Context, filter bson.M) (*page.Record, error) {
	var d mongoRecord
	if err := m.col.FindOne(ctx, filter).Decode(&d); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return d.record(), nil
}

func (m *MongoRepo) FindByID(ctx context.Context, id string) (*page.Record, error) {
	return m.findOne(ctx, bson.M{"_id": id})
}

func (m *MongoRepo) FindByPageID(ctx context.Context, pageID string) (*page.Record, error) {
	return m.findOne(ctx, bson.M{"pageId": pageID})
}

func mongoFilter(f Filter) bson.M {
	q := bson.M{}
	if f.Published != nil {
		q["isPublished"] = *f.Published
	}
	if len(f.PageIDs) > 0 {
		q["pageId"] = bson.M{"$in": f.PageIDs}
	}
	return q
}

func (m *MongoRepo) List(ctx context.Context, f Filter, p Pagination) ([]*page.Record, error) {
	opts := options.Find().SetSort(bson.D{{Key: "pageId", Value: 1}})
	if p.Offset > 0 {
		opts.SetSkip(int64(p.Offset))
	}
	if p.Limit > 0 {
		opts.SetLimit(int64(p.Limit))
	}
	cur, err := m.col.Find(ctx, mongoFilter(f), opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	out := []*page.Record{}
	for cur.Next(ctx) {
		var d mongoRecord
		if err := cur.Decode(&d); err != nil {
			return nil, err
		}
		out = append(out, d.record())
	}
	return out, cur.Err()
}

func (m *MongoRepo) Count(ctx context.Context, f Filter) (int, error) {
	n, err := m.col.CountDocuments(ctx, mongoFilter(f))
	return int(n), err
}

func (m *MongoRepo) UpdateFull(ctx context.Context, id string, r *page.Record) (*page.Record, error) {
	cur, err := m.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	rec := r.Clone()
	rec.ID = cur.ID
	rec.PageID = cur.PageID
	rec.CreatedAt = cur.CreatedAt
	page.Patch{}.Apply(rec, m.now().UTC())
	return m.replace(ctx, rec)
}

// UpdatePartial sets only the patched content keys in one atomic update, so
// concurrent patches of different keys do not overwrite each other.
func (m *MongoRepo) UpdatePartial(ctx context.Context, id string, p page.Patch) (*page.Record, error) {
	upd, err := partialUpdate(p, m.now().UTC())
	if err != nil {
		return nil, err
	}
	var d mongoRecord
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	if err := m.col.FindOneAndUpdate(ctx, bson.M{"_id": id}, upd, opts).Decode(&d); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return d.record(), nil
}

func partialUpdate(p page.Patch, now time.Time) (bson.M, error) {
	set := bson.M{"lastModified": now, "updatedAt": now}
	set["content."+page.KeyLastModified] = now.Format(page.TimeLayout)
	for k, v := range p.Content {
		switch k {
		case page.KeyPageID, page.KeyLastModified, page.KeyTitle, page.KeyDescription, page.KeyPublished:
			// mirrored from the record fields below
			continue
		}
		if k == "" || strings.HasPrefix(k, "$") || strings.Contains(k, ".") {
			return nil, fmt.Errorf("content key %q cannot be stored as a field", k)
		}
		set["content."+k] = v
	}
	if p.Title != nil {
		set["title"] = *p.Title
		set["content."+page.KeyTitle] = *p.Title
	}
	if p.Description != nil {
		set["description"] = *p.Description
		set["content."+page.KeyDescription] = *p.Description
	}
	if p.IsPublished != nil {
		set["isPublished"] = *p.IsPublished
		set["content."+page.KeyPublished] = *p.IsPublished
	}
	return bson.M{"$set": set}, nil
}

func (m *MongoRepo) replace(ctx context.Context, rec *page.Record) (*page.Record, error) {
	set := bson.M{
		"title":        rec.Title,
		"description":  rec.Description,
		"isPublished":  rec.IsPublished,
		"content":      rec.Content,
		"lastModified": rec.LastModified,
		"updatedAt":    rec.UpdatedAt,
	}
	res, err := m.col.UpdateOne(ctx, bson.M{"_id": rec.ID}, bson.M{"$set": set})
	if err != nil {
		return nil, err
	}
	if res.MatchedCount == 0 {
		return nil, ErrNotFound
	}
	return rec, nil
}

// NormalizeBSON turns decoded BSON values into the shapes encoding/json
// produces, so documents compare equal no matter which store they came from.
func NormalizeBSON(v interface{}) interface{} {
	switch t := v.(type) {
	case primitive.D:
		out := make(map[string]interface{}, len(t))
		for _, e := range t {
			out[e.Key] = NormalizeBSON(e.Value)
		}
		return out
	case primitive.M:
		out := make(map[string]interface{}, len(t))
		for k, e := range t {
			out[k] = NormalizeBSON(e)
		}
		return out
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, e := range t {
			out[k] = NormalizeBSON(e)
		}
		return out
	case primitive.A:
		out := make([]interface{}, len(t))
		for i, e := range t {
			out[i] = NormalizeBSON(e)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, e := range t {
			out[i] = NormalizeBSON(e)
		}
		return out
	case int32:
		return float64(t)
	case int64:
		return float64(t)
	case primitive.DateTime:
		return t.Time().UTC().Format(page.TimeLayout)
	case nil:
		return nil
	}
	return v
}
