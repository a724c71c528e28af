package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	mongodriver "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/kailas-cloud/vecsync/internal/domain/change"
)

// ListCollections returns the names of all collections in the database. Views
// are left out since they cannot be watched.
func (s *Store) ListCollections(ctx context.Context) ([]string, error) {
	names, err := s.db.ListCollectionNames(ctx, bson.D{{Key: "type", Value: "collection"}})
	if err != nil {
		return nil, classify("list collections", err)
	}
	return names, nil
}

// Distinct returns the distinct non-null values of field in collection.
func (s *Store) Distinct(ctx context.Context, collection, field string) ([]any, error) {
	vals, err := s.coll(collection).Distinct(ctx, field, bson.D{})
	if err != nil {
		return nil, classify("distinct "+collection+"."+field, err)
	}
	out := make([]any, 0, len(vals))
	for _, v := range vals {
		if v = normalize(v); v != nil {
			out = append(out, v)
		}
	}
	return out, nil
}

// Sample returns up to limit randomly chosen documents matching filter.
func (s *Store) Sample(ctx context.Context, collection string, filter map[string]any, limit int64) ([]change.Document, error) {
	if limit <= 0 {
		limit = 1
	}
	pipeline := mongodriver.Pipeline{
		{{Key: "$match", Value: filterDoc(filter)}},
		{{Key: "$sample", Value: bson.D{{Key: "size", Value: limit}}}},
	}
	cur, err := s.coll(collection).Aggregate(ctx, pipeline)
	if err != nil {
		return nil, classify("sample "+collection, err)
	}
	defer func() { _ = cur.Close(ctx) }()

	var docs []change.Document
	for cur.Next(ctx) {
		var m bson.M
		if err := cur.Decode(&m); err != nil {
			return nil, fmt.Errorf("decode sample %s: %w", collection, err)
		}
		docs = append(docs, toDocument(m))
	}
	if err := cur.Err(); err != nil {
		return nil, classify("sample "+collection, err)
	}
	return docs, nil
}

// Count counts documents matching filter, stopping at limit when limit > 0.
func (s *Store) Count(ctx context.Context, collection string, filter map[string]any, limit int64) (int64, error) {
	opts := options.Count()
	if limit > 0 {
		opts.SetLimit(limit)
	}
	n, err := s.coll(collection).CountDocuments(ctx, filterDoc(filter), opts)
	if err != nil {
		return 0, classify("count "+collection, err)
	}
	return n, nil
}

// Scan streams every document matching filter to fn in batches of batchSize.
// A non-nil error from fn stops the scan and is returned as is.
func (s *Store) Scan(ctx context.Context, collection string, filter map[string]any, batchSize int32, fn func(change.Document) error) error {
	opts := options.Find()
	if batchSize > 0 {
		opts.SetBatchSize(batchSize)
	}
	cur, err := s.coll(collection).Find(ctx, filterDoc(filter), opts)
	if err != nil {
		return classify("scan "+collection, err)
	}
	defer func() { _ = cur.Close(ctx) }()

	for cur.Next(ctx) {
		var m bson.M
		if err := cur.Decode(&m); err != nil {
			return fmt.Errorf("decode %s: %w", collection, err)
		}
		if err := fn(toDocument(m)); err != nil {
			return err
		}
	}
	return classify("scan "+collection, cur.Err())
}

// MarkIndexed stamps field=at on the source document whose _id is id, as
// returned by change.Document.RawID.
func (s *Store) MarkIndexed(ctx context.Context, collection string, id any, field string, at time.Time) error {
	_, err := s.coll(collection).UpdateOne(ctx,
		bson.M{change.IDField: storedID(id)},
		bson.M{"$set": bson.M{field: at.UTC()}},
	)
	return classify("mark indexed "+collection, err)
}

// filterDoc converts a possibly nil filter; a nil bson.M encodes as null, which the server rejects.
func filterDoc(filter map[string]any) bson.M {
	if filter == nil {
		return bson.M{}
	}
	return bson.M(filter)
}
