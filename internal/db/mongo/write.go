package mongo

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	mongodriver "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// EnsureUniqueIndex creates a named unique ascending index on keys if missing.
func (s *Store) EnsureUniqueIndex(ctx context.Context, collection, name string, keys ...string) error {
	idxKeys := make(bson.D, 0, len(keys))
	for _, k := range keys {
		idxKeys = append(idxKeys, bson.E{Key: k, Value: 1})
	}
	_, err := s.coll(collection).Indexes().CreateOne(ctx, mongodriver.IndexModel{
		Keys:    idxKeys,
		Options: options.Index().SetName(name).SetUnique(true),
	})
	return classify("create index "+collection+"."+name, err)
}

// UpsertOne updates the single document matching filter with $set, inserting it
// (plus setOnInsert) when absent. Returns true when a new document was inserted.
// Concurrent upserts racing on a unique index surface as domain.ErrAlreadyExists.
func (s *Store) UpsertOne(
	ctx context.Context, collection string, filter map[string]any, set any, setOnInsert map[string]any,
) (bool, error) {
	update := bson.M{"$set": set}
	if len(setOnInsert) > 0 {
		update["$setOnInsert"] = setOnInsert
	}
	res, err := s.coll(collection).UpdateOne(ctx, filterDoc(filter), update, options.Update().SetUpsert(true))
	if err != nil {
		return false, classify("upsert "+collection, err)
	}
	return res.UpsertedCount > 0, nil
}

// FindOne decodes the first document matching filter into out.
// Missing documents yield domain.ErrNotFound.
func (s *Store) FindOne(ctx context.Context, collection string, filter map[string]any, out any) error {
	err := s.coll(collection).FindOne(ctx, filterDoc(filter)).Decode(out)
	return classify("find "+collection, err)
}
