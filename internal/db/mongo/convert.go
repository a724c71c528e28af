package mongo

import (
	"strconv"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/kailas-cloud/vecsync/internal/domain/change"
)

// toDocument normalizes a decoded BSON document into plain Go values:
// ObjectIDs become hex strings, BSON dates become time.Time, int32 widens to int64,
// arrays become []any and embedded documents become map[string]any.
// A top-level ObjectID _id becomes change.ObjectID so it can be written back.
func toDocument(m bson.M) change.Document {
	if m == nil {
		return nil
	}
	doc := change.Document(normalizeMap(m))
	if oid, ok := m[change.IDField].(primitive.ObjectID); ok {
		doc[change.IDField] = change.ObjectID(oid.Hex())
	}
	return doc
}

func normalizeMap(m bson.M) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = normalize(v)
	}
	return out
}

func normalize(v any) any {
	switch t := v.(type) {
	case primitive.ObjectID:
		return t.Hex()
	case primitive.DateTime:
		return t.Time().UTC()
	case primitive.Timestamp:
		return time.Unix(int64(t.T), 0).UTC()
	case time.Time:
		return t.UTC()
	case int32:
		return int64(t)
	case int:
		return int64(t)
	case primitive.Decimal128:
		f, err := strconv.ParseFloat(t.String(), 64)
		if err != nil {
			return t.String()
		}
		return f
	case primitive.A:
		return normalizeSlice(t)
	case []any:
		return normalizeSlice(t)
	case bson.M:
		return normalizeMap(t)
	case map[string]any:
		return normalizeMap(bson.M(t))
	case primitive.D:
		m := make(map[string]any, len(t))
		for _, e := range t {
			m[e.Key] = normalize(e.Value)
		}
		return m
	case primitive.Null, primitive.Undefined:
		return nil
	default:
		return v
	}
}

func normalizeSlice(in []any) []any {
	out := make([]any, len(in))
	for i, v := range in {
		out[i] = normalize(v)
	}
	return out
}

// storedID converts a document's _id back to the type it is stored as.
// Only change.ObjectID needs converting; strings and numbers match as they are.
func storedID(id any) any {
	if oid, ok := id.(change.ObjectID); ok {
		if v, err := primitive.ObjectIDFromHex(string(oid)); err == nil {
			return v
		}
	}
	return id
}
