package mongo

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	mongodriver "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/kailas-cloud/vecsync/internal/domain/change"
)

// ChangeStream is a live feed of insert/update/replace events for one collection.
type ChangeStream struct {
	collection string
	cs         *mongodriver.ChangeStream
}

type changeEventDTO struct {
	OperationType string              `bson:"operationType"`
	DocumentKey   bson.M              `bson:"documentKey"`
	FullDocument  bson.M              `bson:"fullDocument"`
	ClusterTime   primitive.Timestamp `bson:"clusterTime"`
}

// Watch opens a change stream on collection with full-document lookup.
// A non-empty resumeToken resumes after that event.
func (s *Store) Watch(ctx context.Context, collection string, resumeToken []byte) (*ChangeStream, error) {
	ops := make(bson.A, 0, len(change.IndexedOperations))
	for _, op := range change.IndexedOperations {
		ops = append(ops, string(op))
	}
	pipeline := mongodriver.Pipeline{
		{{Key: "$match", Value: bson.M{"operationType": bson.M{"$in": ops}}}},
	}

	opts := options.ChangeStream().SetFullDocument(options.UpdateLookup)
	if len(resumeToken) > 0 {
		opts.SetResumeAfter(bson.Raw(resumeToken))
	}

	cs, err := s.coll(collection).Watch(ctx, pipeline, opts)
	if err != nil {
		return nil, classify("watch "+collection, err)
	}
	return &ChangeStream{collection: collection, cs: cs}, nil
}

// Next blocks until the next event arrives. It returns io.EOF when the stream
// ends without an error and ctx.Err() when ctx is done.
func (c *ChangeStream) Next(ctx context.Context) (change.Event, error) {
	for c.cs.Next(ctx) {
		var dto changeEventDTO
		if err := c.cs.Decode(&dto); err != nil {
			return change.Event{}, fmt.Errorf("decode change event %s: %w", c.collection, err)
		}
		op := change.OperationType(dto.OperationType)
		if !op.Indexable() || dto.FullDocument == nil {
			// Updates of already-deleted documents arrive without a full document.
			continue
		}
		doc := toDocument(dto.FullDocument)
		ev := change.Event{
			Collection:  c.collection,
			Operation:   op,
			DocumentID:  doc.ID(),
			Document:    doc,
			ResumeToken: append([]byte(nil), c.cs.ResumeToken()...),
		}
		if dto.ClusterTime.T > 0 {
			ev.ClusterTime = time.Unix(int64(dto.ClusterTime.T), 0).UTC()
		}
		return ev, nil
	}
	if err := c.cs.Err(); err != nil {
		return change.Event{}, classify("change stream "+c.collection, err)
	}
	if err := ctx.Err(); err != nil {
		return change.Event{}, err
	}
	return change.Event{}, io.EOF
}

// ResumeToken returns the token of the last delivered event.
func (c *ChangeStream) ResumeToken() []byte {
	return append([]byte(nil), c.cs.ResumeToken()...)
}

// Close releases the server-side cursor. Safe to call more than once.
func (c *ChangeStream) Close(ctx context.Context) error {
	return c.cs.Close(ctx)
}
