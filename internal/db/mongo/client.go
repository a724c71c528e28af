// Package mongo adapts the MongoDB driver to the primary-store operations the
// pipeline needs: collection listing, sampling, change streams, upsert-by-filter
// writes and source stamping.
package mongo

import (
	"context"
	"fmt"
	"time"

	mongodriver "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// Config holds connection parameters for the primary store.
type Config struct {
	URI            string
	Database       string
	ConnectTimeout time.Duration
}

// Store wraps a connected client bound to one database.
type Store struct {
	client *mongodriver.Client
	db     *mongodriver.Database
}

// Connect dials the deployment and verifies it with a primary ping.
func Connect(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.URI == "" {
		return nil, fmt.Errorf("uri is required")
	}
	if cfg.Database == "" {
		return nil, fmt.Errorf("database is required")
	}
	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	opts := options.Client().
		ApplyURI(cfg.URI).
		SetConnectTimeout(timeout).
		SetServerSelectionTimeout(timeout)

	client, err := mongodriver.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	s := &Store{client: client, db: client.Database(cfg.Database)}

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := s.Ping(pingCtx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

// Ping checks connectivity against the primary.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx, readpref.Primary()); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// Close disconnects the client.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// DatabaseName returns the bound database name.
func (s *Store) DatabaseName() string {
	return s.db.Name()
}

func (s *Store) coll(name string) *mongodriver.Collection {
	return s.db.Collection(name)
}
