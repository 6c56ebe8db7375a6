package search

import (
	"context"
	"fmt"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"golang.org/x/sync/errgroup"
)

// SyncState records whether the process already rebuilt the index. main owns
// one instance and hands it to the synchronizer.
type SyncState struct {
	mu   sync.Mutex
	done bool
}

func (s *SyncState) Done() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// Source streams the authoritative documents of one collection.
type Source struct {
	Collection string
	Stream     func(ctx context.Context, fn func(id string, doc any) error) error
}

// Mappings lists the indexes each collection is rebuilt with.
var Mappings = map[string][]mongo.IndexModel{
	Users: {
		{Keys: bson.D{{Key: "email", Value: 1}}},
	},
	Variants: {
		{Keys: bson.D{{Key: "variant_name", Value: 1}}},
		{Keys: bson.D{{Key: "is_active", Value: 1}}},
	},
	Orders: {
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "payment_status", Value: 1}}},
		{Keys: bson.D{{Key: "payment_method", Value: 1}}},
		{Keys: bson.D{{Key: "user_name", Value: 1}}},
		{Keys: bson.D{{Key: "items.variant_name", Value: 1}}},
	},
	Carts: {
		{Keys: bson.D{{Key: "user_id", Value: 1}}, Options: options.Index().SetUnique(true)},
	},
	Coupons: {
		{Keys: bson.D{{Key: "code", Value: 1}}, Options: options.Index().SetUnique(true)},
	},
}

// Resync drops and rebuilds every source collection from the authoritative
// store. It runs at most once per SyncState; later calls return nil without
// touching the index. A document that fails to index is logged and skipped.
func (s *Synchronizer) Resync(ctx context.Context, sources []Source) error {
	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	if s.state.done {
		s.log.InfoContext(ctx, "index already synced, skipping")
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, src := range sources {
		g.Go(func() error { return s.rebuild(gctx, src) })
	}
	if err := g.Wait(); err != nil {
		return err
	}
	s.state.done = true
	s.log.InfoContext(ctx, "index resync complete", "collections", len(sources))
	return nil
}

func (s *Synchronizer) rebuild(ctx context.Context, src Source) error {
	coll := s.db.Collection(src.Collection)
	if err := coll.Drop(ctx); err != nil {
		return fmt.Errorf("drop %s: %w", src.Collection, err)
	}
	if models := Mappings[src.Collection]; len(models) > 0 {
		if _, err := coll.Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("create indexes %s: %w", src.Collection, err)
		}
	}

	var indexed, skipped int
	err := src.Stream(ctx, func(id string, doc any) error {
		if err := s.IndexDocument(ctx, src.Collection, id, doc); err != nil {
			skipped++
			s.log.WarnContext(ctx, "resync document failed", "collection", src.Collection, "id", id, "err", err)
			return nil
		}
		indexed++
		return nil
	})
	if err != nil {
		return fmt.Errorf("stream %s: %w", src.Collection, err)
	}
	s.log.InfoContext(ctx, "collection resynced", "collection", src.Collection, "indexed", indexed, "skipped", skipped)
	return nil
}
