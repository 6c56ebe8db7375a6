// Package search mirrors authoritative Postgres records into MongoDB, which
// serves every read-side listing, filter and aggregation.
//
// Each document is stored under its authoritative id as _id; the stored body
// is the record minus its id field. Writes to the index are best effort: the
// relational store stays the source of truth and readers tolerate lag.
package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Index collections.
const (
	Users    = "users"
	Variants = "product_variants"
	Orders   = "orders"
	Carts    = "carts"
	Coupons  = "coupons"
)

// Indexer is the write side used by services that mirror their mutations.
type Indexer interface {
	IndexDocument(ctx context.Context, collection, id string, doc any) error
	DeleteDocument(ctx context.Context, collection, id string) error
}

// Query selects documents from one collection.
type Query struct {
	Filter bson.M
	Sort   bson.D
	Skip   int64
	Limit  int64
}

type Hit struct {
	ID     string
	Source bson.Raw
}

// Decode unmarshals the stored body into v.
func (h Hit) Decode(v any) error { return bson.Unmarshal(h.Source, v) }

// Result carries the total match count (ignoring Skip/Limit) and one page of hits.
type Result struct {
	Total int64
	Hits  []Hit
}

type Synchronizer struct {
	db    *mongo.Database
	state *SyncState
	log   *slog.Logger
}

func New(db *mongo.Database, state *SyncState, log *slog.Logger) *Synchronizer {
	if state == nil {
		state = &SyncState{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Synchronizer{db: db, state: state, log: log}
}

// IndexDocument writes the whole document, creating it when absent.
func (s *Synchronizer) IndexDocument(ctx context.Context, collection, id string, doc any) error {
	_, err := s.db.Collection(collection).ReplaceOne(ctx, bson.M{"_id": id}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("index %s/%s: %w", collection, id, err)
	}
	return nil
}

// UpdateDocument sets the given fields on an existing document.
func (s *Synchronizer) UpdateDocument(ctx context.Context, collection, id string, partial bson.M) error {
	_, err := s.db.Collection(collection).UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": partial})
	if err != nil {
		return fmt.Errorf("update %s/%s: %w", collection, id, err)
	}
	return nil
}

// DeleteDocument removes a document. Removing an absent document is not an error.
func (s *Synchronizer) DeleteDocument(ctx context.Context, collection, id string) error {
	if _, err := s.db.Collection(collection).DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return fmt.Errorf("delete %s/%s: %w", collection, id, err)
	}
	return nil
}

func (s *Synchronizer) SearchDocuments(ctx context.Context, collection string, q Query) (Result, error) {
	filter := q.Filter
	if filter == nil {
		filter = bson.M{}
	}
	coll := s.db.Collection(collection)

	total, err := coll.CountDocuments(ctx, filter)
	if err != nil {
		return Result{}, fmt.Errorf("count %s: %w", collection, err)
	}

	opts := options.Find()
	if len(q.Sort) > 0 {
		opts.SetSort(q.Sort)
	}
	if q.Skip > 0 {
		opts.SetSkip(q.Skip)
	}
	if q.Limit > 0 {
		opts.SetLimit(q.Limit)
	}
	cur, err := coll.Find(ctx, filter, opts)
	if err != nil {
		return Result{}, fmt.Errorf("search %s: %w", collection, err)
	}
	defer func() { _ = cur.Close(ctx) }()

	res := Result{Total: total, Hits: []Hit{}}
	for cur.Next(ctx) {
		raw := make(bson.Raw, len(cur.Current))
		copy(raw, cur.Current)
		id, _ := raw.Lookup("_id").StringValueOK()
		res.Hits = append(res.Hits, Hit{ID: id, Source: raw})
	}
	if err := cur.Err(); err != nil {
		return Result{}, fmt.Errorf("search %s: %w", collection, err)
	}
	return res, nil
}

// GetDocument fetches one document by id; found is false when it is not indexed.
func (s *Synchronizer) GetDocument(ctx context.Context, collection, id string) (hit Hit, found bool, err error) {
	raw, err := s.db.Collection(collection).FindOne(ctx, bson.M{"_id": id}).Raw()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Hit{}, false, nil
	}
	if err != nil {
		return Hit{}, false, fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	return Hit{ID: id, Source: raw}, true, nil
}

func (s *Synchronizer) CountDocuments(ctx context.Context, collection string, filter bson.M) (int64, error) {
	if filter == nil {
		filter = bson.M{}
	}
	n, err := s.db.Collection(collection).CountDocuments(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", collection, err)
	}
	return n, nil
}

// SearchAggregations runs an aggregation pipeline and returns its raw rows.
func (s *Synchronizer) SearchAggregations(ctx context.Context, collection string, pipeline mongo.Pipeline) ([]bson.M, error) {
	cur, err := s.db.Collection(collection).Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("aggregate %s: %w", collection, err)
	}
	var rows []bson.M
	if err := cur.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("aggregate %s: %w", collection, err)
	}
	return rows, nil
}

// Mirror indexes doc and only logs a failure.
func Mirror(ctx context.Context, idx Indexer, collection, id string, doc any) {
	if idx == nil {
		return
	}
	if err := idx.IndexDocument(ctx, collection, id, doc); err != nil {
		slog.WarnContext(ctx, "index propagation failed", "collection", collection, "id", id, "err", err)
	}
}

// Unmirror deletes a document from the index and only logs a failure.
func Unmirror(ctx context.Context, idx Indexer, collection, id string) {
	if idx == nil {
		return
	}
	if err := idx.DeleteDocument(ctx, collection, id); err != nil {
		slog.WarnContext(ctx, "index deletion failed", "collection", collection, "id", id, "err", err)
	}
}
