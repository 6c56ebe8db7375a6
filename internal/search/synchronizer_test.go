package search

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
)

type orderDoc struct {
	UserName string `bson:"user_name"`
	Status   string `bson:"status"`
}

func TestIndexDocumentUpserts(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("upsert", func(mt *mtest.T) {
		s := New(mt.DB, nil, nil)
		mt.AddMockResponses(mtest.CreateSuccessResponse())

		err := s.IndexDocument(context.Background(), Orders, "o-1", orderDoc{UserName: "Ann", Status: "PENDING"})
		require.NoError(mt, err)

		evt := mt.GetStartedEvent()
		require.NotNil(mt, evt)
		assert.Equal(mt, "update", evt.CommandName)
	})

	mt.Run("server error", func(mt *mtest.T) {
		s := New(mt.DB, nil, nil)
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{Code: 2, Message: "bad"}))

		err := s.IndexDocument(context.Background(), Orders, "o-1", orderDoc{})
		require.Error(mt, err)
		assert.Contains(mt, err.Error(), "orders/o-1")
	})
}

func TestSearchDocuments(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("total and hits", func(mt *mtest.T) {
		s := New(mt.DB, nil, nil)
		ns := mt.DB.Name() + "." + Orders
		mt.AddMockResponses(
			mtest.CreateCursorResponse(0, ns, mtest.FirstBatch, bson.D{{Key: "n", Value: int32(7)}}),
			mtest.CreateCursorResponse(0, ns, mtest.FirstBatch,
				bson.D{{Key: "_id", Value: "o-1"}, {Key: "user_name", Value: "Ann"}, {Key: "status", Value: "PENDING"}},
				bson.D{{Key: "_id", Value: "o-2"}, {Key: "user_name", Value: "Bob"}, {Key: "status", Value: "DELIVERED"}},
			),
		)

		res, err := s.SearchDocuments(context.Background(), Orders, Query{
			Filter: bson.M{"status": bson.M{"$in": []string{"PENDING", "DELIVERED"}}},
			Sort:   bson.D{{Key: "created_at", Value: -1}},
			Skip:   0,
			Limit:  2,
		})
		require.NoError(mt, err)
		assert.EqualValues(mt, 7, res.Total)
		require.Len(mt, res.Hits, 2)
		assert.Equal(mt, "o-1", res.Hits[0].ID)

		var doc orderDoc
		require.NoError(mt, res.Hits[1].Decode(&doc))
		assert.Equal(mt, orderDoc{UserName: "Bob", Status: "DELIVERED"}, doc)
	})
}

func TestGetDocumentMissing(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("missing", func(mt *mtest.T) {
		s := New(mt.DB, nil, nil)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, mt.DB.Name()+"."+Carts, mtest.FirstBatch))

		_, found, err := s.GetDocument(context.Background(), Carts, "c-1")
		require.NoError(mt, err)
		assert.False(mt, found)
	})
}

func TestSearchAggregations(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("rows", func(mt *mtest.T) {
		s := New(mt.DB, nil, nil)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, mt.DB.Name()+"."+Orders, mtest.FirstBatch,
			bson.D{{Key: "_id", Value: "PENDING"}, {Key: "count", Value: int32(3)}},
			bson.D{{Key: "_id", Value: "SHIPPING"}, {Key: "count", Value: int32(1)}},
		))

		rows, err := s.SearchAggregations(context.Background(), Orders, mongo.Pipeline{
			{{Key: "$group", Value: bson.D{{Key: "_id", Value: "$status"}, {Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}}}}},
		})
		require.NoError(mt, err)
		require.Len(mt, rows, 2)
		assert.Equal(mt, "PENDING", rows[0]["_id"])
	})
}

func TestResyncRunsOnceAndSkipsBadDocuments(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("resync", func(mt *mtest.T) {
		state := &SyncState{}
		s := New(mt.DB, state, nil)

		mt.AddMockResponses(
			mtest.CreateSuccessResponse(), // drop
			mtest.CreateSuccessResponse(), // createIndexes
			mtest.CreateSuccessResponse(), // c-1
			mtest.CreateCommandErrorResponse(mtest.CommandError{Code: 2, Message: "bad document"}), // c-2
			mtest.CreateSuccessResponse(), // c-3
		)

		var streamed []string
		src := Source{
			Collection: Carts,
			Stream: func(ctx context.Context, fn func(id string, doc any) error) error {
				for _, id := range []string{"c-1", "c-2", "c-3"} {
					streamed = append(streamed, id)
					if err := fn(id, bson.M{"user_id": "u-" + id}); err != nil {
						return err
					}
				}
				return nil
			},
		}

		require.NoError(mt, s.Resync(context.Background(), []Source{src}))
		assert.Equal(mt, []string{"c-1", "c-2", "c-3"}, streamed)
		assert.True(mt, state.Done())

		// second run is a no-op; no responses are queued, so any call would fail
		require.NoError(mt, s.Resync(context.Background(), []Source{src}))
		assert.Len(mt, streamed, 3)
	})

	mt.Run("stream failure", func(mt *mtest.T) {
		state := &SyncState{}
		s := New(mt.DB, state, nil)
		mt.AddMockResponses(mtest.CreateSuccessResponse(), mtest.CreateSuccessResponse())

		boom := errors.New("db down")
		err := s.Resync(context.Background(), []Source{{
			Collection: Coupons,
			Stream: func(ctx context.Context, fn func(id string, doc any) error) error {
				return boom
			},
		}})
		require.ErrorIs(mt, err, boom)
		assert.False(mt, state.Done())
	})
}

type recordingIndexer struct {
	indexed []string
	deleted []string
	err     error
}

func (r *recordingIndexer) IndexDocument(_ context.Context, collection, id string, _ any) error {
	r.indexed = append(r.indexed, collection+"/"+id)
	return r.err
}

func (r *recordingIndexer) DeleteDocument(_ context.Context, collection, id string) error {
	r.deleted = append(r.deleted, collection+"/"+id)
	return r.err
}

func TestMirrorSwallowsErrors(t *testing.T) {
	idx := &recordingIndexer{err: errors.New("index down")}

	Mirror(context.Background(), idx, Orders, "o-1", bson.M{})
	Unmirror(context.Background(), idx, Orders, "o-1")
	Mirror(context.Background(), nil, Orders, "o-2", bson.M{})

	assert.Equal(t, []string{"orders/o-1"}, idx.indexed)
	assert.Equal(t, []string{"orders/o-1"}, idx.deleted)
}
