package orders

import (
	"context"
	"log/slog"
	"math"
	"regexp"
	"time"

	"github.com/ariefcatur/go-storefront-orders/internal/apperr"
	"github.com/ariefcatur/go-storefront-orders/internal/redisx"
	"github.com/ariefcatur/go-storefront-orders/internal/search"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

const (
	DefaultPage  = 1
	DefaultLimit = 10
	MaxLimit     = 100
)

type Index interface {
	GetDocument(ctx context.Context, collection, id string) (search.Hit, bool, error)
	SearchDocuments(ctx context.Context, collection string, q search.Query) (search.Result, error)
	SearchAggregations(ctx context.Context, collection string, pipeline mongo.Pipeline) ([]bson.M, error)
}

// Paging is a 1-based page request. Zero values select the defaults.
type Paging struct {
	Page  int
	Limit int
}

func (p Paging) normalize() (Paging, error) {
	if p.Page == 0 {
		p.Page = DefaultPage
	}
	if p.Limit == 0 {
		p.Limit = DefaultLimit
	}
	if p.Page < 1 {
		return p, apperr.ErrValidation.With("page must be at least 1")
	}
	if p.Limit < 1 || p.Limit > MaxLimit {
		return p, apperr.ErrValidation.With("limit must be between 1 and %d", MaxLimit)
	}
	return p, nil
}

type Page struct {
	Total        int64            `json:"total"`
	Page         int              `json:"page"`
	Limit        int              `json:"limit"`
	TotalPages   int              `json:"total_pages"`
	Data         []Order          `json:"data"`
	StatusCounts map[string]int64 `json:"status_counts,omitempty"`
}

// Filter narrows the admin order search. Empty fields do not filter.
type Filter struct {
	CustomerName  string
	OrderID       string
	Status        string
	PaymentStatus string
	PaymentMethod string
	From, To      time.Time
}

func (f Filter) toBSON() (bson.M, error) {
	m := bson.M{}
	if f.CustomerName != "" {
		m["user_name"] = bson.M{"$regex": regexp.QuoteMeta(f.CustomerName), "$options": "i"}
	}
	if f.OrderID != "" {
		m["_id"] = f.OrderID
	}
	if f.Status != "" {
		st, err := ParseStatus(f.Status)
		if err != nil {
			return nil, err
		}
		m["status"] = st
	}
	if f.PaymentStatus != "" {
		ps, err := ParsePaymentStatus(f.PaymentStatus)
		if err != nil {
			return nil, err
		}
		m["payment_status"] = ps
	}
	if f.PaymentMethod != "" {
		pm, err := ParsePaymentMethod(f.PaymentMethod)
		if err != nil {
			return nil, err
		}
		m["payment_method"] = pm
	}
	if !f.From.IsZero() || !f.To.IsZero() {
		if !f.From.IsZero() && !f.To.IsZero() && f.To.Before(f.From) {
			return nil, apperr.ErrValidation.With("date range end is before its start")
		}
		r := bson.M{}
		if !f.From.IsZero() {
			r["$gte"] = f.From
		}
		if !f.To.IsZero() {
			r["$lte"] = f.To
		}
		m["created_at"] = r
	}
	return m, nil
}

// Queries serves the read side of orders from the search index.
type Queries struct {
	Index Index
	Cache redis.Cmdable
}

func decodeOrder(h search.Hit) (Order, error) {
	var o Order
	if err := h.Decode(&o); err != nil {
		return Order{}, err
	}
	o.ID = h.ID
	return o.Public(), nil
}

// Get returns one order. A non-empty userID restricts the lookup to that
// user's orders; another user's order reads as not found.
func (q *Queries) Get(ctx context.Context, id, userID string) (Order, error) {
	hit, found, err := q.Index.GetDocument(ctx, search.Orders, id)
	if err != nil {
		return Order{}, err
	}
	if !found {
		return Order{}, apperr.ErrOrderNotFound
	}
	o, err := decodeOrder(hit)
	if err != nil {
		return Order{}, err
	}
	if userID != "" && o.UserID != userID {
		return Order{}, apperr.ErrOrderNotFound
	}
	return o, nil
}

// Status reads the status fast path, falling back to the index on a miss.
func (q *Queries) Status(ctx context.Context, id, userID string) (redisx.OrderStatus, error) {
	if q.Cache != nil {
		st, found, err := redisx.CachedOrderStatus(ctx, q.Cache, id)
		if err != nil {
			slog.WarnContext(ctx, "status cache read failed", "order_id", id, "err", err)
		}
		if found && (userID == "" || st.UserID == userID) {
			return st, nil
		}
	}

	o, err := q.Get(ctx, id, userID)
	if err != nil {
		return redisx.OrderStatus{}, err
	}
	CacheStatus(ctx, q.Cache, o)
	return redisx.OrderStatus{
		UserID:        o.UserID,
		Status:        string(o.Status),
		PaymentStatus: string(o.PaymentStatus),
		UpdatedAt:     o.UpdatedAt,
	}, nil
}

func (q *Queries) page(ctx context.Context, filter bson.M, p Paging) (Page, error) {
	p, err := p.normalize()
	if err != nil {
		return Page{}, err
	}
	res, err := q.Index.SearchDocuments(ctx, search.Orders, search.Query{
		Filter: filter,
		Sort:   bson.D{{Key: "created_at", Value: -1}},
		Skip:   int64((p.Page - 1) * p.Limit),
		Limit:  int64(p.Limit),
	})
	if err != nil {
		return Page{}, err
	}

	out := Page{
		Total:      res.Total,
		Page:       p.Page,
		Limit:      p.Limit,
		TotalPages: int(math.Ceil(float64(res.Total) / float64(p.Limit))),
		Data:       make([]Order, 0, len(res.Hits)),
	}
	for _, h := range res.Hits {
		o, err := decodeOrder(h)
		if err != nil {
			return Page{}, err
		}
		out.Data = append(out.Data, o)
	}
	return out, nil
}

// List pages through every order, newest first.
func (q *Queries) List(ctx context.Context, p Paging) (Page, error) {
	return q.page(ctx, bson.M{}, p)
}

func (q *Queries) ListByUser(ctx context.Context, userID string, p Paging) (Page, error) {
	return q.page(ctx, bson.M{"user_id": userID}, p)
}

// AdminSearch filters across all orders and adds per-status counts for the
// whole match set.
func (q *Queries) AdminSearch(ctx context.Context, f Filter, p Paging) (Page, error) {
	filter, err := f.toBSON()
	if err != nil {
		return Page{}, err
	}
	out, err := q.page(ctx, filter, p)
	if err != nil {
		return Page{}, err
	}

	rows, err := q.Index.SearchAggregations(ctx, search.Orders, mongo.Pipeline{
		{{Key: "$match", Value: filter}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$status"},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
	})
	if err != nil {
		return Page{}, err
	}
	out.StatusCounts = make(map[string]int64, len(validStatus))
	for st := range validStatus {
		out.StatusCounts[string(st)] = 0
	}
	for _, row := range rows {
		st, _ := row["_id"].(string)
		out.StatusCounts[st] = toInt64(row["count"])
	}
	return out, nil
}

// UserSearch matches a user's orders by exact order id or by item name.
func (q *Queries) UserSearch(ctx context.Context, userID, term string, p Paging) (Page, error) {
	filter := bson.M{"user_id": userID}
	if term != "" {
		filter["$or"] = bson.A{
			bson.M{"_id": term},
			bson.M{"items.variant_name": bson.M{"$regex": regexp.QuoteMeta(term), "$options": "i"}},
		}
	}
	return q.page(ctx, filter, p)
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int32:
		return int64(n)
	case int64:
		return n
	case float64:
		return int64(n)
	}
	return 0
}
