package httpx

import (
	"context"
	"github.com/ariefcatur/go-storefront-orders/internal/apperr"
	"github.com/ariefcatur/go-storefront-orders/internal/cart"
	"github.com/ariefcatur/go-storefront-orders/internal/checkout"
	"github.com/ariefcatur/go-storefront-orders/internal/orders"
	"github.com/ariefcatur/go-storefront-orders/internal/redisx"
	"github.com/go-chi/chi/v5"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

type OrderCreator interface {
	Create(ctx context.Context, req checkout.Request) (orders.Order, error)
}

type StatusChanger interface {
	Transition(ctx context.Context, id, status string) (orders.Order, error)
}

type OrderQueries interface {
	Get(ctx context.Context, id, userID string) (orders.Order, error)
	Status(ctx context.Context, id, userID string) (redisx.OrderStatus, error)
	List(ctx context.Context, p orders.Paging) (orders.Page, error)
	ListByUser(ctx context.Context, userID string, p orders.Paging) (orders.Page, error)
	AdminSearch(ctx context.Context, f orders.Filter, p orders.Paging) (orders.Page, error)
	UserSearch(ctx context.Context, userID, term string, p orders.Paging) (orders.Page, error)
}

type OrdersHandler struct {
	Checkout OrderCreator
	Status   StatusChanger
	Queries  OrderQueries
}

type CreateOrderItemReq struct {
	VariantID string  `json:"variant_id" validate:"required"`
	Quantity  int     `json:"quantity" validate:"gt=0"`
	UnitPrice int64   `json:"unit_price" validate:"gte=0"`
	Discount  float64 `json:"discount" validate:"gte=0,lte=0.5"`
}

// CreateOrderReq is the checkout body. Signed-in callers check out their
// cart and may omit items; guests send items plus a name and email.
type CreateOrderReq struct {
	Items            []CreateOrderItemReq `json:"items" validate:"omitempty,dive"`
	UserName         string               `json:"user_name" validate:"omitempty,max=120"`
	Email            string               `json:"email" validate:"omitempty,email"`
	Address          string               `json:"address" validate:"required"`
	CouponCode       string               `json:"coupon_code" validate:"omitempty,max=64"`
	PaymentMethod    string               `json:"payment_method" validate:"required"`
	UseLoyaltyPoints bool                 `json:"using_loyalty_points"`
}

type UpdateStatusReq struct {
	Status string `json:"status" validate:"required"`
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Post("/orders", h.createOrder)
	r.Get("/orders/{id}", h.getOrder)
	r.Get("/orders/{id}/status", h.getStatus)
	r.With(requireUser).Get("/me/orders", h.myOrders)
	r.Group(func(r chi.Router) {
		r.Use(requireAdmin)
		r.Get("/admin/orders", h.adminOrders)
		r.Patch("/orders/{id}/status", h.updateStatus)
	})
}

func (h *OrdersHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderReq
	if err := decode(r, &req); err != nil {
		fail(w, r, err)
		return
	}

	in := checkout.Request{
		UserID:           callerFrom(r.Context()).UserID,
		UserName:         req.UserName,
		Email:            req.Email,
		Address:          req.Address,
		CouponCode:       req.CouponCode,
		PaymentMethod:    req.PaymentMethod,
		UseLoyaltyPoints: req.UseLoyaltyPoints,
		IdempotencyKey:   r.Header.Get(HeaderIdempotencyKey),
	}
	for _, it := range req.Items {
		in.Items = append(in.Items, cart.Item{
			VariantID: it.VariantID,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
			Discount:  it.Discount,
		})
	}

	o, err := h.Checkout.Create(r.Context(), in)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, o)
}

// scope is the owner filter for single-order reads: admins see everything,
// users only their own orders.
func scope(w http.ResponseWriter, r *http.Request) (userID string, ok bool) {
	c := callerFrom(r.Context())
	if c.Admin {
		return "", true
	}
	if c.UserID == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing "+HeaderUserID)
		return "", false
	}
	return c.UserID, true
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := scope(w, r)
	if !ok {
		return
	}
	o, err := h.Queries.Get(r.Context(), chi.URLParam(r, "id"), userID)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) getStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := scope(w, r)
	if !ok {
		return
	}
	st, err := h.Queries.Status(r.Context(), chi.URLParam(r, "id"), userID)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *OrdersHandler) updateStatus(w http.ResponseWriter, r *http.Request) {
	var req UpdateStatusReq
	if err := decode(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	o, err := h.Status.Transition(r.Context(), chi.URLParam(r, "id"), req.Status)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) myOrders(w http.ResponseWriter, r *http.Request) {
	p, err := paging(r.URL.Query())
	if err != nil {
		fail(w, r, err)
		return
	}
	userID := callerFrom(r.Context()).UserID

	var page orders.Page
	if q := r.URL.Query().Get("q"); q != "" {
		page, err = h.Queries.UserSearch(r.Context(), userID, q, p)
	} else {
		page, err = h.Queries.ListByUser(r.Context(), userID, p)
	}
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *OrdersHandler) adminOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	p, err := paging(q)
	if err != nil {
		fail(w, r, err)
		return
	}
	f := orders.Filter{
		CustomerName:  q.Get("customer_name"),
		OrderID:       q.Get("order_id"),
		Status:        q.Get("status"),
		PaymentStatus: q.Get("payment_status"),
		PaymentMethod: q.Get("payment_method"),
	}
	if f.From, err = parseDate(q.Get("from"), false); err != nil {
		fail(w, r, err)
		return
	}
	if f.To, err = parseDate(q.Get("to"), true); err != nil {
		fail(w, r, err)
		return
	}

	var page orders.Page
	if f == (orders.Filter{}) {
		page, err = h.Queries.List(r.Context(), p)
	} else {
		page, err = h.Queries.AdminSearch(r.Context(), f, p)
	}
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func paging(q url.Values) (orders.Paging, error) {
	var p orders.Paging
	for _, f := range []struct {
		name string
		dst  *int
	}{{"page", &p.Page}, {"limit", &p.Limit}} {
		s := q.Get(f.name)
		if s == "" {
			continue
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return p, apperr.ErrValidation.With("%s must be a number", f.name)
		}
		*f.dst = n
	}
	return p, nil
}

// parseDate accepts RFC 3339 timestamps or plain dates. A plain end date
// covers that whole day.
func parseDate(s string, endOfDay bool) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, apperr.ErrValidation.With("invalid date %q", s)
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}
