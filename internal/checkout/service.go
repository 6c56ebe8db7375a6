// Package checkout turns a cart (or an inline item list) into an order.
//
// Validation, pricing and guest resolution run first and have no side effects
// on stock, coupons or loyalty. The writes then run as a saga: the order row,
// one conditional stock decrement per line, the coupon claim and the loyalty
// settlement. If any of them loses a race, everything already applied is
// undone in reverse order and the order disappears. Index propagation is best
// effort throughout.
package checkout

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ariefcatur/go-storefront-orders/internal/apperr"
	"github.com/ariefcatur/go-storefront-orders/internal/cart"
	"github.com/ariefcatur/go-storefront-orders/internal/catalog"
	"github.com/ariefcatur/go-storefront-orders/internal/coupons"
	"github.com/ariefcatur/go-storefront-orders/internal/notify"
	"github.com/ariefcatur/go-storefront-orders/internal/orders"
	"github.com/ariefcatur/go-storefront-orders/internal/pricing"
	"github.com/ariefcatur/go-storefront-orders/internal/redisx"
	"github.com/ariefcatur/go-storefront-orders/internal/saga"
	"github.com/ariefcatur/go-storefront-orders/internal/search"
	"github.com/ariefcatur/go-storefront-orders/internal/users"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

type CartStore interface {
	GetByUser(ctx context.Context, userID string) (*cart.Cart, error)
	ReplacePrices(ctx context.Context, cartID string, items []cart.Item) (*cart.Cart, error)
	Delete(ctx context.Context, cartID string) error
}

type Inventory interface {
	Snapshot(ctx context.Context, ids []string) (map[string]catalog.Variant, error)
	Decrement(ctx context.Context, id string, qty int) (catalog.Variant, bool, error)
	Restore(ctx context.Context, id string, qty int) (catalog.Variant, error)
}

type CouponLedger interface {
	FindActive(ctx context.Context, code string) (coupons.Coupon, bool, error)
	Claim(ctx context.Context, code, orderID string) (coupons.Coupon, bool, error)
	Release(ctx context.Context, code, orderID string) (coupons.Coupon, error)
}

type Accounts interface {
	GetByID(ctx context.Context, id string) (users.User, bool, error)
	FindByEmail(ctx context.Context, email string) (users.User, bool, error)
	Settle(ctx context.Context, id string, used, earned int64) (users.User, bool, error)
	Unsettle(ctx context.Context, id string, used, earned int64) (users.User, error)
}

// Provisioner creates accounts for guests checking out with a new email.
type Provisioner interface {
	Signup(ctx context.Context, in users.Signup) (users.User, error)
}

type OrderStore interface {
	Insert(ctx context.Context, o orders.Order) (orders.Order, error)
	Delete(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (orders.Order, bool, error)
}

type Notifier interface {
	Enqueue(ctx context.Context, n notify.Notification)
}

// Request is one checkout attempt. A non-empty UserID checks out that user's
// cart; otherwise Items are used and UserName/Email identify the guest.
type Request struct {
	UserID           string
	Items            []cart.Item
	UserName         string
	Email            string
	Address          string
	CouponCode       string
	PaymentMethod    string
	UseLoyaltyPoints bool
	IdempotencyKey   string
}

type Service struct {
	Carts     CartStore
	Inventory Inventory
	Coupons   CouponLedger
	Users     Accounts
	Signup    Provisioner
	Orders    OrderStore
	Index     search.Indexer
	Notifier  Notifier
	Cache     redis.Cmdable

	Pricing pricing.Policy
	Timeout time.Duration

	Now         func() time.Time
	NewID       func() string
	NewPassword func() string
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

func (s *Service) newID() string {
	if s.NewID != nil {
		return s.NewID()
	}
	return uuid.NewString()
}

func (s *Service) newPassword() string {
	if s.NewPassword != nil {
		return s.NewPassword()
	}
	return uuid.NewString()[:12]
}

// Create runs a checkout and returns the order as shown to the customer.
func (s *Service) Create(ctx context.Context, req Request) (orders.Order, error) {
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}
	ctx, span := otel.Tracer("storefront/checkout").Start(ctx, "checkout.create")
	defer span.End()

	method, err := orders.ParsePaymentMethod(req.PaymentMethod)
	if err != nil {
		return orders.Order{}, err
	}
	if req.UserID == "" && (req.UserName == "" || req.Email == "") {
		return orders.Order{}, apperr.ErrMissingGuestIdentity
	}

	if o, ok := s.replay(ctx, req); ok {
		return o.Public(), nil
	}

	// line items
	var c *cart.Cart
	lines := req.Items
	if req.UserID != "" {
		if c, err = s.Carts.GetByUser(ctx, req.UserID); err != nil {
			return orders.Order{}, err
		}
		if c == nil || len(c.Items) == 0 {
			return orders.Order{}, apperr.ErrEmptyCart
		}
		lines = c.Items
	}
	if len(lines) == 0 {
		return orders.Order{}, apperr.ErrEmptyCart
	}

	// live snapshot: availability, staleness, stock
	lines, err = s.validate(ctx, c, lines)
	if err != nil {
		return orders.Order{}, err
	}

	// coupon
	var couponDiscount int64
	if req.CouponCode != "" {
		cp, found, err := s.Coupons.FindActive(ctx, req.CouponCode)
		if err != nil {
			return orders.Order{}, err
		}
		if !found {
			return orders.Order{}, apperr.ErrInvalidCoupon
		}
		if cp.Exhausted() {
			return orders.Order{}, apperr.ErrCouponLimitReached
		}
		couponDiscount = cp.DiscountAmount
	}

	// loyalty and pricing
	userName, email := req.UserName, req.Email
	in := pricing.Input{CouponDiscount: couponDiscount}
	for _, l := range lines {
		in.Lines = append(in.Lines, pricing.Line{Quantity: l.Quantity, UnitPrice: l.UnitPrice, Discount: l.Discount})
	}
	if req.UserID != "" {
		u, found, err := s.Users.GetByID(ctx, req.UserID)
		if err != nil {
			return orders.Order{}, err
		}
		if !found {
			return orders.Order{}, apperr.ErrUserNotFound
		}
		if userName == "" {
			userName = u.FullName
		}
		if email == "" {
			email = u.Email
		}
		in.RedeemLoyalty = req.UseLoyaltyPoints
		in.LoyaltyBalance = u.LoyaltyPoints
	}
	quote, err := s.Pricing.Price(in)
	if err != nil {
		return orders.Order{}, err
	}

	// guest resolution
	userID, isNewUser := req.UserID, false
	if userID == "" {
		if userID, isNewUser, err = s.resolveGuest(ctx, userName, email, req.Address); err != nil {
			return orders.Order{}, err
		}
	}

	// writes
	now := s.now()
	o := orders.Order{
		ID:                  s.newID(),
		UserID:              userID,
		UserName:            userName,
		Email:               email,
		CouponCode:          req.CouponCode,
		Address:             req.Address,
		Items:               toOrderItems(lines),
		TotalAmount:         quote.Total,
		DiscountAmount:      quote.CouponDiscount,
		LoyaltyPointsUsed:   quote.LoyaltyPointsUsed,
		LoyaltyPointsEarned: quote.LoyaltyPointsEarned,
		Status:              orders.StatusPending,
		PaymentMethod:       method,
		PaymentStatus:       orders.InitialPaymentStatus(method),
		Tracking:            []orders.Tracking{},
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	span.SetAttributes(attribute.String("order_id", o.ID), attribute.Int("items", len(o.Items)))

	placed, err := s.place(ctx, o)
	if err != nil {
		return orders.Order{}, err
	}

	if c != nil && !isNewUser {
		if err := s.Carts.Delete(ctx, c.ID); err != nil {
			slog.ErrorContext(ctx, "cart not cleared after order", "order_id", placed.ID, "cart_id", c.ID, "err", err)
		} else {
			search.Unmirror(ctx, s.Index, search.Carts, c.ID)
		}
	}
	s.notify(ctx, placed)
	orders.CacheStatus(ctx, s.Cache, placed)
	s.remember(ctx, req, placed.ID)

	slog.InfoContext(ctx, "order created",
		"order_id", placed.ID, "user_id", placed.UserID, "total_amount", placed.TotalAmount,
		"payment_status", placed.PaymentStatus, "new_user", isNewUser)
	return placed.Public(), nil
}

// validate checks every line against the live catalog. Stale prices are
// corrected in the cart and abort the checkout so the customer confirms the
// new amount. The returned lines carry the live snapshot fields.
func (s *Service) validate(ctx context.Context, c *cart.Cart, lines []cart.Item) ([]cart.Item, error) {
	ids := make([]string, 0, len(lines))
	for _, l := range lines {
		if l.Quantity <= 0 {
			return nil, apperr.ErrValidation.With("quantity for %s must be greater than zero", l.VariantID)
		}
		ids = append(ids, l.VariantID)
	}
	snap, err := s.Inventory.Snapshot(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]cart.Item, len(lines))
	stale := false
	for i, l := range lines {
		v, ok := snap[l.VariantID]
		if !ok || !v.Available() {
			return nil, apperr.ErrProductUnavailable.With("product %s is not available", displayName(l, v))
		}
		if l.UnitPrice != v.Price || l.Discount != v.Discount {
			stale = true
		}
		out[i] = cart.Item{
			VariantID:     v.ID,
			VariantName:   v.Name,
			Attributes:    v.Attributes,
			Quantity:      l.Quantity,
			OriginalPrice: v.OriginalPrice,
			UnitPrice:     v.Price,
			Discount:      v.Discount,
			Image:         v.Image,
		}
	}

	if stale {
		if c != nil {
			updated, err := s.Carts.ReplacePrices(ctx, c.ID, out)
			if err != nil {
				return nil, fmt.Errorf("correct cart prices: %w", err)
			}
			if updated != nil {
				search.Mirror(ctx, s.Index, search.Carts, updated.ID, *updated)
			}
		}
		return nil, apperr.ErrPriceChanged
	}

	for _, l := range out {
		if l.Quantity > snap[l.VariantID].Quantity {
			return nil, apperr.ErrInsufficientStock.With("product %s does not have enough stock", l.VariantName)
		}
	}
	return out, nil
}

// place runs the write saga. Each stock decrement is its own step so that a
// shortfall on a later line gives back exactly the earlier lines.
func (s *Service) place(ctx context.Context, o orders.Order) (orders.Order, error) {
	var placed orders.Order
	steps := []saga.Step{
		saga.NewStep("persist_order",
			func(ctx context.Context) error {
				var err error
				if placed, err = s.Orders.Insert(ctx, o); err != nil {
					return err
				}
				search.Mirror(ctx, s.Index, search.Orders, placed.ID, placed)
				return nil
			},
			func(ctx context.Context) error {
				if err := s.Orders.Delete(ctx, o.ID); err != nil {
					return err
				}
				search.Unmirror(ctx, s.Index, search.Orders, o.ID)
				return nil
			}),
	}

	for _, it := range o.Items {
		steps = append(steps, saga.NewStep("reserve_stock:"+it.VariantID,
			func(ctx context.Context) error {
				v, ok, err := s.Inventory.Decrement(ctx, it.VariantID, it.Quantity)
				if err != nil {
					return err
				}
				if !ok {
					return apperr.ErrInsufficientStock.With("product %s does not have enough stock", it.VariantName)
				}
				search.Mirror(ctx, s.Index, search.Variants, v.ID, v)
				return nil
			},
			func(ctx context.Context) error {
				v, err := s.Inventory.Restore(ctx, it.VariantID, it.Quantity)
				if err != nil {
					return err
				}
				search.Mirror(ctx, s.Index, search.Variants, v.ID, v)
				return nil
			}))
	}

	if o.CouponCode != "" {
		steps = append(steps, saga.NewStep("claim_coupon",
			func(ctx context.Context) error {
				cp, ok, err := s.Coupons.Claim(ctx, o.CouponCode, o.ID)
				if err != nil {
					return err
				}
				if !ok {
					return apperr.ErrCouponLimitReached
				}
				search.Mirror(ctx, s.Index, search.Coupons, cp.ID, cp)
				return nil
			},
			func(ctx context.Context) error {
				cp, err := s.Coupons.Release(ctx, o.CouponCode, o.ID)
				if err != nil {
					return err
				}
				search.Mirror(ctx, s.Index, search.Coupons, cp.ID, cp)
				return nil
			}))
	}

	if o.UserID != "" {
		steps = append(steps, saga.NewStep("settle_loyalty",
			func(ctx context.Context) error {
				u, ok, err := s.Users.Settle(ctx, o.UserID, o.LoyaltyPointsUsed, o.LoyaltyPointsEarned)
				if err != nil {
					return err
				}
				if !ok {
					return apperr.ErrLoyaltyBalance
				}
				search.Mirror(ctx, s.Index, search.Users, u.ID, u)
				return nil
			},
			func(ctx context.Context) error {
				u, err := s.Users.Unsettle(ctx, o.UserID, o.LoyaltyPointsUsed, o.LoyaltyPointsEarned)
				if err != nil {
					return err
				}
				search.Mirror(ctx, s.Index, search.Users, u.ID, u)
				return nil
			}))
	}

	if err := saga.NewOrchestrator("create_order", steps...).Run(ctx); err != nil {
		return orders.Order{}, err
	}
	return placed, nil
}

func (s *Service) resolveGuest(ctx context.Context, name, email, address string) (string, bool, error) {
	u, found, err := s.Users.FindByEmail(ctx, email)
	if err != nil {
		return "", false, err
	}
	if found {
		return u.ID, false, nil
	}

	password := s.newPassword()
	u, err = s.Signup.Signup(ctx, users.Signup{Email: email, FullName: name, Password: password, Address: address})
	if err != nil {
		return "", false, err
	}
	search.Mirror(ctx, s.Index, search.Users, u.ID, u)
	s.enqueue(ctx, notify.Notification{
		Type:  notify.TypeCreateAccount,
		Email: email,
		Payload: map[string]any{
			"name":     name,
			"password": password,
		},
	})
	return u.ID, true, nil
}

func (s *Service) enqueue(ctx context.Context, n notify.Notification) {
	if s.Notifier != nil {
		s.Notifier.Enqueue(ctx, n)
	}
}

func (s *Service) notify(ctx context.Context, o orders.Order) {
	s.enqueue(ctx, notify.Notification{
		Type:  notify.TypeOrderConfirmation,
		Email: o.Email,
		Payload: map[string]any{
			"order_id":              o.ID,
			"user_name":             o.UserName,
			"address":               o.Address,
			"items":                 o.Public().Items,
			"total_amount":          o.TotalAmount,
			"discount_amount":       o.DiscountAmount,
			"loyalty_points_used":   o.LoyaltyPointsUsed,
			"loyalty_points_earned": o.LoyaltyPointsEarned,
			"payment_method":        o.PaymentMethod,
		},
	})
}

// caller namespaces idempotency keys: the account for signed-in customers,
// the lowercased email for guests.
func caller(req Request) string {
	if req.UserID != "" {
		return "user:" + req.UserID
	}
	return "guest:" + strings.ToLower(req.Email)
}

// replay returns the order an earlier request from the same caller created
// under the same idempotency key.
func (s *Service) replay(ctx context.Context, req Request) (orders.Order, bool) {
	if req.IdempotencyKey == "" || s.Cache == nil {
		return orders.Order{}, false
	}
	id, found, err := redisx.RecallOrder(ctx, s.Cache, caller(req), req.IdempotencyKey)
	if err != nil {
		slog.WarnContext(ctx, "idempotency lookup failed", "key", req.IdempotencyKey, "err", err)
		return orders.Order{}, false
	}
	if !found {
		return orders.Order{}, false
	}
	o, found, err := s.Orders.Get(ctx, id)
	if err != nil || !found {
		return orders.Order{}, false
	}
	if !ownedBy(o, req) {
		slog.WarnContext(ctx, "idempotency key bound to another customer's order",
			"key", req.IdempotencyKey, "order_id", o.ID)
		return orders.Order{}, false
	}
	return o, true
}

func ownedBy(o orders.Order, req Request) bool {
	if req.UserID != "" {
		return o.UserID == req.UserID
	}
	return strings.EqualFold(o.Email, req.Email)
}

func (s *Service) remember(ctx context.Context, req Request, orderID string) {
	if req.IdempotencyKey == "" || s.Cache == nil {
		return
	}
	if err := redisx.RememberOrder(ctx, s.Cache, caller(req), req.IdempotencyKey, orderID); err != nil {
		slog.WarnContext(ctx, "idempotency key not stored", "key", req.IdempotencyKey, "order_id", orderID, "err", err)
	}
}

func toOrderItems(lines []cart.Item) []orders.Item {
	out := make([]orders.Item, len(lines))
	for i, l := range lines {
		out[i] = orders.Item{
			VariantID:     l.VariantID,
			VariantName:   l.VariantName,
			Attributes:    l.Attributes,
			Quantity:      l.Quantity,
			OriginalPrice: l.OriginalPrice,
			UnitPrice:     l.UnitPrice,
			Discount:      l.Discount,
			Image:         l.Image,
		}
	}
	return out
}

func displayName(l cart.Item, v catalog.Variant) string {
	switch {
	case l.VariantName != "":
		return l.VariantName
	case v.Name != "":
		return v.Name
	}
	return l.VariantID
}
