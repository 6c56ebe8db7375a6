package cart

import (
	"context"

	"github.com/ariefcatur/go-storefront-orders/internal/apperr"
	"github.com/ariefcatur/go-storefront-orders/internal/catalog"
	"github.com/ariefcatur/go-storefront-orders/internal/search"
	"go.mongodb.org/mongo-driver/bson"
)

type Store interface {
	GetByUser(ctx context.Context, userID string) (*Cart, error)
	AddItem(ctx context.Context, userID string, it Item) (*Cart, error)
	SetQuantity(ctx context.Context, userID, variantID string, qty int) (c *Cart, cartFound, itemFound bool, err error)
	RemoveItem(ctx context.Context, userID, variantID string) (*Cart, error)
	DeleteByUser(ctx context.Context, userID string) (string, error)
}

type Catalog interface {
	Get(ctx context.Context, id string) (v catalog.Variant, found bool, err error)
}

// Reader serves carts from the search index.
type Reader interface {
	SearchDocuments(ctx context.Context, collection string, q search.Query) (search.Result, error)
}

type Service struct {
	Store   Store
	Catalog Catalog
	Index   search.Indexer
	Reader  Reader
}

// Add puts qty units of a variant in the user's cart, snapshotting the
// variant's current name, attributes and prices into the line.
func (s *Service) Add(ctx context.Context, userID, variantID string, qty int) (Cart, error) {
	if qty <= 0 {
		return Cart{}, apperr.ErrValidation.With("quantity must be greater than zero")
	}
	v, found, err := s.Catalog.Get(ctx, variantID)
	if err != nil {
		return Cart{}, err
	}
	if !found || !v.Available() {
		return Cart{}, apperr.ErrProductUnavailable
	}

	c, err := s.Store.AddItem(ctx, userID, Item{
		VariantID:     v.ID,
		VariantName:   v.Name,
		Attributes:    v.Attributes,
		Quantity:      qty,
		OriginalPrice: v.OriginalPrice,
		UnitPrice:     v.Price,
		Discount:      v.Discount,
		Image:         v.Image,
	})
	if err != nil {
		return Cart{}, err
	}
	search.Mirror(ctx, s.Index, search.Carts, c.ID, *c)
	return c.Public(), nil
}

func (s *Service) UpdateQuantity(ctx context.Context, userID, variantID string, qty int) (Cart, error) {
	if qty <= 0 {
		return Cart{}, apperr.ErrValidation.With("quantity must be greater than zero")
	}
	c, cartFound, itemFound, err := s.Store.SetQuantity(ctx, userID, variantID, qty)
	if err != nil {
		return Cart{}, err
	}
	if !cartFound {
		return Cart{}, apperr.ErrCartNotFound
	}
	if !itemFound {
		return Cart{}, apperr.ErrCartItemNotFound
	}
	search.Mirror(ctx, s.Index, search.Carts, c.ID, *c)
	return c.Public(), nil
}

// Remove drops a line. Removing a line that is not in the cart succeeds.
func (s *Service) Remove(ctx context.Context, userID, variantID string) (Cart, error) {
	c, err := s.Store.RemoveItem(ctx, userID, variantID)
	if err != nil {
		return Cart{}, err
	}
	if c == nil {
		return Cart{}, apperr.ErrCartNotFound
	}
	search.Mirror(ctx, s.Index, search.Carts, c.ID, *c)
	return c.Public(), nil
}

func (s *Service) Clear(ctx context.Context, userID string) error {
	id, err := s.Store.DeleteByUser(ctx, userID)
	if err != nil {
		return err
	}
	if id == "" {
		return apperr.ErrCartNotFound
	}
	search.Unmirror(ctx, s.Index, search.Carts, id)
	return nil
}

// Get reads the user's cart from the index. A user without a cart gets an
// empty one.
func (s *Service) Get(ctx context.Context, userID string) (Cart, error) {
	res, err := s.Reader.SearchDocuments(ctx, search.Carts, search.Query{
		Filter: bson.M{"user_id": userID},
		Limit:  1,
	})
	if err != nil {
		return Cart{}, err
	}
	if len(res.Hits) == 0 {
		return Cart{UserID: userID, Items: []Item{}}, nil
	}
	var c Cart
	if err := res.Hits[0].Decode(&c); err != nil {
		return Cart{}, err
	}
	c.ID = res.Hits[0].ID
	if c.Items == nil {
		c.Items = []Item{}
	}
	return c.Public(), nil
}
