package cart

import "time"

type Item struct {
	VariantID     string            `json:"variant_id" bson:"variant_id"`
	VariantName   string            `json:"variant_name" bson:"variant_name"`
	Attributes    map[string]string `json:"attributes" bson:"attributes"`
	Quantity      int               `json:"quantity" bson:"quantity"`
	OriginalPrice int64             `json:"original_price,omitempty" bson:"original_price"`
	UnitPrice     int64             `json:"unit_price" bson:"unit_price"`
	Discount      float64           `json:"discount" bson:"discount"`
	Image         string            `json:"image" bson:"image"`
}

// Cart is the single pending basket a user owns.
type Cart struct {
	ID        string    `json:"id" bson:"-"`
	UserID    string    `json:"user_id" bson:"user_id"`
	Items     []Item    `json:"items" bson:"items"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`
}

// Public strips the cost price from every line before the cart leaves the service.
func (c Cart) Public() Cart {
	out := c
	out.Items = make([]Item, len(c.Items))
	for i, it := range c.Items {
		it.OriginalPrice = 0
		out.Items[i] = it
	}
	return out
}
