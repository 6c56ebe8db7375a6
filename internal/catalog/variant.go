package catalog

import "time"

// Variant is the sellable unit tracked by the inventory store.
type Variant struct {
	ID            string            `json:"id" bson:"-"`
	Name          string            `json:"variant_name" bson:"variant_name"`
	Attributes    map[string]string `json:"attributes" bson:"attributes"`
	Image         string            `json:"image" bson:"image"`
	OriginalPrice int64             `json:"original_price" bson:"original_price"`
	Price         int64             `json:"price" bson:"price"`
	Discount      float64           `json:"discount" bson:"discount"`
	Quantity      int               `json:"quantity" bson:"quantity"`
	IsActive      bool              `json:"is_active" bson:"is_active"`
	CreatedAt     time.Time         `json:"created_at" bson:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at" bson:"updated_at"`
}

// Available reports whether the variant can be sold at all.
func (v Variant) Available() bool { return v.IsActive }
