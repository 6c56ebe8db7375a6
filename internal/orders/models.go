package orders

import "time"

// Item is the immutable snapshot of a cart line taken when the order is placed.
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

type Tracking struct {
	Status    Status    `json:"status" bson:"status"`
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`
}

type Order struct {
	ID                  string        `json:"id" bson:"-"`
	UserID              string        `json:"user_id,omitempty" bson:"user_id,omitempty"`
	UserName            string        `json:"user_name" bson:"user_name"`
	Email               string        `json:"email" bson:"email"`
	CouponCode          string        `json:"coupon_code,omitempty" bson:"coupon_code,omitempty"`
	Address             string        `json:"address" bson:"address"`
	Items               []Item        `json:"items" bson:"items"`
	TotalAmount         int64         `json:"total_amount" bson:"total_amount"`
	DiscountAmount      int64         `json:"discount_amount" bson:"discount_amount"`
	LoyaltyPointsUsed   int64         `json:"loyalty_points_used" bson:"loyalty_points_used"`
	LoyaltyPointsEarned int64         `json:"loyalty_points_earned" bson:"loyalty_points_earned"`
	Status              Status        `json:"status" bson:"status"`
	PaymentMethod       PaymentMethod `json:"payment_method" bson:"payment_method"`
	PaymentStatus       PaymentStatus `json:"payment_status" bson:"payment_status"`
	Tracking            []Tracking    `json:"order_tracking" bson:"order_tracking"`
	CreatedAt           time.Time     `json:"created_at" bson:"created_at"`
	UpdatedAt           time.Time     `json:"updated_at" bson:"updated_at"`
}

// Public is the projection returned to callers: line items lose their cost price.
func (o Order) Public() Order {
	out := o
	out.Items = make([]Item, len(o.Items))
	for i, it := range o.Items {
		it.OriginalPrice = 0
		out.Items[i] = it
	}
	if out.Tracking == nil {
		out.Tracking = []Tracking{}
	}
	return out
}
