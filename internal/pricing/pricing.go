// Package pricing computes order totals, coupon and loyalty discounts.
//
// All arithmetic runs on decimal values so that fractional discounts and tax
// rates do not drift; results are whole currency units.
package pricing

import (
	"github.com/ariefcatur/go-storefront-orders/internal/apperr"
	"github.com/shopspring/decimal"
)

type Policy struct {
	ShippingFee          int64
	TaxRate              float64
	LoyaltyPointValue    int64   // currency units per point
	LoyaltyAccrualRate   float64 // points earned per currency unit of subtotal
	LoyaltyRedemptionCap float64 // share of the gross total payable with points
}

type Line struct {
	Quantity  int
	UnitPrice int64
	Discount  float64
}

type Input struct {
	Lines          []Line
	CouponDiscount int64
	// LoyaltyBalance is only consulted when RedeemLoyalty is set.
	LoyaltyBalance int64
	RedeemLoyalty  bool
}

type Quote struct {
	Subtotal            int64
	Shipping            int64
	Tax                 int64
	Gross               int64
	CouponDiscount      int64
	LoyaltyPointsUsed   int64
	LoyaltyDiscount     int64
	TotalDiscount       int64 // coupon plus loyalty
	Total               int64
	LoyaltyPointsEarned int64
}

// Price quotes an order:
//
//	subtotal = Σ qty·price·(1−discount)
//	gross    = subtotal + shipping + subtotal·tax
//	used     = min(balance, ⌊gross·cap / point⌋)
//	total    = ⌊gross − coupon − used·point⌋
//	earned   = round(subtotal·accrual)
//
// It fails with ErrInvalidDiscount when the discounts exceed gross.
func (p Policy) Price(in Input) (Quote, error) {
	subtotal := decimal.Zero
	for _, l := range in.Lines {
		line := decimal.NewFromInt(l.UnitPrice).
			Mul(decimal.NewFromInt(int64(l.Quantity))).
			Mul(decimal.NewFromInt(1).Sub(decimal.NewFromFloat(l.Discount)))
		subtotal = subtotal.Add(line)
	}
	shipping := decimal.NewFromInt(p.ShippingFee)
	tax := subtotal.Mul(decimal.NewFromFloat(p.TaxRate))
	gross := subtotal.Add(shipping).Add(tax)

	var used int64
	if in.RedeemLoyalty && p.LoyaltyPointValue > 0 && in.LoyaltyBalance > 0 {
		capPoints := gross.Mul(decimal.NewFromFloat(p.LoyaltyRedemptionCap)).
			Div(decimal.NewFromInt(p.LoyaltyPointValue)).
			Floor().IntPart()
		used = min(in.LoyaltyBalance, capPoints)
	}
	loyalty := decimal.NewFromInt(used).Mul(decimal.NewFromInt(p.LoyaltyPointValue))
	coupon := decimal.NewFromInt(in.CouponDiscount)

	discount := coupon.Add(loyalty)
	if discount.GreaterThan(gross) {
		return Quote{}, apperr.ErrInvalidDiscount
	}

	return Quote{
		Subtotal:            subtotal.Floor().IntPart(),
		Shipping:            p.ShippingFee,
		Tax:                 tax.Floor().IntPart(),
		Gross:               gross.Floor().IntPart(),
		CouponDiscount:      in.CouponDiscount,
		LoyaltyPointsUsed:   used,
		LoyaltyDiscount:     loyalty.IntPart(),
		TotalDiscount:       discount.IntPart(),
		Total:               gross.Sub(discount).Floor().IntPart(),
		LoyaltyPointsEarned: subtotal.Mul(decimal.NewFromFloat(p.LoyaltyAccrualRate)).Round(0).IntPart(),
	}, nil
}
