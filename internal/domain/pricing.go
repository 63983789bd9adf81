package domain

import "github.com/shopspring/decimal"

// Quote is the derived pricing of a package for a traveller count.
type Quote struct {
	UnitPrice float64   `json:"unitPrice"`
	PriceType PriceType `json:"priceType"`
	Units     int       `json:"units"`
	UnitLabel string    `json:"unitLabel"`
	Payable   float64   `json:"payable"`
	Amount    int64     `json:"amount"`
}

// BillingUnits returns how many chargeable units travellers occupy. Couple
// pricing charges per started pair. Never less than one unit.
func BillingUnits(pt PriceType, travellers int) int {
	if travellers < 1 {
		travellers = 1
	}
	if pt == PerCouple {
		return (travellers + 1) / 2
	}
	return travellers
}

func UnitLabel(pt PriceType) string {
	if pt == PerCouple {
		return "Couples"
	}
	return "Travellers"
}

func PayableAmount(pkg CheckoutPackage, travellers int) float64 {
	units := decimal.NewFromInt(int64(BillingUnits(pkg.PriceType, travellers)))
	return decimal.NewFromFloat(pkg.Price).Mul(units).InexactFloat64()
}

// MinorUnits converts an amount to the gateway's minor currency unit,
// rounding half away from zero.
func MinorUnits(amount float64) int64 {
	return decimal.NewFromFloat(amount).Shift(2).Round(0).IntPart()
}

func NewQuote(pkg CheckoutPackage, travellers int) Quote {
	payable := PayableAmount(pkg, travellers)
	return Quote{
		UnitPrice: pkg.Price,
		PriceType: pkg.PriceType,
		Units:     BillingUnits(pkg.PriceType, travellers),
		UnitLabel: UnitLabel(pkg.PriceType),
		Payable:   payable,
		Amount:    MinorUnits(payable),
	}
}
