package calculator

import "github.com/shopspring/decimal"

// Extra is an optional add-on service priced independently of region and
// vehicle configuration.
type Extra struct {
	Code  string          `json:"code"`
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
}

// ExtrasTable prices extras by code. Unknown codes contribute zero and are
// not rejected.
type ExtrasTable map[string]Extra

// DefaultExtras is the built-in add-on catalog.
func DefaultExtras() ExtrasTable {
	return ExtrasTable{
		"child_seat":     {Code: "child_seat", Name: "Child seat", Price: decimal.NewFromInt(15)},
		"booster_seat":   {Code: "booster_seat", Name: "Booster seat", Price: decimal.NewFromInt(10)},
		"meet_and_greet": {Code: "meet_and_greet", Name: "Meet and greet", Price: decimal.NewFromInt(25)},
		"extra_stop":     {Code: "extra_stop", Name: "Extra stop", Price: decimal.NewFromInt(20)},
	}
}

// Price resolves the requested codes into priced items and their sum.
func (t ExtrasTable) Price(codes []string) ([]Extra, decimal.Decimal) {
	var items []Extra
	total := decimal.Zero
	for _, code := range codes {
		e, ok := t[code]
		if !ok {
			continue
		}
		items = append(items, e)
		total = total.Add(e.Price)
	}
	return items, total
}
