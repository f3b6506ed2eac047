package services

import "github.com/avelaine/stocktrack/internal/models"

// OrderLine is one (product, quantity) input line of an order.
type OrderLine struct {
	ProductID uint
	Quantity  int
}

// ExpandLines converts order lines into the flat map of base (simple)
// product id to total required quantity. Simple lines contribute their own
// quantity; bundle lines contribute lineQuantity × componentQuantity for
// every component. Accumulation is a commutative map-merge, so the result is
// independent of line order.
//
// Every line must resolve to an entry in products, and every bundle must
// have its composition in components; a miss fails the whole expansion.
func ExpandLines(lines []OrderLine, products map[uint]CatalogEntry, components map[uint][]BundleComponent) (map[uint]int, error) {
	required := make(map[uint]int, len(lines))
	for _, line := range lines {
		entry, ok := products[line.ProductID]
		if !ok {
			return nil, &NotFoundError{Entity: "product", ID: line.ProductID}
		}
		if entry.Kind != models.ProductKindBundle {
			required[line.ProductID] += line.Quantity
			continue
		}
		comps, ok := components[line.ProductID]
		if !ok || len(comps) == 0 {
			return nil, &InvalidCompositionError{BundleID: line.ProductID, Reason: "bundle has no components"}
		}
		for _, c := range comps {
			required[c.ProductID] += line.Quantity * c.Quantity
		}
	}
	return required, nil
}
