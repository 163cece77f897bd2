package settlement

import (
	"fmt"
	"sort"

	"github.com/ksred/bistro-api/internal/types"
	"github.com/shopspring/decimal"
)

// Component is one ingredient requirement per unit of a recipe
type Component struct {
	IngredientID string
	PerUnit      decimal.Decimal
}

// Line is an order line reduced to what the aggregator needs
type Line struct {
	Quantity   int64
	Components []Component
}

// Deduction is the total amount of one ingredient consumed by an order
type Deduction struct {
	IngredientID string
	Quantity     decimal.Decimal
}

// Aggregate sums PerUnit * Quantity per ingredient across every line.
// Each ingredient appears at most once in the result, sorted by id.
// Components with a zero per-unit quantity contribute nothing and do not
// create an entry on their own.
func Aggregate(lines []Line) []Deduction {
	totals := make(map[string]decimal.Decimal)
	for _, line := range lines {
		qty := decimal.NewFromInt(line.Quantity)
		for _, comp := range line.Components {
			if comp.PerUnit.IsZero() {
				continue
			}
			totals[comp.IngredientID] = totals[comp.IngredientID].Add(comp.PerUnit.Mul(qty))
		}
	}

	deductions := make([]Deduction, 0, len(totals))
	for id, total := range totals {
		deductions = append(deductions, Deduction{IngredientID: id, Quantity: total})
	}
	sort.Slice(deductions, func(i, j int) bool {
		return deductions[i].IngredientID < deductions[j].IngredientID
	})

	return deductions
}

// FromOrder converts a fully preloaded order into aggregator lines.
// Items without a loaded recipe, non-positive quantities and negative
// recipe quantities are data integrity faults.
func FromOrder(order *types.Order) ([]Line, error) {
	lines := make([]Line, 0, len(order.Items))
	for _, item := range order.Items {
		if item.Recipe == nil || item.Recipe.ID != item.RecipeID {
			return nil, fmt.Errorf("%w: order item %s references missing recipe %q", types.ErrDataIntegrity, item.ID, item.RecipeID)
		}
		if item.Quantity <= 0 {
			return nil, fmt.Errorf("%w: order item %s has quantity %d", types.ErrDataIntegrity, item.ID, item.Quantity)
		}

		components := make([]Component, 0, len(item.Recipe.Items))
		for _, ri := range item.Recipe.Items {
			if ri.IngredientID == "" {
				return nil, fmt.Errorf("%w: recipe %s has an item without an ingredient", types.ErrDataIntegrity, item.Recipe.ID)
			}
			if ri.Quantity.IsNegative() {
				return nil, fmt.Errorf("%w: recipe %s consumes a negative quantity of %s", types.ErrDataIntegrity, item.Recipe.ID, ri.IngredientID)
			}
			components = append(components, Component{IngredientID: ri.IngredientID, PerUnit: ri.Quantity})
		}

		lines = append(lines, Line{Quantity: item.Quantity, Components: components})
	}
	return lines, nil
}
