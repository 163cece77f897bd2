package inventory

import (
	"context"
	"errors"

	"github.com/ksred/bistro-api/internal/types"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

func (d *Database) Transaction(ctx context.Context, fn func(tx *Database) error) error {
	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Database{db: tx})
	})
}

func (d *Database) CreateIngredient(ingredient *types.Ingredient) error {
	return d.db.Create(ingredient).Error
}

func (d *Database) GetIngredient(ctx context.Context, id string) (*types.Ingredient, error) {
	var ingredient types.Ingredient
	if err := d.db.WithContext(ctx).Where("id = ?", id).First(&ingredient).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, types.ErrNotFound
		}
		return nil, err
	}
	return &ingredient, nil
}

func (d *Database) ListIngredients(ctx context.Context) ([]types.Ingredient, error) {
	var ingredients []types.Ingredient
	if err := d.db.WithContext(ctx).Order("name ASC").Find(&ingredients).Error; err != nil {
		return nil, err
	}
	return ingredients, nil
}

// OnHand sums the stock move ledger per ingredient. Ingredients without
// moves are absent from the map. Summation happens in decimal so the
// result does not depend on how the driver returns numeric columns.
func (d *Database) OnHand(ctx context.Context, ingredientIDs ...string) (map[string]decimal.Decimal, error) {
	var moves []types.StockMove
	query := d.db.WithContext(ctx).Model(&types.StockMove{}).Select("ingredient_id", "quantity")
	if len(ingredientIDs) > 0 {
		query = query.Where("ingredient_id IN ?", ingredientIDs)
	}
	if err := query.Find(&moves).Error; err != nil {
		return nil, err
	}

	totals := make(map[string]decimal.Decimal)
	for _, m := range moves {
		totals[m.IngredientID] = totals[m.IngredientID].Add(m.Quantity)
	}
	return totals, nil
}

func (d *Database) CreateStockMove(move *types.StockMove) error {
	return d.db.Omit(clause.Associations).Create(move).Error
}

// StockMoveFilter narrows ListStockMoves; empty fields match everything
type StockMoveFilter struct {
	IngredientID string
	RefType      string
	RefID        string
	Type         string
}

func (d *Database) ListStockMoves(ctx context.Context, filter StockMoveFilter) ([]types.StockMove, error) {
	query := d.db.WithContext(ctx).Preload("Ingredient")
	if filter.IngredientID != "" {
		query = query.Where("ingredient_id = ?", filter.IngredientID)
	}
	if filter.RefType != "" {
		query = query.Where("ref_type = ?", filter.RefType)
	}
	if filter.RefID != "" {
		query = query.Where("ref_id = ?", filter.RefID)
	}
	if filter.Type != "" {
		query = query.Where("type = ?", filter.Type)
	}

	var moves []types.StockMove
	if err := query.Order("created_at DESC").Find(&moves).Error; err != nil {
		return nil, err
	}
	return moves, nil
}
