package migrations

import (
	"github.com/ksred/bistro-api/internal/types"
	"gorm.io/gorm"
)

// CreateMenuAndInventory creates recipes, ingredients and the stock move ledger
func CreateMenuAndInventory(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&types.Ingredient{},
		&types.Recipe{},
		&types.RecipeItem{},
		&types.StockMove{},
	); err != nil {
		return err
	}

	indexes := []string{
		// One SALE row per ingredient per referenced document
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_stock_moves_sale_ref
		 ON stock_moves(ref_type, ref_id, ingredient_id) WHERE type = 'SALE'`,

		// On-hand reads scan moves by ingredient
		`CREATE INDEX IF NOT EXISTS idx_stock_moves_ingredient_created
		 ON stock_moves(ingredient_id, created_at)`,

		`CREATE INDEX IF NOT EXISTS idx_recipe_items_recipe_position
		 ON recipe_items(recipe_id, position)`,
	}

	for _, idx := range indexes {
		if err := db.Exec(idx).Error; err != nil {
			return err
		}
	}

	return nil
}
