package recipes

import (
	"context"
	"errors"

	"github.com/ksred/bistro-api/internal/types"
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

func byPosition(db *gorm.DB) *gorm.DB {
	return db.Order("position ASC")
}

func (d *Database) CreateRecipe(recipe *types.Recipe) error {
	return d.db.Omit(clause.Associations).Create(recipe).Error
}

func (d *Database) CreateRecipeItem(item *types.RecipeItem) error {
	return d.db.Omit(clause.Associations).Create(item).Error
}

func (d *Database) GetRecipe(ctx context.Context, id string) (*types.Recipe, error) {
	var recipe types.Recipe
	err := d.db.WithContext(ctx).
		Preload("Items", byPosition).
		Preload("Items.Ingredient").
		Where("id = ?", id).
		First(&recipe).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, types.ErrNotFound
		}
		return nil, err
	}
	return &recipe, nil
}

func (d *Database) ListRecipes(ctx context.Context) ([]types.Recipe, error) {
	var recipes []types.Recipe
	err := d.db.WithContext(ctx).
		Preload("Items", byPosition).
		Preload("Items.Ingredient").
		Order("name ASC").
		Find(&recipes).Error
	if err != nil {
		return nil, err
	}
	return recipes, nil
}

// CountIngredients returns how many of ids name existing ingredients
func (d *Database) CountIngredients(ctx context.Context, ids []string) (int64, error) {
	var n int64
	err := d.db.WithContext(ctx).Model(&types.Ingredient{}).Where("id IN ?", ids).Count(&n).Error
	return n, err
}
