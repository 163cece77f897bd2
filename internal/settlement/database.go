package settlement

import (
	"context"
	"errors"
	"time"

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

// Transaction runs fn inside a single database transaction. Returning an
// error from fn rolls back every write made through tx.
func (d *Database) Transaction(ctx context.Context, fn func(tx *Database) error) error {
	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Database{db: tx})
	})
}

// GetOrder retrieves an order without its lines
func (d *Database) GetOrder(ctx context.Context, orderID string) (*types.Order, error) {
	var order types.Order
	if err := d.db.WithContext(ctx).Where("id = ?", orderID).First(&order).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, types.ErrNotFound
		}
		return nil, err
	}
	return &order, nil
}

// LoadOrderForSettlement locks the order row and loads every line with its
// recipe, the recipe's items in position order and their ingredients.
// SQLite ignores the row lock; its single writer serializes instead.
func (d *Database) LoadOrderForSettlement(orderID string) (*types.Order, error) {
	var order types.Order
	err := d.db.
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", orderID).
		First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, types.ErrNotFound
		}
		return nil, err
	}

	err = d.db.
		Preload("Recipe.Items", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		Preload("Recipe.Items.Ingredient").
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Find(&order.Items).Error
	if err != nil {
		return nil, err
	}

	return &order, nil
}

func (d *Database) CreatePayment(payment *types.Payment) error {
	return d.db.Create(payment).Error
}

func (d *Database) CreateStockMove(move *types.StockMove) error {
	return d.db.Omit(clause.Associations).Create(move).Error
}

// MarkOrderPaid moves the order to PAID unless it is already there and
// reports how many rows changed
func (d *Database) MarkOrderPaid(orderID string, at time.Time) (int64, error) {
	result := d.db.Model(&types.Order{}).
		Where("id = ? AND status <> ?", orderID, types.OrderStatusPaid).
		Updates(map[string]interface{}{
			"status":     types.OrderStatusPaid,
			"updated_at": at,
		})
	return result.RowsAffected, result.Error
}

func (d *Database) GetPaymentsByOrderID(ctx context.Context, orderID string) ([]types.Payment, error) {
	var payments []types.Payment
	if err := d.db.WithContext(ctx).Where("order_id = ?", orderID).Order("created_at ASC").Find(&payments).Error; err != nil {
		return nil, err
	}
	return payments, nil
}

func (d *Database) GetStockMovesByOrderID(ctx context.Context, orderID string) ([]types.StockMove, error) {
	var moves []types.StockMove
	err := d.db.WithContext(ctx).
		Where("ref_type = ? AND ref_id = ?", types.RefTypeOrder, orderID).
		Order("ingredient_id ASC").
		Find(&moves).Error
	if err != nil {
		return nil, err
	}
	return moves, nil
}
