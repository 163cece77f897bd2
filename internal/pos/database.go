package pos

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

func (d *Database) Transaction(ctx context.Context, fn func(tx *Database) error) error {
	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Database{db: tx})
	})
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return types.ErrNotFound
	}
	return err
}

func (d *Database) CreateOutlet(outlet *types.Outlet) error {
	return d.db.Create(outlet).Error
}

func (d *Database) GetOutlet(ctx context.Context, id string) (*types.Outlet, error) {
	var outlet types.Outlet
	if err := d.db.WithContext(ctx).Where("id = ?", id).First(&outlet).Error; err != nil {
		return nil, notFound(err)
	}
	return &outlet, nil
}

func (d *Database) ListOutlets(ctx context.Context) ([]types.Outlet, error) {
	var outlets []types.Outlet
	if err := d.db.WithContext(ctx).Order("name ASC").Find(&outlets).Error; err != nil {
		return nil, err
	}
	return outlets, nil
}

func (d *Database) CreateTable(table *types.Table) error {
	return d.db.Omit(clause.Associations).Create(table).Error
}

func (d *Database) GetTable(ctx context.Context, id string) (*types.Table, error) {
	var table types.Table
	if err := d.db.WithContext(ctx).Preload("Outlet").Where("id = ?", id).First(&table).Error; err != nil {
		return nil, notFound(err)
	}
	return &table, nil
}

func (d *Database) ListTables(ctx context.Context) ([]types.Table, error) {
	var tables []types.Table
	if err := d.db.WithContext(ctx).Preload("Outlet").Order("number ASC").Find(&tables).Error; err != nil {
		return nil, err
	}
	return tables, nil
}

// UpdateTable overwrites the editable columns and reports how many rows changed
func (d *Database) UpdateTable(ctx context.Context, table *types.Table) (int64, error) {
	result := d.db.WithContext(ctx).Model(&types.Table{}).
		Where("id = ?", table.ID).
		Updates(map[string]interface{}{
			"outlet_id":  table.OutletID,
			"number":     table.Number,
			"seats":      table.Seats,
			"status":     table.Status,
			"updated_at": time.Now(),
		})
	return result.RowsAffected, result.Error
}

func (d *Database) DeleteTable(ctx context.Context, id string) (int64, error) {
	result := d.db.WithContext(ctx).Where("id = ?", id).Delete(&types.Table{})
	return result.RowsAffected, result.Error
}

func (d *Database) CreateOrder(order *types.Order) error {
	return d.db.Omit(clause.Associations).Create(order).Error
}

func (d *Database) CreateOrderItem(item *types.OrderItem) error {
	return d.db.Omit(clause.Associations).Create(item).Error
}

func (d *Database) GetOrder(ctx context.Context, id string) (*types.Order, error) {
	var order types.Order
	err := d.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") }).
		Preload("Items.Recipe").
		Preload("Table").
		Where("id = ?", id).
		First(&order).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &order, nil
}

// ListOrders returns orders newest first, optionally restricted to one status
func (d *Database) ListOrders(ctx context.Context, status string) ([]types.Order, error) {
	query := d.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") }).
		Preload("Items.Recipe").
		Preload("Table").
		Preload("Outlet")
	if status != "" {
		query = query.Where("status = ?", status)
	}

	var orders []types.Order
	if err := query.Order("created_at DESC").Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

// UpdateOrderStatus changes status only while the row still holds from
func (d *Database) UpdateOrderStatus(ctx context.Context, id, from, to string) (int64, error) {
	result := d.db.WithContext(ctx).Model(&types.Order{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]interface{}{
			"status":     to,
			"updated_at": time.Now(),
		})
	return result.RowsAffected, result.Error
}

// LockOrder takes the order row lock before loading it, so settlement
// cannot mark it PAID until the surrounding transaction ends
func (d *Database) LockOrder(ctx context.Context, id string) (*types.Order, error) {
	var locked types.Order
	err := d.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Select("id").
		Where("id = ?", id).
		First(&locked).Error
	if err != nil {
		return nil, notFound(err)
	}
	return d.GetOrder(ctx, id)
}

// UpdateOrderTotal rewrites the total only while the order is still open
// for items and reports how many rows changed
func (d *Database) UpdateOrderTotal(order *types.Order) (int64, error) {
	result := d.db.Model(&types.Order{}).
		Where("id = ? AND status IN ?", order.ID, []string{types.OrderStatusDraft, types.OrderStatusPending}).
		Updates(map[string]interface{}{
			"total":      order.Total,
			"updated_at": time.Now(),
		})
	return result.RowsAffected, result.Error
}

func (d *Database) GetRecipes(ctx context.Context, ids []string) (map[string]types.Recipe, error) {
	var recipes []types.Recipe
	if err := d.db.WithContext(ctx).Where("id IN ?", ids).Find(&recipes).Error; err != nil {
		return nil, err
	}
	byID := make(map[string]types.Recipe, len(recipes))
	for _, r := range recipes {
		byID[r.ID] = r
	}
	return byID, nil
}
