package procurement

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

func (d *Database) CreateSupplier(supplier *types.Supplier) error {
	return d.db.Create(supplier).Error
}

func (d *Database) GetSupplier(ctx context.Context, id string) (*types.Supplier, error) {
	var supplier types.Supplier
	if err := d.db.WithContext(ctx).Where("id = ?", id).First(&supplier).Error; err != nil {
		return nil, notFound(err)
	}
	return &supplier, nil
}

func (d *Database) ListSuppliers(ctx context.Context) ([]types.Supplier, error) {
	var suppliers []types.Supplier
	if err := d.db.WithContext(ctx).Order("name ASC").Find(&suppliers).Error; err != nil {
		return nil, err
	}
	return suppliers, nil
}

func (d *Database) CreatePurchaseOrder(po *types.PurchaseOrder) error {
	return d.db.Omit(clause.Associations).Create(po).Error
}

func (d *Database) CreatePurchaseOrderLine(line *types.PurchaseOrderLine) error {
	return d.db.Create(line).Error
}

// GetPurchaseOrder loads a PO with its lines. When lock is set the row is
// selected FOR UPDATE on drivers that support it.
func (d *Database) GetPurchaseOrder(ctx context.Context, id string, lock bool) (*types.PurchaseOrder, error) {
	query := d.db.WithContext(ctx)
	if lock {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var po types.PurchaseOrder
	if err := query.Where("id = ?", id).First(&po).Error; err != nil {
		return nil, notFound(err)
	}
	if err := d.db.WithContext(ctx).Where("purchase_order_id = ?", id).Find(&po.Lines).Error; err != nil {
		return nil, err
	}
	return &po, nil
}

func (d *Database) ListPurchaseOrders(ctx context.Context) ([]types.PurchaseOrder, error) {
	var pos []types.PurchaseOrder
	err := d.db.WithContext(ctx).
		Preload("Supplier").
		Preload("Lines").
		Order("created_at DESC").
		Find(&pos).Error
	if err != nil {
		return nil, err
	}
	return pos, nil
}

func (d *Database) UpdatePurchaseOrderStatus(ctx context.Context, id, from, to string) (int64, error) {
	result := d.db.WithContext(ctx).Model(&types.PurchaseOrder{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]interface{}{
			"status":     to,
			"updated_at": time.Now(),
		})
	return result.RowsAffected, result.Error
}

func (d *Database) CreateGRN(grn *types.GRN) error {
	return d.db.Create(grn).Error
}

func (d *Database) CreateStockMove(move *types.StockMove) error {
	return d.db.Omit(clause.Associations).Create(move).Error
}

func (d *Database) CountIngredients(ctx context.Context, ids []string) (int64, error) {
	var n int64
	err := d.db.WithContext(ctx).Model(&types.Ingredient{}).Where("id IN ?", ids).Count(&n).Error
	return n, err
}
