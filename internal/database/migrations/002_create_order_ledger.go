package migrations

import (
	"github.com/ksred/bistro-api/internal/types"
	"gorm.io/gorm"
)

// CreateOrderLedger creates outlets, tables, orders and payments
func CreateOrderLedger(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&types.Outlet{},
		&types.Table{},
		&types.Order{},
		&types.OrderItem{},
		&types.Payment{},
	); err != nil {
		return err
	}

	// KDS polls by status
	return db.Exec(`CREATE INDEX IF NOT EXISTS idx_orders_status_created
		ON orders(status, created_at)`).Error
}
