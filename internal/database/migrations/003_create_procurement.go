package migrations

import (
	"github.com/ksred/bistro-api/internal/types"
	"gorm.io/gorm"
)

func CreateProcurement(db *gorm.DB) error {
	return db.AutoMigrate(
		&types.Supplier{},
		&types.PurchaseOrder{},
		&types.PurchaseOrderLine{},
		&types.GRN{},
	)
}
