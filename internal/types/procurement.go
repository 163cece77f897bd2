package types

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	PurchaseOrderStatusDraft    = "DRAFT"
	PurchaseOrderStatusReceived = "RECEIVED"
)

type Supplier struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	Name      string    `gorm:"not null" json:"name"`
	Contact   string    `json:"contact"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (s *Supplier) BeforeCreate(tx *gorm.DB) error {
	assignID(&s.ID)
	return nil
}

type PurchaseOrder struct {
	ID         string              `gorm:"primaryKey;size:36" json:"id"`
	PONumber   string              `gorm:"uniqueIndex;not null" json:"po_number"`
	SupplierID string              `gorm:"size:36;index;not null" json:"supplier_id"`
	Status     string              `gorm:"not null" json:"status"` // DRAFT, RECEIVED
	Supplier   *Supplier           `json:"supplier,omitempty"`
	Lines      []PurchaseOrderLine `gorm:"foreignKey:PurchaseOrderID" json:"lines"`
	CreatedAt  time.Time           `json:"created_at"`
	UpdatedAt  time.Time           `json:"updated_at"`
}

func (p *PurchaseOrder) BeforeCreate(tx *gorm.DB) error {
	assignID(&p.ID)
	return nil
}

type PurchaseOrderLine struct {
	ID              string          `gorm:"primaryKey;size:36" json:"id"`
	PurchaseOrderID string          `gorm:"size:36;index;not null" json:"purchase_order_id"`
	IngredientID    string          `gorm:"size:36;index;not null" json:"ingredient_id"`
	Quantity        decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"quantity"`
	UnitCost        decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"unit_cost"`
}

func (l *PurchaseOrderLine) BeforeCreate(tx *gorm.DB) error {
	assignID(&l.ID)
	return nil
}

// GRN is a goods received note against a purchase order
type GRN struct {
	ID              string    `gorm:"primaryKey;size:36" json:"id"`
	GRNNumber       string    `gorm:"uniqueIndex;not null" json:"grn_number"`
	PurchaseOrderID string    `gorm:"size:36;index;not null" json:"purchase_order_id"`
	ReceivedAt      time.Time `json:"received_at"`
	CreatedAt       time.Time `json:"created_at"`
}

func (g *GRN) BeforeCreate(tx *gorm.DB) error {
	assignID(&g.ID)
	if g.ReceivedAt.IsZero() {
		g.ReceivedAt = time.Now()
	}
	return nil
}
