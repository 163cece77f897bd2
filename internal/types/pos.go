package types

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Quantities and amounts are emitted as JSON numbers rather than strings.
func init() {
	decimal.MarshalJSONWithoutQuotes = true
}

// Order statuses. Transitions only move forward: DRAFT -> PENDING -> SENT -> PAID.
const (
	OrderStatusDraft   = "DRAFT"
	OrderStatusPending = "PENDING"
	OrderStatusSent    = "SENT"
	OrderStatusPaid    = "PAID"
)

const (
	TableStatusAvailable = "AVAILABLE"
	TableStatusOccupied  = "OCCUPIED"

	DefaultTableSeats = 4
)

var orderStatusRank = map[string]int{
	OrderStatusDraft:   0,
	OrderStatusPending: 1,
	OrderStatusSent:    2,
	OrderStatusPaid:    3,
}

// CanTransition reports whether an order may move from one status to another.
// Staying in place is allowed for every status except PAID.
func CanTransition(from, to string) bool {
	f, ok := orderStatusRank[from]
	if !ok {
		return false
	}
	t, ok := orderStatusRank[to]
	if !ok {
		return false
	}
	if from == OrderStatusPaid {
		return false
	}
	return t >= f
}

// assignID fills an empty primary key with a fresh UUID
func assignID(id *string) {
	if *id == "" {
		*id = uuid.New().String()
	}
}

type Outlet struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	Name      string    `gorm:"not null" json:"name"`
	Address   string    `json:"address"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (o *Outlet) BeforeCreate(tx *gorm.DB) error {
	assignID(&o.ID)
	return nil
}

type Table struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	OutletID  string    `gorm:"size:36;index;not null" json:"outlet_id"`
	Number    string    `gorm:"not null" json:"number"`
	Seats     int       `gorm:"not null" json:"seats"`
	Status    string    `gorm:"not null" json:"status"` // AVAILABLE, OCCUPIED
	Outlet    *Outlet   `json:"outlet,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (t *Table) BeforeCreate(tx *gorm.DB) error {
	assignID(&t.ID)
	return nil
}

type Order struct {
	ID        string          `gorm:"primaryKey;size:36" json:"id"`
	TableID   string          `gorm:"size:36;index;not null" json:"table_id"`
	OutletID  *string         `gorm:"size:36;index" json:"outlet_id,omitempty"`
	Status    string          `gorm:"not null;index" json:"status"` // DRAFT, PENDING, SENT, PAID
	Total     decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"total"`
	Items     []OrderItem     `gorm:"foreignKey:OrderID" json:"items,omitempty"`
	Table     *Table          `json:"table,omitempty"`
	Outlet    *Outlet         `json:"outlet,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func (o *Order) BeforeCreate(tx *gorm.DB) error {
	assignID(&o.ID)
	return nil
}

// ItemsTotal sums unit price times quantity over the order lines
func (o *Order) ItemsTotal() decimal.Decimal {
	total := decimal.Zero
	for _, item := range o.Items {
		total = total.Add(item.Price.Mul(decimal.NewFromInt(item.Quantity)))
	}
	return total
}

type OrderItem struct {
	ID        string          `gorm:"primaryKey;size:36" json:"id"`
	OrderID   string          `gorm:"size:36;index;not null" json:"order_id"`
	RecipeID  string          `gorm:"size:36;index;not null" json:"recipe_id"`
	Quantity  int64           `gorm:"not null" json:"quantity"`
	Price     decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"price"` // unit price when ordered
	Recipe    *Recipe         `json:"recipe,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

func (i *OrderItem) BeforeCreate(tx *gorm.DB) error {
	assignID(&i.ID)
	return nil
}

type Payment struct {
	ID        string          `gorm:"primaryKey;size:36" json:"id"`
	OrderID   string          `gorm:"size:36;uniqueIndex;not null" json:"order_id"`
	Amount    decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"amount"`
	Method    string          `gorm:"not null" json:"method"`
	CreatedAt time.Time       `json:"created_at"`
}

func (p *Payment) BeforeCreate(tx *gorm.DB) error {
	assignID(&p.ID)
	return nil
}
