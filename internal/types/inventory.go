package types

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Stock move types
const (
	MoveTypeSale       = "SALE"
	MoveTypeIn         = "IN"
	MoveTypeOut        = "OUT"
	MoveTypeAdjustment = "ADJUSTMENT"
	MoveTypeOpening    = "OPENING"
)

// Reference types linking a stock move back to the document that caused it
const (
	RefTypeOrder         = "ORDER"
	RefTypeGRN           = "GRN"
	RefTypeManual        = "MANUAL"
	RefTypeIngredient    = "INGREDIENT"
	ReasonSale           = "SALE"
	ReasonOpeningBalance = "OPENING_BALANCE"
)

type Recipe struct {
	ID          string          `gorm:"primaryKey;size:36" json:"id"`
	Name        string          `gorm:"not null" json:"name"`
	Description string          `json:"description"`
	Category    string          `json:"category"`
	Price       decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"price"`
	Items       []RecipeItem    `gorm:"foreignKey:RecipeID" json:"items,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

func (r *Recipe) BeforeCreate(tx *gorm.DB) error {
	assignID(&r.ID)
	return nil
}

// RecipeItem is the quantity of one ingredient consumed per unit of recipe
type RecipeItem struct {
	ID           string          `gorm:"primaryKey;size:36" json:"id"`
	RecipeID     string          `gorm:"size:36;index;not null" json:"recipe_id"`
	IngredientID string          `gorm:"size:36;index;not null" json:"ingredient_id"`
	Quantity     decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"quantity"`
	Position     int             `gorm:"not null" json:"position"`
	Ingredient   *Ingredient     `json:"ingredient,omitempty"`
}

func (i *RecipeItem) BeforeCreate(tx *gorm.DB) error {
	assignID(&i.ID)
	return nil
}

// Ingredient carries no stock counter. OnHand is derived from the stock
// move ledger and filled in by the inventory store on read.
type Ingredient struct {
	ID          string          `gorm:"primaryKey;size:36" json:"id"`
	Name        string          `gorm:"not null" json:"name"`
	Unit        string          `gorm:"not null" json:"unit"`
	MinQuantity decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"min_quantity"`
	CostPerUnit decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"cost_per_unit"`
	OnHand      decimal.Decimal `gorm:"-" json:"on_hand"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

func (i *Ingredient) BeforeCreate(tx *gorm.DB) error {
	assignID(&i.ID)
	return nil
}

// StockMove is an append-only ledger entry. Negative quantities are deductions.
type StockMove struct {
	ID           string          `gorm:"primaryKey;size:36" json:"id"`
	IngredientID string          `gorm:"size:36;index;not null" json:"ingredient_id"`
	Quantity     decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"quantity"`
	Type         string          `gorm:"not null;index" json:"type"` // SALE, IN, OUT, ADJUSTMENT, OPENING
	Reason       string          `json:"reason"`
	RefType      string          `gorm:"size:32" json:"ref_type"`
	RefID        string          `gorm:"size:36;index" json:"ref_id"`
	Ingredient   *Ingredient     `json:"ingredient,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

func (m *StockMove) BeforeCreate(tx *gorm.DB) error {
	assignID(&m.ID)
	return nil
}
