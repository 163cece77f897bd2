package inventory

import (
	"context"
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/ksred/bistro-api/internal/types"
	"github.com/ksred/bistro-api/pkg/response"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Service manages ingredients and the stock move ledger. Stock on hand is
// always the sum of an ingredient's moves; nothing else stores it.
type Service struct {
	db *Database
}

func NewService(gormDB *gorm.DB) *Service {
	return &Service{
		db: NewDatabase(gormDB),
	}
}

type CreateIngredientRequest struct {
	Name        string           `json:"name" binding:"required"`
	Unit        string           `json:"unit" binding:"required"`
	CurrentQty  *decimal.Decimal `json:"current_qty"`
	MinQuantity *decimal.Decimal `json:"min_quantity"`
	CostPerUnit *decimal.Decimal `json:"cost_per_unit"`
}

type CreateStockMoveRequest struct {
	IngredientID string          `json:"ingredient_id" binding:"required"`
	Quantity     decimal.Decimal `json:"quantity"`
	Type         string          `json:"type" binding:"required"` // IN, OUT, ADJUSTMENT
	Reason       string          `json:"reason"`
	RefType      string          `json:"ref_type"`
	RefID        string          `json:"ref_id"`
}

func orZero(d *decimal.Decimal) decimal.Decimal {
	if d == nil {
		return decimal.Zero
	}
	return *d
}

// CreateIngredient stores a new ingredient. A non-zero opening quantity is
// recorded as an OPENING stock move in the same transaction.
func (s *Service) CreateIngredient(ctx context.Context, req CreateIngredientRequest) (*types.Ingredient, error) {
	opening := orZero(req.CurrentQty)
	if opening.IsNegative() {
		return nil, types.Invalid("current_qty", "must not be negative")
	}
	if orZero(req.MinQuantity).IsNegative() {
		return nil, types.Invalid("min_quantity", "must not be negative")
	}

	ingredient := &types.Ingredient{
		Name:        strings.TrimSpace(req.Name),
		Unit:        strings.TrimSpace(req.Unit),
		MinQuantity: orZero(req.MinQuantity),
		CostPerUnit: orZero(req.CostPerUnit),
	}
	if ingredient.Name == "" {
		return nil, types.Invalid("name", "is required")
	}
	if ingredient.Unit == "" {
		return nil, types.Invalid("unit", "is required")
	}

	err := s.db.Transaction(ctx, func(tx *Database) error {
		if err := tx.CreateIngredient(ingredient); err != nil {
			return err
		}
		if opening.IsZero() {
			return nil
		}
		return tx.CreateStockMove(&types.StockMove{
			IngredientID: ingredient.ID,
			Quantity:     opening,
			Type:         types.MoveTypeOpening,
			Reason:       types.ReasonOpeningBalance,
			RefType:      types.RefTypeIngredient,
			RefID:        ingredient.ID,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create ingredient: %w", err)
	}

	ingredient.OnHand = opening
	return ingredient, nil
}

// ListIngredients returns every ingredient with its derived stock on hand
func (s *Service) ListIngredients(ctx context.Context) ([]types.Ingredient, error) {
	ingredients, err := s.db.ListIngredients(ctx)
	if err != nil {
		return nil, err
	}
	onHand, err := s.db.OnHand(ctx)
	if err != nil {
		return nil, err
	}
	for i := range ingredients {
		ingredients[i].OnHand = onHand[ingredients[i].ID]
	}
	return ingredients, nil
}

// LowStock returns ingredients whose stock on hand is below their minimum
func (s *Service) LowStock(ctx context.Context) ([]types.Ingredient, error) {
	ingredients, err := s.ListIngredients(ctx)
	if err != nil {
		return nil, err
	}
	low := make([]types.Ingredient, 0)
	for _, ing := range ingredients {
		if ing.OnHand.LessThan(ing.MinQuantity) {
			low = append(low, ing)
		}
	}
	return low, nil
}

// CreateStockMove records a manual movement. IN adds the quantity, OUT
// removes it and ADJUSTMENT sets stock on hand to the quantity by writing
// the difference. SALE moves are only written by settlement.
func (s *Service) CreateStockMove(ctx context.Context, req CreateStockMoveRequest) (*types.StockMove, error) {
	moveType := strings.ToUpper(strings.TrimSpace(req.Type))
	switch moveType {
	case types.MoveTypeIn, types.MoveTypeOut:
		if !req.Quantity.IsPositive() {
			return nil, types.Invalid("quantity", "must be positive")
		}
	case types.MoveTypeAdjustment:
		if req.Quantity.IsNegative() {
			return nil, types.Invalid("quantity", "must not be negative")
		}
	default:
		return nil, types.Invalid("type", "must be one of IN, OUT, ADJUSTMENT")
	}

	logger := log.With().
		Str("ingredient_id", req.IngredientID).
		Str("type", moveType).
		Str("service", "inventory").
		Logger()

	// ORDER and GRN references belong to settlement and goods receipt
	refType := strings.ToUpper(strings.TrimSpace(req.RefType))
	if refType == types.RefTypeOrder || refType == types.RefTypeGRN {
		return nil, types.Invalid("ref_type", "ORDER and GRN references are reserved")
	}

	move := &types.StockMove{
		IngredientID: req.IngredientID,
		Type:         moveType,
		Reason:       req.Reason,
		RefType:      refType,
		RefID:        req.RefID,
	}
	if move.Reason == "" {
		move.Reason = moveType
	}
	if move.RefType == "" {
		move.RefType = types.RefTypeManual
	}

	err := s.db.Transaction(ctx, func(tx *Database) error {
		if _, err := tx.GetIngredient(ctx, req.IngredientID); err != nil {
			return err
		}

		switch moveType {
		case types.MoveTypeIn:
			move.Quantity = req.Quantity
		case types.MoveTypeOut:
			move.Quantity = req.Quantity.Neg()
		case types.MoveTypeAdjustment:
			onHand, err := tx.OnHand(ctx, req.IngredientID)
			if err != nil {
				return err
			}
			move.Quantity = req.Quantity.Sub(onHand[req.IngredientID])
		}

		return tx.CreateStockMove(move)
	})
	if err != nil {
		logger.Error().Err(err).Msg("failed to record stock move")
		return nil, err
	}

	logger.Info().
		Str("stock_move_id", move.ID).
		Str("quantity", move.Quantity.String()).
		Msg("stock move recorded")

	return move, nil
}

func (s *Service) ListStockMoves(ctx context.Context, filter StockMoveFilter) ([]types.StockMove, error) {
	return s.db.ListStockMoves(ctx, filter)
}

// GinHandlers contains HTTP handlers for inventory endpoints
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

func (h *GinHandlers) ListIngredientsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ingredients, err := h.service.ListIngredients(c.Request.Context())
		response.Handle(c, ingredients, err)
	}
}

func (h *GinHandlers) CreateIngredientHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateIngredientRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.ValidationFailed(c, err.Error())
			return
		}

		ingredient, err := h.service.CreateIngredient(c.Request.Context(), req)
		response.Handle(c, ingredient, err)
	}
}

func (h *GinHandlers) LowStockHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ingredients, err := h.service.LowStock(c.Request.Context())
		response.Handle(c, ingredients, err)
	}
}

// ListStockMovesHandler accepts ingredient_id, ref_type, ref_id and type query filters
func (h *GinHandlers) ListStockMovesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		moves, err := h.service.ListStockMoves(c.Request.Context(), StockMoveFilter{
			IngredientID: c.Query("ingredient_id"),
			RefType:      strings.ToUpper(c.Query("ref_type")),
			RefID:        c.Query("ref_id"),
			Type:         strings.ToUpper(c.Query("type")),
		})
		response.Handle(c, moves, err)
	}
}

func (h *GinHandlers) CreateStockMoveHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateStockMoveRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.ValidationFailed(c, err.Error())
			return
		}

		move, err := h.service.CreateStockMove(c.Request.Context(), req)
		response.Handle(c, move, err)
	}
}
