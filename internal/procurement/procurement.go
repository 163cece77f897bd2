package procurement

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ksred/bistro-api/internal/types"
	"github.com/ksred/bistro-api/pkg/response"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Service handles suppliers, purchase orders and goods receipt
type Service struct {
	db *Database
}

func NewService(gormDB *gorm.DB) *Service {
	return &Service{
		db: NewDatabase(gormDB),
	}
}

type CreateSupplierRequest struct {
	Name    string `json:"name" binding:"required"`
	Contact string `json:"contact"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
}

type PurchaseOrderLineRequest struct {
	IngredientID string          `json:"ingredient_id" binding:"required"`
	Quantity     decimal.Decimal `json:"quantity"`
	UnitCost     decimal.Decimal `json:"unit_cost"`
}

type CreatePurchaseOrderRequest struct {
	PONumber   string                     `json:"po_number" binding:"required"`
	SupplierID string                     `json:"supplier_id" binding:"required"`
	Lines      []PurchaseOrderLineRequest `json:"lines"`
}

type CreateGRNRequest struct {
	GRNNumber       string     `json:"grn_number" binding:"required"`
	PurchaseOrderID string     `json:"purchase_order_id" binding:"required"`
	ReceivedAt      *time.Time `json:"received_at"`
}

// ReceiptResult is a GRN with the stock moves it posted
type ReceiptResult struct {
	GRN        *types.GRN        `json:"grn"`
	StockMoves []types.StockMove `json:"stock_moves"`
}

func (s *Service) CreateSupplier(ctx context.Context, req CreateSupplierRequest) (*types.Supplier, error) {
	supplier := &types.Supplier{
		Name:    strings.TrimSpace(req.Name),
		Contact: req.Contact,
		Email:   req.Email,
		Phone:   req.Phone,
	}
	if supplier.Name == "" {
		return nil, types.Invalid("name", "is required")
	}
	if err := s.db.CreateSupplier(supplier); err != nil {
		return nil, fmt.Errorf("failed to create supplier: %w", err)
	}
	return supplier, nil
}

func (s *Service) ListSuppliers(ctx context.Context) ([]types.Supplier, error) {
	return s.db.ListSuppliers(ctx)
}

// CreatePurchaseOrder stores a DRAFT purchase order with its lines
func (s *Service) CreatePurchaseOrder(ctx context.Context, req CreatePurchaseOrderRequest) (*types.PurchaseOrder, error) {
	po := &types.PurchaseOrder{
		PONumber:   strings.TrimSpace(req.PONumber),
		SupplierID: req.SupplierID,
		Status:     types.PurchaseOrderStatusDraft,
	}
	if po.PONumber == "" {
		return nil, types.Invalid("po_number", "is required")
	}

	ids := make([]string, 0, len(req.Lines))
	for i, line := range req.Lines {
		if !line.Quantity.IsPositive() {
			return nil, types.Invalid(fmt.Sprintf("lines[%d].quantity", i), "must be positive")
		}
		if line.UnitCost.IsNegative() {
			return nil, types.Invalid(fmt.Sprintf("lines[%d].unit_cost", i), "must not be negative")
		}
		ids = append(ids, line.IngredientID)
	}

	err := s.db.Transaction(ctx, func(tx *Database) error {
		supplier, err := tx.GetSupplier(ctx, req.SupplierID)
		if err != nil {
			if errors.Is(err, types.ErrNotFound) {
				return types.Invalid("supplier_id", "unknown supplier")
			}
			return err
		}
		po.Supplier = supplier

		if len(ids) > 0 {
			distinct := make(map[string]struct{}, len(ids))
			for _, id := range ids {
				distinct[id] = struct{}{}
			}
			n, err := tx.CountIngredients(ctx, ids)
			if err != nil {
				return err
			}
			if n != int64(len(distinct)) {
				return types.Invalid("lines", "references an unknown ingredient")
			}
		}

		if err := tx.CreatePurchaseOrder(po); err != nil {
			return err
		}
		po.Lines = make([]types.PurchaseOrderLine, 0, len(req.Lines))
		for _, line := range req.Lines {
			l := types.PurchaseOrderLine{
				PurchaseOrderID: po.ID,
				IngredientID:    line.IngredientID,
				Quantity:        line.Quantity,
				UnitCost:        line.UnitCost,
			}
			if err := tx.CreatePurchaseOrderLine(&l); err != nil {
				return err
			}
			po.Lines = append(po.Lines, l)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("purchase_order_id", po.ID).
		Str("po_number", po.PONumber).
		Int("lines", len(po.Lines)).
		Msg("purchase order created")
	return po, nil
}

func (s *Service) ListPurchaseOrders(ctx context.Context) ([]types.PurchaseOrder, error) {
	return s.db.ListPurchaseOrders(ctx)
}

// ReceiveGoods records a GRN against a DRAFT purchase order, posts one IN
// stock move per PO line and marks the PO RECEIVED, all in one transaction.
func (s *Service) ReceiveGoods(ctx context.Context, req CreateGRNRequest) (*ReceiptResult, error) {
	logger := log.With().
		Str("purchase_order_id", req.PurchaseOrderID).
		Str("service", "procurement").
		Logger()

	grn := &types.GRN{
		GRNNumber:       strings.TrimSpace(req.GRNNumber),
		PurchaseOrderID: req.PurchaseOrderID,
	}
	if grn.GRNNumber == "" {
		return nil, types.Invalid("grn_number", "is required")
	}
	if req.ReceivedAt != nil {
		grn.ReceivedAt = *req.ReceivedAt
	}

	result := &ReceiptResult{GRN: grn}
	err := s.db.Transaction(ctx, func(tx *Database) error {
		po, err := tx.GetPurchaseOrder(ctx, req.PurchaseOrderID, true)
		if err != nil {
			return err
		}
		if po.Status != types.PurchaseOrderStatusDraft {
			return fmt.Errorf("%w: purchase order %s is %s", types.ErrInvalidStatus, po.PONumber, po.Status)
		}

		if err := tx.CreateGRN(grn); err != nil {
			return err
		}

		result.StockMoves = make([]types.StockMove, 0, len(po.Lines))
		for _, line := range po.Lines {
			move := types.StockMove{
				IngredientID: line.IngredientID,
				Quantity:     line.Quantity,
				Type:         types.MoveTypeIn,
				Reason:       "GRN " + grn.GRNNumber,
				RefType:      types.RefTypeGRN,
				RefID:        grn.ID,
			}
			if err := tx.CreateStockMove(&move); err != nil {
				return err
			}
			result.StockMoves = append(result.StockMoves, move)
		}

		rows, err := tx.UpdatePurchaseOrderStatus(ctx, po.ID, types.PurchaseOrderStatusDraft, types.PurchaseOrderStatusReceived)
		if err != nil {
			return err
		}
		if rows == 0 {
			return fmt.Errorf("%w: purchase order %s already received", types.ErrInvalidStatus, po.PONumber)
		}
		return nil
	})
	if err != nil {
		logger.Error().Err(err).Msg("failed to receive goods")
		return nil, err
	}

	logger.Info().
		Str("grn_id", grn.ID).
		Int("stock_moves", len(result.StockMoves)).
		Msg("goods received")
	return result, nil
}

type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

func (h *GinHandlers) ListSuppliersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		suppliers, err := h.service.ListSuppliers(c.Request.Context())
		response.Handle(c, suppliers, err)
	}
}

func (h *GinHandlers) CreateSupplierHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateSupplierRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.ValidationFailed(c, err.Error())
			return
		}
		supplier, err := h.service.CreateSupplier(c.Request.Context(), req)
		response.Handle(c, supplier, err)
	}
}

func (h *GinHandlers) ListPurchaseOrdersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		pos, err := h.service.ListPurchaseOrders(c.Request.Context())
		response.Handle(c, pos, err)
	}
}

func (h *GinHandlers) CreatePurchaseOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreatePurchaseOrderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.ValidationFailed(c, err.Error())
			return
		}
		po, err := h.service.CreatePurchaseOrder(c.Request.Context(), req)
		response.Handle(c, po, err)
	}
}

func (h *GinHandlers) CreateGRNHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateGRNRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.ValidationFailed(c, err.Error())
			return
		}
		receipt, err := h.service.ReceiveGoods(c.Request.Context(), req)
		if errors.Is(err, types.ErrNotFound) {
			response.NotFound(c, "Purchase order not found")
			return
		}
		response.Handle(c, receipt, err)
	}
}
