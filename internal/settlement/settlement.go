package settlement

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ksred/bistro-api/internal/types"
	"github.com/ksred/bistro-api/pkg/response"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

type Service struct {
	db *Database
}

func NewService(gormDB *gorm.DB) *Service {
	return &Service{
		db: NewDatabase(gormDB),
	}
}

// Settle pays an order. The payment, one SALE stock move per consumed
// ingredient and the PAID status change are written in one transaction;
// on any failure none of them persist.
func (s *Service) Settle(ctx context.Context, orderID string, req SettleRequest) (*SettlementResult, error) {
	logger := log.With().
		Str("order_id", orderID).
		Str("service", "settlement").
		Logger()

	logger.Info().Msg("starting settlement for order")

	if req.Amount != nil && !req.Amount.IsPositive() {
		return nil, types.Invalid("amount", "must be a positive number")
	}

	order, err := s.db.GetOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			logger.Warn().Msg("order not found")
			return nil, err
		}
		logger.Error().Err(err).Msg("failed to fetch order")
		return nil, &types.SettlementError{OrderID: orderID, Err: err}
	}
	if order.Status == types.OrderStatusPaid {
		logger.Warn().Msg("order already paid")
		return nil, types.ErrAlreadySettled
	}

	amount := order.Total
	if req.Amount != nil {
		amount = *req.Amount
	}
	method := DefaultMethod
	if req.Method != nil && strings.TrimSpace(*req.Method) != "" {
		method = strings.ToUpper(strings.TrimSpace(*req.Method))
	}

	var result *SettlementResult
	err = s.db.Transaction(ctx, func(tx *Database) error {
		locked, err := tx.LoadOrderForSettlement(orderID)
		if err != nil {
			return err
		}
		// A concurrent settle may have committed since the precheck
		if locked.Status == types.OrderStatusPaid {
			return types.ErrAlreadySettled
		}

		lines, err := FromOrder(locked)
		if err != nil {
			return err
		}

		payment := &types.Payment{
			OrderID: orderID,
			Amount:  amount,
			Method:  method,
		}
		if err := tx.CreatePayment(payment); err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return types.ErrAlreadySettled
			}
			return fmt.Errorf("failed to create payment: %w", err)
		}

		deductions := Aggregate(lines)
		moves := make([]types.StockMove, 0, len(deductions))
		for _, d := range deductions {
			move := types.StockMove{
				IngredientID: d.IngredientID,
				Quantity:     d.Quantity.Neg(),
				Type:         types.MoveTypeSale,
				Reason:       types.ReasonSale,
				RefType:      types.RefTypeOrder,
				RefID:        orderID,
			}
			if err := tx.CreateStockMove(&move); err != nil {
				return fmt.Errorf("failed to create stock move for ingredient %s: %w", d.IngredientID, err)
			}
			moves = append(moves, move)
		}

		now := time.Now()
		rows, err := tx.MarkOrderPaid(orderID, now)
		if err != nil {
			return fmt.Errorf("failed to mark order paid: %w", err)
		}
		if rows == 0 {
			return types.ErrAlreadySettled
		}
		locked.Status = types.OrderStatusPaid
		locked.UpdatedAt = now

		result = &SettlementResult{
			Payment:           payment,
			StockMoves:        moves,
			StockMovesCreated: len(moves),
			Order:             locked,
		}
		return nil
	})
	if err != nil {
		switch {
		case errors.Is(err, types.ErrAlreadySettled):
			logger.Warn().Msg("order settled concurrently")
			return nil, types.ErrAlreadySettled
		case errors.Is(err, types.ErrNotFound):
			logger.Warn().Msg("order disappeared before settlement")
			return nil, types.ErrNotFound
		}
		logger.Error().Err(err).Msg("settlement rolled back")
		return nil, &types.SettlementError{OrderID: orderID, Err: err}
	}

	logger.Info().
		Str("payment_id", result.Payment.ID).
		Str("method", result.Payment.Method).
		Str("amount", result.Payment.Amount.String()).
		Int("stock_moves", result.StockMovesCreated).
		Msg("settlement completed successfully")

	return result, nil
}

// GetOrderPayments lists the payments recorded against an order
func (s *Service) GetOrderPayments(ctx context.Context, orderID string) ([]types.Payment, error) {
	if _, err := s.db.GetOrder(ctx, orderID); err != nil {
		return nil, err
	}
	return s.db.GetPaymentsByOrderID(ctx, orderID)
}

// GetOrderStockMoves lists the SALE moves written when an order was settled
func (s *Service) GetOrderStockMoves(ctx context.Context, orderID string) ([]types.StockMove, error) {
	if _, err := s.db.GetOrder(ctx, orderID); err != nil {
		return nil, err
	}
	return s.db.GetStockMovesByOrderID(ctx, orderID)
}

// GinHandlers contains HTTP handlers for settlement endpoints
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

// SettleOrderHandler handles POST /pos/orders/:id/pay.
// The body is optional; amount and method fall back to defaults.
func (h *GinHandlers) SettleOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		orderID := c.Param("id")

		var req SettleRequest
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			response.ValidationFailed(c, "amount must be a number and method a string")
			return
		}

		result, err := h.service.Settle(c.Request.Context(), orderID, req)
		switch {
		case err == nil:
			response.JSON(c, http.StatusOK, result)
		case errors.Is(err, types.ErrNotFound):
			response.NotFound(c, "Order not found")
		case errors.Is(err, types.ErrAlreadySettled):
			response.AlreadySettled(c, "Order already paid")
		case errors.Is(err, types.ErrValidationFailed):
			response.ValidationFailed(c, err.Error())
		default:
			response.Fail(c, err, "Failed to process payment")
		}
	}
}

func (h *GinHandlers) ListOrderPaymentsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		payments, err := h.service.GetOrderPayments(c.Request.Context(), c.Param("id"))
		response.Handle(c, payments, err)
	}
}

func (h *GinHandlers) ListOrderStockMovesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		moves, err := h.service.GetOrderStockMoves(c.Request.Context(), c.Param("id"))
		response.Handle(c, moves, err)
	}
}
