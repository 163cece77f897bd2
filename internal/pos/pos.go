package pos

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/ksred/bistro-api/internal/types"
	"github.com/ksred/bistro-api/pkg/response"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Service handles outlets, tables and the order lifecycle up to payment
type Service struct {
	db *Database
}

func NewService(gormDB *gorm.DB) *Service {
	return &Service{
		db: NewDatabase(gormDB),
	}
}

type CreateOutletRequest struct {
	Name    string `json:"name" binding:"required"`
	Address string `json:"address"`
}

type TableRequest struct {
	OutletID string `json:"outlet_id" binding:"required"`
	Number   string `json:"number" binding:"required"`
	Seats    *int   `json:"seats"`
	Status   string `json:"status"`
}

type OrderItemRequest struct {
	RecipeID string `json:"recipe_id" binding:"required"`
	Quantity int64  `json:"quantity"`
}

type CreateOrderRequest struct {
	TableID  string             `json:"table_id" binding:"required"`
	OutletID *string            `json:"outlet_id"`
	Items    []OrderItemRequest `json:"items"`
}

func (s *Service) CreateOutlet(ctx context.Context, req CreateOutletRequest) (*types.Outlet, error) {
	outlet := &types.Outlet{Name: strings.TrimSpace(req.Name), Address: req.Address}
	if outlet.Name == "" {
		return nil, types.Invalid("name", "is required")
	}
	if err := s.db.CreateOutlet(outlet); err != nil {
		return nil, fmt.Errorf("failed to create outlet: %w", err)
	}
	return outlet, nil
}

func (s *Service) ListOutlets(ctx context.Context) ([]types.Outlet, error) {
	return s.db.ListOutlets(ctx)
}

func (s *Service) buildTable(ctx context.Context, req TableRequest) (*types.Table, error) {
	table := &types.Table{
		OutletID: req.OutletID,
		Number:   strings.TrimSpace(req.Number),
		Seats:    types.DefaultTableSeats,
		Status:   strings.ToUpper(strings.TrimSpace(req.Status)),
	}
	if req.Seats != nil {
		if *req.Seats <= 0 {
			return nil, types.Invalid("seats", "must be positive")
		}
		table.Seats = *req.Seats
	}
	if table.Status == "" {
		table.Status = types.TableStatusAvailable
	}
	if table.Status != types.TableStatusAvailable && table.Status != types.TableStatusOccupied {
		return nil, types.Invalid("status", "must be AVAILABLE or OCCUPIED")
	}

	outlet, err := s.db.GetOutlet(ctx, req.OutletID)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			return nil, types.Invalid("outlet_id", "unknown outlet")
		}
		return nil, err
	}
	table.Outlet = outlet
	return table, nil
}

// CreateTable creates a table; seats default to four
func (s *Service) CreateTable(ctx context.Context, req TableRequest) (*types.Table, error) {
	table, err := s.buildTable(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := s.db.CreateTable(table); err != nil {
		return nil, fmt.Errorf("failed to create table: %w", err)
	}
	return table, nil
}

func (s *Service) GetTable(ctx context.Context, id string) (*types.Table, error) {
	return s.db.GetTable(ctx, id)
}

func (s *Service) ListTables(ctx context.Context) ([]types.Table, error) {
	return s.db.ListTables(ctx)
}

func (s *Service) UpdateTable(ctx context.Context, id string, req TableRequest) (*types.Table, error) {
	table, err := s.buildTable(ctx, req)
	if err != nil {
		return nil, err
	}
	table.ID = id

	rows, err := s.db.UpdateTable(ctx, table)
	if err != nil {
		return nil, fmt.Errorf("failed to update table: %w", err)
	}
	if rows == 0 {
		return nil, types.ErrNotFound
	}
	return s.db.GetTable(ctx, id)
}

func (s *Service) DeleteTable(ctx context.Context, id string) error {
	rows, err := s.db.DeleteTable(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to delete table: %w", err)
	}
	if rows == 0 {
		return types.ErrNotFound
	}
	return nil
}

// priceItems turns requested lines into order items priced from the
// current recipe price
func (s *Service) priceItems(ctx context.Context, db *Database, orderID string, reqs []OrderItemRequest) ([]types.OrderItem, error) {
	if len(reqs) == 0 {
		return nil, nil
	}
	ids := make([]string, 0, len(reqs))
	for i, r := range reqs {
		if r.RecipeID == "" {
			return nil, types.Invalid(fmt.Sprintf("items[%d].recipe_id", i), "is required")
		}
		if r.Quantity <= 0 {
			return nil, types.Invalid(fmt.Sprintf("items[%d].quantity", i), "must be a positive integer")
		}
		ids = append(ids, r.RecipeID)
	}

	recipes, err := db.GetRecipes(ctx, ids)
	if err != nil {
		return nil, err
	}

	items := make([]types.OrderItem, 0, len(reqs))
	for i, r := range reqs {
		recipe, ok := recipes[r.RecipeID]
		if !ok {
			return nil, types.Invalid(fmt.Sprintf("items[%d].recipe_id", i), "unknown recipe")
		}
		items = append(items, types.OrderItem{
			OrderID:  orderID,
			RecipeID: recipe.ID,
			Quantity: r.Quantity,
			Price:    recipe.Price,
		})
	}
	return items, nil
}

// CreateOrder opens a DRAFT order for a table, pricing any initial lines
// from the current recipe price
func (s *Service) CreateOrder(ctx context.Context, req CreateOrderRequest) (*types.Order, error) {
	logger := log.With().Str("table_id", req.TableID).Str("service", "pos").Logger()

	table, err := s.db.GetTable(ctx, req.TableID)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			return nil, types.Invalid("table_id", "unknown table")
		}
		return nil, err
	}

	order := &types.Order{
		TableID:  req.TableID,
		OutletID: req.OutletID,
		Status:   types.OrderStatusDraft,
	}
	if order.OutletID == nil {
		order.OutletID = &table.OutletID
	}

	err = s.db.Transaction(ctx, func(tx *Database) error {
		if err := tx.CreateOrder(order); err != nil {
			return err
		}
		items, err := s.priceItems(ctx, tx, order.ID, req.Items)
		if err != nil {
			return err
		}
		for i := range items {
			if err := tx.CreateOrderItem(&items[i]); err != nil {
				return err
			}
		}
		if len(items) == 0 {
			return nil
		}

		order.Items = items
		order.Total = order.ItemsTotal()
		_, err = tx.UpdateOrderTotal(order)
		return err
	})
	if err != nil {
		logger.Error().Err(err).Msg("failed to create order")
		return nil, err
	}

	logger.Info().
		Str("order_id", order.ID).
		Int("items", len(order.Items)).
		Str("total", order.Total.String()).
		Msg("order created")
	return order, nil
}

func (s *Service) GetOrder(ctx context.Context, id string) (*types.Order, error) {
	return s.db.GetOrder(ctx, id)
}

func (s *Service) ListOrders(ctx context.Context, status string) ([]types.Order, error) {
	return s.db.ListOrders(ctx, strings.ToUpper(status))
}

// AddItem appends a line to an order that has not been sent yet and
// recomputes its total
func (s *Service) AddItem(ctx context.Context, orderID string, req OrderItemRequest) (*types.Order, error) {
	err := s.db.Transaction(ctx, func(tx *Database) error {
		order, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if order.Status != types.OrderStatusDraft && order.Status != types.OrderStatusPending {
			return fmt.Errorf("%w: cannot add items to a %s order", types.ErrInvalidStatus, order.Status)
		}

		items, err := s.priceItems(ctx, tx, orderID, []OrderItemRequest{req})
		if err != nil {
			return err
		}
		if err := tx.CreateOrderItem(&items[0]); err != nil {
			return err
		}

		order.Items = append(order.Items, items[0])
		order.Total = order.ItemsTotal()
		rows, err := tx.UpdateOrderTotal(order)
		if err != nil {
			return err
		}
		if rows == 0 {
			return fmt.Errorf("%w: order left DRAFT while adding items", types.ErrInvalidStatus)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.db.GetOrder(ctx, orderID)
}

// SendOrder releases an order to the kitchen display. Sending an order
// that is already SENT is a no-op.
func (s *Service) SendOrder(ctx context.Context, orderID string) (*types.Order, error) {
	logger := log.With().Str("order_id", orderID).Str("service", "pos").Logger()

	order, err := s.db.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status == types.OrderStatusSent {
		return order, nil
	}
	if !types.CanTransition(order.Status, types.OrderStatusSent) {
		return nil, fmt.Errorf("%w: cannot send a %s order", types.ErrInvalidStatus, order.Status)
	}
	if len(order.Items) == 0 {
		return nil, types.Invalid("items", "order has no items")
	}

	rows, err := s.db.UpdateOrderStatus(ctx, orderID, order.Status, types.OrderStatusSent)
	if err != nil {
		return nil, fmt.Errorf("failed to send order: %w", err)
	}
	if rows == 0 {
		// Status moved underneath us; report the current state
		return s.SendOrder(ctx, orderID)
	}

	logger.Info().Msg("order sent to kitchen")
	return s.db.GetOrder(ctx, orderID)
}

// KitchenTickets lists the orders currently on the kitchen display
func (s *Service) KitchenTickets(ctx context.Context) ([]types.Order, error) {
	return s.db.ListOrders(ctx, types.OrderStatusSent)
}

// GinHandlers contains HTTP handlers for point of sale endpoints
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

func (h *GinHandlers) ListOutletsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		outlets, err := h.service.ListOutlets(c.Request.Context())
		response.Handle(c, outlets, err)
	}
}

func (h *GinHandlers) CreateOutletHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateOutletRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.ValidationFailed(c, err.Error())
			return
		}
		outlet, err := h.service.CreateOutlet(c.Request.Context(), req)
		response.Handle(c, outlet, err)
	}
}

func (h *GinHandlers) ListTablesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		tables, err := h.service.ListTables(c.Request.Context())
		response.Handle(c, tables, err)
	}
}

func (h *GinHandlers) CreateTableHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req TableRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.ValidationFailed(c, err.Error())
			return
		}
		table, err := h.service.CreateTable(c.Request.Context(), req)
		response.Handle(c, table, err)
	}
}

func (h *GinHandlers) GetTableHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		table, err := h.service.GetTable(c.Request.Context(), c.Param("id"))
		response.Handle(c, table, err)
	}
}

func (h *GinHandlers) UpdateTableHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req TableRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.ValidationFailed(c, err.Error())
			return
		}
		table, err := h.service.UpdateTable(c.Request.Context(), c.Param("id"), req)
		response.Handle(c, table, err)
	}
}

func (h *GinHandlers) DeleteTableHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := h.service.DeleteTable(c.Request.Context(), c.Param("id")); err != nil {
			response.Handle(c, nil, err)
			return
		}
		response.NoContent(c)
	}
}

// ListOrdersHandler accepts an optional status query filter
func (h *GinHandlers) ListOrdersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		orders, err := h.service.ListOrders(c.Request.Context(), c.Query("status"))
		response.Handle(c, orders, err)
	}
}

func (h *GinHandlers) CreateOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateOrderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.ValidationFailed(c, err.Error())
			return
		}
		order, err := h.service.CreateOrder(c.Request.Context(), req)
		response.Handle(c, order, err)
	}
}

func (h *GinHandlers) GetOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		order, err := h.service.GetOrder(c.Request.Context(), c.Param("id"))
		if errors.Is(err, types.ErrNotFound) {
			response.NotFound(c, "Order not found")
			return
		}
		response.Handle(c, order, err)
	}
}

func (h *GinHandlers) AddItemHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req OrderItemRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.ValidationFailed(c, err.Error())
			return
		}
		order, err := h.service.AddItem(c.Request.Context(), c.Param("id"), req)
		if errors.Is(err, types.ErrNotFound) {
			response.NotFound(c, "Order not found")
			return
		}
		response.Handle(c, order, err)
	}
}

func (h *GinHandlers) SendOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		order, err := h.service.SendOrder(c.Request.Context(), c.Param("id"))
		if errors.Is(err, types.ErrNotFound) {
			response.NotFound(c, "Order not found")
			return
		}
		if err != nil {
			response.Handle(c, nil, err)
			return
		}
		response.JSON(c, http.StatusOK, order)
	}
}

func (h *GinHandlers) KitchenTicketsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		tickets, err := h.service.KitchenTickets(c.Request.Context())
		response.Handle(c, tickets, err)
	}
}
