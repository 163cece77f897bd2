package inventory

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ksred/bistro-api/internal/config"
	"github.com/ksred/bistro-api/internal/database"
	"github.com/ksred/bistro-api/internal/types"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.NewDatabase(config.Database{Driver: config.DriverSQLite, DSN: ":memory:"})
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func TestCreateIngredientWithOpeningStock(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	ctx := context.Background()

	flour, err := svc.CreateIngredient(ctx, CreateIngredientRequest{Name: "Flour", Unit: "kg", CurrentQty: decPtr("10"), MinQuantity: decPtr("2")})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if !flour.OnHand.Equal(dec("10")) {
		t.Errorf("OnHand: got %s, want 10", flour.OnHand)
	}

	moves, err := svc.ListStockMoves(ctx, StockMoveFilter{IngredientID: flour.ID})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(moves) != 1 || moves[0].Type != types.MoveTypeOpening || !moves[0].Quantity.Equal(dec("10")) {
		t.Errorf("unexpected opening moves: %+v", moves)
	}

	salt, err := svc.CreateIngredient(ctx, CreateIngredientRequest{Name: "Salt", Unit: "g"})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if moves, _ := svc.ListStockMoves(ctx, StockMoveFilter{IngredientID: salt.ID}); len(moves) != 0 {
		t.Errorf("zero opening stock should not write a move, got %d", len(moves))
	}
}

func TestCreateIngredientValidation(t *testing.T) {
	svc := NewService(newTestDB(t))
	reqs := map[string]CreateIngredientRequest{
		"negative opening": {Name: "Flour", Unit: "kg", CurrentQty: decPtr("-1")},
		"blank name":       {Name: "   ", Unit: "kg"},
		"blank unit":       {Name: "Flour", Unit: "  "},
	}
	for name, req := range reqs {
		if _, err := svc.CreateIngredient(context.Background(), req); !errors.Is(err, types.ErrValidationFailed) {
			t.Errorf("%s: got %v, want ErrValidationFailed", name, err)
		}
	}
}

func TestStockLevelIsDerivedFromMoves(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	ctx := context.Background()

	flour, err := svc.CreateIngredient(ctx, CreateIngredientRequest{Name: "Flour", Unit: "kg", CurrentQty: decPtr("10")})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	steps := []struct {
		req       CreateStockMoveRequest
		wantDelta string
		wantLevel string
	}{
		{CreateStockMoveRequest{IngredientID: flour.ID, Type: "in", Quantity: dec("5")}, "5", "15"},
		{CreateStockMoveRequest{IngredientID: flour.ID, Type: "OUT", Quantity: dec("2.5")}, "-2.5", "12.5"},
		{CreateStockMoveRequest{IngredientID: flour.ID, Type: "adjustment", Quantity: dec("8")}, "-4.5", "8"},
		{CreateStockMoveRequest{IngredientID: flour.ID, Type: "ADJUSTMENT", Quantity: dec("9.25")}, "1.25", "9.25"},
	}

	for _, step := range steps {
		move, err := svc.CreateStockMove(ctx, step.req)
		if err != nil {
			t.Fatalf("%s move failed: %v", step.req.Type, err)
		}
		if !move.Quantity.Equal(dec(step.wantDelta)) {
			t.Errorf("%s delta: got %s, want %s", step.req.Type, move.Quantity, step.wantDelta)
		}
		if move.RefType != types.RefTypeManual {
			t.Errorf("ref type: got %s, want MANUAL", move.RefType)
		}

		ingredients, err := svc.ListIngredients(ctx)
		if err != nil {
			t.Fatalf("list failed: %v", err)
		}
		if !ingredients[0].OnHand.Equal(dec(step.wantLevel)) {
			t.Errorf("after %s: on hand got %s, want %s", step.req.Type, ingredients[0].OnHand, step.wantLevel)
		}
	}
}

func TestCreateStockMoveErrors(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	ctx := context.Background()
	flour, _ := svc.CreateIngredient(ctx, CreateIngredientRequest{Name: "Flour", Unit: "kg"})

	tests := []struct {
		name string
		req  CreateStockMoveRequest
		want error
	}{
		{"sale is reserved", CreateStockMoveRequest{IngredientID: flour.ID, Type: "SALE", Quantity: dec("1")}, types.ErrValidationFailed},
		{"zero in", CreateStockMoveRequest{IngredientID: flour.ID, Type: "IN", Quantity: decimal.Zero}, types.ErrValidationFailed},
		{"negative adjustment", CreateStockMoveRequest{IngredientID: flour.ID, Type: "ADJUSTMENT", Quantity: dec("-1")}, types.ErrValidationFailed},
		{"unknown ingredient", CreateStockMoveRequest{IngredientID: "nope", Type: "IN", Quantity: dec("1")}, types.ErrNotFound},
		{"order ref is reserved", CreateStockMoveRequest{IngredientID: flour.ID, Type: "OUT", Quantity: dec("1"), RefType: "ORDER", RefID: "order-1"}, types.ErrValidationFailed},
		{"grn ref is reserved", CreateStockMoveRequest{IngredientID: flour.ID, Type: "IN", Quantity: dec("1"), RefType: "grn", RefID: "grn-1"}, types.ErrValidationFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.CreateStockMove(ctx, tt.req); !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestLowStockProcessor(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	ctx := context.Background()

	if _, err := svc.CreateIngredient(ctx, CreateIngredientRequest{Name: "Flour", Unit: "kg", CurrentQty: decPtr("1"), MinQuantity: decPtr("5")}); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.CreateIngredient(ctx, CreateIngredientRequest{Name: "Sugar", Unit: "kg", CurrentQty: decPtr("10"), MinQuantity: decPtr("5")}); err != nil {
		t.Fatal(err)
	}

	p := NewProcessor(svc, time.Hour)
	n, err := p.CheckLowStock(ctx)
	if err != nil {
		t.Fatalf("check failed: %v", err)
	}
	if n != 1 {
		t.Errorf("low stock count: got %d, want 1", n)
	}

	stopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		p.Start(stopCtx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("processor did not stop after cancel")
	}
}

func TestInventoryHandlers(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := newTestDB(t)
	h := NewGinHandlers(NewService(db))
	router := gin.New()
	router.GET("/inventory/ingredients", h.ListIngredientsHandler())
	router.POST("/inventory/ingredients", h.CreateIngredientHandler())
	router.GET("/inventory/ingredients/low-stock", h.LowStockHandler())
	router.POST("/inventory/stock-moves", h.CreateStockMoveHandler())
	router.GET("/inventory/stock-moves", h.ListStockMovesHandler())

	do := func(method, path, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	rec := do(http.MethodPost, "/inventory/ingredients", `{"name":"Flour","unit":"kg","current_qty":3,"min_quantity":5}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status: got %d, body %s", rec.Code, rec.Body.String())
	}
	var created struct {
		Data types.Ingredient `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatal(err)
	}

	if rec := do(http.MethodPost, "/inventory/ingredients", `{"unit":"kg"}`); rec.Code != http.StatusBadRequest {
		t.Errorf("missing name: got %d, want 400", rec.Code)
	}

	if rec := do(http.MethodPost, "/inventory/stock-moves", `{"ingredient_id":"`+created.Data.ID+`","type":"IN","quantity":"1.5"}`); rec.Code != http.StatusCreated {
		t.Errorf("stock move status: got %d, body %s", rec.Code, rec.Body.String())
	}
	if rec := do(http.MethodPost, "/inventory/stock-moves", `{"ingredient_id":"missing","type":"IN","quantity":1}`); rec.Code != http.StatusNotFound {
		t.Errorf("unknown ingredient: got %d, want 404", rec.Code)
	}

	rec = do(http.MethodGet, "/inventory/ingredients/low-stock", "")
	var low struct {
		Data []types.Ingredient `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &low); err != nil {
		t.Fatal(err)
	}
	if len(low.Data) != 1 || !low.Data[0].OnHand.Equal(dec("4.5")) {
		t.Errorf("low stock: got %+v", low.Data)
	}

	rec = do(http.MethodGet, "/inventory/stock-moves?ingredient_id="+created.Data.ID+"&type=in", "")
	var moves struct {
		Data []types.StockMove `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &moves); err != nil {
		t.Fatal(err)
	}
	if len(moves.Data) != 1 || moves.Data[0].Ingredient == nil {
		t.Errorf("filtered moves: got %+v", moves.Data)
	}
}
