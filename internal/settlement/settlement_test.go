package settlement

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

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

func mustCreate(t *testing.T, db *gorm.DB, value interface{}) {
	t.Helper()
	if err := db.Create(value).Error; err != nil {
		t.Fatalf("failed to seed %T: %v", value, err)
	}
}

// menu is the flour/sugar fixture: Cake uses 0.5 flour + 0.3 sugar, Bread 0.3 flour
type menu struct {
	flour, sugar *types.Ingredient
	cake, bread  *types.Recipe
	table        *types.Table
}

func seedMenu(t *testing.T, db *gorm.DB) menu {
	t.Helper()
	m := menu{
		flour: &types.Ingredient{ID: "ing-flour", Name: "Flour", Unit: "kg", CostPerUnit: dec("2.5")},
		sugar: &types.Ingredient{ID: "ing-sugar", Name: "Sugar", Unit: "kg", CostPerUnit: dec("1.8")},
	}
	mustCreate(t, db, m.flour)
	mustCreate(t, db, m.sugar)

	m.cake = &types.Recipe{Name: "Cake", Price: dec("15"), Items: []types.RecipeItem{
		{IngredientID: m.flour.ID, Quantity: dec("0.5"), Position: 0},
		{IngredientID: m.sugar.ID, Quantity: dec("0.3"), Position: 1},
	}}
	m.bread = &types.Recipe{Name: "Bread", Price: dec("8"), Items: []types.RecipeItem{
		{IngredientID: m.flour.ID, Quantity: dec("0.3")},
	}}
	mustCreate(t, db, m.cake)
	mustCreate(t, db, m.bread)

	outlet := &types.Outlet{Name: "Test Outlet", Address: "123 Test St"}
	mustCreate(t, db, outlet)
	m.table = &types.Table{OutletID: outlet.ID, Number: "T1", Seats: 4, Status: types.TableStatusAvailable}
	mustCreate(t, db, m.table)
	return m
}

func seedOrder(t *testing.T, db *gorm.DB, m menu, total string, items ...types.OrderItem) *types.Order {
	t.Helper()
	order := &types.Order{
		TableID: m.table.ID,
		Status:  types.OrderStatusSent,
		Total:   dec(total),
		Items:   items,
	}
	mustCreate(t, db, order)
	return order
}

func count(t *testing.T, db *gorm.DB, model interface{}, query string, args ...interface{}) int64 {
	t.Helper()
	var n int64
	if err := db.Model(model).Where(query, args...).Count(&n).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}
	return n
}

func stringPtr(s string) *string { return &s }

func decimalPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func TestSettleCreatesPaymentAndStockMoves(t *testing.T) {
	db := newTestDB(t)
	m := seedMenu(t, db)
	order := seedOrder(t, db, m, "30", types.OrderItem{RecipeID: m.cake.ID, Quantity: 2, Price: dec("15")})

	svc := NewService(db)
	result, err := svc.Settle(context.Background(), order.ID, SettleRequest{Amount: decimalPtr("30"), Method: stringPtr("CASH")})
	if err != nil {
		t.Fatalf("settle failed: %v", err)
	}

	if result.Payment.OrderID != order.ID || !result.Payment.Amount.Equal(dec("30")) || result.Payment.Method != "CASH" {
		t.Errorf("unexpected payment: %+v", result.Payment)
	}
	if result.StockMovesCreated != 2 {
		t.Fatalf("StockMovesCreated: got %d, want 2", result.StockMovesCreated)
	}
	if result.Order.Status != types.OrderStatusPaid {
		t.Errorf("order status: got %s, want PAID", result.Order.Status)
	}

	moves, err := svc.GetOrderStockMoves(context.Background(), order.ID)
	if err != nil {
		t.Fatalf("failed to list moves: %v", err)
	}
	want := map[string]string{m.flour.ID: "-1", m.sugar.ID: "-0.6"}
	if len(moves) != len(want) {
		t.Fatalf("got %d persisted moves, want %d", len(moves), len(want))
	}
	for _, mv := range moves {
		if !mv.Quantity.Equal(dec(want[mv.IngredientID])) {
			t.Errorf("%s: got %s, want %s", mv.IngredientID, mv.Quantity, want[mv.IngredientID])
		}
		if mv.Type != types.MoveTypeSale || mv.Reason != types.ReasonSale || mv.RefType != types.RefTypeOrder || mv.RefID != order.ID {
			t.Errorf("unexpected move provenance: %+v", mv)
		}
	}

	var stored types.Order
	db.First(&stored, "id = ?", order.ID)
	if stored.Status != types.OrderStatusPaid {
		t.Errorf("stored status: got %s, want PAID", stored.Status)
	}
}

func TestSettleAggregatesSharedIngredients(t *testing.T) {
	db := newTestDB(t)
	m := seedMenu(t, db)
	order := seedOrder(t, db, m, "38",
		types.OrderItem{RecipeID: m.cake.ID, Quantity: 2, Price: dec("15")},
		types.OrderItem{RecipeID: m.bread.ID, Quantity: 1, Price: dec("8")},
	)

	result, err := NewService(db).Settle(context.Background(), order.ID, SettleRequest{Amount: decimalPtr("38"), Method: stringPtr("CARD")})
	if err != nil {
		t.Fatalf("settle failed: %v", err)
	}

	if n := count(t, db, &types.StockMove{}, "ref_type = ? AND ref_id = ?", types.RefTypeOrder, order.ID); n != 2 {
		t.Fatalf("persisted moves: got %d, want 2", n)
	}

	// Moves come back in ascending ingredient id order
	if result.StockMoves[0].IngredientID != m.flour.ID || !result.StockMoves[0].Quantity.Equal(dec("-1.3")) {
		t.Errorf("flour move: got %+v, want -1.3", result.StockMoves[0])
	}
	if result.StockMoves[1].IngredientID != m.sugar.ID || !result.StockMoves[1].Quantity.Equal(dec("-0.6")) {
		t.Errorf("sugar move: got %+v, want -0.6", result.StockMoves[1])
	}
}

func TestSettleTwiceIsRejected(t *testing.T) {
	db := newTestDB(t)
	m := seedMenu(t, db)
	order := seedOrder(t, db, m, "30", types.OrderItem{RecipeID: m.cake.ID, Quantity: 2, Price: dec("15")})
	svc := NewService(db)

	if _, err := svc.Settle(context.Background(), order.ID, SettleRequest{}); err != nil {
		t.Fatalf("first settle failed: %v", err)
	}

	_, err := svc.Settle(context.Background(), order.ID, SettleRequest{})
	if !errors.Is(err, types.ErrAlreadySettled) {
		t.Fatalf("second settle: got %v, want ErrAlreadySettled", err)
	}

	if n := count(t, db, &types.Payment{}, "order_id = ?", order.ID); n != 1 {
		t.Errorf("payments: got %d, want 1", n)
	}
	if n := count(t, db, &types.StockMove{}, "ref_id = ?", order.ID); n != 2 {
		t.Errorf("stock moves: got %d, want 2", n)
	}
}

func TestSettleRollsBackWhenStockMoveFails(t *testing.T) {
	db := newTestDB(t)

	outlet := &types.Outlet{Name: "Outlet"}
	mustCreate(t, db, outlet)
	table := &types.Table{OutletID: outlet.ID, Number: "T9", Seats: 2, Status: types.TableStatusAvailable}
	mustCreate(t, db, table)

	recipe := &types.Recipe{Name: "Stew", Price: dec("12")}
	for i := 0; i < 4; i++ {
		ing := &types.Ingredient{ID: fmt.Sprintf("ing-%d", i), Name: fmt.Sprintf("Ingredient %d", i), Unit: "kg"}
		mustCreate(t, db, ing)
		recipe.Items = append(recipe.Items, types.RecipeItem{IngredientID: ing.ID, Quantity: dec("0.25"), Position: i})
	}
	mustCreate(t, db, recipe)

	order := &types.Order{TableID: table.ID, Status: types.OrderStatusSent, Total: dec("12"), Items: []types.OrderItem{
		{RecipeID: recipe.ID, Quantity: 1, Price: dec("12")},
	}}
	mustCreate(t, db, order)

	var creates int
	err := db.Callback().Create().Before("gorm:create").Register("test:fail_third_stock_move", func(tx *gorm.DB) {
		if tx.Statement.Table != "stock_moves" {
			return
		}
		creates++
		if creates == 3 {
			tx.AddError(errors.New("disk full"))
		}
	})
	if err != nil {
		t.Fatalf("failed to register callback: %v", err)
	}

	_, err = NewService(db).Settle(context.Background(), order.ID, SettleRequest{})
	if !errors.Is(err, types.ErrSettlementFailed) {
		t.Fatalf("got %v, want ErrSettlementFailed", err)
	}
	var settleErr *types.SettlementError
	if !errors.As(err, &settleErr) || settleErr.OrderID != order.ID {
		t.Errorf("expected SettlementError for order %s, got %v", order.ID, err)
	}
	if creates != 3 {
		t.Errorf("stock move inserts attempted: got %d, want 3", creates)
	}

	if n := count(t, db, &types.Payment{}, "order_id = ?", order.ID); n != 0 {
		t.Errorf("payments after rollback: got %d, want 0", n)
	}
	if n := count(t, db, &types.StockMove{}, "ref_id = ?", order.ID); n != 0 {
		t.Errorf("stock moves after rollback: got %d, want 0", n)
	}
	var stored types.Order
	db.First(&stored, "id = ?", order.ID)
	if stored.Status != types.OrderStatusSent {
		t.Errorf("status after rollback: got %s, want SENT", stored.Status)
	}
}

func TestSettleDefaults(t *testing.T) {
	tests := []struct {
		name       string
		req        SettleRequest
		wantAmount string
		wantMethod string
	}{
		{"amount defaults to order total", SettleRequest{Method: stringPtr("CASH")}, "30", "CASH"},
		{"method defaults to cash", SettleRequest{Amount: decimalPtr("25.5")}, "25.5", DefaultMethod},
		{"blank method defaults to cash", SettleRequest{Method: stringPtr("  ")}, "30", DefaultMethod},
		{"method is normalised", SettleRequest{Method: stringPtr(" card ")}, "30", "CARD"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := newTestDB(t)
			m := seedMenu(t, db)
			order := seedOrder(t, db, m, "30", types.OrderItem{RecipeID: m.cake.ID, Quantity: 2, Price: dec("15")})

			result, err := NewService(db).Settle(context.Background(), order.ID, tt.req)
			if err != nil {
				t.Fatalf("settle failed: %v", err)
			}
			if !result.Payment.Amount.Equal(dec(tt.wantAmount)) {
				t.Errorf("amount: got %s, want %s", result.Payment.Amount, tt.wantAmount)
			}
			if result.Payment.Method != tt.wantMethod {
				t.Errorf("method: got %s, want %s", result.Payment.Method, tt.wantMethod)
			}
		})
	}
}

func TestSettleUnknownOrder(t *testing.T) {
	db := newTestDB(t)
	seedMenu(t, db)

	_, err := NewService(db).Settle(context.Background(), "99999", SettleRequest{})
	if !errors.Is(err, types.ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
	if n := count(t, db, &types.Payment{}, "1 = 1"); n != 0 {
		t.Errorf("payments: got %d, want 0", n)
	}
	if n := count(t, db, &types.StockMove{}, "1 = 1"); n != 0 {
		t.Errorf("stock moves: got %d, want 0", n)
	}
}

func TestSettleRejectsNonPositiveAmount(t *testing.T) {
	db := newTestDB(t)
	m := seedMenu(t, db)
	order := seedOrder(t, db, m, "30", types.OrderItem{RecipeID: m.cake.ID, Quantity: 2, Price: dec("15")})

	for _, amount := range []string{"0", "-5"} {
		_, err := NewService(db).Settle(context.Background(), order.ID, SettleRequest{Amount: decimalPtr(amount)})
		if !errors.Is(err, types.ErrValidationFailed) {
			t.Errorf("amount %s: got %v, want ErrValidationFailed", amount, err)
		}
	}
	if n := count(t, db, &types.Payment{}, "order_id = ?", order.ID); n != 0 {
		t.Errorf("payments: got %d, want 0", n)
	}
}

func TestSettleMissingRecipeAborts(t *testing.T) {
	db := newTestDB(t)
	m := seedMenu(t, db)
	order := seedOrder(t, db, m, "30",
		types.OrderItem{RecipeID: m.cake.ID, Quantity: 1, Price: dec("15")},
		types.OrderItem{RecipeID: "deleted-recipe", Quantity: 1, Price: dec("15")},
	)

	_, err := NewService(db).Settle(context.Background(), order.ID, SettleRequest{})
	if !errors.Is(err, types.ErrSettlementFailed) || !errors.Is(err, types.ErrDataIntegrity) {
		t.Fatalf("got %v, want ErrSettlementFailed wrapping ErrDataIntegrity", err)
	}
	if n := count(t, db, &types.Payment{}, "order_id = ?", order.ID); n != 0 {
		t.Errorf("payments: got %d, want 0", n)
	}
	if n := count(t, db, &types.StockMove{}, "ref_id = ?", order.ID); n != 0 {
		t.Errorf("stock moves: got %d, want 0", n)
	}
}

func TestSettleConcurrentSameOrder(t *testing.T) {
	db := newTestDB(t)
	m := seedMenu(t, db)
	order := seedOrder(t, db, m, "38",
		types.OrderItem{RecipeID: m.cake.ID, Quantity: 2, Price: dec("15")},
		types.OrderItem{RecipeID: m.bread.ID, Quantity: 1, Price: dec("8")},
	)
	svc := NewService(db)

	const attempts = 8
	var wg sync.WaitGroup
	errs := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Settle(context.Background(), order.ID, SettleRequest{})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var succeeded, rejected int
	for err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, types.ErrAlreadySettled):
			rejected++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 || rejected != attempts-1 {
		t.Errorf("got %d successes and %d rejections, want 1 and %d", succeeded, rejected, attempts-1)
	}
	if n := count(t, db, &types.Payment{}, "order_id = ?", order.ID); n != 1 {
		t.Errorf("payments: got %d, want 1", n)
	}
	if n := count(t, db, &types.StockMove{}, "ref_id = ?", order.ID); n != 2 {
		t.Errorf("stock moves: got %d, want 2", n)
	}
}

func TestSettleEmptyOrder(t *testing.T) {
	db := newTestDB(t)
	m := seedMenu(t, db)
	order := seedOrder(t, db, m, "0")

	result, err := NewService(db).Settle(context.Background(), order.ID, SettleRequest{Amount: decimalPtr("5")})
	if err != nil {
		t.Fatalf("settle failed: %v", err)
	}
	if result.StockMovesCreated != 0 || result.Order.Status != types.OrderStatusPaid {
		t.Errorf("unexpected result: %+v", result)
	}
}
