package recipes

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

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

func seedIngredient(t *testing.T, db *gorm.DB, name string) types.Ingredient {
	t.Helper()
	ing := types.Ingredient{Name: name, Unit: "kg"}
	if err := db.Create(&ing).Error; err != nil {
		t.Fatalf("seed %s: %v", name, err)
	}
	return ing
}

func TestCreateRecipeKeepsItemOrder(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	sugar := seedIngredient(t, db, "Sugar")
	flour := seedIngredient(t, db, "Flour")

	recipe, err := svc.CreateRecipe(context.Background(), CreateRecipeRequest{
		Name:  "Cake",
		Price: decimal.RequireFromString("4.5"),
		Items: []RecipeItemRequest{
			{IngredientID: sugar.ID, Quantity: decimal.RequireFromString("0.3")},
			{IngredientID: flour.ID, Quantity: decimal.RequireFromString("0.5")},
		},
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if len(recipe.Items) != 2 {
		t.Fatalf("items: got %d, want 2", len(recipe.Items))
	}
	if recipe.Items[0].IngredientID != sugar.ID || recipe.Items[1].IngredientID != flour.ID {
		t.Errorf("items out of order: %+v", recipe.Items)
	}
	if recipe.Items[1].Ingredient == nil || recipe.Items[1].Ingredient.Name != "Flour" {
		t.Errorf("item ingredient not loaded: %+v", recipe.Items[1])
	}
	if !recipe.Items[1].Quantity.Equal(decimal.RequireFromString("0.5")) {
		t.Errorf("quantity: got %s, want 0.5", recipe.Items[1].Quantity)
	}
}

func TestCreateRecipeValidation(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	flour := seedIngredient(t, db, "Flour")

	tests := []struct {
		name string
		req  CreateRecipeRequest
	}{
		{"blank name", CreateRecipeRequest{Name: "  "}},
		{"negative price", CreateRecipeRequest{Name: "Cake", Price: decimal.NewFromInt(-1)}},
		{"negative quantity", CreateRecipeRequest{Name: "Cake", Items: []RecipeItemRequest{{IngredientID: flour.ID, Quantity: decimal.NewFromInt(-1)}}}},
		{"unknown ingredient", CreateRecipeRequest{Name: "Cake", Items: []RecipeItemRequest{{IngredientID: "missing", Quantity: decimal.NewFromInt(1)}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.CreateRecipe(context.Background(), tt.req); !errors.Is(err, types.ErrValidationFailed) {
				t.Errorf("got %v, want ErrValidationFailed", err)
			}
		})
	}

	recipes, err := svc.ListRecipes(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(recipes) != 0 {
		t.Errorf("rejected recipes were stored: %d", len(recipes))
	}
}

func TestRecipeHandlers(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := newTestDB(t)
	flour := seedIngredient(t, db, "Flour")
	h := NewGinHandlers(NewService(db))
	router := gin.New()
	router.GET("/recipes", h.ListRecipesHandler())
	router.POST("/recipes", h.CreateRecipeHandler())
	router.GET("/recipes/:id", h.GetRecipeHandler())

	do := func(method, path, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	rec := do(http.MethodPost, "/recipes", `{"name":"Bread","price":2.25,"items":[{"ingredient_id":"`+flour.ID+`","quantity":0.3}]}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: got %d, body %s", rec.Code, rec.Body.String())
	}
	var created struct {
		Data types.Recipe `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatal(err)
	}

	if rec := do(http.MethodGet, "/recipes/"+created.Data.ID, ""); rec.Code != http.StatusOK {
		t.Errorf("get: got %d", rec.Code)
	}
	if rec := do(http.MethodGet, "/recipes/missing", ""); rec.Code != http.StatusNotFound {
		t.Errorf("get missing: got %d, want 404", rec.Code)
	}
	if rec := do(http.MethodPost, "/recipes", `{"price":1}`); rec.Code != http.StatusBadRequest {
		t.Errorf("missing name: got %d, want 400", rec.Code)
	}

	rec = do(http.MethodGet, "/recipes", "")
	var list struct {
		Data []types.Recipe `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatal(err)
	}
	if len(list.Data) != 1 || len(list.Data[0].Items) != 1 {
		t.Errorf("list: %+v", list.Data)
	}
}
