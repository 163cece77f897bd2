package recipes

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/ksred/bistro-api/internal/types"
	"github.com/ksred/bistro-api/pkg/response"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Service manages menu recipes and their ingredient lists
type Service struct {
	db *Database
}

func NewService(gormDB *gorm.DB) *Service {
	return &Service{
		db: NewDatabase(gormDB),
	}
}

type RecipeItemRequest struct {
	IngredientID string          `json:"ingredient_id" binding:"required"`
	Quantity     decimal.Decimal `json:"quantity"` // per unit sold
}

type CreateRecipeRequest struct {
	Name        string              `json:"name" binding:"required"`
	Description string              `json:"description"`
	Category    string              `json:"category"`
	Price       decimal.Decimal     `json:"price"`
	Items       []RecipeItemRequest `json:"items"`
}

// CreateRecipe stores a recipe and its items in one transaction. Items keep
// the order they were given in.
func (s *Service) CreateRecipe(ctx context.Context, req CreateRecipeRequest) (*types.Recipe, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, types.Invalid("name", "is required")
	}
	if req.Price.IsNegative() {
		return nil, types.Invalid("price", "must not be negative")
	}

	ids := make([]string, 0, len(req.Items))
	seen := make(map[string]bool, len(req.Items))
	for i, item := range req.Items {
		if item.IngredientID == "" {
			return nil, types.Invalid(fmt.Sprintf("items[%d].ingredient_id", i), "is required")
		}
		if item.Quantity.IsNegative() {
			return nil, types.Invalid(fmt.Sprintf("items[%d].quantity", i), "must not be negative")
		}
		if !seen[item.IngredientID] {
			seen[item.IngredientID] = true
			ids = append(ids, item.IngredientID)
		}
	}

	recipe := &types.Recipe{
		Name:        name,
		Description: req.Description,
		Category:    req.Category,
		Price:       req.Price,
	}

	err := s.db.Transaction(ctx, func(tx *Database) error {
		if len(ids) > 0 {
			n, err := tx.CountIngredients(ctx, ids)
			if err != nil {
				return err
			}
			if n != int64(len(ids)) {
				return types.Invalid("items", "references an unknown ingredient")
			}
		}

		if err := tx.CreateRecipe(recipe); err != nil {
			return err
		}
		for i, item := range req.Items {
			ri := types.RecipeItem{
				RecipeID:     recipe.ID,
				IngredientID: item.IngredientID,
				Quantity:     item.Quantity,
				Position:     i,
			}
			if err := tx.CreateRecipeItem(&ri); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if !errors.Is(err, types.ErrValidationFailed) {
			log.Error().Err(err).Str("name", name).Msg("failed to create recipe")
		}
		return nil, err
	}

	return s.db.GetRecipe(ctx, recipe.ID)
}

func (s *Service) GetRecipe(ctx context.Context, id string) (*types.Recipe, error) {
	return s.db.GetRecipe(ctx, id)
}

func (s *Service) ListRecipes(ctx context.Context) ([]types.Recipe, error) {
	return s.db.ListRecipes(ctx)
}

type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

func (h *GinHandlers) ListRecipesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		recipes, err := h.service.ListRecipes(c.Request.Context())
		response.Handle(c, recipes, err)
	}
}

func (h *GinHandlers) CreateRecipeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateRecipeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.ValidationFailed(c, err.Error())
			return
		}
		recipe, err := h.service.CreateRecipe(c.Request.Context(), req)
		response.Handle(c, recipe, err)
	}
}

func (h *GinHandlers) GetRecipeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		recipe, err := h.service.GetRecipe(c.Request.Context(), c.Param("id"))
		if errors.Is(err, types.ErrNotFound) {
			response.NotFound(c, "Recipe not found")
			return
		}
		response.Handle(c, recipe, err)
	}
}
