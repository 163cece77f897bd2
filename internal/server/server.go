package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/ksred/bistro-api/internal/auth"
	"github.com/ksred/bistro-api/internal/config"
	"github.com/ksred/bistro-api/internal/inventory"
	"github.com/ksred/bistro-api/internal/pos"
	"github.com/ksred/bistro-api/internal/procurement"
	"github.com/ksred/bistro-api/internal/recipes"
	"github.com/ksred/bistro-api/internal/settlement"
	"github.com/ksred/bistro-api/pkg/middleware"
	"github.com/ksred/bistro-api/pkg/response"
	"gorm.io/gorm"
)

// Server owns the services behind the HTTP API
type Server struct {
	cfg       config.Config
	db        *gorm.DB
	router    *gin.Engine
	Inventory *inventory.Service
}

func New(db *gorm.DB, cfg config.Config) *Server {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestLogger())
	router.Use(middleware.RateLimit(middleware.NewRateLimiter(cfg.RateLimit)))

	s := &Server{
		cfg:       cfg,
		db:        db,
		router:    router,
		Inventory: inventory.NewService(db),
	}
	s.setupRoutes()
	return s
}

// Handler returns the router wrapped in the CORS policy
func (s *Server) Handler() http.Handler {
	return middleware.CORS(s.cfg.AllowedOrigins).Handler(s.router)
}

func (s *Server) healthHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		sqlDB, err := s.db.DB()
		if err == nil {
			err = sqlDB.PingContext(c.Request.Context())
		}
		if err != nil {
			response.Fail(c, err, "Database unavailable")
			return
		}
		response.Success(c, gin.H{"status": "ok"})
	}
}

func (s *Server) setupRoutes() {
	authService := auth.NewService(s.cfg.JWTSecret)
	authHandlers := auth.NewGinHandlers(authService)
	posHandlers := pos.NewGinHandlers(pos.NewService(s.db))
	settlementHandlers := settlement.NewGinHandlers(settlement.NewService(s.db))
	recipeHandlers := recipes.NewGinHandlers(recipes.NewService(s.db))
	inventoryHandlers := inventory.NewGinHandlers(s.Inventory)
	procurementHandlers := procurement.NewGinHandlers(procurement.NewService(s.db))

	s.router.GET("/health", s.healthHandler())
	s.router.POST("/auth/login", authHandlers.LoginHandler())

	api := s.router.Group("")
	if s.cfg.AuthRequired {
		api.Use(middleware.JWTAuth(authService))
	}

	posGroup := api.Group("/pos")
	{
		posGroup.GET("/outlets", posHandlers.ListOutletsHandler())
		posGroup.POST("/outlets", posHandlers.CreateOutletHandler())

		posGroup.GET("/tables", posHandlers.ListTablesHandler())
		posGroup.POST("/tables", posHandlers.CreateTableHandler())
		posGroup.GET("/tables/:id", posHandlers.GetTableHandler())
		posGroup.PUT("/tables/:id", posHandlers.UpdateTableHandler())
		posGroup.DELETE("/tables/:id", posHandlers.DeleteTableHandler())

		posGroup.GET("/orders", posHandlers.ListOrdersHandler())
		posGroup.POST("/orders", posHandlers.CreateOrderHandler())
		posGroup.GET("/orders/:id", posHandlers.GetOrderHandler())
		posGroup.POST("/orders/:id/items", posHandlers.AddItemHandler())
		posGroup.POST("/orders/:id/send", posHandlers.SendOrderHandler())
		posGroup.POST("/orders/:id/pay", settlementHandlers.SettleOrderHandler())
		posGroup.GET("/orders/:id/payments", settlementHandlers.ListOrderPaymentsHandler())
		posGroup.GET("/orders/:id/stock-moves", settlementHandlers.ListOrderStockMovesHandler())
	}

	api.GET("/kds/tickets", posHandlers.KitchenTicketsHandler())

	recipeGroup := api.Group("/recipes")
	{
		recipeGroup.GET("", recipeHandlers.ListRecipesHandler())
		recipeGroup.POST("", recipeHandlers.CreateRecipeHandler())
		recipeGroup.GET("/:id", recipeHandlers.GetRecipeHandler())
	}

	inventoryGroup := api.Group("/inventory")
	{
		inventoryGroup.GET("/ingredients", inventoryHandlers.ListIngredientsHandler())
		inventoryGroup.POST("/ingredients", inventoryHandlers.CreateIngredientHandler())
		inventoryGroup.GET("/ingredients/low-stock", inventoryHandlers.LowStockHandler())
		inventoryGroup.GET("/stock-moves", inventoryHandlers.ListStockMovesHandler())
		inventoryGroup.POST("/stock-moves", inventoryHandlers.CreateStockMoveHandler())
	}

	procurementGroup := api.Group("/procurement")
	{
		procurementGroup.GET("/suppliers", procurementHandlers.ListSuppliersHandler())
		procurementGroup.POST("/suppliers", procurementHandlers.CreateSupplierHandler())
		procurementGroup.GET("/pos", procurementHandlers.ListPurchaseOrdersHandler())
		procurementGroup.POST("/pos", procurementHandlers.CreatePurchaseOrderHandler())
		procurementGroup.POST("/grns", procurementHandlers.CreateGRNHandler())
	}
}
