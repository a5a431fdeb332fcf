package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/openwebui-monitor/server/internal/billing"
	"github.com/openwebui-monitor/server/internal/catalog"
	"github.com/openwebui-monitor/server/internal/config"
	"github.com/openwebui-monitor/server/internal/http/handlers"
	"github.com/openwebui-monitor/server/internal/pricing"
	"github.com/openwebui-monitor/server/internal/users"
)

// Deps carries the constructed collaborators the router wires into handlers.
type Deps struct {
	DB           *gorm.DB
	Orchestrator *billing.Orchestrator
	Resolver     *pricing.Resolver
	Users        *users.Store
	Catalog      *catalog.Client
	Auth         config.AuthConfig
}

// NewRouter builds the gin engine with all routes registered.
func NewRouter(deps Deps) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	billHandler := handlers.NewBillHandler(deps.Orchestrator)
	userHandler := handlers.NewUserHandler(deps.Users)
	priceHandler := handlers.NewModelPriceHandler(deps.Resolver, deps.Catalog)
	recordHandler := handlers.NewRecordHandler(deps.DB)
	statsHandler := handlers.NewStatsHandler(deps.DB)
	databaseHandler := handlers.NewDatabaseHandler(deps.DB)
	authHandler := handlers.NewAuthHandler(deps.Auth.AccessToken, deps.Auth.JWTSecret, deps.Auth.JWTExpiry)

	api := router.Group("/api/v1")

	api.POST("/auth/token", authHandler.Token)

	// Gateway-facing endpoints authenticate with the shared API key.
	gateway := api.Group("", APIKeyAuthMiddleware(deps.Auth.APIKey))
	{
		gateway.POST("/bill", billHandler.Bill)
		gateway.POST("/users/ensure", userHandler.Ensure)
	}

	// Panel endpoints accept the access token or a session JWT.
	panel := api.Group("", PanelAuthMiddleware(deps.Auth.AccessToken, deps.Auth.JWTSecret))
	{
		panel.GET("/models", priceHandler.List)
		panel.POST("/models/prices", priceHandler.UpdatePrices)

		panel.GET("/users", userHandler.List)
		panel.DELETE("/users/:id", userHandler.Delete)
		panel.PUT("/users/:id/balance", userHandler.SetBalance)

		panel.GET("/panel/records", recordHandler.List)
		panel.GET("/panel/records/export", recordHandler.ExportCSV)
		panel.GET("/panel/usage", statsHandler.Usage)
		panel.GET("/panel/database/export", databaseHandler.Export)
		panel.POST("/panel/database/import", databaseHandler.Import)
	}

	return router
}
