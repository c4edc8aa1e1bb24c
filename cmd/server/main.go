package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/jeftarmascarenhas/drex-temporary/internal/accesscontrol"
	"github.com/jeftarmascarenhas/drex-temporary/internal/auth"
	"github.com/jeftarmascarenhas/drex-temporary/internal/bond"
	"github.com/jeftarmascarenhas/drex-temporary/internal/currency"
	"github.com/jeftarmascarenhas/drex-temporary/internal/database"
	"github.com/jeftarmascarenhas/drex-temporary/internal/directory"
	"github.com/jeftarmascarenhas/drex-temporary/internal/instrument"
	"github.com/jeftarmascarenhas/drex-temporary/internal/settlement"
	"github.com/jeftarmascarenhas/drex-temporary/pkg/middleware"

	"github.com/gin-gonic/gin"
)

// The engine confirms and executes operations under its own identity; it
// must hold AUCTION_PLACEMENT and be approved as a currency spender.
const defaultEngineAddress = "settlement-engine"

// init configures the application logging based on environment settings
// In development mode, it enables pretty printing with timestamps
// Debug logging can be enabled via DEBUG environment variable
func init() {
	// Configure pretty logging for development
	if os.Getenv("ENV") != "production" {
		output := zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
		zlog.Logger = zerolog.New(output).With().Timestamp().Logger()
	}

	// Set global log level
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if os.Getenv("DEBUG") == "true" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}

// main initializes and runs the settlement API server with graceful
// shutdown support. It wires the ledgers, the settlement engine, and the
// API routes.
func main() {
	// Initialize database
	db, err := database.NewDatabase()
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to initialize database")
	}

	// Initialize router
	router := gin.Default()

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		jwtSecret = "drex-secret-key"
	}

	engineAddress := os.Getenv("ENGINE_ADDRESS")
	if engineAddress == "" {
		engineAddress = defaultEngineAddress
	}

	// Initialize services and handlers
	authService := auth.NewService(jwtSecret)
	authHandlers := auth.NewGinHandlers(authService)

	rolesService := accesscontrol.NewService(db)
	rolesHandlers := accesscontrol.NewGinHandlers(rolesService)

	directoryService := directory.NewService(db, rolesService)
	directoryHandlers := directory.NewGinHandlers(directoryService)

	instrumentService := instrument.NewService(db, rolesService)
	instrumentHandlers := instrument.NewGinHandlers(instrumentService)

	bondService := bond.NewService(db, rolesService, instrumentService)
	bondHandlers := bond.NewGinHandlers(bondService)

	currencyService := currency.NewService(db, rolesService)
	currencyHandlers := currency.NewGinHandlers(currencyService)

	settlementService := settlement.NewService(
		db, rolesService, directoryService, instrumentService,
		bondService, currencyService, engineAddress,
	)
	settlementHandlers := settlement.NewGinHandlers(settlementService)

	// Setup middleware
	router.Use(middleware.RateLimit())

	// Setup API routes
	setupRoutes(router, authHandlers, rolesHandlers, directoryHandlers,
		instrumentHandlers, bondHandlers, currencyHandlers, settlementHandlers)

	// Get port from env otherwise it's 8080
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// Create server
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: router,
	}

	// Graceful shutdown setup
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal().Err(err).Msg("listen")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zlog.Info().Msg("Shutting down server...")

	// Give outstanding operations 5 seconds to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	zlog.Info().Msg("Server exiting")
}

// setupRoutes configures all API endpoints and their handlers.
// Participant routes require a JWT; provisioning routes sit under
// /internal and should additionally be protected by the deployment's
// internal network.
func setupRoutes(
	router *gin.Engine,
	authHandlers *auth.GinHandlers,
	rolesHandlers *accesscontrol.GinHandlers,
	directoryHandlers *directory.GinHandlers,
	instrumentHandlers *instrument.GinHandlers,
	bondHandlers *bond.GinHandlers,
	currencyHandlers *currency.GinHandlers,
	settlementHandlers *settlement.GinHandlers,
) {
	v1 := router.Group("/api/v1")
	{
		// Auth routes
		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/token", authHandlers.GenerateTokenHandler())
		}

		// Settlement operation routes
		operations := v1.Group("/operations")
		operations.Use(middleware.JWTAuth())
		{
			operations.POST("/confirm", settlementHandlers.ConfirmHandler())
			operations.GET("/:operation_id", settlementHandlers.QueryHandler())
			operations.GET("/:operation_id/events", settlementHandlers.EventsHandler())
		}

		// Participant ledger queries and allowance management
		ledgers := v1.Group("/ledgers")
		ledgers.Use(middleware.JWTAuth())
		{
			ledgers.GET("/bond/:holder/:instrument_id", bondHandlers.BalanceHandler())
			ledgers.GET("/currency/:holder", currencyHandlers.BalanceHandler())
			ledgers.GET("/currency/:holder/allowances/:spender", currencyHandlers.AllowanceHandler())
			ledgers.POST("/currency/approve", currencyHandlers.ApproveHandler())
		}

		// Internal provisioning routes (should be protected by internal network)
		internal := v1.Group("/internal")
		internal.Use(middleware.InternalAuth())
		{
			internal.POST("/roles", rolesHandlers.GrantRoleHandler())
			internal.DELETE("/roles", rolesHandlers.RevokeRoleHandler())
			internal.POST("/institutions", directoryHandlers.RegisterAccountHandler())
			internal.GET("/institutions/:institution_id", directoryHandlers.GetInstitutionHandler())
			internal.POST("/instruments", instrumentHandlers.CreateInstrumentHandler())
			internal.POST("/instruments/resolve", instrumentHandlers.ResolveInstrumentHandler())
			internal.POST("/bond/enable", bondHandlers.EnableAddressHandler())
			internal.POST("/bond/disable", bondHandlers.DisableAddressHandler())
			internal.POST("/bond/mint", bondHandlers.MintHandler())
			internal.POST("/currency/mint", currencyHandlers.MintHandler())
			internal.POST("/currency/burn", currencyHandlers.BurnHandler())
		}
	}
}
