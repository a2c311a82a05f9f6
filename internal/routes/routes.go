package routes

import (
	"net/http"

	"github.com/templui/fintrack/internal/app"
	"github.com/templui/fintrack/internal/handler"
	"github.com/templui/fintrack/internal/middleware"
)

func SetupRoutes(app *app.App) http.Handler {
	// Handlers
	auth := handler.NewAuthHandler(app.AuthService)
	dashboard := handler.NewDashboardHandler(app.RecordServices()...)
	health := handler.NewHealthHandler(app.DB)

	mux := http.NewServeMux()

	// ============================================================================
	// PUBLIC ROUTES
	// ============================================================================

	mux.HandleFunc("GET /healthz", health.Health)

	// Auth (rate limited)
	rateLimiter := middleware.RateLimit(app.Cfg.LoginRateLimit, app.Cfg.LoginRateWindow)

	mux.HandleFunc("GET /login", auth.LoginPage)
	mux.HandleFunc("POST /login", rateLimiter(auth.Login))
	mux.HandleFunc("POST /logout", auth.Logout)

	// ============================================================================
	// PROTECTED ROUTES (/records/*)
	// ============================================================================

	mux.HandleFunc("GET /records", middleware.RequireAuth(dashboard.DashboardPage))

	for _, recordService := range app.RecordServices() {
		records := handler.NewRecordHandler(recordService, app.Cfg.MaxUploadSize)
		base := recordService.ListPath()

		mux.HandleFunc("GET "+base, middleware.RequireAuth(records.List))
		mux.HandleFunc("GET "+base+"/{id}", middleware.RequireAuth(records.Show))
		mux.HandleFunc("GET "+base+"/{id}/attachments/{slug...}", middleware.RequireAuth(records.Attachment))
		mux.HandleFunc("POST "+base, middleware.RequireAuthAPI(records.Create))
		mux.HandleFunc("POST "+base+"/{id}", middleware.RequireAuthAPI(records.Action))
	}

	// Global middleware - executed in order (top to bottom)
	handler := middleware.Chain(
		mux,
		middleware.RequestLogging,
		middleware.AuthMiddleware(app.AuthService),
	)

	return handler
}
