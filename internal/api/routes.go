package api

import (
	"github.com/labstack/echo/v4"
)

// Dependencies holds all handler dependencies
type Dependencies struct {
	SessionMgr     SessionManager
	Version        string
	RowsPerPage    int
	WSMaxMessageKB int
}

// Handlers holds all handler instances
type Handlers struct {
	Health       HealthHandler
	Import       ImportHandler
	Session      SessionHandler
	Notification NotificationHandler
	WebSocket    *WebSocketHandler
}

// NewHandlers creates all handler instances
func NewHandlers(deps *Dependencies) *Handlers {
	return &Handlers{
		Health:       NewHealthHandler(deps.Version, deps.SessionMgr),
		Import:       NewImportHandler(deps.SessionMgr),
		Session:      NewSessionHandler(deps.SessionMgr),
		Notification: NewNotificationHandler(deps.SessionMgr, deps.RowsPerPage),
		WebSocket:    NewWebSocketHandler(deps.SessionMgr, deps.WSMaxMessageKB),
	}
}

// RegisterRoutes registers all API routes with the Echo instance
func RegisterRoutes(e *echo.Echo, handlers *Handlers) {
	apiGroup := e.Group("/api")

	// Health check
	apiGroup.GET("/health", handlers.Health.HandleHealth)

	// Sessions
	apiGroup.POST("/sessions", handlers.Session.HandleCreateSession)
	apiGroup.DELETE("/sessions/:id", handlers.Session.HandleDeleteSession)

	// Imports
	apiGroup.POST("/imports", handlers.Import.HandleStartImport)

	// Notifications
	notifications := apiGroup.Group("/notifications")
	notifications.GET("", handlers.Notification.HandleListNotifications)
	notifications.GET("/:index", handlers.Notification.HandleGetNotification)
	notifications.DELETE("/:index", handlers.Notification.HandleDeleteNotification)
	notifications.GET("/:index/progress", handlers.Notification.HandleProgressStream)
	notifications.GET("/:index/summary", handlers.Notification.HandleGetSummary)
	notifications.GET("/:index/summary/msgpack", handlers.Notification.HandleGetSummaryMsgpack)
	notifications.GET("/:index/summary/csv", handlers.Notification.HandleExportSummaryCSV)

	// WebSocket endpoint
	if handlers.WebSocket != nil {
		apiGroup.GET("/ws/notifications", handlers.WebSocket.HandleWebSocket)
	}
}

// SetupMiddleware configures common middleware
func SetupMiddleware(e *echo.Echo) {
	// Use custom error handler
	e.HTTPErrorHandler = ErrorHandler
}
