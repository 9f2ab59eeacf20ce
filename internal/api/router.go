package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type Handlers struct {
	Users         *UserHandler
	SMS           *SMSHandler
	Modem         *ModemHandler
	Webhooks      *WebhookHandler
	Notifications *NotificationHandler
	Events        *EventsHandler
	// MCP is mounted at /mcp for admins when set.
	MCP http.Handler
}

// RegisterRoutes wires every endpoint under /api/v1.
func RegisterRoutes(r *gin.Engine, db *gorm.DB, h Handlers) {
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	apiGroup := r.Group("/api/v1")
	apiGroup.POST("/login", h.Users.Login)

	authGroup := apiGroup.Group("/")
	authGroup.Use(AuthMiddleware(db))
	{
		authGroup.POST("/change_password", h.Users.ChangePassword)

		authGroup.GET("/sms", h.SMS.ListSMS)
		authGroup.GET("/sms/:id", h.SMS.GetSMS)
		authGroup.POST("/sms/queue", h.SMS.EnqueueSMS)
		authGroup.POST("/notifications/reservation", h.Notifications.NotifyReservation)

		authGroup.GET("/modem/status", h.Modem.Status)
		authGroup.GET("/events", h.Events.Stream)

		adminGroup := authGroup.Group("/")
		adminGroup.Use(AdminOnly())
		{
			adminGroup.POST("/sms", h.SMS.SendSMS)

			adminGroup.GET("/modem/ports", h.Modem.ListPorts)
			adminGroup.POST("/modem/reconnect", h.Modem.Reconnect)
			adminGroup.POST("/modem/at", h.Modem.ExecuteAT)

			adminGroup.GET("/webhooks", h.Webhooks.ListWebhooks)
			adminGroup.POST("/webhooks", h.Webhooks.CreateWebhook)
			adminGroup.PUT("/webhooks/:id/enabled", h.Webhooks.SetEnabled)
			adminGroup.DELETE("/webhooks/:id", h.Webhooks.DeleteWebhook)

			adminGroup.GET("/users", h.Users.ListUsers)
			adminGroup.POST("/users", h.Users.CreateUser)
			adminGroup.DELETE("/users/:id", h.Users.DeleteUser)
		}
	}

	if h.MCP != nil {
		mcp := r.Group("/mcp", AuthMiddleware(db), AdminOnly())
		mcp.Any("", gin.WrapH(h.MCP))
	}
}
