package routes

import (
	"net/http"
	"time"

	"medilink/handlers"
	"medilink/middleware"
	"medilink/utils"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// RegisterEmergencyRoutes registers the patient-facing dispatch endpoints.
func RegisterEmergencyRoutes(r *gin.Engine, hb *handlers.HandlerBundle) {
	api := r.Group("/api/emergencies")
	{
		api.Use(middleware.JWTAuthMiddleware("patient", "admin"))
		api.POST("", hb.Emergency.Create)
		api.GET("/:id", hb.Emergency.Get)
		api.GET("/:id/status", hb.Emergency.GetStatus)
		api.DELETE("/:id", hb.Emergency.Cancel)
	}
}

// RegisterDoctorRoutes registers availability and offer-response endpoints.
func RegisterDoctorRoutes(r *gin.Engine, hb *handlers.HandlerBundle) {
	api := r.Group("/api/doctors")
	{
		api.Use(middleware.JWTAuthMiddleware("doctor"))
		api.PUT("/availability", hb.Doctor.UpsertAvailability)
		api.POST("/online", hb.Doctor.SetOnline)
		api.POST("/heartbeat", hb.Doctor.Heartbeat)
		api.POST("/offers/:offerID/respond", hb.Doctor.RespondOffer)
	}
}

// RegisterSessionRoutes registers the consultation and chat endpoints
// shared by both participants.
func RegisterSessionRoutes(r *gin.Engine, hb *handlers.HandlerBundle) {
	api := r.Group("/api/sessions")
	{
		api.Use(middleware.JWTAuthMiddleware("patient", "doctor"))
		api.GET("/:id", hb.Session.Get)
		api.POST("/:id/disconnect", hb.Session.ReportDisconnect)
		api.POST("/:id/reconnect", hb.Session.Reconnect)
		api.POST("/:id/mute", hb.Session.Mute)

		api.POST("/:id/messages", hb.Chat.Send)
		api.POST("/:id/attachments", hb.Chat.SendAttachment)
		api.GET("/:id/messages", hb.Chat.History)
		api.POST("/:id/read", hb.Chat.MarkRead)

		// Only the doctor closes a consultation as completed.
		api.POST("/:id/end", middleware.JWTAuthMiddleware("doctor"), hb.Session.End)
	}
}

// RegisterDeviceRoutes registers push-token management for any caller.
func RegisterDeviceRoutes(r *gin.Engine, hb *handlers.HandlerBundle) {
	api := r.Group("/api/devices")
	{
		api.Use(middleware.JWTAuthMiddleware())
		api.PUT("", hb.Device.Register)
		api.DELETE("", hb.Device.Remove)
	}
}

// RegisterHealthRoute registers a health-check endpoint.
func RegisterHealthRoute(r *gin.Engine) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "services": utils.GetHealthStatus()})
	})
}

// RegisterRoutes centralizes registration of all endpoints and middleware.
func RegisterRoutes(r *gin.Engine, hb *handlers.HandlerBundle) {
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Authorization", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	r.Use(utils.ErrorHandler())
	r.Use(middleware.RateLimitMiddleware())

	RegisterEmergencyRoutes(r, hb)
	RegisterDoctorRoutes(r, hb)
	RegisterSessionRoutes(r, hb)
	RegisterDeviceRoutes(r, hb)
	RegisterHealthRoute(r)
}
