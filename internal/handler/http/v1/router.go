package v1

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes регистрирует все маршруты API v1.
// Читающие маршруты открыты; мутирующие закрыты API-ключом,
// если ключи сконфигурированы
func (h *Handler) RegisterRoutes(api *gin.RouterGroup) {
	write := func(group *gin.RouterGroup) *gin.RouterGroup {
		if len(h.cfg.APIKeys) > 0 {
			group.Use(APIKeyAuthMiddleware(h.cfg, h.logger))
		}
		return group
	}

	// Инциденты и журналы событий
	incidents := api.Group("/incidents")
	{
		incidents.GET("", h.listIncidents)
		incidents.GET("/:id", h.getIncident)
		incidents.GET("/:id/events", h.listEvents)
	}
	incidentsWrite := write(api.Group("/incidents"))
	{
		incidentsWrite.POST("", h.createIncident)
		incidentsWrite.PATCH("/:id", h.patchIncident)
		incidentsWrite.POST("/:id/events", h.postEvent)
	}

	// Оповещения и аудит
	alerts := api.Group("/alerts")
	{
		alerts.GET("", h.listAlerts)
		alerts.GET("/audit", h.listAudit)
	}
	alertsWrite := write(api.Group("/alerts"))
	{
		alertsWrite.POST("", h.createAlert)
		alertsWrite.PATCH("", h.patchAlert)
		alertsWrite.POST("/:id/rebroadcast", h.rebroadcastAlert)
	}

	// SOS доступен без ключа: сигнал бедствия не должен упираться в аутентификацию
	api.POST("/sos", h.recordSOS)

	// Реестр согласий
	api.GET("/consent/:incidentId", h.listConsent)
	consentWrite := write(api.Group("/consent"))
	{
		consentWrite.POST("/:incidentId", h.issueConsent)
		consentWrite.DELETE("/:incidentId", h.revokeConsent)
	}

	// Маршрут Health-check
	api.GET("/system/health", h.healthCheck)
}
