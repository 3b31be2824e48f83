package v1

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shenikar/incident_coordination_system/internal/models"
	"github.com/shenikar/incident_coordination_system/internal/service"
)

// @Summary List public alerts
// @Description List alerts newest first, lazily expiring stale active records as a side effect of the read. With lat/lng the list is filtered by proximity to the alert geofence
// @Tags Alerts
// @Accept json
// @Produce json
// @Param lat query number false "Latitude"
// @Param lng query number false "Longitude"
// @Param radiusMeters query number false "Query radius in meters"
// @Param includeExpired query bool false "Include cancelled/expired records"
// @Success 200 {object} map[string][]AlertResponse
// @Failure 400 {object} map[string]string "Unparsable query parameter"
// @Router /alerts [get]
func (h *Handler) listAlerts(c *gin.Context) {
	log := h.logger.WithField("method", "listAlerts")

	query := service.AlertQuery{}
	if latStr, ok := c.GetQuery("lat"); ok {
		lat, err := strconv.ParseFloat(latStr, 64)
		if err != nil {
			log.WithField("lat", latStr).Warn("Invalid query parameter")
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid lat"})
			return
		}
		query.Lat = &lat
	}
	if lngStr, ok := c.GetQuery("lng"); ok {
		lng, err := strconv.ParseFloat(lngStr, 64)
		if err != nil {
			log.WithField("lng", lngStr).Warn("Invalid query parameter")
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid lng"})
			return
		}
		query.Lng = &lng
	}
	if radiusStr, ok := c.GetQuery("radiusMeters"); ok {
		radius, err := strconv.ParseFloat(radiusStr, 64)
		if err != nil {
			log.WithField("radiusMeters", radiusStr).Warn("Invalid query parameter")
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid radiusMeters"})
			return
		}
		query.RadiusMeters = radius
	}
	if includeStr, ok := c.GetQuery("includeExpired"); ok {
		include, err := strconv.ParseBool(includeStr)
		if err != nil {
			log.WithField("includeExpired", includeStr).Warn("Invalid query parameter")
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid includeExpired"})
			return
		}
		query.IncludeExpired = include
	}

	records, err := h.alertService.ListAlerts(c.Request.Context(), query)
	if err != nil {
		// Читающая поверхность не роняет дашборды: 200 с пустым
		// списком и маркером ошибки вместо 500
		log.WithError(err).Error("Failed to list alerts, degrading to empty payload")
		c.JSON(http.StatusOK, gin.H{"data": []*AlertResponse{}, "error": "temporarily unavailable"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": ModelsToAlertResponses(records)})
}

// @Summary Create a public alert
// @Description Create a geofenced alert. Languages default to ["en"], channels to ["push"]; the geofence radius is floored at 50 meters
// @Tags Alerts
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param alert body CreateAlertRequest true "Alert creation request"
// @Success 201 {object} map[string]any
// @Failure 400 {object} map[string]string "Invalid request body or validation error"
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /alerts [post]
func (h *Handler) createAlert(c *gin.Context) {
	var input CreateAlertRequest
	log := h.logger.WithField("method", "createAlert")

	if err := c.ShouldBindJSON(&input); err != nil {
		log.WithError(err).Warn("Failed to bind JSON")
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	if err := h.validate.Struct(input); err != nil {
		log.WithError(err).Warn("Validation failed")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	record, err := h.alertService.CreateAlert(c.Request.Context(), DTOToAlertModel(input))
	if err != nil {
		log.WithError(err).Error("Failed to create alert in service")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"ok": true, "record": ModelToAlertResponse(record)})
}

// @Summary Update or cancel an alert
// @Description Partial update by id in the body. status="cancelled" while the record is active cancels it; cancelling a non-active record silently falls through to the partial-update branch
// @Tags Alerts
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param alert body PatchAlertRequest true "Alert patch request"
// @Success 200 {object} map[string]any
// @Failure 400 {object} map[string]string "Invalid request body"
// @Failure 404 {object} map[string]string "Alert not found"
// @Router /alerts [patch]
func (h *Handler) patchAlert(c *gin.Context) {
	var input PatchAlertRequest
	log := h.logger.WithField("method", "patchAlert")

	if err := c.ShouldBindJSON(&input); err != nil {
		log.WithError(err).Warn("Failed to bind JSON")
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	if err := h.validate.Struct(input); err != nil {
		log.WithError(err).Warn("Validation failed")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	id, err := uuid.Parse(input.ID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid alert ID"})
		return
	}

	record, err := h.alertService.UpdateAlert(c.Request.Context(), id, DTOToAlertPatch(input))
	if err != nil {
		log.WithError(err).Warn("Failed to update alert in service")
		if errors.Is(err, service.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "alert not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true, "record": ModelToAlertResponse(record)})
}

// @Summary Rebroadcast an active alert
// @Description Re-publish an active alert to the delivery queue with a rebroadcast audit entry
// @Tags Alerts
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "Alert ID"
// @Success 200 {object} map[string]any
// @Failure 400 {object} map[string]string "Invalid alert ID"
// @Failure 404 {object} map[string]string "Alert not found"
// @Router /alerts/{id}/rebroadcast [post]
func (h *Handler) rebroadcastAlert(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid alert ID"})
		return
	}
	log := h.logger.WithField("method", "rebroadcastAlert").WithField("id", id)

	record, err := h.alertService.Rebroadcast(c.Request.Context(), id)
	if err != nil {
		log.WithError(err).Warn("Failed to rebroadcast alert in service")
		if errors.Is(err, service.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "alert not found"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "alert is not active"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true, "record": ModelToAlertResponse(record)})
}

// @Summary Get the alert audit trail
// @Description Newest 200 audit entries, newest first
// @Tags Alerts
// @Accept json
// @Produce json
// @Success 200 {object} map[string][]AuditEventResponse
// @Router /alerts/audit [get]
func (h *Handler) listAudit(c *gin.Context) {
	log := h.logger.WithField("method", "listAudit")

	events, err := h.alertService.AuditTrail(c.Request.Context(), 200)
	if err != nil {
		log.WithError(err).Error("Failed to list audit trail, degrading to empty payload")
		c.JSON(http.StatusOK, gin.H{"data": []*AuditEventResponse{}, "error": "temporarily unavailable"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": ModelsToAuditResponses(events)})
}

// @Summary Record an SOS signal
// @Description Append an sos audit entry, not tied to any alert
// @Tags Alerts
// @Accept json
// @Produce json
// @Param sos body SOSRequest true "SOS request"
// @Success 201 {object} map[string]bool
// @Failure 400 {object} map[string]string "Invalid request body"
// @Router /sos [post]
func (h *Handler) recordSOS(c *gin.Context) {
	var input SOSRequest
	log := h.logger.WithField("method", "recordSOS")

	if err := c.ShouldBindJSON(&input); err != nil {
		log.WithError(err).Warn("Failed to bind JSON")
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := h.validate.Struct(input); err != nil {
		log.WithError(err).Warn("Validation failed")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	actor := models.AuditActor(input.Actor)
	if actor == "" {
		actor = models.ActorCivilian
	}
	if err := h.alertService.RecordSOS(c.Request.Context(), actor, input.Detail); err != nil {
		log.WithError(err).Error("Failed to record SOS")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"ok": true})
}
