package v1

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shenikar/incident_coordination_system/internal/models"
	"github.com/shenikar/incident_coordination_system/internal/service"
)

// @Summary Create a new incident
// @Description Create a new coordination incident with an initial status event
// @Tags Incidents
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param incident body CreateIncidentRequest true "Incident creation request"
// @Success 201 {object} IncidentResponse
// @Failure 400 {object} map[string]string "Invalid request body or validation error"
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /incidents [post]
func (h *Handler) createIncident(c *gin.Context) {
	var input CreateIncidentRequest
	log := h.logger.WithField("method", "createIncident")

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

	incident, err := h.incidentService.CreateIncident(c.Request.Context(), DTOToParticipants(input.Participants), input.Meta)
	if err != nil {
		log.WithError(err).Error("Failed to create incident in service")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}
	c.JSON(http.StatusCreated, ModelToIncidentResponse(incident))
}

// @Summary Get a list of incidents
// @Description Get a paginated list of incidents, newest first
// @Tags Incidents
// @Accept json
// @Produce json
// @Param page query int false "Page number" default(1)
// @Param pageSize query int false "Number of items per page" default(20)
// @Success 200 {array} IncidentResponse
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /incidents [get]
func (h *Handler) listIncidents(c *gin.Context) {
	log := h.logger.WithField("method", "listIncidents")
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("pageSize", "20"))

	incidents, err := h.incidentService.ListIncidents(c.Request.Context(), page, pageSize)
	if err != nil {
		log.WithError(err).Error("Failed to list incidents from service")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	c.JSON(http.StatusOK, ModelsToIncidentResponses(incidents))
}

// @Summary Get incident by ID
// @Description Get a single incident by its ID
// @Tags Incidents
// @Accept json
// @Produce json
// @Param id path string true "Incident ID"
// @Success 200 {object} IncidentResponse
// @Failure 400 {object} map[string]string "Invalid incident ID"
// @Failure 404 {object} map[string]string "Incident not found"
// @Router /incidents/{id} [get]
func (h *Handler) getIncident(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid incident ID"})
		return
	}
	log := h.logger.WithField("method", "getIncident").WithField("id", id)

	incident, err := h.incidentService.GetIncident(c.Request.Context(), id)
	if err != nil {
		log.WithError(err).Warn("Failed to get incident from service")
		h.respondIncidentError(c, err)
		return
	}
	c.JSON(http.StatusOK, ModelToIncidentResponse(incident))
}

// @Summary Set incident status
// @Description Set the incident status and append a status event. The value is stored verbatim: transitions are not validated against a table
// @Tags Incidents
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "Incident ID"
// @Param status body PatchIncidentRequest true "Status request"
// @Success 200 {object} IncidentResponse
// @Failure 400 {object} map[string]string "Invalid incident ID or request body"
// @Failure 404 {object} map[string]string "Incident not found"
// @Router /incidents/{id} [patch]
func (h *Handler) patchIncident(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid incident ID"})
		return
	}
	log := h.logger.WithField("method", "patchIncident").WithField("id", id)

	var input PatchIncidentRequest
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

	incident, err := h.incidentService.SetStatus(c.Request.Context(), id, models.IncidentStatus(input.Status))
	if err != nil {
		log.WithError(err).Warn("Failed to set incident status in service")
		h.respondIncidentError(c, err)
		return
	}
	c.JSON(http.StatusOK, ModelToIncidentResponse(incident))
}

// @Summary Poll incident events
// @Description Pull events newer than the cursor. since=0 returns the bootstrap batch (most recent events); the response carries the server clock the client stores as its next cursor. Delivery is at-least-once: deduplicate by event id
// @Tags Events
// @Accept json
// @Produce json
// @Param id path string true "Incident ID"
// @Param since query int false "Cursor, milliseconds epoch" default(0)
// @Success 200 {object} EventsResponse
// @Failure 400 {object} map[string]string "Invalid incident ID"
// @Failure 404 {object} map[string]string "Incident not found"
// @Router /incidents/{id}/events [get]
func (h *Handler) listEvents(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid incident ID"})
		return
	}
	log := h.logger.WithField("method", "listEvents").WithField("id", id)

	sinceMs, _ := strconv.ParseInt(c.DefaultQuery("since", "0"), 10, 64)
	var since time.Time
	if sinceMs > 0 {
		since = time.UnixMilli(sinceMs)
	}

	events, now, err := h.incidentService.EventsSince(c.Request.Context(), id, since)
	if err != nil {
		log.WithError(err).Warn("Failed to fetch events from service")
		h.respondIncidentError(c, err)
		return
	}

	c.JSON(http.StatusOK, ModelsToEventsResponse(events, now))
}

// @Summary Append incident event
// @Description Append an immutable event to the incident log; bumps the incident updated_at
// @Tags Events
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "Incident ID"
// @Param event body AddEventRequest true "Event request"
// @Success 201 {object} map[string]EventResponse
// @Failure 400 {object} map[string]string "Missing type or invalid request body"
// @Failure 404 {object} map[string]string "Incident not found"
// @Router /incidents/{id}/events [post]
func (h *Handler) postEvent(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid incident ID"})
		return
	}
	log := h.logger.WithField("method", "postEvent").WithField("id", id)

	var input AddEventRequest
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

	event, err := h.incidentService.AddEvent(c.Request.Context(), id, models.EventType(input.Type), models.ParticipantRole(input.From), input.Payload)
	if err != nil {
		log.WithError(err).Warn("Failed to append event in service")
		h.respondIncidentError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"event": ModelToEventResponse(event)})
}

// respondIncidentError транслирует ошибку сервиса в статус ответа:
// неизвестный инцидент - 404, остальное - 500 без деталей
func (h *Handler) respondIncidentError(c *gin.Context, err error) {
	if errors.Is(err, service.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "incident not found"})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
}
