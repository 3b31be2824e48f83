package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// @Summary List consent tokens for an incident
// @Description Tokens newest-issued first. The read never fails hard: storage errors degrade to an empty list with an error marker
// @Tags Consent
// @Accept json
// @Produce json
// @Param incidentId path string true "Incident ID"
// @Success 200 {object} map[string]any
// @Failure 400 {object} map[string]string "Invalid incident ID"
// @Router /consent/{incidentId} [get]
func (h *Handler) listConsent(c *gin.Context) {
	incidentID, err := uuid.Parse(c.Param("incidentId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid incident ID"})
		return
	}
	log := h.logger.WithField("method", "listConsent").WithField("incident_id", incidentID)

	tokens, err := h.consentService.List(c.Request.Context(), incidentID)
	if err != nil {
		// Мягкий отказ: пустой список с маркером ошибки вместо 500,
		// чтобы читающие UI оставались живыми
		log.WithError(err).Warn("Consent list degraded to empty payload")
		c.JSON(http.StatusOK, gin.H{"items": []*ConsentTokenResponse{}, "error": "temporarily unavailable"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"items": ModelsToConsentResponses(tokens)})
}

// @Summary Issue a consent token
// @Description Issue a scoped consent token for an incident. The response carries the stored record and a signed time-boxed bearer credential
// @Tags Consent
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param incidentId path string true "Incident ID"
// @Param consent body IssueConsentRequest true "Consent issue request"
// @Success 201 {object} map[string]any
// @Failure 400 {object} map[string]string "Invalid incident ID or request body"
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /consent/{incidentId} [post]
func (h *Handler) issueConsent(c *gin.Context) {
	incidentID, err := uuid.Parse(c.Param("incidentId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid incident ID"})
		return
	}
	log := h.logger.WithField("method", "issueConsent").WithField("incident_id", incidentID)

	var input IssueConsentRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		log.WithError(err).Warn("Failed to bind JSON")
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	token, credential, err := h.consentService.Issue(c.Request.Context(), incidentID, input.Fields, input.Note)
	if err != nil {
		// Путь записи: настоящая ошибка вместо мягкого отказа
		log.WithError(err).Error("Failed to issue consent token")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"item": ModelToConsentResponse(token), "credential": credential})
}

// @Summary Revoke a consent token
// @Description Mark a token revoked. The record is kept for audit; revoking an unknown or already-revoked token returns ok=false
// @Tags Consent
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param incidentId path string true "Incident ID"
// @Param token query string true "Token ID"
// @Success 200 {object} map[string]bool
// @Failure 400 {object} map[string]string "Missing or invalid token ID"
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /consent/{incidentId} [delete]
func (h *Handler) revokeConsent(c *gin.Context) {
	incidentID, err := uuid.Parse(c.Param("incidentId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid incident ID"})
		return
	}
	log := h.logger.WithField("method", "revokeConsent").WithField("incident_id", incidentID)

	tokenParam := c.Query("token")
	if tokenParam == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "token query parameter is required"})
		return
	}
	tokenID, err := uuid.Parse(tokenParam)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid token ID"})
		return
	}

	ok, err := h.consentService.Revoke(c.Request.Context(), incidentID, tokenID)
	if err != nil {
		log.WithError(err).Error("Failed to revoke consent token")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": ok})
}
