package v1

import (
	"time"

	"github.com/shenikar/incident_coordination_system/internal/models"
	"github.com/shenikar/incident_coordination_system/internal/service"
)

// DTOToParticipants преобразует DTO участников в доменные модели
func DTOToParticipants(dtos []ParticipantDTO) []models.Participant {
	participants := make([]models.Participant, len(dtos))
	for i, dto := range dtos {
		participants[i] = models.Participant{
			ID:        dto.ID,
			Role:      models.ParticipantRole(dto.Role),
			Name:      dto.Name,
			Connected: dto.Connected,
		}
	}
	return participants
}

// ModelToIncidentResponse преобразует доменную модель в DTO для ответа
func ModelToIncidentResponse(model *models.Incident) *IncidentResponse {
	participants := make([]ParticipantDTO, len(model.Participants))
	for i, p := range model.Participants {
		participants[i] = ParticipantDTO{
			ID:        p.ID,
			Role:      string(p.Role),
			Name:      p.Name,
			Connected: p.Connected,
		}
	}
	return &IncidentResponse{
		ID:           model.ID,
		Status:       string(model.Status),
		Participants: participants,
		Meta:         model.Meta,
		CreatedAt:    model.CreatedAt,
		UpdatedAt:    model.UpdatedAt,
	}
}

// ModelsToIncidentResponses преобразует слайс моделей в слайс DTO
func ModelsToIncidentResponses(incidents []*models.Incident) []*IncidentResponse {
	responses := make([]*IncidentResponse, len(incidents))
	for i, incident := range incidents {
		responses[i] = ModelToIncidentResponse(incident)
	}
	return responses
}

// ModelToEventResponse преобразует событие журнала в DTO.
// Метка времени уходит клиенту в миллисекундах epoch
func ModelToEventResponse(model *models.IncidentEvent) EventResponse {
	return EventResponse{
		ID:         model.ID,
		IncidentID: model.IncidentID,
		At:         model.At.UnixMilli(),
		Type:       string(model.Type),
		From:       string(model.From),
		Payload:    model.Payload,
	}
}

// ModelsToEventsResponse собирает ответ синхронизации
func ModelsToEventsResponse(events []*models.IncidentEvent, now time.Time) EventsResponse {
	responses := make([]EventResponse, len(events))
	for i, event := range events {
		responses[i] = ModelToEventResponse(event)
	}
	return EventsResponse{
		Events: responses,
		Now:    now.UnixMilli(),
	}
}

// DTOToAlertModel преобразует DTO создания в доменную модель
func DTOToAlertModel(dto CreateAlertRequest) *models.AlertRecord {
	record := &models.AlertRecord{
		Type:      models.AlertType(dto.Type),
		Severity:  models.AlertSeverity(dto.Severity),
		Title:     dto.Title,
		Message:   dto.Message,
		Languages: dto.Languages,
		Channels:  dto.Channels,
		Source:    dto.Source,
		ExpiresAt: dto.ExpiresAt,
	}
	if dto.Area != nil {
		record.Area = &models.AlertArea{
			Lat:          dto.Area.Lat,
			Lng:          dto.Area.Lng,
			RadiusMeters: dto.Area.RadiusMeters,
		}
	}
	return record
}

// DTOToAlertPatch преобразует DTO частичного обновления в патч сервиса
func DTOToAlertPatch(dto PatchAlertRequest) service.AlertPatch {
	patch := service.AlertPatch{
		Title:     dto.Title,
		Message:   dto.Message,
		Languages: dto.Languages,
		Channels:  dto.Channels,
		Source:    dto.Source,
		ExpiresAt: dto.ExpiresAt,
	}
	if dto.Status != nil {
		status := models.AlertStatus(*dto.Status)
		patch.Status = &status
	}
	if dto.Type != nil {
		alertType := models.AlertType(*dto.Type)
		patch.Type = &alertType
	}
	if dto.Severity != nil {
		severity := models.AlertSeverity(*dto.Severity)
		patch.Severity = &severity
	}
	if dto.Area != nil {
		patch.Area = &models.AlertArea{
			Lat:          dto.Area.Lat,
			Lng:          dto.Area.Lng,
			RadiusMeters: dto.Area.RadiusMeters,
		}
	}
	return patch
}

// ModelToAlertResponse преобразует доменную модель в DTO для ответа
func ModelToAlertResponse(model *models.AlertRecord) *AlertResponse {
	response := &AlertResponse{
		ID:        model.ID,
		Status:    string(model.Status),
		Type:      string(model.Type),
		Severity:  string(model.Severity),
		Title:     model.Title,
		Message:   model.Message,
		Languages: model.Languages,
		Channels:  model.Channels,
		Source:    model.Source,
		ExpiresAt: model.ExpiresAt,
		CreatedAt: model.CreatedAt,
		UpdatedAt: model.UpdatedAt,
	}
	if model.Area != nil {
		response.Area = &AlertAreaDTO{
			Lat:          model.Area.Lat,
			Lng:          model.Area.Lng,
			RadiusMeters: model.Area.RadiusMeters,
		}
	}
	return response
}

// ModelsToAlertResponses преобразует слайс моделей в слайс DTO
func ModelsToAlertResponses(records []*models.AlertRecord) []*AlertResponse {
	responses := make([]*AlertResponse, len(records))
	for i, record := range records {
		responses[i] = ModelToAlertResponse(record)
	}
	return responses
}

// ModelsToAuditResponses преобразует записи аудита в DTO
func ModelsToAuditResponses(events []*models.AuditEvent) []*AuditEventResponse {
	responses := make([]*AuditEventResponse, len(events))
	for i, event := range events {
		responses[i] = &AuditEventResponse{
			ID:        event.ID,
			AlertID:   event.AlertID,
			Timestamp: event.Timestamp,
			Actor:     string(event.Actor),
			Action:    string(event.Action),
			Detail:    event.Detail,
		}
	}
	return responses
}

// ModelToConsentResponse преобразует токен согласия в DTO
func ModelToConsentResponse(model *models.ConsentToken) *ConsentTokenResponse {
	return &ConsentTokenResponse{
		ID:         model.ID,
		IncidentID: model.IncidentID,
		Fields:     model.Fields,
		Note:       model.Note,
		IssuedAt:   model.IssuedAt,
		RevokedAt:  model.RevokedAt,
	}
}

// ModelsToConsentResponses преобразует слайс токенов в слайс DTO
func ModelsToConsentResponses(tokens []*models.ConsentToken) []*ConsentTokenResponse {
	responses := make([]*ConsentTokenResponse, len(tokens))
	for i, token := range tokens {
		responses[i] = ModelToConsentResponse(token)
	}
	return responses
}
