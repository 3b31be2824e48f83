package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shenikar/incident_coordination_system/internal/config"
	"github.com/shenikar/incident_coordination_system/internal/models"
	"github.com/sirupsen/logrus"
)

// IncidentRepository определяет контракт хранилища инцидентов и их журналов.
// AppendEvent присваивает событию ID и метку At и атомарно поднимает
// UpdatedAt инцидента до At события.
type IncidentRepository interface {
	Create(ctx context.Context, incident *models.Incident) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Incident, error)
	List(ctx context.Context, page, pageSize int) ([]*models.Incident, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status models.IncidentStatus) error
	AppendEvent(ctx context.Context, event *models.IncidentEvent) error
	// EventsSince: нулевой since - последние limit событий журнала
	// (бутстрап), иначе все события с At строго больше since.
	// Возвращаемое now снимается после сбора пакета и служит курсором.
	EventsSince(ctx context.Context, incidentID uuid.UUID, since time.Time, limit int) ([]*models.IncidentEvent, time.Time, error)
}

// IncidentService определяет контракт бизнес-логики координации инцидентов
type IncidentService interface {
	CreateIncident(ctx context.Context, participants []models.Participant, meta map[string]any) (*models.Incident, error)
	GetIncident(ctx context.Context, id uuid.UUID) (*models.Incident, error)
	ListIncidents(ctx context.Context, page, pageSize int) ([]*models.Incident, error)
	AddEvent(ctx context.Context, incidentID uuid.UUID, eventType models.EventType, from models.ParticipantRole, payload json.RawMessage) (*models.IncidentEvent, error)
	SetStatus(ctx context.Context, incidentID uuid.UUID, status models.IncidentStatus) (*models.Incident, error)
	EventsSince(ctx context.Context, incidentID uuid.UUID, since time.Time) ([]*models.IncidentEvent, time.Time, error)
}

type incidentService struct {
	repo   IncidentRepository
	logger *logrus.Logger
	cfg    *config.Config
}

func NewIncidentService(repo IncidentRepository, logger *logrus.Logger, cfg *config.Config) IncidentService {
	return &incidentService{
		repo:   repo,
		logger: logger,
		cfg:    cfg,
	}
}

// CreateIncident создает инцидент со статусом open и добавляет в журнал
// синтетическое событие status "Incident created" от роли system
func (s *incidentService) CreateIncident(ctx context.Context, participants []models.Participant, meta map[string]any) (*models.Incident, error) {
	log := s.logger.WithFields(logrus.Fields{
		"service": "incident",
		"method":  "CreateIncident",
	})
	log.Info("Attempting to create a new incident")

	incident := &models.Incident{
		Status:       models.IncidentStatusOpen,
		Participants: participants,
		Meta:         meta,
	}
	if incident.Participants == nil {
		incident.Participants = []models.Participant{}
	}

	if err := s.repo.Create(ctx, incident); err != nil {
		log.WithError(err).Error("Failed to create incident in repository")
		return nil, fmt.Errorf("service: could not create incident: %w", err)
	}

	payload, _ := json.Marshal(models.StatusPayload{
		Status: models.IncidentStatusOpen,
		Note:   "Incident created",
	})
	event := &models.IncidentEvent{
		IncidentID: incident.ID,
		Type:       models.EventTypeStatus,
		From:       models.RoleSystem,
		Payload:    payload,
	}
	if err := s.repo.AppendEvent(ctx, event); err != nil {
		log.WithError(err).Error("Failed to append initial status event")
		return nil, fmt.Errorf("service: could not append initial event: %w", err)
	}
	incident.UpdatedAt = event.At

	log.WithField("incident_id", incident.ID).Info("Incident created successfully")
	return incident, nil
}

// GetIncident получает инцидент по ID
func (s *incidentService) GetIncident(ctx context.Context, id uuid.UUID) (*models.Incident, error) {
	log := s.logger.WithFields(logrus.Fields{
		"service":     "incident",
		"method":      "GetIncident",
		"incident_id": id,
	})

	incident, err := s.repo.GetByID(ctx, id)
	if err != nil {
		log.WithError(err).Warn("Failed to get incident from repository")
		return nil, fmt.Errorf("service: could not get incident: %w", err)
	}
	return incident, nil
}

// ListIncidents возвращает список инцидентов с пагинацией
func (s *incidentService) ListIncidents(ctx context.Context, page, pageSize int) ([]*models.Incident, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	log := s.logger.WithFields(logrus.Fields{
		"service":   "incident",
		"method":    "ListIncidents",
		"page":      page,
		"page_size": pageSize,
	})

	incidents, err := s.repo.List(ctx, page, pageSize)
	if err != nil {
		log.WithError(err).Error("Failed to list incidents from repository")
		return nil, fmt.Errorf("service: could not list incidents: %w", err)
	}
	return incidents, nil
}

// AddEvent добавляет событие в журнал инцидента. Метку At и ID
// присваивает хранилище; UpdatedAt инцидента поднимается до At события
func (s *incidentService) AddEvent(ctx context.Context, incidentID uuid.UUID, eventType models.EventType, from models.ParticipantRole, payload json.RawMessage) (*models.IncidentEvent, error) {
	log := s.logger.WithFields(logrus.Fields{
		"service":     "incident",
		"method":      "AddEvent",
		"incident_id": incidentID,
		"event_type":  eventType,
	})

	if eventType == "" {
		return nil, fmt.Errorf("service: event type is required")
	}

	event := &models.IncidentEvent{
		IncidentID: incidentID,
		Type:       eventType,
		From:       from,
		Payload:    payload,
	}
	if err := s.repo.AppendEvent(ctx, event); err != nil {
		log.WithError(err).Error("Failed to append event in repository")
		return nil, fmt.Errorf("service: could not append event: %w", err)
	}

	log.WithField("event_id", event.ID).Info("Event appended")
	return event, nil
}

// SetStatus обновляет статус инцидента и добавляет событие status как
// побочный эффект. Переходы не валидируются по таблице: значение вне
// канонического набора сохраняется как есть с предупреждением в логе
func (s *incidentService) SetStatus(ctx context.Context, incidentID uuid.UUID, status models.IncidentStatus) (*models.Incident, error) {
	log := s.logger.WithFields(logrus.Fields{
		"service":     "incident",
		"method":      "SetStatus",
		"incident_id": incidentID,
		"status":      status,
	})

	if status == "" {
		return nil, fmt.Errorf("service: status is required")
	}
	if !models.IsKnownIncidentStatus(status) {
		log.Warn("Status outside the canonical set, storing as-is")
	}

	if err := s.repo.UpdateStatus(ctx, incidentID, status); err != nil {
		log.WithError(err).Warn("Failed to update incident status")
		return nil, fmt.Errorf("service: could not update status: %w", err)
	}

	payload, _ := json.Marshal(models.StatusPayload{Status: status})
	event := &models.IncidentEvent{
		IncidentID: incidentID,
		Type:       models.EventTypeStatus,
		From:       models.RoleSystem,
		Payload:    payload,
	}
	if err := s.repo.AppendEvent(ctx, event); err != nil {
		log.WithError(err).Error("Failed to append status event")
		return nil, fmt.Errorf("service: could not append status event: %w", err)
	}

	incident, err := s.repo.GetByID(ctx, incidentID)
	if err != nil {
		return nil, fmt.Errorf("service: could not reread incident: %w", err)
	}

	log.Info("Incident status updated")
	return incident, nil
}

// EventsSince возвращает события журнала новее курсора since и текущее
// серверное время как следующий курсор. Доставка at-least-once: клиент,
// потерявший курсор, получит события повторно и дедуплицирует их по ID
func (s *incidentService) EventsSince(ctx context.Context, incidentID uuid.UUID, since time.Time) ([]*models.IncidentEvent, time.Time, error) {
	log := s.logger.WithFields(logrus.Fields{
		"service":     "incident",
		"method":      "EventsSince",
		"incident_id": incidentID,
	})

	events, now, err := s.repo.EventsSince(ctx, incidentID, since, s.cfg.BootstrapEventLimit)
	if err != nil {
		log.WithError(err).Warn("Failed to fetch events from repository")
		return nil, time.Time{}, fmt.Errorf("service: could not fetch events: %w", err)
	}
	return events, now, nil
}
