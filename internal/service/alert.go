package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shenikar/incident_coordination_system/internal/models"
	"github.com/shenikar/incident_coordination_system/internal/webhook"
	"github.com/shenikar/incident_coordination_system/pkg/geo"
	"github.com/sirupsen/logrus"
)

// AlertRepository определяет контракт хранилища оповещений и журнала аудита.
// ExpireDue атомарно переводит активные оповещения с истекшим ExpiresAt в
// expired и возвращает переведённые записи: каждая запись переводится
// не более одного раза, даже при конкурентных чтениях.
type AlertRepository interface {
	CreateAlert(ctx context.Context, record *models.AlertRecord) error
	GetAlertByID(ctx context.Context, id uuid.UUID) (*models.AlertRecord, error)
	UpdateAlert(ctx context.Context, record *models.AlertRecord) error
	ListAlerts(ctx context.Context) ([]*models.AlertRecord, error)
	ExpireDue(ctx context.Context, now time.Time) ([]*models.AlertRecord, error)
	AppendAudit(ctx context.Context, event *models.AuditEvent) error
	ListAudit(ctx context.Context, limit int) ([]*models.AuditEvent, error)
}

// AlertQuery - параметры выборки оповещений "рядом со мной"
type AlertQuery struct {
	Lat            *float64
	Lng            *float64
	RadiusMeters   float64
	IncludeExpired bool
}

// AlertPatch - частичное обновление оповещения: применяются только
// переданные поля, остальные не трогаются
type AlertPatch struct {
	Status    *models.AlertStatus
	Type      *models.AlertType
	Severity  *models.AlertSeverity
	Title     *string
	Message   *string
	Area      *models.AlertArea
	Languages []string
	Channels  []string
	Source    *string
	ExpiresAt *time.Time
}

// AlertService определяет контракт движка вещания оповещений
type AlertService interface {
	CreateAlert(ctx context.Context, record *models.AlertRecord) (*models.AlertRecord, error)
	ListAlerts(ctx context.Context, query AlertQuery) ([]*models.AlertRecord, error)
	UpdateAlert(ctx context.Context, id uuid.UUID, patch AlertPatch) (*models.AlertRecord, error)
	Rebroadcast(ctx context.Context, id uuid.UUID) (*models.AlertRecord, error)
	AuditTrail(ctx context.Context, limit int) ([]*models.AuditEvent, error)
	RecordSOS(ctx context.Context, actor models.AuditActor, detail string) error
	SweepExpired(ctx context.Context) (int, error)
}

type alertService struct {
	repo      AlertRepository
	logger    *logrus.Logger
	publisher webhook.Publisher
}

func NewAlertService(repo AlertRepository, logger *logrus.Logger, publisher webhook.Publisher) AlertService {
	return &alertService{
		repo:      repo,
		logger:    logger,
		publisher: publisher,
	}
}

// CreateAlert создает активное оповещение с дефолтами languages=["en"],
// channels=["push"] и нижней границей радиуса геозоны 50 метров
func (s *alertService) CreateAlert(ctx context.Context, record *models.AlertRecord) (*models.AlertRecord, error) {
	log := s.logger.WithFields(logrus.Fields{
		"service": "alert",
		"method":  "CreateAlert",
		"type":    record.Type,
	})
	log.Info("Attempting to create a new alert")

	record.Status = models.AlertStatusActive
	if len(record.Languages) == 0 {
		record.Languages = []string{"en"}
	}
	if len(record.Channels) == 0 {
		record.Channels = []string{"push"}
	}
	if record.Area != nil && record.Area.RadiusMeters < models.MinAlertRadiusMeters {
		record.Area.RadiusMeters = models.MinAlertRadiusMeters
	}

	if err := s.repo.CreateAlert(ctx, record); err != nil {
		log.WithError(err).Error("Failed to create alert in repository")
		return nil, fmt.Errorf("service: could not create alert: %w", err)
	}

	s.appendAudit(ctx, log, &record.ID, models.ActorResponder, models.AuditActionCreate,
		fmt.Sprintf("created %q", record.Title))
	s.publish(ctx, log, models.AuditActionCreate, record)

	log.WithField("alert_id", record.ID).Info("Alert created successfully")
	return record, nil
}

// ListAlerts возвращает оповещения от новых к старым. На каждом чтении
// активные записи с истекшим ExpiresAt лениво переводятся в expired с
// одной записью expire в аудите; фонового свипера по умолчанию нет.
// Фильтр близости применяется, только если запрос несёт координаты,
// а запись - геозону
func (s *alertService) ListAlerts(ctx context.Context, query AlertQuery) ([]*models.AlertRecord, error) {
	log := s.logger.WithFields(logrus.Fields{
		"service": "alert",
		"method":  "ListAlerts",
	})

	if _, err := s.expireDue(ctx, log); err != nil {
		return nil, err
	}

	records, err := s.repo.ListAlerts(ctx)
	if err != nil {
		log.WithError(err).Error("Failed to list alerts from repository")
		return nil, fmt.Errorf("service: could not list alerts: %w", err)
	}

	filtered := make([]*models.AlertRecord, 0, len(records))
	for _, record := range records {
		if !query.IncludeExpired && record.Terminal() {
			continue
		}
		if query.Lat != nil && query.Lng != nil && record.Area != nil {
			if !nearArea(record.Area, *query.Lat, *query.Lng, query.RadiusMeters) {
				continue
			}
		}
		filtered = append(filtered, record)
	}
	return filtered, nil
}

// UpdateAlert применяет частичное обновление. PATCH со status=cancelled
// по активной записи - отмена; по неактивной отмена молча проваливается
// в ветку частичного обновления (терминальный статус не перезаписывается)
func (s *alertService) UpdateAlert(ctx context.Context, id uuid.UUID, patch AlertPatch) (*models.AlertRecord, error) {
	log := s.logger.WithFields(logrus.Fields{
		"service":  "alert",
		"method":   "UpdateAlert",
		"alert_id": id,
	})

	record, err := s.repo.GetAlertByID(ctx, id)
	if err != nil {
		log.WithError(err).Warn("Alert not found for update")
		return nil, fmt.Errorf("service: could not get alert: %w", err)
	}

	if patch.Status != nil && *patch.Status == models.AlertStatusCancelled &&
		record.Status == models.AlertStatusActive {
		record.Status = models.AlertStatusCancelled
		record.UpdatedAt = time.Now()
		if err := s.repo.UpdateAlert(ctx, record); err != nil {
			log.WithError(err).Error("Failed to cancel alert in repository")
			return nil, fmt.Errorf("service: could not cancel alert: %w", err)
		}
		s.appendAudit(ctx, log, &record.ID, models.ActorResponder, models.AuditActionCancel,
			fmt.Sprintf("cancelled %q", record.Title))
		s.publish(ctx, log, models.AuditActionCancel, record)
		log.Info("Alert cancelled")
		return record, nil
	}

	titleBefore := record.Title
	applyPatch(record, patch)
	record.UpdatedAt = time.Now()

	if err := s.repo.UpdateAlert(ctx, record); err != nil {
		log.WithError(err).Error("Failed to update alert in repository")
		return nil, fmt.Errorf("service: could not update alert: %w", err)
	}

	s.appendAudit(ctx, log, &record.ID, models.ActorResponder, models.AuditActionUpdate,
		fmt.Sprintf("title: %q -> %q", titleBefore, record.Title))

	log.Info("Alert updated")
	return record, nil
}

// Rebroadcast повторно публикует активное оповещение в очередь доставки
func (s *alertService) Rebroadcast(ctx context.Context, id uuid.UUID) (*models.AlertRecord, error) {
	log := s.logger.WithFields(logrus.Fields{
		"service":  "alert",
		"method":   "Rebroadcast",
		"alert_id": id,
	})

	record, err := s.repo.GetAlertByID(ctx, id)
	if err != nil {
		log.WithError(err).Warn("Alert not found for rebroadcast")
		return nil, fmt.Errorf("service: could not get alert: %w", err)
	}
	if record.Status != models.AlertStatusActive {
		return nil, fmt.Errorf("service: alert %s is not active", id)
	}

	s.appendAudit(ctx, log, &record.ID, models.ActorResponder, models.AuditActionRebroadcast,
		fmt.Sprintf("rebroadcast %q", record.Title))
	s.publish(ctx, log, models.AuditActionRebroadcast, record)

	log.Info("Alert rebroadcast")
	return record, nil
}

// AuditTrail возвращает журнал аудита от новых к старым
func (s *alertService) AuditTrail(ctx context.Context, limit int) ([]*models.AuditEvent, error) {
	if limit < 1 || limit > 200 {
		limit = 200
	}
	events, err := s.repo.ListAudit(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("service: could not list audit trail: %w", err)
	}
	return events, nil
}

// RecordSOS фиксирует сигнал SOS в журнале аудита без привязки к оповещению
func (s *alertService) RecordSOS(ctx context.Context, actor models.AuditActor, detail string) error {
	log := s.logger.WithFields(logrus.Fields{
		"service": "alert",
		"method":  "RecordSOS",
	})
	s.appendAudit(ctx, log, nil, actor, models.AuditActionSOS, detail)
	return nil
}

// SweepExpired выполняет тот же ленивый перевод в expired, что и чтение.
// Вызывается опциональным фоновым свипером; возвращает число переведённых
func (s *alertService) SweepExpired(ctx context.Context) (int, error) {
	log := s.logger.WithFields(logrus.Fields{
		"service": "alert",
		"method":  "SweepExpired",
	})
	expired, err := s.expireDue(ctx, log)
	if err != nil {
		return 0, err
	}
	return expired, nil
}

func (s *alertService) expireDue(ctx context.Context, log *logrus.Entry) (int, error) {
	flipped, err := s.repo.ExpireDue(ctx, time.Now())
	if err != nil {
		log.WithError(err).Error("Failed to expire due alerts")
		return 0, fmt.Errorf("service: could not expire alerts: %w", err)
	}
	for _, record := range flipped {
		s.appendAudit(ctx, log, &record.ID, models.ActorSystem, models.AuditActionExpire,
			fmt.Sprintf("expired %q", record.Title))
		log.WithField("alert_id", record.ID).Info("Alert expired lazily")
	}
	return len(flipped), nil
}

// appendAudit пишет запись аудита; сбой аудита не роняет основную операцию
func (s *alertService) appendAudit(ctx context.Context, log *logrus.Entry, alertID *uuid.UUID, actor models.AuditActor, action models.AuditAction, detail string) {
	event := &models.AuditEvent{
		AlertID: alertID,
		Actor:   actor,
		Action:  action,
		Detail:  detail,
	}
	if err := s.repo.AppendAudit(ctx, event); err != nil {
		log.WithError(err).Error("Failed to append audit event")
	}
}

func (s *alertService) publish(ctx context.Context, log *logrus.Entry, action models.AuditAction, record *models.AlertRecord) {
	event := webhook.BroadcastEvent{
		AlertID:   record.ID,
		Action:    action,
		Record:    record,
		Timestamp: time.Now(),
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		log.WithError(err).Error("Failed to publish broadcast event")
	}
}

// nearArea сравнивает плоское расстояние до центра геозоны с суммой
// радиуса оповещения и радиуса запроса. Граница включается
func nearArea(area *models.AlertArea, lat, lng, queryRadiusMeters float64) bool {
	return geo.FlatDistanceMeters(area.Lat, area.Lng, lat, lng) <= area.RadiusMeters+queryRadiusMeters
}

// applyPatch переносит в запись только переданные поля. Поле status
// намеренно не переносится: единственная смена статуса через PATCH -
// отмена, терминальные статусы не воскрешаются
func applyPatch(record *models.AlertRecord, patch AlertPatch) {
	if patch.Type != nil {
		record.Type = *patch.Type
	}
	if patch.Severity != nil {
		record.Severity = *patch.Severity
	}
	if patch.Title != nil {
		record.Title = *patch.Title
	}
	if patch.Message != nil {
		record.Message = *patch.Message
	}
	if patch.Area != nil {
		area := *patch.Area
		if area.RadiusMeters < models.MinAlertRadiusMeters {
			area.RadiusMeters = models.MinAlertRadiusMeters
		}
		record.Area = &area
	}
	if len(patch.Languages) > 0 {
		record.Languages = patch.Languages
	}
	if len(patch.Channels) > 0 {
		record.Channels = patch.Channels
	}
	if patch.Source != nil {
		record.Source = *patch.Source
	}
	if patch.ExpiresAt != nil {
		record.ExpiresAt = patch.ExpiresAt
	}
}
