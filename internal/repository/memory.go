package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shenikar/incident_coordination_system/internal/models"
	"github.com/shenikar/incident_coordination_system/internal/service"
)

// MemoryStore - внутрипроцессное хранилище всех пяти структур ядра:
// реестра инцидентов, журналов событий, оповещений, аудита и согласий.
// Конструируется один раз на старте процесса и передается сервисам
// явно, без глобального состояния. Ограничение демо: состояние не
// разделяется между репликами - больше одного процесса ломает все
// инварианты ядра, если бэкенды не заменены на общую базу.
type MemoryStore struct {
	mu sync.RWMutex

	incidents     map[uuid.UUID]*models.Incident
	incidentOrder []uuid.UUID
	events        map[uuid.UUID][]*models.IncidentEvent

	alerts     map[uuid.UUID]*models.AlertRecord
	alertOrder []uuid.UUID

	audit []*models.AuditEvent

	consents map[uuid.UUID][]*models.ConsentToken
}

// NewMemoryStore создает пустое хранилище
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		incidents: make(map[uuid.UUID]*models.Incident),
		events:    make(map[uuid.UUID][]*models.IncidentEvent),
		alerts:    make(map[uuid.UUID]*models.AlertRecord),
		consents:  make(map[uuid.UUID][]*models.ConsentToken),
	}
}

// --- IncidentRepository ---

// Create присваивает инциденту ID и метки времени и сохраняет его
func (s *MemoryStore) Create(_ context.Context, incident *models.Incident) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	incident.ID = uuid.New()
	now := time.Now()
	incident.CreatedAt = now
	incident.UpdatedAt = now

	s.incidents[incident.ID] = copyIncident(incident)
	s.incidentOrder = append(s.incidentOrder, incident.ID)
	return nil
}

// GetByID возвращает копию инцидента
func (s *MemoryStore) GetByID(_ context.Context, id uuid.UUID) (*models.Incident, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	incident, ok := s.incidents[id]
	if !ok {
		return nil, fmt.Errorf("incident %s: %w", id, service.ErrNotFound)
	}
	return copyIncident(incident), nil
}

// List возвращает инциденты от новых к старым с пагинацией
func (s *MemoryStore) List(_ context.Context, page, pageSize int) ([]*models.Incident, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := len(s.incidentOrder)
	offset := (page - 1) * pageSize

	result := make([]*models.Incident, 0, pageSize)
	// incidentOrder хранит порядок создания, отдаем с конца
	for i := total - 1 - offset; i >= 0 && len(result) < pageSize; i-- {
		result = append(result, copyIncident(s.incidents[s.incidentOrder[i]]))
	}
	return result, nil
}

// UpdateStatus сохраняет статус инцидента как есть.
// UpdatedAt здесь не трогается: его поднимает только добавление события
func (s *MemoryStore) UpdateStatus(_ context.Context, id uuid.UUID, status models.IncidentStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	incident, ok := s.incidents[id]
	if !ok {
		return fmt.Errorf("incident %s: %w", id, service.ErrNotFound)
	}
	incident.Status = status
	return nil
}

// AppendEvent присваивает событию ID и метку At и атомарно поднимает
// UpdatedAt инцидента. At не убывает в пределах журнала одного инцидента
func (s *MemoryStore) AppendEvent(_ context.Context, event *models.IncidentEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	incident, ok := s.incidents[event.IncidentID]
	if !ok {
		return fmt.Errorf("incident %s: %w", event.IncidentID, service.ErrNotFound)
	}

	event.ID = uuid.New()
	event.At = time.Now()
	log := s.events[event.IncidentID]
	if n := len(log); n > 0 && event.At.Before(log[n-1].At) {
		event.At = log[n-1].At
	}

	stored := *event
	s.events[event.IncidentID] = append(log, &stored)
	incident.UpdatedAt = event.At
	return nil
}

// EventsSince возвращает события журнала и серверное время-курсор.
// Нулевой since - последние limit событий (бутстрап), иначе все события
// с At строго больше since. Порядок всегда порядок добавления.
// now снимается под тем же локом, что и пакет: событие новее пакета
// не может получить At меньше возвращенного курсора
func (s *MemoryStore) EventsSince(_ context.Context, incidentID uuid.UUID, since time.Time, limit int) ([]*models.IncidentEvent, time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.incidents[incidentID]; !ok {
		return nil, time.Time{}, fmt.Errorf("incident %s: %w", incidentID, service.ErrNotFound)
	}

	log := s.events[incidentID]
	var batch []*models.IncidentEvent
	if since.IsZero() {
		start := 0
		if len(log) > limit {
			start = len(log) - limit
		}
		batch = append([]*models.IncidentEvent{}, log[start:]...)
	} else {
		batch = make([]*models.IncidentEvent, 0)
		for _, event := range log {
			if event.At.After(since) {
				batch = append(batch, event)
			}
		}
	}

	return batch, time.Now(), nil
}

// --- AlertRepository ---

// CreateAlert присваивает оповещению ID и метки времени и сохраняет его
func (s *MemoryStore) CreateAlert(_ context.Context, record *models.AlertRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record.ID = uuid.New()
	now := time.Now()
	record.CreatedAt = now
	record.UpdatedAt = now

	s.alerts[record.ID] = copyAlert(record)
	s.alertOrder = append(s.alertOrder, record.ID)
	return nil
}

// GetAlertByID возвращает копию оповещения
func (s *MemoryStore) GetAlertByID(_ context.Context, id uuid.UUID) (*models.AlertRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.alerts[id]
	if !ok {
		return nil, fmt.Errorf("alert %s: %w", id, service.ErrNotFound)
	}
	return copyAlert(record), nil
}

// UpdateAlert замещает сохраненную запись переданной
func (s *MemoryStore) UpdateAlert(_ context.Context, record *models.AlertRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.alerts[record.ID]; !ok {
		return fmt.Errorf("alert %s: %w", record.ID, service.ErrNotFound)
	}
	s.alerts[record.ID] = copyAlert(record)
	return nil
}

// ListAlerts возвращает копии оповещений от новых к старым
func (s *MemoryStore) ListAlerts(_ context.Context) ([]*models.AlertRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*models.AlertRecord, 0, len(s.alertOrder))
	for i := len(s.alertOrder) - 1; i >= 0; i-- {
		result = append(result, copyAlert(s.alerts[s.alertOrder[i]]))
	}
	return result, nil
}

// ExpireDue атомарно переводит активные оповещения с истекшим ExpiresAt
// в expired. Перевод под замком гарантирует, что каждая запись
// переводится ровно один раз даже при конкурентных чтениях
func (s *MemoryStore) ExpireDue(_ context.Context, now time.Time) ([]*models.AlertRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var flipped []*models.AlertRecord
	for _, record := range s.alerts {
		if record.Status != models.AlertStatusActive || record.ExpiresAt == nil {
			continue
		}
		if record.ExpiresAt.After(now) {
			continue
		}
		record.Status = models.AlertStatusExpired
		record.UpdatedAt = now
		flipped = append(flipped, copyAlert(record))
	}
	return flipped, nil
}

// AppendAudit присваивает записи аудита ID и метку времени и добавляет её
func (s *MemoryStore) AppendAudit(_ context.Context, event *models.AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	event.ID = uuid.New()
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	stored := *event
	s.audit = append(s.audit, &stored)
	return nil
}

// ListAudit возвращает записи аудита от новых к старым, не более limit
func (s *MemoryStore) ListAudit(_ context.Context, limit int) ([]*models.AuditEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*models.AuditEvent, 0, limit)
	for i := len(s.audit) - 1; i >= 0 && len(result) < limit; i-- {
		copied := *s.audit[i]
		result = append(result, &copied)
	}
	return result, nil
}

// --- ConsentRepository ---

// Put сохраняет токен согласия
func (s *MemoryStore) Put(_ context.Context, token *models.ConsentToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.consents[token.IncidentID] = append(s.consents[token.IncidentID], copyConsent(token))
	return nil
}

// ListConsents возвращает токены инцидента от свежевыданных к старым
func (s *MemoryStore) ListConsents(_ context.Context, incidentID uuid.UUID) ([]*models.ConsentToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tokens := s.consents[incidentID]
	result := make([]*models.ConsentToken, 0, len(tokens))
	for _, token := range tokens {
		result = append(result, copyConsent(token))
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].IssuedAt.After(result[j].IssuedAt)
	})
	return result, nil
}

// Revoke помечает токен отозванным. Запись не удаляется никогда;
// повторный или неизвестный отзыв - false без ошибки
func (s *MemoryStore) Revoke(_ context.Context, incidentID, tokenID uuid.UUID, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, token := range s.consents[incidentID] {
		if token.ID != tokenID {
			continue
		}
		if token.RevokedAt != nil {
			return false, nil
		}
		revokedAt := at
		token.RevokedAt = &revokedAt
		return true, nil
	}
	return false, nil
}

// --- копирование: читатели не должны видеть мутаций под замком ---

func copyIncident(incident *models.Incident) *models.Incident {
	copied := *incident
	copied.Participants = append([]models.Participant{}, incident.Participants...)
	if incident.Meta != nil {
		copied.Meta = make(map[string]any, len(incident.Meta))
		for k, v := range incident.Meta {
			copied.Meta[k] = v
		}
	}
	return &copied
}

func copyAlert(record *models.AlertRecord) *models.AlertRecord {
	copied := *record
	if record.Area != nil {
		area := *record.Area
		copied.Area = &area
	}
	if record.ExpiresAt != nil {
		expiresAt := *record.ExpiresAt
		copied.ExpiresAt = &expiresAt
	}
	copied.Languages = append([]string{}, record.Languages...)
	copied.Channels = append([]string{}, record.Channels...)
	return &copied
}

func copyConsent(token *models.ConsentToken) *models.ConsentToken {
	copied := *token
	copied.Fields = append([]string{}, token.Fields...)
	if token.RevokedAt != nil {
		revokedAt := *token.RevokedAt
		copied.RevokedAt = &revokedAt
	}
	return &copied
}
