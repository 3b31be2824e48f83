package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shenikar/incident_coordination_system/internal/models"
	"github.com/shenikar/incident_coordination_system/internal/service"
)

// PostgresStore - реализация IncidentRepository и AlertRepository поверх
// Postgres: общее хранилище инцидентов, событий, оповещений и аудита
// для порта с горизонтальным масштабированием. Согласия остаются в KV
// (Redis или память): их контракт ключ-значение, не реляционный
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore создает новый PostgresStore
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// --- IncidentRepository ---

// Create создает новую запись об инциденте в бд
func (r *PostgresStore) Create(ctx context.Context, incident *models.Incident) error {
	participants, err := json.Marshal(incident.Participants)
	if err != nil {
		return fmt.Errorf("failed to marshal participants: %w", err)
	}
	meta, err := json.Marshal(incident.Meta)
	if err != nil {
		return fmt.Errorf("failed to marshal meta: %w", err)
	}

	query := `
		INSERT INTO incidents (status, participants, meta)
		VALUES ($1, $2, $3) RETURNING id, created_at, updated_at;
	`
	err = r.db.QueryRow(ctx, query,
		incident.Status,
		participants,
		meta,
	).Scan(&incident.ID, &incident.CreatedAt, &incident.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create incident: %w", err)
	}
	return nil
}

// GetByID возвращает инцидент по его UUID
func (r *PostgresStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Incident, error) {
	query := `
		SELECT id, status, participants, meta, created_at, updated_at
		FROM incidents
		WHERE id = $1;
	`
	incident, err := scanIncident(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("incident %s: %w", id, service.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get incident by id: %w", err)
	}
	return incident, nil
}

// List возвращает список инцидентов с пагинацией
func (r *PostgresStore) List(ctx context.Context, page, pageSize int) ([]*models.Incident, error) {
	offset := (page - 1) * pageSize

	query := `
		SELECT id, status, participants, meta, created_at, updated_at
		FROM incidents
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2;
	`
	rows, err := r.db.Query(ctx, query, pageSize, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list incidents: %w", err)
	}
	defer rows.Close()

	incidents := make([]*models.Incident, 0)
	for rows.Next() {
		incident, err := scanIncident(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan incident row: %w", err)
		}
		incidents = append(incidents, incident)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error list iteration: %w", err)
	}
	return incidents, nil
}

// UpdateStatus сохраняет статус инцидента. updated_at не трогается:
// его поднимает только добавление события
func (r *PostgresStore) UpdateStatus(ctx context.Context, id uuid.UUID, status models.IncidentStatus) error {
	query := `UPDATE incidents SET status = $1 WHERE id = $2;`
	cmdTag, err := r.db.Exec(ctx, query, status, id)
	if err != nil {
		return fmt.Errorf("failed to update incident status: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("incident %s: %w", id, service.ErrNotFound)
	}
	return nil
}

// AppendEvent добавляет событие и поднимает updated_at инцидента
// в одной транзакции
func (r *PostgresStore) AppendEvent(ctx context.Context, event *models.IncidentEvent) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	insert := `
		INSERT INTO incident_events (incident_id, at, type, from_role, payload)
		VALUES ($1, GREATEST(now(), (
			SELECT COALESCE(MAX(at), 'epoch'::timestamptz)
			FROM incident_events WHERE incident_id = $1
		)), $2, $3, $4)
		RETURNING id, at;
	`
	var payload []byte
	if len(event.Payload) > 0 {
		payload = event.Payload
	}
	err = tx.QueryRow(ctx, insert,
		event.IncidentID,
		event.Type,
		event.From,
		payload,
	).Scan(&event.ID, &event.At)
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}

	bump := `UPDATE incidents SET updated_at = $1 WHERE id = $2;`
	cmdTag, err := tx.Exec(ctx, bump, event.At, event.IncidentID)
	if err != nil {
		return fmt.Errorf("failed to bump incident updated_at: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("incident %s: %w", event.IncidentID, service.ErrNotFound)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit event append: %w", err)
	}
	return nil
}

// EventsSince возвращает события журнала и серверное время-курсор.
// Курсор снимается часами базы: при нескольких репликах приложения
// авторитетны именно они
func (r *PostgresStore) EventsSince(ctx context.Context, incidentID uuid.UUID, since time.Time, limit int) ([]*models.IncidentEvent, time.Time, error) {
	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM incidents WHERE id = $1)`, incidentID).Scan(&exists); err != nil {
		return nil, time.Time{}, fmt.Errorf("failed to check incident: %w", err)
	}
	if !exists {
		return nil, time.Time{}, fmt.Errorf("incident %s: %w", incidentID, service.ErrNotFound)
	}

	// Часы-курсор снимаются до выборки пакета. Событие, закоммиченное
	// между двумя запросами, попадет и в этот пакет, и в следующий опрос
	// (курсор раньше него) - повторная доставка безопасна, пропуск нет
	var now time.Time
	if err := r.db.QueryRow(ctx, `SELECT now()`).Scan(&now); err != nil {
		return nil, time.Time{}, fmt.Errorf("failed to read db clock: %w", err)
	}

	var query string
	var args []any
	if since.IsZero() {
		query = `
			SELECT id, incident_id, at, type, from_role, payload FROM (
				SELECT id, incident_id, at, type, from_role, payload
				FROM incident_events
				WHERE incident_id = $1
				ORDER BY at DESC LIMIT $2
			) last_events
			ORDER BY at ASC;
		`
		args = []any{incidentID, limit}
	} else {
		query = `
			SELECT id, incident_id, at, type, from_role, payload
			FROM incident_events
			WHERE incident_id = $1 AND at > $2
			ORDER BY at ASC;
		`
		args = []any{incidentID, since}
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("failed to fetch events: %w", err)
	}
	defer rows.Close()

	events := make([]*models.IncidentEvent, 0)
	for rows.Next() {
		event := &models.IncidentEvent{}
		var payload []byte
		if err := rows.Scan(&event.ID, &event.IncidentID, &event.At, &event.Type, &event.From, &payload); err != nil {
			return nil, time.Time{}, fmt.Errorf("failed to scan event row: %w", err)
		}
		event.Payload = payload
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, time.Time{}, fmt.Errorf("error events iteration: %w", err)
	}
	return events, now, nil
}

// --- AlertRepository ---

// CreateAlert создает новую запись об оповещении в бд
func (r *PostgresStore) CreateAlert(ctx context.Context, record *models.AlertRecord) error {
	area, languages, channels, err := marshalAlertFields(record)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO alerts (status, type, severity, title, message, area, languages, channels, source, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at, updated_at;
	`
	err = r.db.QueryRow(ctx, query,
		record.Status,
		record.Type,
		record.Severity,
		record.Title,
		record.Message,
		area,
		languages,
		channels,
		record.Source,
		record.ExpiresAt,
	).Scan(&record.ID, &record.CreatedAt, &record.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create alert: %w", err)
	}
	return nil
}

// GetAlertByID возвращает оповещение по его UUID
func (r *PostgresStore) GetAlertByID(ctx context.Context, id uuid.UUID) (*models.AlertRecord, error) {
	query := alertSelect + ` WHERE id = $1;`
	record, err := scanAlert(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("alert %s: %w", id, service.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get alert by id: %w", err)
	}
	return record, nil
}

// UpdateAlert замещает сохраненную запись переданной
func (r *PostgresStore) UpdateAlert(ctx context.Context, record *models.AlertRecord) error {
	area, languages, channels, err := marshalAlertFields(record)
	if err != nil {
		return err
	}

	query := `
		UPDATE alerts SET
			status = $1,
			type = $2,
			severity = $3,
			title = $4,
			message = $5,
			area = $6,
			languages = $7,
			channels = $8,
			source = $9,
			expires_at = $10,
			updated_at = $11
		WHERE id = $12;
	`
	cmdTag, err := r.db.Exec(ctx, query,
		record.Status,
		record.Type,
		record.Severity,
		record.Title,
		record.Message,
		area,
		languages,
		channels,
		record.Source,
		record.ExpiresAt,
		record.UpdatedAt,
		record.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update alert: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("alert %s: %w", record.ID, service.ErrNotFound)
	}
	return nil
}

// ListAlerts возвращает оповещения от новых к старым
func (r *PostgresStore) ListAlerts(ctx context.Context) ([]*models.AlertRecord, error) {
	query := alertSelect + ` ORDER BY created_at DESC;`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	defer rows.Close()

	records := make([]*models.AlertRecord, 0)
	for rows.Next() {
		record, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert row: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error alerts iteration: %w", err)
	}
	return records, nil
}

// ExpireDue переводит просроченные активные оповещения в expired одним
// UPDATE: каждая строка переводится ровно один раз даже при
// конкурентных чтениях с нескольких реплик
func (r *PostgresStore) ExpireDue(ctx context.Context, now time.Time) ([]*models.AlertRecord, error) {
	query := `
		UPDATE alerts SET status = 'expired', updated_at = $1
		WHERE status = 'active' AND expires_at IS NOT NULL AND expires_at <= $1
		RETURNING id, status, type, severity, title, message, area, languages, channels, source, expires_at, created_at, updated_at;
	`
	rows, err := r.db.Query(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("failed to expire due alerts: %w", err)
	}
	defer rows.Close()

	records := make([]*models.AlertRecord, 0)
	for rows.Next() {
		record, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan expired alert row: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error expire iteration: %w", err)
	}
	return records, nil
}

// AppendAudit добавляет запись журнала аудита
func (r *PostgresStore) AppendAudit(ctx context.Context, event *models.AuditEvent) error {
	query := `
		INSERT INTO audit_events (alert_id, actor, action, detail)
		VALUES ($1, $2, $3, $4) RETURNING id, ts;
	`
	err := r.db.QueryRow(ctx, query,
		event.AlertID,
		event.Actor,
		event.Action,
		event.Detail,
	).Scan(&event.ID, &event.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to append audit event: %w", err)
	}
	return nil
}

// ListAudit возвращает записи аудита от новых к старым, не более limit
func (r *PostgresStore) ListAudit(ctx context.Context, limit int) ([]*models.AuditEvent, error) {
	query := `
		SELECT id, alert_id, ts, actor, action, detail
		FROM audit_events
		ORDER BY ts DESC
		LIMIT $1;
	`
	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit events: %w", err)
	}
	defer rows.Close()

	events := make([]*models.AuditEvent, 0)
	for rows.Next() {
		event := &models.AuditEvent{}
		if err := rows.Scan(&event.ID, &event.AlertID, &event.Timestamp, &event.Actor, &event.Action, &event.Detail); err != nil {
			return nil, fmt.Errorf("failed to scan audit row: %w", err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error audit iteration: %w", err)
	}
	return events, nil
}

// --- сканирование и сериализация ---

const alertSelect = `
	SELECT id, status, type, severity, title, message, area, languages, channels, source, expires_at, created_at, updated_at
	FROM alerts`

func scanIncident(row pgx.Row) (*models.Incident, error) {
	incident := &models.Incident{}
	var participants, meta []byte
	err := row.Scan(
		&incident.ID,
		&incident.Status,
		&participants,
		&meta,
		&incident.CreatedAt,
		&incident.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(participants, &incident.Participants); err != nil {
		return nil, fmt.Errorf("failed to unmarshal participants: %w", err)
	}
	if len(meta) > 0 && string(meta) != "null" {
		if err := json.Unmarshal(meta, &incident.Meta); err != nil {
			return nil, fmt.Errorf("failed to unmarshal meta: %w", err)
		}
	}
	return incident, nil
}

func scanAlert(row pgx.Row) (*models.AlertRecord, error) {
	record := &models.AlertRecord{}
	var area, languages, channels []byte
	err := row.Scan(
		&record.ID,
		&record.Status,
		&record.Type,
		&record.Severity,
		&record.Title,
		&record.Message,
		&area,
		&languages,
		&channels,
		&record.Source,
		&record.ExpiresAt,
		&record.CreatedAt,
		&record.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(area) > 0 && string(area) != "null" {
		record.Area = &models.AlertArea{}
		if err := json.Unmarshal(area, record.Area); err != nil {
			return nil, fmt.Errorf("failed to unmarshal area: %w", err)
		}
	}
	if err := json.Unmarshal(languages, &record.Languages); err != nil {
		return nil, fmt.Errorf("failed to unmarshal languages: %w", err)
	}
	if err := json.Unmarshal(channels, &record.Channels); err != nil {
		return nil, fmt.Errorf("failed to unmarshal channels: %w", err)
	}
	return record, nil
}

func marshalAlertFields(record *models.AlertRecord) (area, languages, channels []byte, err error) {
	if record.Area != nil {
		area, err = json.Marshal(record.Area)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to marshal area: %w", err)
		}
	}
	languages, err = json.Marshal(record.Languages)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to marshal languages: %w", err)
	}
	channels, err = json.Marshal(record.Channels)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to marshal channels: %w", err)
	}
	return area, languages, channels, nil
}
