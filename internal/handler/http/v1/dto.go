package v1

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ParticipantDTO - участник инцидента
// @Description Участник инцидента
type ParticipantDTO struct {
	ID        string `json:"id" validate:"required"`
	Role      string `json:"role" validate:"required,oneof=civilian responder system"`
	Name      string `json:"name,omitempty"`
	Connected bool   `json:"connected"`
}

// CreateIncidentRequest DTO для создания инцидента
// @Description DTO для создания инцидента
type CreateIncidentRequest struct {
	Participants []ParticipantDTO `json:"participants" validate:"omitempty,dive"`
	Meta         map[string]any   `json:"meta,omitempty"`
}

// PatchIncidentRequest DTO для смены статуса инцидента.
// Статус не валидируется по таблице переходов: демо-поверхность
// намеренно разрешает произвольную строку
type PatchIncidentRequest struct {
	Status string `json:"status" validate:"required"`
}

// IncidentResponse DTO для ответа с информацией об инциденте
// @Description DTO для ответа с информацией об инциденте
type IncidentResponse struct {
	ID           uuid.UUID        `json:"id"`
	Status       string           `json:"status"`
	Participants []ParticipantDTO `json:"participants"`
	Meta         map[string]any   `json:"meta,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

// AddEventRequest DTO для добавления события в журнал инцидента
// @Description DTO для добавления события
type AddEventRequest struct {
	Type    string          `json:"type" validate:"required"`
	From    string          `json:"from,omitempty" validate:"omitempty,oneof=civilian responder system"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// EventResponse DTO события журнала. Метка времени - миллисекунды epoch:
// тот же формат, что и курсор since
type EventResponse struct {
	ID         uuid.UUID       `json:"id"`
	IncidentID uuid.UUID       `json:"incident_id"`
	At         int64           `json:"at"`
	Type       string          `json:"type"`
	From       string          `json:"from,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// EventsResponse DTO ответа синхронизации: пакет событий и серверное
// время, которое клиент сохраняет как следующий курсор
type EventsResponse struct {
	Events []EventResponse `json:"events"`
	Now    int64           `json:"now"`
}

// AlertAreaDTO - круговая геозона оповещения
type AlertAreaDTO struct {
	Lat          float64 `json:"lat" validate:"latitude"`
	Lng          float64 `json:"lng" validate:"longitude"`
	RadiusMeters float64 `json:"radius_meters"`
}

// CreateAlertRequest DTO для создания оповещения
// @Description DTO для создания оповещения
type CreateAlertRequest struct {
	Type      string        `json:"type" validate:"required,oneof=evacuation shelter warning info all-clear"`
	Severity  string        `json:"severity" validate:"required,oneof=critical high medium low"`
	Title     string        `json:"title" validate:"required"`
	Message   string        `json:"message,omitempty"`
	Area      *AlertAreaDTO `json:"area,omitempty"`
	Languages []string      `json:"languages,omitempty"`
	Channels  []string      `json:"channels,omitempty"`
	Source    string        `json:"source,omitempty"`
	ExpiresAt *time.Time    `json:"expires_at,omitempty"`
}

// PatchAlertRequest DTO частичного обновления оповещения: применяются
// только переданные поля; status=cancelled по активной записи - отмена
type PatchAlertRequest struct {
	ID        string        `json:"id" validate:"required,uuid"`
	Status    *string       `json:"status,omitempty" validate:"omitempty,oneof=cancelled"`
	Type      *string       `json:"type,omitempty" validate:"omitempty,oneof=evacuation shelter warning info all-clear"`
	Severity  *string       `json:"severity,omitempty" validate:"omitempty,oneof=critical high medium low"`
	Title     *string       `json:"title,omitempty"`
	Message   *string       `json:"message,omitempty"`
	Area      *AlertAreaDTO `json:"area,omitempty"`
	Languages []string      `json:"languages,omitempty"`
	Channels  []string      `json:"channels,omitempty"`
	Source    *string       `json:"source,omitempty"`
	ExpiresAt *time.Time    `json:"expires_at,omitempty"`
}

// AlertResponse DTO для ответа с информацией об оповещении
type AlertResponse struct {
	ID        uuid.UUID     `json:"id"`
	Status    string        `json:"status"`
	Type      string        `json:"type"`
	Severity  string        `json:"severity"`
	Title     string        `json:"title"`
	Message   string        `json:"message,omitempty"`
	Area      *AlertAreaDTO `json:"area,omitempty"`
	Languages []string      `json:"languages"`
	Channels  []string      `json:"channels"`
	Source    string        `json:"source,omitempty"`
	ExpiresAt *time.Time    `json:"expires_at,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// AuditEventResponse DTO записи журнала аудита
type AuditEventResponse struct {
	ID        uuid.UUID  `json:"id"`
	AlertID   *uuid.UUID `json:"alert_id,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
	Actor     string     `json:"actor"`
	Action    string     `json:"action"`
	Detail    string     `json:"detail,omitempty"`
}

// SOSRequest DTO сигнала SOS
type SOSRequest struct {
	Actor  string `json:"actor,omitempty" validate:"omitempty,oneof=responder system admin civilian"`
	Detail string `json:"detail,omitempty"`
}

// IssueConsentRequest DTO выдачи токена согласия
// @Description DTO выдачи токена согласия
type IssueConsentRequest struct {
	Fields []string `json:"fields,omitempty"`
	Note   string   `json:"note,omitempty"`
}

// ConsentTokenResponse DTO токена согласия
type ConsentTokenResponse struct {
	ID         uuid.UUID  `json:"id"`
	IncidentID uuid.UUID  `json:"incident_id"`
	Fields     []string   `json:"fields"`
	Note       string     `json:"note,omitempty"`
	IssuedAt   time.Time  `json:"issued_at"`
	RevokedAt  *time.Time `json:"revoked_at,omitempty"`
}
