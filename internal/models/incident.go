package models

import (
	"time"

	"github.com/google/uuid"
)

// IncidentStatus - статус инцидента
type IncidentStatus string

const (
	IncidentStatusOpen      IncidentStatus = "open"
	IncidentStatusEnRoute   IncidentStatus = "en_route"
	IncidentStatusArrived   IncidentStatus = "arrived"
	IncidentStatusCompleted IncidentStatus = "completed"
	IncidentStatusClosed    IncidentStatus = "closed"
)

// IncidentStatusOrder - канонический порядок статусов. Переходы не
// валидируются движком (см. SetStatus), порядок публикуется для UI.
var IncidentStatusOrder = []IncidentStatus{
	IncidentStatusOpen,
	IncidentStatusEnRoute,
	IncidentStatusArrived,
	IncidentStatusCompleted,
	IncidentStatusClosed,
}

// IsKnownIncidentStatus сообщает, входит ли статус в канонический набор
func IsKnownIncidentStatus(s IncidentStatus) bool {
	for _, known := range IncidentStatusOrder {
		if s == known {
			return true
		}
	}
	return false
}

// ParticipantRole - роль участника инцидента
type ParticipantRole string

const (
	RoleCivilian  ParticipantRole = "civilian"
	RoleResponder ParticipantRole = "responder"
	RoleSystem    ParticipantRole = "system"
)

// Participant - участник инцидента
type Participant struct {
	ID        string          `json:"id"`
	Role      ParticipantRole `json:"role"`
	Name      string          `json:"name,omitempty"`
	Connected bool            `json:"connected"`
}

// Incident - сессия координации с участниками и статусом.
// Инвариант: UpdatedAt всегда равен метке времени последнего события
// в журнале инцидента; CreatedAt неизменяем.
type Incident struct {
	ID           uuid.UUID      `json:"id"`
	Status       IncidentStatus `json:"status"`
	Participants []Participant  `json:"participants"`
	Meta         map[string]any `json:"meta,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}
