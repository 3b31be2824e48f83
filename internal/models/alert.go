package models

import (
	"time"

	"github.com/google/uuid"
)

// AlertStatus - статус публичного оповещения. cancelled и expired
// терминальны: возврат в active невозможен.
type AlertStatus string

const (
	AlertStatusActive    AlertStatus = "active"
	AlertStatusCancelled AlertStatus = "cancelled"
	AlertStatusExpired   AlertStatus = "expired"
)

// AlertType - тип оповещения
type AlertType string

const (
	AlertTypeEvacuation AlertType = "evacuation"
	AlertTypeShelter    AlertType = "shelter"
	AlertTypeWarning    AlertType = "warning"
	AlertTypeInfo       AlertType = "info"
	AlertTypeAllClear   AlertType = "all-clear"
)

// AlertSeverity - важность оповещения
type AlertSeverity string

const (
	SeverityCritical AlertSeverity = "critical"
	SeverityHigh     AlertSeverity = "high"
	SeverityMedium   AlertSeverity = "medium"
	SeverityLow      AlertSeverity = "low"
)

// MinAlertRadiusMeters - нижняя граница радиуса геозоны.
// Применяется и при создании, и при частичном обновлении.
const MinAlertRadiusMeters = 50

// AlertArea - круговая геозона оповещения
type AlertArea struct {
	Lat          float64 `json:"lat"`
	Lng          float64 `json:"lng"`
	RadiusMeters float64 `json:"radius_meters"`
}

// AlertRecord - публичное геозонированное оповещение
type AlertRecord struct {
	ID        uuid.UUID     `json:"id"`
	Status    AlertStatus   `json:"status"`
	Type      AlertType     `json:"type"`
	Severity  AlertSeverity `json:"severity"`
	Title     string        `json:"title"`
	Message   string        `json:"message"`
	Area      *AlertArea    `json:"area,omitempty"`
	Languages []string      `json:"languages"`
	Channels  []string      `json:"channels"`
	Source    string        `json:"source,omitempty"`
	ExpiresAt *time.Time    `json:"expires_at,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// Terminal сообщает, находится ли оповещение в терминальном статусе
func (a *AlertRecord) Terminal() bool {
	return a.Status == AlertStatusCancelled || a.Status == AlertStatusExpired
}

// AuditActor - кто выполнил действие над оповещением
type AuditActor string

const (
	ActorResponder AuditActor = "responder"
	ActorSystem    AuditActor = "system"
	ActorAdmin     AuditActor = "admin"
	ActorCivilian  AuditActor = "civilian"
)

// AuditAction - действие, зафиксированное в журнале аудита
type AuditAction string

const (
	AuditActionCreate      AuditAction = "create"
	AuditActionUpdate      AuditAction = "update"
	AuditActionCancel      AuditAction = "cancel"
	AuditActionExpire      AuditAction = "expire"
	AuditActionRebroadcast AuditAction = "rebroadcast"
	AuditActionSOS         AuditAction = "sos"
)

// AuditEvent - запись журнала аудита оповещений. Журнал только
// пополняется: одна запись на каждую мутацию оповещения.
type AuditEvent struct {
	ID        uuid.UUID   `json:"id"`
	AlertID   *uuid.UUID  `json:"alert_id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Actor     AuditActor  `json:"actor"`
	Action    AuditAction `json:"action"`
	Detail    string      `json:"detail,omitempty"`
}
