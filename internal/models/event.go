package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventType - тип события в журнале инцидента. Открытый строковый тег:
// неизвестные типы допустимы и сохраняются как есть.
type EventType string

const (
	EventTypeMessage       EventType = "message"
	EventTypeStatus        EventType = "status"
	EventTypeLocation      EventType = "location"
	EventTypeVitals        EventType = "vitals"
	EventTypeConsent       EventType = "consent"
	EventTypeElderOverride EventType = "elder_override"
	EventTypeAEDDeployed   EventType = "aed_deployed"
	EventType911Call       EventType = "911_call"
)

// IncidentEvent - неизменяемый факт в журнале инцидента.
// Инвариант: в пределах одного инцидента события добавляются в
// неубывающем порядке At; после добавления запись не редактируется
// и не удаляется.
type IncidentEvent struct {
	ID         uuid.UUID       `json:"id"`
	IncidentID uuid.UUID       `json:"incident_id"`
	At         time.Time       `json:"at"`
	Type       EventType       `json:"type"`
	From       ParticipantRole `json:"from,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// MessagePayload - текстовое сообщение участника
type MessagePayload struct {
	Text string `json:"text"`
}

// StatusPayload - смена статуса инцидента
type StatusPayload struct {
	Status IncidentStatus `json:"status"`
	Note   string         `json:"note,omitempty"`
}

// LocationPayload - координаты участника
type LocationPayload struct {
	Lat      float64 `json:"lat"`
	Lng      float64 `json:"lng"`
	Accuracy float64 `json:"accuracy,omitempty"`
}

// VitalsPayload - показатели состояния пострадавшего
type VitalsPayload struct {
	HeartRate int    `json:"heart_rate,omitempty"`
	Breathing string `json:"breathing,omitempty"`
	Conscious *bool  `json:"conscious,omitempty"`
}

// ConsentPayload - ссылка на выданный/отозванный токен согласия
type ConsentPayload struct {
	TokenID string   `json:"token_id"`
	Fields  []string `json:"fields,omitempty"`
	Revoked bool     `json:"revoked,omitempty"`
}

// ElderOverridePayload - переопределение решением старшего
type ElderOverridePayload struct {
	By     string `json:"by"`
	Reason string `json:"reason,omitempty"`
}

// AEDDeployedPayload - факт применения дефибриллятора
type AEDDeployedPayload struct {
	DeviceID string `json:"device_id,omitempty"`
}

// Call911Payload - факт звонка в экстренную службу
type Call911Payload struct {
	By string `json:"by,omitempty"`
}

// UnknownPayload - запасной вариант для неизвестных типов событий
type UnknownPayload struct {
	Raw json.RawMessage
}

// DecodePayload разбирает полезную нагрузку события в типизированный
// вариант по тегу Type. Для неизвестного типа или пустой нагрузки
// возвращает UnknownPayload с исходными байтами.
func (e *IncidentEvent) DecodePayload() (any, error) {
	decode := func(v any) (any, error) {
		if len(e.Payload) == 0 {
			return v, nil
		}
		if err := json.Unmarshal(e.Payload, v); err != nil {
			return nil, err
		}
		return v, nil
	}

	switch e.Type {
	case EventTypeMessage:
		return decode(&MessagePayload{})
	case EventTypeStatus:
		return decode(&StatusPayload{})
	case EventTypeLocation:
		return decode(&LocationPayload{})
	case EventTypeVitals:
		return decode(&VitalsPayload{})
	case EventTypeConsent:
		return decode(&ConsentPayload{})
	case EventTypeElderOverride:
		return decode(&ElderOverridePayload{})
	case EventTypeAEDDeployed:
		return decode(&AEDDeployedPayload{})
	case EventType911Call:
		return decode(&Call911Payload{})
	default:
		return &UnknownPayload{Raw: e.Payload}, nil
	}
}
