package models

import (
	"time"

	"github.com/google/uuid"
)

// ConsentToken - запись о согласии на доступ к именованным категориям
// данных в рамках одного инцидента.
// Инвариант: RevokedAt, будучи установленным, никогда не очищается -
// отзыв монотонен и необратим.
type ConsentToken struct {
	ID         uuid.UUID  `json:"id"`
	IncidentID uuid.UUID  `json:"incident_id"`
	Fields     []string   `json:"fields"`
	Note       string     `json:"note,omitempty"`
	IssuedAt   time.Time  `json:"issued_at"`
	RevokedAt  *time.Time `json:"revoked_at,omitempty"`
}

// Revoked сообщает, отозван ли токен
func (t *ConsentToken) Revoked() bool {
	return t.RevokedAt != nil
}
