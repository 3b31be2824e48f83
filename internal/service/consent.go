package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shenikar/incident_coordination_system/internal/config"
	"github.com/shenikar/incident_coordination_system/internal/models"
	"github.com/sirupsen/logrus"
)

// ConsentRepository определяет контракт хранилища реестра согласий.
// Бэкенд подключаем: внешний KV-сервис, если настроен, иначе память
// процесса - вызывающие обязаны переживать недолговечность последней.
// Revoke возвращает false без ошибки для неизвестного или уже
// отозванного токена; запись никогда не удаляется.
type ConsentRepository interface {
	Put(ctx context.Context, token *models.ConsentToken) error
	ListConsents(ctx context.Context, incidentID uuid.UUID) ([]*models.ConsentToken, error)
	Revoke(ctx context.Context, incidentID, tokenID uuid.UUID, at time.Time) (bool, error)
}

// CredentialClaims - содержимое подписанного предъявляемого токена
type CredentialClaims struct {
	TokenID    uuid.UUID `json:"token_id"`
	IncidentID uuid.UUID `json:"incident_id"`
	Fields     []string  `json:"fields"`
	IssuedAt   time.Time `json:"issued_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// ConsentService определяет контракт реестра согласий
type ConsentService interface {
	Issue(ctx context.Context, incidentID uuid.UUID, fields []string, note string) (*models.ConsentToken, string, error)
	List(ctx context.Context, incidentID uuid.UUID) ([]*models.ConsentToken, error)
	Revoke(ctx context.Context, incidentID, tokenID uuid.UUID) (bool, error)
	VerifyCredential(credential string) (*CredentialClaims, error)
}

type consentService struct {
	repo   ConsentRepository
	logger *logrus.Logger
	secret string
	ttl    time.Duration
}

func NewConsentService(repo ConsentRepository, logger *logrus.Logger, cfg *config.Config) ConsentService {
	ttl := cfg.ConsentTokenTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &consentService{
		repo:   repo,
		logger: logger,
		secret: cfg.ConsentSecret,
		ttl:    ttl,
	}
}

// Issue выдает токен согласия и подписанный предъявляемый credential
// с фиксированным сроком действия, чтобы держатель мог предъявить его
// без обращения к реестру
func (s *consentService) Issue(ctx context.Context, incidentID uuid.UUID, fields []string, note string) (*models.ConsentToken, string, error) {
	log := s.logger.WithFields(logrus.Fields{
		"service":     "consent",
		"method":      "Issue",
		"incident_id": incidentID,
	})

	if fields == nil {
		fields = []string{}
	}
	token := &models.ConsentToken{
		ID:         uuid.New(),
		IncidentID: incidentID,
		Fields:     fields,
		Note:       note,
		IssuedAt:   time.Now(),
	}

	if err := s.repo.Put(ctx, token); err != nil {
		log.WithError(err).Error("Failed to store consent token")
		return nil, "", fmt.Errorf("service: could not issue consent token: %w", err)
	}

	credential, err := s.signCredential(token)
	if err != nil {
		log.WithError(err).Error("Failed to sign consent credential")
		return nil, "", fmt.Errorf("service: could not sign credential: %w", err)
	}

	log.WithField("token_id", token.ID).Info("Consent token issued")
	return token, credential, nil
}

// List возвращает токены инцидента от свежевыданных к старым.
// Сбой чтения намеренно мягкий: возвращается пустой список вместе с
// ошибкой, чтобы читающие UI оставались живыми
func (s *consentService) List(ctx context.Context, incidentID uuid.UUID) ([]*models.ConsentToken, error) {
	log := s.logger.WithFields(logrus.Fields{
		"service":     "consent",
		"method":      "List",
		"incident_id": incidentID,
	})

	tokens, err := s.repo.ListConsents(ctx, incidentID)
	if err != nil {
		log.WithError(err).Warn("Failed to list consent tokens, degrading to empty list")
		return []*models.ConsentToken{}, fmt.Errorf("service: could not list consent tokens: %w", err)
	}
	return tokens, nil
}

// Revoke помечает токен отозванным. RevokedAt, будучи установленным,
// не очищается; повторный или неизвестный отзыв возвращает false
func (s *consentService) Revoke(ctx context.Context, incidentID, tokenID uuid.UUID) (bool, error) {
	log := s.logger.WithFields(logrus.Fields{
		"service":     "consent",
		"method":      "Revoke",
		"incident_id": incidentID,
		"token_id":    tokenID,
	})

	ok, err := s.repo.Revoke(ctx, incidentID, tokenID, time.Now())
	if err != nil {
		log.WithError(err).Error("Failed to revoke consent token")
		return false, fmt.Errorf("service: could not revoke consent token: %w", err)
	}

	log.WithField("revoked", ok).Info("Consent revocation processed")
	return ok, nil
}

// VerifyCredential проверяет подпись и срок действия предъявленного
// credential без обращения к реестру. Отзыв токена этим путём не виден
func (s *consentService) VerifyCredential(credential string) (*CredentialClaims, error) {
	parts := strings.SplitN(credential, ".", 2)
	if len(parts) != 2 {
		return nil, fmt.Errorf("service: malformed credential")
	}

	payload, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, fmt.Errorf("service: malformed credential payload: %w", err)
	}

	expected := signHMACSHA256(parts[0], s.secret)
	if !hmac.Equal([]byte(expected), []byte(parts[1])) {
		return nil, fmt.Errorf("service: invalid credential signature")
	}

	claims := &CredentialClaims{}
	if err := json.Unmarshal(payload, claims); err != nil {
		return nil, fmt.Errorf("service: could not decode credential claims: %w", err)
	}
	if time.Now().After(claims.ExpiresAt) {
		return nil, fmt.Errorf("service: credential expired")
	}
	return claims, nil
}

func (s *consentService) signCredential(token *models.ConsentToken) (string, error) {
	claims := CredentialClaims{
		TokenID:    token.ID,
		IncidentID: token.IncidentID,
		Fields:     token.Fields,
		IssuedAt:   token.IssuedAt,
		ExpiresAt:  token.IssuedAt.Add(s.ttl),
	}
	payload, err := json.Marshal(claims)
	if err != nil {
		return "", err
	}
	encoded := base64.RawURLEncoding.EncodeToString(payload)
	return encoded + "." + signHMACSHA256(encoded, s.secret), nil
}

// signHMACSHA256 генерирует HMAC-SHA256 подпись для данных
func signHMACSHA256(data, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(data))
	return hex.EncodeToString(h.Sum(nil))
}
