package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shenikar/incident_coordination_system/internal/models"
)

// RedisConsentStore - реестр согласий поверх внешнего KV-сервиса.
// Токены одного инцидента лежат в хэше consent:{incidentID}, поле -
// ID токена, значение - JSON записи. Записи не удаляются: отзыв
// перезаписывает значение с установленным RevokedAt
type RedisConsentStore struct {
	redisClient *redis.Client
}

// NewRedisConsentStore создает новый RedisConsentStore
func NewRedisConsentStore(client *redis.Client) *RedisConsentStore {
	return &RedisConsentStore{redisClient: client}
}

func consentKey(incidentID uuid.UUID) string {
	return fmt.Sprintf("consent:%s", incidentID.String())
}

// Put сохраняет токен согласия
func (r *RedisConsentStore) Put(ctx context.Context, token *models.ConsentToken) error {
	val, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to marshal consent token: %w", err)
	}
	if err := r.redisClient.HSet(ctx, consentKey(token.IncidentID), token.ID.String(), val).Err(); err != nil {
		return fmt.Errorf("failed to store consent token: %w", err)
	}
	return nil
}

// ListConsents возвращает токены инцидента от свежевыданных к старым
func (r *RedisConsentStore) ListConsents(ctx context.Context, incidentID uuid.UUID) ([]*models.ConsentToken, error) {
	values, err := r.redisClient.HGetAll(ctx, consentKey(incidentID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list consent tokens: %w", err)
	}

	tokens := make([]*models.ConsentToken, 0, len(values))
	for _, raw := range values {
		token := &models.ConsentToken{}
		if err := json.Unmarshal([]byte(raw), token); err != nil {
			return nil, fmt.Errorf("failed to unmarshal consent token: %w", err)
		}
		tokens = append(tokens, token)
	}
	sort.SliceStable(tokens, func(i, j int) bool {
		return tokens[i].IssuedAt.After(tokens[j].IssuedAt)
	})
	return tokens, nil
}

// revokeRetries ограничивает перечитывания при конкурентной записи в хэш
const revokeRetries = 3

// Revoke помечает токен отозванным. Повторный или неизвестный отзыв -
// false без ошибки; RevokedAt, будучи установленным, не перезаписывается.
// Чтение и перезапись идут оптимистической транзакцией под WATCH:
// при гонке отзывов с нескольких реплик true возвращает ровно одна
func (r *RedisConsentStore) Revoke(ctx context.Context, incidentID, tokenID uuid.UUID, at time.Time) (bool, error) {
	key := consentKey(incidentID)
	field := tokenID.String()

	var revoked bool
	txn := func(tx *redis.Tx) error {
		revoked = false
		raw, err := tx.HGet(ctx, key, field).Result()
		if err != nil {
			if err == redis.Nil {
				return nil
			}
			return fmt.Errorf("failed to get consent token: %w", err)
		}

		token := &models.ConsentToken{}
		if err := json.Unmarshal([]byte(raw), token); err != nil {
			return fmt.Errorf("failed to unmarshal consent token: %w", err)
		}
		if token.RevokedAt != nil {
			return nil
		}

		token.RevokedAt = &at
		val, err := json.Marshal(token)
		if err != nil {
			return fmt.Errorf("failed to marshal revoked token: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, field, val)
			return nil
		})
		if err != nil {
			return err
		}
		revoked = true
		return nil
	}

	for attempt := 0; attempt < revokeRetries; attempt++ {
		err := r.redisClient.Watch(ctx, txn, key)
		if err == nil {
			return revoked, nil
		}
		if err == redis.TxFailedErr {
			// Ключ изменился под WATCH; перечитываем токен заново
			continue
		}
		return false, fmt.Errorf("failed to revoke consent token: %w", err)
	}
	return false, fmt.Errorf("failed to revoke consent token: %w", redis.TxFailedErr)
}
