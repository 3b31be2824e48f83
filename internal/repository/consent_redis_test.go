package repository

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shenikar/incident_coordination_system/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestRedisConsentStore подключается к Redis из TEST_REDIS_ADDR;
// без переменной тест пропускается
func newTestRedisConsentStore(t *testing.T) *RedisConsentStore {
	t.Helper()

	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR is not set")
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisConsentStore(client)
}

func TestRedisRevoke_ConcurrentRevokesHaveSingleWinner(t *testing.T) {
	// Подготовка
	store := newTestRedisConsentStore(t)
	ctx := context.Background()

	token := &models.ConsentToken{
		ID:         uuid.New(),
		IncidentID: uuid.New(),
		Fields:     []string{"location"},
		IssuedAt:   time.Now().UTC(),
	}
	require.NoError(t, store.Put(ctx, token))

	// Действие: несколько реплик отзывают токен одновременно
	const workers = 8
	var wg sync.WaitGroup
	var winners atomic.Int32
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := store.Revoke(ctx, token.IncidentID, token.ID, time.Now().UTC())
			if assert.NoError(t, err) && ok {
				winners.Add(1)
			}
		}()
	}
	wg.Wait()

	// Проверки: true получает ровно один вызов, отметка отзыва стоит
	assert.Equal(t, int32(1), winners.Load())

	tokens, err := store.ListConsents(ctx, token.IncidentID)
	require.NoError(t, err)
	require.Len(t, tokens, 1)
	assert.True(t, tokens[0].Revoked())
}
