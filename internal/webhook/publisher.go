package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shenikar/incident_coordination_system/internal/models"
)

const (
	broadcastQueueKey = "alert_broadcasts"
)

// BroadcastEvent - событие вещания оповещения для внешних каналов
type BroadcastEvent struct {
	AlertID   uuid.UUID           `json:"alert_id"`
	Action    models.AuditAction  `json:"action"`
	Record    *models.AlertRecord `json:"record,omitempty"`
	Timestamp time.Time           `json:"timestamp"`
}

// Publisher - интерфейс публикации событий вещания
type Publisher interface {
	Publish(ctx context.Context, event BroadcastEvent) error
}

// RedisPublisher - реализация Publisher, использующая очередь Redis
type RedisPublisher struct {
	redisClient *redis.Client
}

// NewRedisPublisher создает новый RedisPublisher
func NewRedisPublisher(client *redis.Client) *RedisPublisher {
	return &RedisPublisher{
		redisClient: client,
	}
}

// Publish кладет событие вещания в очередь Redis
func (p *RedisPublisher) Publish(ctx context.Context, event BroadcastEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal broadcast event: %w", err)
	}

	// LPUSH в левую часть списка, воркер снимает BRPOP справа
	if err := p.redisClient.LPush(ctx, broadcastQueueKey, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish broadcast event to Redis: %w", err)
	}
	return nil
}

// NoopPublisher - заглушка на случай, когда Redis не настроен:
// ядро остается однопроцессным, события вещания никуда не уходят
type NoopPublisher struct{}

// NewNoopPublisher создает новый NoopPublisher
func NewNoopPublisher() *NoopPublisher {
	return &NoopPublisher{}
}

// Publish ничего не делает
func (p *NoopPublisher) Publish(_ context.Context, _ BroadcastEvent) error {
	return nil
}
