package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shenikar/incident_coordination_system/internal/config"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
)

// Worker снимает события вещания из очереди Redis и доставляет их
// на внешний вебхук. Количество одновременных доставок ограничено
// взвешенным семафором, порядок доставки между событиями не гарантируется
type Worker struct {
	redisClient *redis.Client
	logger      *logrus.Logger
	cfg         *config.Config
	httpClient  *http.Client
	sem         *semaphore.Weighted
}

// NewWorker создает новый Worker
func NewWorker(redisClient *redis.Client, logger *logrus.Logger, cfg *config.Config) *Worker {
	maxConcurrency := cfg.WebhookMaxConcurrency
	if maxConcurrency < 1 {
		maxConcurrency = 1
	}
	return &Worker{
		redisClient: redisClient,
		logger:      logger,
		cfg:         cfg,
		httpClient: &http.Client{
			Timeout: cfg.WebhookTimeout,
		},
		sem: semaphore.NewWeighted(maxConcurrency),
	}
}

// Start запускает горутину обработки очереди вещания
func (w *Worker) Start(ctx context.Context) {
	w.logger.Info("Starting broadcast delivery worker...")
	go func() {
		for {
			select {
			case <-ctx.Done():
				w.logger.Info("Stopping broadcast delivery worker.")
				return
			default:
				// BRPOP - блокирующее извлечение из правой части списка,
				// 0 означает бесконечное ожидание
				result, err := w.redisClient.BRPop(ctx, 0, broadcastQueueKey).Result()
				if err != nil {
					if errors.Is(err, context.Canceled) {
						continue
					}
					w.logger.WithError(err).Error("Failed to pop broadcast event from Redis")
					time.Sleep(w.cfg.WebhookTimeout)
					continue
				}

				// result[0] - ключ, result[1] - значение
				payload := result[1]
				var event BroadcastEvent
				if err := json.Unmarshal([]byte(payload), &event); err != nil {
					w.logger.WithError(err).Error("Failed to unmarshal broadcast event from Redis")
					continue
				}

				if err := w.sem.Acquire(ctx, 1); err != nil {
					return
				}
				go func() {
					defer w.sem.Release(1)
					w.deliver(ctx, event, payload)
				}()
			}
		}
	}()
}

func (w *Worker) deliver(ctx context.Context, event BroadcastEvent, rawPayload string) {
	log := w.logger.WithField("alert_id", event.AlertID).WithField("action", event.Action)
	log.Debug("Delivering broadcast event...")

	if w.cfg.WebhookURL == "" {
		log.Warn("Webhook URL is not configured. Skipping broadcast delivery.")
		return
	}

	maxRetries := w.cfg.WebhookMaxRetries
	baseDelay := w.cfg.WebhookBaseDelay

	for i := 0; i < maxRetries; i++ {
		req, err := http.NewRequestWithContext(ctx, "POST", w.cfg.WebhookURL, bytes.NewBufferString(rawPayload))
		if err != nil {
			log.WithError(err).Errorf("Failed to create broadcast request. Retries left: %d", maxRetries-1-i)
			continue
		}

		req.Header.Set("Content-Type", "application/json")

		// HMAC подпись, если WEBHOOK_SECRET задан
		if w.cfg.WebhookSecret != "" {
			signature := generateHMACSHA256(rawPayload, w.cfg.WebhookSecret)
			req.Header.Set("X-Webhook-Signature", signature)
		}

		resp, err := w.httpClient.Do(req)
		if err != nil {
			log.WithError(err).Warnf("Failed to deliver broadcast. Retrying in %v. Retries left: %d", baseDelay, maxRetries-1-i)
			time.Sleep(baseDelay)
			baseDelay *= 2 // Экспоненциальная задержка
			continue
		}
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			log.Info("Broadcast delivered successfully.")
			return
		}

		log.Warnf("Broadcast delivery failed with status code %d. Retrying in %v. Retries left: %d", resp.StatusCode, baseDelay, maxRetries-1-i)
		time.Sleep(baseDelay)
		baseDelay *= 2 // Экспоненциальная задержка
	}

	log.Errorf("Failed to deliver broadcast after %d retries.", maxRetries)
}

// generateHMACSHA256 генерирует HMAC-SHA256 подпись для данных
func generateHMACSHA256(data, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(data))
	return hex.EncodeToString(h.Sum(nil))
}
