package offline

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSender(policy *RetryPolicy) *Sender {
	logger := logrus.New()
	logger.SetOutput(&bytes.Buffer{}) // Отключаем вывод логов в тестах
	return NewSender(&http.Client{Timeout: time.Second}, logger, policy)
}

func TestSend_Online_Delivers(t *testing.T) {
	// Подготовка
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	sender := newTestSender(nil)

	// Действие
	resp, err := sender.Send(context.Background(), http.MethodPost, server.URL, nil, []byte(`{}`))

	// Проверки
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.False(t, resp.Queued)
	assert.Equal(t, 0, sender.Pending())
}

func TestSend_KnownOffline_QueuesWithoutError(t *testing.T) {
	// Подготовка: клиент уже знает, что он оффлайн
	sender := newTestSender(nil)
	sender.SetOnline(false)

	// Действие
	resp, err := sender.Send(context.Background(), http.MethodPost, "http://unreachable.invalid", nil, []byte(`{}`))

	// Проверки: синтетический 202 без ошибки, запрос в очереди
	require.NoError(t, err)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.True(t, resp.Queued)
	assert.Equal(t, 1, sender.Pending())
}

func TestSend_NetworkFailure_QueuesAndReturnsError(t *testing.T) {
	// Подготовка: онлайн, но сеть падает на первом же запросе
	sender := newTestSender(nil)

	// Действие
	resp, err := sender.Send(context.Background(), http.MethodPost, "http://127.0.0.1:1", nil, []byte(`{}`))

	// Проверки: ошибка возвращается вызывающему, запрос в очереди,
	// состояние переключено в оффлайн
	require.Error(t, err)
	assert.Nil(t, resp)
	assert.Equal(t, 1, sender.Pending())
	assert.False(t, sender.Online())
}

func TestFlush_DeliversInFIFOOrder(t *testing.T) {
	// Подготовка: сервер записывает тела запросов в порядке прихода
	var mu sync.Mutex
	var received []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		received = append(received, string(body))
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	sender := newTestSender(nil)
	sender.SetOnline(false)

	ctx := context.Background()
	for _, payload := range []string{"first", "second", "third"} {
		_, err := sender.Send(ctx, http.MethodPost, server.URL, nil, []byte(payload))
		require.NoError(t, err)
	}
	require.Equal(t, 3, sender.Pending())

	// Действие: возврат связи сбрасывает очередь в фоне
	sender.SetOnline(true)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 3
	}, time.Second, 5*time.Millisecond)

	// Проверки: строгий FIFO, очередь пуста
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"first", "second", "third"}, received)
	assert.Equal(t, 0, sender.Pending())
}

func TestSetOnline_DoesNotBlockOnFlush(t *testing.T) {
	// Подготовка: сервер держит доставку, пока тест его не отпустит
	release := make(chan struct{})
	var delivered atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		delivered.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	sender := newTestSender(nil)
	sender.SetOnline(false)
	_, err := sender.Send(context.Background(), http.MethodPost, server.URL, nil, []byte(`{}`))
	require.NoError(t, err)

	// Действие: сигнал связи возвращается до завершения доставки
	done := make(chan struct{})
	go func() {
		sender.SetOnline(true)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("SetOnline blocked on queue flush")
	}

	// Проверки: после отпускания сервера очередь добирается
	close(release)
	require.Eventually(t, func() bool {
		return delivered.Load() == 1 && sender.Pending() == 0
	}, time.Second, 5*time.Millisecond)
}

func TestFlush_ExhaustedRequestMovesToDeadLetters(t *testing.T) {
	// Подготовка: адрес без слушателя, две попытки
	policy := &RetryPolicy{
		MaxAttempts:  2,
		InitialDelay: time.Millisecond,
		Multiplier:   2.0,
		MaxDelay:     5 * time.Millisecond,
	}
	sender := newTestSender(policy)
	sender.SetOnline(false)

	ctx := context.Background()
	_, err := sender.Send(ctx, http.MethodPost, "http://127.0.0.1:1", nil, []byte(`{}`))
	require.NoError(t, err)

	// Действие: два сброса, каждый проход тратит одну попытку
	sender.Flush(ctx)
	sender.Flush(ctx)

	// Проверки: запрос не крутится в очереди вечно
	assert.Equal(t, 0, sender.Pending())
	dead := sender.DeadLetters()
	require.Len(t, dead, 1)
	assert.Equal(t, 2, dead[0].Attempts)
}

func TestFlush_FailedPassMarksOffline(t *testing.T) {
	// Подготовка
	sender := newTestSender(&RetryPolicy{
		MaxAttempts:  5,
		InitialDelay: time.Millisecond,
		Multiplier:   2.0,
		MaxDelay:     5 * time.Millisecond,
	})
	sender.SetOnline(false)

	ctx := context.Background()
	_, err := sender.Send(ctx, http.MethodPost, "http://127.0.0.1:1", nil, []byte(`{}`))
	require.NoError(t, err)

	// Действие
	sender.Flush(ctx)

	// Проверки: проход без единой доставки возвращает оффлайн-состояние,
	// запрос остается в очереди
	assert.False(t, sender.Online())
	assert.Equal(t, 1, sender.Pending())
}

func TestRetryPolicy_NextDelayBackoffCapped(t *testing.T) {
	// Подготовка
	policy := &RetryPolicy{
		InitialDelay: time.Second,
		Multiplier:   2.0,
		MaxDelay:     5 * time.Second,
	}

	// Действие и проверки: экспоненциальный рост с потолком
	assert.Equal(t, time.Second, policy.NextDelay(1))
	assert.Equal(t, 2*time.Second, policy.NextDelay(2))
	assert.Equal(t, 4*time.Second, policy.NextDelay(3))
	assert.Equal(t, 5*time.Second, policy.NextDelay(4))
}
