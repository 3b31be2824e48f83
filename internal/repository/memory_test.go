package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shenikar/incident_coordination_system/internal/models"
	"github.com/shenikar/incident_coordination_system/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newIncident(t *testing.T, store *MemoryStore) *models.Incident {
	t.Helper()
	incident := &models.Incident{Status: models.IncidentStatusOpen}
	require.NoError(t, store.Create(context.Background(), incident))
	return incident
}

func TestMemoryStore_AppendEvent_AtNeverDecreases(t *testing.T) {
	// Подготовка
	store := NewMemoryStore()
	ctx := context.Background()
	incident := newIncident(t, store)

	// Действие: серия событий подряд
	var prev time.Time
	for i := 0; i < 50; i++ {
		event := &models.IncidentEvent{IncidentID: incident.ID, Type: models.EventTypeMessage}
		require.NoError(t, store.AppendEvent(ctx, event))

		// Проверки: At в пределах журнала не убывает
		assert.False(t, event.At.Before(prev))
		prev = event.At
	}
}

func TestMemoryStore_AppendEvent_BumpsUpdatedAt(t *testing.T) {
	// Подготовка
	store := NewMemoryStore()
	ctx := context.Background()
	incident := newIncident(t, store)

	event := &models.IncidentEvent{IncidentID: incident.ID, Type: models.EventTypeLocation}
	require.NoError(t, store.AppendEvent(ctx, event))

	// Действие
	reread, err := store.GetByID(ctx, incident.ID)

	// Проверки: UpdatedAt равен метке последнего события
	require.NoError(t, err)
	assert.Equal(t, event.At, reread.UpdatedAt)
}

func TestMemoryStore_AppendEvent_UnknownIncident(t *testing.T) {
	// Подготовка
	store := NewMemoryStore()

	// Действие
	err := store.AppendEvent(context.Background(), &models.IncidentEvent{
		IncidentID: uuid.New(),
		Type:       models.EventTypeMessage,
	})

	// Проверки
	require.Error(t, err)
	assert.True(t, errors.Is(err, service.ErrNotFound))
}

func TestMemoryStore_EventsSince_BootstrapTail(t *testing.T) {
	// Подготовка: журнал длиннее лимита бутстрапа
	store := NewMemoryStore()
	ctx := context.Background()
	incident := newIncident(t, store)

	var ids []uuid.UUID
	for i := 0; i < 8; i++ {
		event := &models.IncidentEvent{IncidentID: incident.ID, Type: models.EventTypeMessage}
		require.NoError(t, store.AppendEvent(ctx, event))
		ids = append(ids, event.ID)
	}

	// Действие
	events, now, err := store.EventsSince(ctx, incident.ID, time.Time{}, 3)

	// Проверки: последние 3 события в порядке добавления
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, ids[5], events[0].ID)
	assert.Equal(t, ids[7], events[2].ID)
	assert.False(t, now.IsZero())
}

func TestMemoryStore_EventsSince_CursorIsStrictlyGreater(t *testing.T) {
	// Подготовка
	store := NewMemoryStore()
	ctx := context.Background()
	incident := newIncident(t, store)

	first := &models.IncidentEvent{IncidentID: incident.ID, Type: models.EventTypeMessage}
	require.NoError(t, store.AppendEvent(ctx, first))

	// Действие: курсор ровно на метке события не возвращает его повторно
	events, _, err := store.EventsSince(ctx, incident.ID, first.At, 100)
	require.NoError(t, err)
	assert.Empty(t, events)

	// Курсор на миг раньше - событие возвращается
	events, _, err = store.EventsSince(ctx, incident.ID, first.At.Add(-time.Nanosecond), 100)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, first.ID, events[0].ID)
}

func TestMemoryStore_EventsSince_NowNotBehindBatch(t *testing.T) {
	// Подготовка
	store := NewMemoryStore()
	ctx := context.Background()
	incident := newIncident(t, store)

	event := &models.IncidentEvent{IncidentID: incident.ID, Type: models.EventTypeMessage}
	require.NoError(t, store.AppendEvent(ctx, event))

	// Действие
	events, now, err := store.EventsSince(ctx, incident.ID, time.Time{}, 100)

	// Проверки: курсор не старше меток событий пакета
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.False(t, now.Before(events[0].At))
}

func TestMemoryStore_ExpireDue_FlipsAtMostOnceUnderConcurrency(t *testing.T) {
	// Подготовка: десять конкурентных читателей гоняют ExpireDue
	store := NewMemoryStore()
	ctx := context.Background()

	past := time.Now().Add(-time.Minute)
	record := &models.AlertRecord{
		Status:    models.AlertStatusActive,
		Type:      models.AlertTypeWarning,
		Severity:  models.SeverityMedium,
		Title:     "Expiring",
		ExpiresAt: &past,
	}
	require.NoError(t, store.CreateAlert(ctx, record))

	// Действие
	var wg sync.WaitGroup
	var mu sync.Mutex
	totalFlipped := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			flipped, err := store.ExpireDue(ctx, time.Now())
			assert.NoError(t, err)
			mu.Lock()
			totalFlipped += len(flipped)
			mu.Unlock()
		}()
	}
	wg.Wait()

	// Проверки: запись переведена ровно один раз
	assert.Equal(t, 1, totalFlipped)

	reread, err := store.GetAlertByID(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AlertStatusExpired, reread.Status)
}

func TestMemoryStore_ListAlerts_NewestFirstCopies(t *testing.T) {
	// Подготовка
	store := NewMemoryStore()
	ctx := context.Background()

	first := &models.AlertRecord{Status: models.AlertStatusActive, Type: models.AlertTypeInfo, Severity: models.SeverityLow, Title: "first"}
	second := &models.AlertRecord{Status: models.AlertStatusActive, Type: models.AlertTypeInfo, Severity: models.SeverityLow, Title: "second"}
	require.NoError(t, store.CreateAlert(ctx, first))
	require.NoError(t, store.CreateAlert(ctx, second))

	// Действие
	records, err := store.ListAlerts(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "second", records[0].Title)

	// Проверки: мутация копии не видна хранилищу
	records[0].Title = "mutated"
	reread, err := store.GetAlertByID(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, "second", reread.Title)
}

func TestMemoryStore_ListAudit_LimitNewestFirst(t *testing.T) {
	// Подготовка
	store := NewMemoryStore()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, store.AppendAudit(ctx, &models.AuditEvent{
			Actor:  models.ActorSystem,
			Action: models.AuditActionExpire,
		}))
	}

	// Действие
	events, err := store.ListAudit(ctx, 3)

	// Проверки
	require.NoError(t, err)
	assert.Len(t, events, 3)
}

func TestMemoryStore_ConsentRevoke_Semantics(t *testing.T) {
	// Подготовка
	store := NewMemoryStore()
	ctx := context.Background()
	incidentID := uuid.New()

	token := &models.ConsentToken{
		ID:         uuid.New(),
		IncidentID: incidentID,
		Fields:     []string{"location"},
		IssuedAt:   time.Now(),
	}
	require.NoError(t, store.Put(ctx, token))

	// Действие и проверки: первый отзыв true, повторный false,
	// неизвестный токен false, все без ошибок
	ok, err := store.Revoke(ctx, incidentID, token.ID, time.Now())
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.Revoke(ctx, incidentID, token.ID, time.Now())
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = store.Revoke(ctx, incidentID, uuid.New(), time.Now())
	require.NoError(t, err)
	assert.False(t, ok)

	tokens, err := store.ListConsents(ctx, incidentID)
	require.NoError(t, err)
	require.Len(t, tokens, 1)
	assert.NotNil(t, tokens[0].RevokedAt)
}
