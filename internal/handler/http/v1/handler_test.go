package v1

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shenikar/incident_coordination_system/internal/config"
	"github.com/shenikar/incident_coordination_system/internal/models"
	"github.com/shenikar/incident_coordination_system/internal/service"
	"github.com/shenikar/incident_coordination_system/internal/service/mocks"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type testMocks struct {
	incident *mocks.MockIncidentService
	alert    *mocks.MockAlertService
	consent  *mocks.MockConsentService
}

// newTestHandler создает новый экземпляр Handler с мокированными сервисами
func newTestHandler(t *testing.T) (*Handler, testMocks, *gin.Engine) {
	ctrl := gomock.NewController(t)
	m := testMocks{
		incident: mocks.NewMockIncidentService(ctrl),
		alert:    mocks.NewMockAlertService(ctrl),
		consent:  mocks.NewMockConsentService(ctrl),
	}

	logger := logrus.New()
	logger.SetOutput(&bytes.Buffer{}) // Отключаем вывод логов в тестах

	cfg := &config.Config{
		APIKeys: []string{"test-api-key"},
	}

	handler := NewHandler(m.incident, m.alert, m.consent, logger, cfg)

	// Настройка Gin роутера для тестов
	gin.SetMode(gin.TestMode)
	router := gin.New()
	api := router.Group("/api/v1")
	handler.RegisterRoutes(api)

	return handler, m, router
}

// makeRequest - вспомогательная функция для выполнения HTTP-запросов
func makeRequest(router *gin.Engine, method, url string, body io.Reader, headers ...map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, url, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, h := range headers {
		for key, value := range h {
			req.Header.Set(key, value)
		}
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func authHeader() map[string]string {
	return map[string]string{"X-API-Key": "test-api-key"}
}

func TestCreateIncident_Success(t *testing.T) {
	_, m, router := newTestHandler(t)
	incidentID := uuid.New()
	reqBody := CreateIncidentRequest{
		Participants: []ParticipantDTO{
			{ID: "civ-1", Role: "civilian", Name: "Caller"},
		},
		Meta: map[string]any{"origin": "mobile"},
	}
	expectedIncident := &models.Incident{
		ID:           incidentID,
		Status:       models.IncidentStatusOpen,
		Participants: []models.Participant{{ID: "civ-1", Role: models.RoleCivilian, Name: "Caller"}},
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}

	m.incident.EXPECT().
		CreateIncident(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(expectedIncident, nil).
		Times(1)

	bodyBytes, _ := json.Marshal(reqBody)
	w := makeRequest(router, "POST", "/api/v1/incidents", bytes.NewBuffer(bodyBytes), authHeader())

	assert.Equal(t, http.StatusCreated, w.Code)

	var resp IncidentResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, incidentID, resp.ID)
	assert.Equal(t, "open", resp.Status)
}

func TestCreateIncident_InvalidJSON(t *testing.T) {
	_, m, router := newTestHandler(t)

	m.incident.EXPECT().CreateIncident(gomock.Any(), gomock.Any(), gomock.Any()).Times(0) // Сервис не должен вызываться

	w := makeRequest(router, "POST", "/api/v1/incidents", bytes.NewBufferString(`{"participants": [`), authHeader())

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid request body")
}

func TestCreateIncident_InvalidRole(t *testing.T) {
	_, m, router := newTestHandler(t)
	reqBody := CreateIncidentRequest{
		Participants: []ParticipantDTO{{ID: "x", Role: "stranger"}},
	}

	m.incident.EXPECT().CreateIncident(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

	bodyBytes, _ := json.Marshal(reqBody)
	w := makeRequest(router, "POST", "/api/v1/incidents", bytes.NewBuffer(bodyBytes), authHeader())

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "'Role' failed on the 'oneof' tag")
}

func TestCreateIncident_ServiceError(t *testing.T) {
	_, m, router := newTestHandler(t)
	serviceError := errors.New("failed to create incident in service")

	m.incident.EXPECT().
		CreateIncident(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(nil, serviceError).
		Times(1)

	w := makeRequest(router, "POST", "/api/v1/incidents", bytes.NewBufferString(`{}`), authHeader())

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "internal server error")
}

func TestGetIncident_Success(t *testing.T) {
	_, m, router := newTestHandler(t)
	incidentID := uuid.New()
	expectedIncident := &models.Incident{
		ID:     incidentID,
		Status: models.IncidentStatusEnRoute,
	}

	m.incident.EXPECT().GetIncident(gomock.Any(), incidentID).Return(expectedIncident, nil).Times(1)

	w := makeRequest(router, "GET", fmt.Sprintf("/api/v1/incidents/%s", incidentID.String()), nil)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp IncidentResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, incidentID, resp.ID)
	assert.Equal(t, "en_route", resp.Status)
}

func TestGetIncident_InvalidID(t *testing.T) {
	_, m, router := newTestHandler(t)

	m.incident.EXPECT().GetIncident(gomock.Any(), gomock.Any()).Times(0) // Сервис не должен вызываться

	w := makeRequest(router, "GET", "/api/v1/incidents/invalid-uuid", nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid incident ID")
}

func TestGetIncident_NotFound(t *testing.T) {
	_, m, router := newTestHandler(t)
	incidentID := uuid.New()
	serviceError := fmt.Errorf("service: could not get incident: %w", service.ErrNotFound)

	m.incident.EXPECT().GetIncident(gomock.Any(), incidentID).Return(nil, serviceError).Times(1)

	w := makeRequest(router, "GET", fmt.Sprintf("/api/v1/incidents/%s", incidentID.String()), nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "incident not found")
}

func TestPatchIncident_Success(t *testing.T) {
	_, m, router := newTestHandler(t)
	incidentID := uuid.New()
	expectedIncident := &models.Incident{ID: incidentID, Status: models.IncidentStatusArrived}

	m.incident.EXPECT().
		SetStatus(gomock.Any(), incidentID, models.IncidentStatusArrived).
		Return(expectedIncident, nil).
		Times(1)

	w := makeRequest(router, "PATCH", fmt.Sprintf("/api/v1/incidents/%s", incidentID.String()),
		bytes.NewBufferString(`{"status":"arrived"}`), authHeader())

	assert.Equal(t, http.StatusOK, w.Code)
	var resp IncidentResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "arrived", resp.Status)
}

func TestPatchIncident_MissingStatus(t *testing.T) {
	_, m, router := newTestHandler(t)
	incidentID := uuid.New()

	m.incident.EXPECT().SetStatus(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

	w := makeRequest(router, "PATCH", fmt.Sprintf("/api/v1/incidents/%s", incidentID.String()),
		bytes.NewBufferString(`{}`), authHeader())

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "'Status' failed on the 'required' tag")
}

func TestListEvents_Success(t *testing.T) {
	_, m, router := newTestHandler(t)
	incidentID := uuid.New()
	now := time.Now()
	events := []*models.IncidentEvent{
		{ID: uuid.New(), IncidentID: incidentID, At: now.Add(-time.Second), Type: models.EventTypeMessage},
	}

	m.incident.EXPECT().
		EventsSince(gomock.Any(), incidentID, time.UnixMilli(12345)).
		Return(events, now, nil).
		Times(1)

	w := makeRequest(router, "GET", fmt.Sprintf("/api/v1/incidents/%s/events?since=12345", incidentID.String()), nil)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp EventsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Events, 1)
	assert.Equal(t, now.UnixMilli(), resp.Now)
	assert.Equal(t, events[0].At.UnixMilli(), resp.Events[0].At)
}

func TestListEvents_ZeroCursorIsBootstrap(t *testing.T) {
	_, m, router := newTestHandler(t)
	incidentID := uuid.New()

	// since не задан - сервис получает нулевое время (бутстрап)
	m.incident.EXPECT().
		EventsSince(gomock.Any(), incidentID, time.Time{}).
		Return([]*models.IncidentEvent{}, time.Now(), nil).
		Times(1)

	w := makeRequest(router, "GET", fmt.Sprintf("/api/v1/incidents/%s/events", incidentID.String()), nil)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestListEvents_NotFound(t *testing.T) {
	_, m, router := newTestHandler(t)
	incidentID := uuid.New()
	serviceError := fmt.Errorf("service: could not fetch events: %w", service.ErrNotFound)

	m.incident.EXPECT().
		EventsSince(gomock.Any(), incidentID, gomock.Any()).
		Return(nil, time.Time{}, serviceError).
		Times(1)

	w := makeRequest(router, "GET", fmt.Sprintf("/api/v1/incidents/%s/events", incidentID.String()), nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "incident not found")
}

func TestPostEvent_Success(t *testing.T) {
	_, m, router := newTestHandler(t)
	incidentID := uuid.New()
	payload := json.RawMessage(`{"text":"need help"}`)
	expectedEvent := &models.IncidentEvent{
		ID:         uuid.New(),
		IncidentID: incidentID,
		At:         time.Now(),
		Type:       models.EventTypeMessage,
		From:       models.RoleCivilian,
		Payload:    payload,
	}

	m.incident.EXPECT().
		AddEvent(gomock.Any(), incidentID, models.EventTypeMessage, models.RoleCivilian, gomock.Any()).
		Return(expectedEvent, nil).
		Times(1)

	w := makeRequest(router, "POST", fmt.Sprintf("/api/v1/incidents/%s/events", incidentID.String()),
		bytes.NewBufferString(`{"type":"message","from":"civilian","payload":{"text":"need help"}}`), authHeader())

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), expectedEvent.ID.String())
}

func TestPostEvent_MissingType(t *testing.T) {
	_, m, router := newTestHandler(t)
	incidentID := uuid.New()

	m.incident.EXPECT().AddEvent(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

	w := makeRequest(router, "POST", fmt.Sprintf("/api/v1/incidents/%s/events", incidentID.String()),
		bytes.NewBufferString(`{"from":"civilian"}`), authHeader())

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "'Type' failed on the 'required' tag")
}

func TestListAlerts_Success(t *testing.T) {
	_, m, router := newTestHandler(t)
	records := []*models.AlertRecord{
		{ID: uuid.New(), Status: models.AlertStatusActive, Type: models.AlertTypeWarning, Severity: models.SeverityHigh, Title: "Flooding"},
	}

	m.alert.EXPECT().
		ListAlerts(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, query service.AlertQuery) ([]*models.AlertRecord, error) {
			require.NotNil(t, query.Lat)
			require.NotNil(t, query.Lng)
			assert.InDelta(t, 49.28, *query.Lat, 1e-9)
			assert.EqualValues(t, 500, query.RadiusMeters)
			return records, nil
		}).Times(1)

	w := makeRequest(router, "GET", "/api/v1/alerts?lat=49.28&lng=-123.12&radiusMeters=500", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Flooding")
}

func TestListAlerts_DegradesToEmptyPayload(t *testing.T) {
	_, m, router := newTestHandler(t)
	serviceError := errors.New("storage down")

	m.alert.EXPECT().ListAlerts(gomock.Any(), gomock.Any()).Return(nil, serviceError).Times(1)

	w := makeRequest(router, "GET", "/api/v1/alerts", nil)

	// Читающая поверхность деградирует мягко: 200 с маркером ошибки
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"data":[]`)
	assert.Contains(t, w.Body.String(), "temporarily unavailable")
}

func TestListAlerts_UnparsableLatRejected(t *testing.T) {
	_, m, router := newTestHandler(t)

	m.alert.EXPECT().ListAlerts(gomock.Any(), gomock.Any()).Times(0) // Сервис не должен вызываться

	w := makeRequest(router, "GET", "/api/v1/alerts?lat=north&lng=-123.12", nil)

	// Мусор в параметре - это 400 с именем поля, а не молча выключенный фильтр
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid lat")
}

func TestListAlerts_UnparsableRadiusRejected(t *testing.T) {
	_, m, router := newTestHandler(t)

	m.alert.EXPECT().ListAlerts(gomock.Any(), gomock.Any()).Times(0)

	w := makeRequest(router, "GET", "/api/v1/alerts?lat=49.28&lng=-123.12&radiusMeters=wide", nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid radiusMeters")
}

func TestCreateAlert_Success(t *testing.T) {
	_, m, router := newTestHandler(t)
	recordID := uuid.New()

	m.alert.EXPECT().
		CreateAlert(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, record *models.AlertRecord) (*models.AlertRecord, error) {
			record.ID = recordID
			record.Status = models.AlertStatusActive
			return record, nil
		}).Times(1)

	w := makeRequest(router, "POST", "/api/v1/alerts",
		bytes.NewBufferString(`{"type":"evacuation","severity":"critical","title":"Evacuate now"}`), authHeader())

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), `"ok":true`)
	assert.Contains(t, w.Body.String(), recordID.String())
}

func TestCreateAlert_UnknownType(t *testing.T) {
	_, m, router := newTestHandler(t)

	m.alert.EXPECT().CreateAlert(gomock.Any(), gomock.Any()).Times(0)

	w := makeRequest(router, "POST", "/api/v1/alerts",
		bytes.NewBufferString(`{"type":"tsunami","severity":"critical","title":"x"}`), authHeader())

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "'Type' failed on the 'oneof' tag")
}

func TestPatchAlert_NotFound(t *testing.T) {
	_, m, router := newTestHandler(t)
	alertID := uuid.New()
	serviceError := fmt.Errorf("service: could not get alert: %w", service.ErrNotFound)

	m.alert.EXPECT().UpdateAlert(gomock.Any(), alertID, gomock.Any()).Return(nil, serviceError).Times(1)

	w := makeRequest(router, "PATCH", "/api/v1/alerts",
		bytes.NewBufferString(fmt.Sprintf(`{"id":%q,"title":"new title"}`, alertID.String())), authHeader())

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "alert not found")
}

func TestPatchAlert_StatusOnlyCancelled(t *testing.T) {
	_, m, router := newTestHandler(t)

	m.alert.EXPECT().UpdateAlert(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

	// Через PATCH нельзя выставить произвольный статус
	w := makeRequest(router, "PATCH", "/api/v1/alerts",
		bytes.NewBufferString(fmt.Sprintf(`{"id":%q,"status":"active"}`, uuid.New().String())), authHeader())

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "'Status' failed on the 'oneof' tag")
}

func TestRebroadcastAlert_NotActive(t *testing.T) {
	_, m, router := newTestHandler(t)
	alertID := uuid.New()
	serviceError := fmt.Errorf("service: alert %s is not active", alertID)

	m.alert.EXPECT().Rebroadcast(gomock.Any(), alertID).Return(nil, serviceError).Times(1)

	w := makeRequest(router, "POST", fmt.Sprintf("/api/v1/alerts/%s/rebroadcast", alertID.String()), nil, authHeader())

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "alert is not active")
}

func TestListAudit_Success(t *testing.T) {
	_, m, router := newTestHandler(t)
	alertID := uuid.New()
	events := []*models.AuditEvent{
		{ID: uuid.New(), AlertID: &alertID, Actor: models.ActorResponder, Action: models.AuditActionCreate},
	}

	m.alert.EXPECT().AuditTrail(gomock.Any(), 200).Return(events, nil).Times(1)

	w := makeRequest(router, "GET", "/api/v1/alerts/audit", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"action":"create"`)
}

func TestRecordSOS_DefaultActorCivilian(t *testing.T) {
	_, m, router := newTestHandler(t)

	m.alert.EXPECT().
		RecordSOS(gomock.Any(), models.ActorCivilian, "help").
		Return(nil).
		Times(1)

	// SOS намеренно не требует API-ключа
	w := makeRequest(router, "POST", "/api/v1/sos", bytes.NewBufferString(`{"detail":"help"}`))

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), `"ok":true`)
}

func TestIssueConsent_Success(t *testing.T) {
	_, m, router := newTestHandler(t)
	incidentID := uuid.New()
	token := &models.ConsentToken{
		ID:         uuid.New(),
		IncidentID: incidentID,
		Fields:     []string{"location"},
		IssuedAt:   time.Now(),
	}

	m.consent.EXPECT().
		Issue(gomock.Any(), incidentID, []string{"location"}, "for EMS").
		Return(token, "encoded.signature", nil).
		Times(1)

	w := makeRequest(router, "POST", fmt.Sprintf("/api/v1/consent/%s", incidentID.String()),
		bytes.NewBufferString(`{"fields":["location"],"note":"for EMS"}`), authHeader())

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), `"credential":"encoded.signature"`)
	assert.Contains(t, w.Body.String(), token.ID.String())
}

func TestListConsent_SoftFailure(t *testing.T) {
	_, m, router := newTestHandler(t)
	incidentID := uuid.New()
	serviceError := errors.New("kv down")

	m.consent.EXPECT().List(gomock.Any(), incidentID).Return([]*models.ConsentToken{}, serviceError).Times(1)

	w := makeRequest(router, "GET", fmt.Sprintf("/api/v1/consent/%s", incidentID.String()), nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"items":[]`)
	assert.Contains(t, w.Body.String(), "temporarily unavailable")
}

func TestRevokeConsent_Success(t *testing.T) {
	_, m, router := newTestHandler(t)
	incidentID := uuid.New()
	tokenID := uuid.New()

	m.consent.EXPECT().Revoke(gomock.Any(), incidentID, tokenID).Return(true, nil).Times(1)

	w := makeRequest(router, "DELETE",
		fmt.Sprintf("/api/v1/consent/%s?token=%s", incidentID.String(), tokenID.String()), nil, authHeader())

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"ok":true`)
}

func TestRevokeConsent_MissingToken(t *testing.T) {
	_, m, router := newTestHandler(t)
	incidentID := uuid.New()

	m.consent.EXPECT().Revoke(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

	w := makeRequest(router, "DELETE", fmt.Sprintf("/api/v1/consent/%s", incidentID.String()), nil, authHeader())

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "token query parameter is required")
}

func TestHealthCheck_Success(t *testing.T) {
	_, _, router := newTestHandler(t)

	w := makeRequest(router, "GET", "/api/v1/system/health", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
}

func TestWriteRoutes_RequireAPIKey(t *testing.T) {
	_, m, router := newTestHandler(t)

	m.incident.EXPECT().CreateIncident(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

	w := makeRequest(router, "POST", "/api/v1/incidents", bytes.NewBufferString(`{}`)) // Нет API ключа

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "API key required")
}

func TestAPIKeyAuthMiddleware_BearerAccepted(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	logger := logrus.New()
	logger.SetOutput(&bytes.Buffer{})

	cfg := &config.Config{
		APIKeys: []string{"valid-key"},
	}

	router.Use(APIKeyAuthMiddleware(cfg, logger))
	router.GET("/test", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	w := makeRequest(router, "GET", "/test", nil, map[string]string{"Authorization": "Bearer valid-key"})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAPIKeyAuthMiddleware_InvalidKey(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	logger := logrus.New()
	logger.SetOutput(&bytes.Buffer{})

	cfg := &config.Config{
		APIKeys: []string{"valid-key"},
	}

	router.Use(APIKeyAuthMiddleware(cfg, logger))
	router.GET("/test", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	w := makeRequest(router, "GET", "/test", nil, map[string]string{"X-API-Key": "invalid-key"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "Invalid API key")
}
