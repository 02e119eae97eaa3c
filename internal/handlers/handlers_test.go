package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"fieldcollect-backend/internal/models"
	"fieldcollect-backend/internal/services/catalog"
	"fieldcollect-backend/internal/services/collection"
	"fieldcollect-backend/internal/services/location"
	"fieldcollect-backend/internal/services/session"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedSensor fails on the reads listed in failures, then succeeds
type scriptedSensor struct {
	mu       sync.Mutex
	failures []bool
}

func (s *scriptedSensor) Read(context.Context, models.Bin) (collection.Reading, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.failures) > 0 {
		fail := s.failures[0]
		s.failures = s.failures[1:]
		if fail {
			return collection.Reading{}, collection.ErrSensorFailure
		}
	}
	return collection.Reading{Weight: 20, FillLevel: 75, WasteType: "General"}, nil
}

type testServer struct {
	router  chi.Router
	manager *session.Manager
	sensor  *scriptedSensor
	sources map[string]*location.PushSource
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	cat, err := catalog.New(
		[]models.Bin{
			{ID: "BIN-001", Coordinate: models.Coordinate{Latitude: 6.9344, Longitude: 79.8428}, Address: "Fort Railway Station"},
			{ID: "BIN-002", Coordinate: models.Coordinate{Latitude: 6.9271, Longitude: 79.8450}, Address: "Galle Face Green"},
			{ID: "BIN-003", Coordinate: models.Coordinate{Latitude: 6.9167, Longitude: 79.8473}, Address: "Slave Island"},
		},
		[]models.RouteDefinition{
			{ID: "colombo-central", Name: "Colombo Central", BinIDs: []string{"BIN-001", "BIN-002", "BIN-003"}},
		},
	)
	require.NoError(t, err)

	ts := &testServer{
		sensor:  &scriptedSensor{},
		sources: make(map[string]*location.PushSource),
	}

	cfg := location.DefaultConfig()
	cfg.RetryDelay = time.Millisecond
	cfg.Timeout = 100 * time.Millisecond

	ts.manager = session.NewManager(cat, session.Options{
		Location:  cfg,
		NewSensor: func() collection.Sensor { return ts.sensor },
		NewSource: func(operatorID string) (location.Source, func(), error) {
			src := location.NewPushSource()
			ts.sources[operatorID] = src
			return src, func() {}, nil
		},
	})
	t.Cleanup(ts.manager.Shutdown)

	r := chi.NewRouter()
	r.Get("/api/routes", GetRoutes(cat))
	r.Get("/api/routes/{id}", GetRoute(cat))
	r.Get("/api/routes/{id}/bins", GetRouteBins(cat))
	r.Get("/api/bins/{id}", GetBin(cat))
	r.Post("/api/logs/diagnostic", ReceiveDiagnosticLog())
	r.Route("/api/sessions", func(r chi.Router) {
		r.Get("/", ListSessions(ts.manager))
		r.Post("/", StartSession(ts.manager))
		r.Get("/{id}", GetSession(ts.manager))
		r.Delete("/{id}", EndSession(ts.manager))
		r.Post("/{id}/scan", Scan(ts.manager))
		r.Post("/{id}/override", Override(ts.manager))
		r.Post("/{id}/cancel", Cancel(ts.manager))
		r.Post("/{id}/manual-entry/request", RequestManualEntry(ts.manager))
		r.Post("/{id}/manual-entry", SubmitManualEntry(ts.manager))
		r.Post("/{id}/missed", MarkMissed(ts.manager))
		r.Post("/{id}/fix", AcquireFix(ts.manager))
		r.Post("/{id}/tracking/start", StartTracking(ts.manager))
		r.Post("/{id}/tracking/stop", StopTracking(ts.manager))
		r.Post("/{id}/fcm-token", RegisterFCMToken(ts.manager))
		r.Get("/{id}/progress", GetProgress(ts.manager))
		r.Get("/{id}/next-destination", GetNextDestination(ts.manager))
		r.Get("/{id}/segments", GetSegments(ts.manager))
		r.Get("/{id}/map", GetMapState(ts.manager))
		r.Get("/{id}/records", GetRecords(ts.manager))
	})
	ts.router = r
	return ts
}

func (ts *testServer) do(t *testing.T, method, path string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)

	var decoded map[string]interface{}
	if rec.Body.Len() > 0 && rec.Body.Bytes()[0] == '{' {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded))
	}
	return rec, decoded
}

func (ts *testServer) start(t *testing.T, operatorID string) string {
	t.Helper()
	rec, body := ts.do(t, http.MethodPost, "/api/sessions", map[string]string{
		"operator_id": operatorID,
		"route_id":    "colombo-central",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	return body["session_id"].(string)
}

func TestRoutes(t *testing.T) {
	ts := newTestServer(t)

	rec, _ := ts.do(t, http.MethodGet, "/api/routes", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var routes []models.Route
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &routes))
	require.Len(t, routes, 1)
	assert.Equal(t, []string{"BIN-001", "BIN-002", "BIN-003"}, routes[0].BinIDs)

	rec, body := ts.do(t, http.MethodGet, "/api/routes/colombo-central", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["bins"], 3)

	rec, _ = ts.do(t, http.MethodGet, "/api/routes/nowhere", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec, _ = ts.do(t, http.MethodGet, "/api/routes/nowhere/bins", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, body = ts.do(t, http.MethodGet, "/api/bins/BIN-002", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "colombo-central", body["route_id"])
	rec, _ = ts.do(t, http.MethodGet, "/api/bins/BIN-999", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStartSession(t *testing.T) {
	ts := newTestServer(t)

	rec, _ := ts.do(t, http.MethodPost, "/api/sessions", map[string]string{"operator_id": "op-1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = ts.do(t, http.MethodPost, "/api/sessions", map[string]string{"operator_id": "op-1", "route_id": "nowhere"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	id := ts.start(t, "op-1")

	rec, _ = ts.do(t, http.MethodPost, "/api/sessions", map[string]string{"operator_id": "op-1", "route_id": "colombo-central"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec, body := ts.do(t, http.MethodGet, "/api/sessions/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "idle", body["state"])

	rec, _ = ts.do(t, http.MethodGet, "/api/sessions/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []session.Summary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list, 1)

	rec, _ = ts.do(t, http.MethodDelete, "/api/sessions/"+id, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec, _ = ts.do(t, http.MethodGet, "/api/sessions/"+id, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestScanFlow(t *testing.T) {
	ts := newTestServer(t)
	id := ts.start(t, "op-1")
	base := "/api/sessions/" + id

	rec, body := ts.do(t, http.MethodPost, base+"/scan", map[string]string{"bin_id": "BIN-404"})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	outcome := body["outcome"].(map[string]interface{})
	assert.Equal(t, "error", outcome["feedback"].(map[string]interface{})["category"])

	rec, body = ts.do(t, http.MethodPost, base+"/scan", map[string]string{"bin_id": "BIN-001"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "idle", body["state"])
	assert.Equal(t, "Collected", body["record"].(map[string]interface{})["status"])

	rec, body = ts.do(t, http.MethodPost, base+"/scan", map[string]string{"bin_id": "BIN-001"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "duplicate", body["state"])
	assert.Nil(t, body["record"])

	// a new scan is not accepted until the duplicate is resolved
	rec, _ = ts.do(t, http.MethodPost, base+"/scan", map[string]string{"bin_id": "BIN-002"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec, body = ts.do(t, http.MethodPost, base+"/override", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OverrideCollection", body["record"].(map[string]interface{})["status"])

	rec, body = ts.do(t, http.MethodGet, base+"/progress", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, body["collected"])
	assert.EqualValues(t, 33, body["percent"])

	rec, body = ts.do(t, http.MethodGet, base+"/records", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["records"], 2)
	assert.EqualValues(t, 40, body["total_weight"])

	rec, _ = ts.do(t, http.MethodPost, base+"/cancel", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestSensorFailureManualEntry(t *testing.T) {
	ts := newTestServer(t)
	ts.sensor.failures = []bool{true}
	id := ts.start(t, "op-1")
	base := "/api/sessions/" + id

	rec, body := ts.do(t, http.MethodPost, base+"/scan", map[string]string{"bin_id": "BIN-002"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "sensor_failure", body["state"])

	rec, body = ts.do(t, http.MethodPost, base+"/manual-entry/request", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "manual_entry_pending", body["state"])

	rec, _ = ts.do(t, http.MethodPost, base+"/manual-entry", map[string]interface{}{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = ts.do(t, http.MethodPost, base+"/manual-entry", map[string]interface{}{"weight": -1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body = ts.do(t, http.MethodPost, base+"/manual-entry", map[string]interface{}{"weight": 12.5, "waste_type": "Recyclable"})
	require.Equal(t, http.StatusOK, rec.Code)
	record := body["record"].(map[string]interface{})
	assert.Equal(t, "ManualEntry", record["status"])
	assert.Equal(t, models.ReasonSensorFailure, record["reason"])
}

func TestMarkMissed(t *testing.T) {
	ts := newTestServer(t)
	id := ts.start(t, "op-1")
	base := "/api/sessions/" + id

	rec, _ := ts.do(t, http.MethodPost, base+"/missed", map[string]string{"bin_id": "BIN-003", "reason": "Sleeping"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body := ts.do(t, http.MethodPost, base+"/missed", map[string]string{"bin_id": "BIN-003", "reason": "Damaged"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Missed", body["record"].(map[string]interface{})["status"])

	rec, _ = ts.do(t, http.MethodPost, base+"/missed", map[string]string{"bin_id": "BIN-003", "reason": "Blocked"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec, body = ts.do(t, http.MethodGet, base+"/map", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	for _, m := range body["markers"].([]interface{}) {
		marker := m.(map[string]interface{})
		if marker["bin_id"] == "BIN-003" {
			assert.Equal(t, "orange", marker["color"])
		}
	}
}

func TestTrackingAndNavigation(t *testing.T) {
	ts := newTestServer(t)
	id := ts.start(t, "op-1")
	base := "/api/sessions/" + id

	rec, body := ts.do(t, http.MethodGet, base+"/next-destination", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, body["next_destination"])

	rec, body = ts.do(t, http.MethodPost, base+"/tracking/start", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["tracking"])

	require.NoError(t, ts.manager.PushPosition("op-1", location.Position{
		Latitude: 6.9170, Longitude: 79.8470, Accuracy: 5, Timestamp: time.Now(),
	}))

	rec, body = ts.do(t, http.MethodGet, base+"/next-destination", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	next := body["next_destination"].(map[string]interface{})
	assert.Equal(t, "BIN-003", next["bin_id"])

	rec, body = ts.do(t, http.MethodGet, base+"/segments", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["navigation"], 2)
	assert.Len(t, body["remaining"], 3)

	rec, body = ts.do(t, http.MethodPost, base+"/tracking/stop", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, body["tracking"])

	rec, body = ts.do(t, http.MethodGet, base+"/segments", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, body["navigation"])
}

func TestAcquireFixReportsLocationError(t *testing.T) {
	ts := newTestServer(t)
	id := ts.start(t, "op-1")

	go func() {
		src := ts.sources["op-1"]
		for src.PendingRequests() == 0 {
			time.Sleep(time.Millisecond)
		}
		src.Fail(location.NewLocationError(location.ErrPermissionDenied, errors.New("denied")))
	}()

	rec, body := ts.do(t, http.MethodPost, "/api/sessions/"+id+"/fix", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "PERMISSION_DENIED", body["code"])
	assert.Equal(t, false, body["retryable"])
}

func TestRegisterFCMToken(t *testing.T) {
	ts := newTestServer(t)
	id := ts.start(t, "op-1")

	rec, _ := ts.do(t, http.MethodPost, "/api/sessions/"+id+"/fcm-token", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = ts.do(t, http.MethodPost, "/api/sessions/"+id+"/fcm-token", map[string]string{"token": "device-1"})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = ts.do(t, http.MethodPost, "/api/sessions/missing/fcm-token", map[string]string{"token": "device-1"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReceiveDiagnosticLog(t *testing.T) {
	ts := newTestServer(t)

	rec, body := ts.do(t, http.MethodPost, "/api/logs/diagnostic", map[string]interface{}{
		"level":    "ERROR",
		"message":  "GPS lost",
		"platform": "android",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "received", body["status"])

	rec, _ = ts.do(t, http.MethodPost, "/api/logs/diagnostic", map[string]interface{}{"unknown": 1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
