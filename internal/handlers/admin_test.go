package handlers_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mateit-cloudware/mate-sentinel/internal/handlers"
	"github.com/mateit-cloudware/mate-sentinel/internal/security"
)

func newAdminRouter(engine *security.Engine) http.Handler {
	h := handlers.NewAdminHandler(engine)
	r := chi.NewRouter()
	r.Get("/stats", h.GetStats)
	r.Get("/events", h.GetEvents)
	r.Post("/events/{id}/handled", h.MarkEventHandled)
	r.Get("/blocked-ips", h.GetBlockedIPs)
	r.Post("/blocked-ips", h.BlockIP)
	r.Delete("/blocked-ips/{ip}", h.UnblockIP)
	r.Get("/ips/{ip}", h.GetIPStatus)
	return r
}

func TestAdmin_BlockAndUnblockIP(t *testing.T) {
	engine := security.NewEngine(security.DefaultConfig(), security.Hooks{}, testLogger())
	router := newAdminRouter(engine)

	body, _ := json.Marshal(handlers.BlockIPRequest{IP: "203.0.113.50", Reason: "manual review"})
	req := httptest.NewRequest(http.MethodPost, "/blocked-ips", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.True(t, engine.IsBlockedIP("203.0.113.50"))

	req = httptest.NewRequest(http.MethodGet, "/blocked-ips", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	var list handlers.BlockedIPsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Equal(t, 1, list.Count)
	assert.Contains(t, list.BlockedIPs, "203.0.113.50")

	req = httptest.NewRequest(http.MethodDelete, "/blocked-ips/203.0.113.50", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, engine.IsBlockedIP("203.0.113.50"))
}

func TestAdmin_BlockIPValidation(t *testing.T) {
	engine := security.NewEngine(security.DefaultConfig(), security.Hooks{}, testLogger())
	router := newAdminRouter(engine)

	cases := []handlers.BlockIPRequest{
		{IP: "", Reason: "x"},
		{IP: "not-an-ip", Reason: "x"},
		{IP: "203.0.113.51", Reason: ""},
	}
	for _, tc := range cases {
		body, _ := json.Marshal(tc)
		req := httptest.NewRequest(http.MethodPost, "/blocked-ips", bytes.NewReader(body))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	}
}

func TestAdmin_GetEventsWithFilters(t *testing.T) {
	engine := security.NewEngine(security.DefaultConfig(), security.Hooks{}, testLogger())
	engine.RecordSecurityEvent(security.EventSQLInjection, security.SeverityCritical, "203.0.113.60", "", "/api/search", nil)
	engine.RecordSecurityEvent(security.EventXSS, security.SeverityHigh, "203.0.113.61", "", "/api/comments", nil)
	router := newAdminRouter(engine)

	req := httptest.NewRequest(http.MethodGet, "/events?type="+security.EventSQLInjection, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp handlers.EventsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.Count)
	assert.Equal(t, security.EventSQLInjection, resp.Events[0].Type)

	req = httptest.NewRequest(http.MethodGet, "/events?since=garbage", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdmin_MarkEventHandled(t *testing.T) {
	engine := security.NewEngine(security.DefaultConfig(), security.Hooks{}, testLogger())
	ev := engine.RecordSecurityEvent(security.EventPathTraversal, security.SeverityMedium, "203.0.113.62", "", "/files", nil)
	router := newAdminRouter(engine)

	req := httptest.NewRequest(http.MethodPost, "/events/"+ev.ID.String()+"/handled", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	events := engine.Events(security.EventFilter{Type: security.EventPathTraversal})
	require.Len(t, events, 1)
	assert.True(t, events[0].Handled)

	req = httptest.NewRequest(http.MethodPost, "/events/"+uuid.NewString()+"/handled", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/events/not-a-uuid/handled", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdmin_GetStats(t *testing.T) {
	engine := security.NewEngine(security.DefaultConfig(), security.Hooks{}, testLogger())
	engine.BlockIP("203.0.113.63", "manual")
	router := newAdminRouter(engine)

	req := httptest.NewRequest(http.MethodGet, "/stats?hours=48", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var stats security.Statistics
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 48, stats.WindowHours)
	assert.Equal(t, 1, stats.BlockedIPs)
}

func TestAdmin_GetIPStatus(t *testing.T) {
	engine := security.NewEngine(security.DefaultConfig(), security.Hooks{}, testLogger())
	engine.MarkSuspiciousIP("203.0.113.64", "sql_injection")
	router := newAdminRouter(engine)

	req := httptest.NewRequest(http.MethodGet, "/ips/203.0.113.64", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		IP      string `json:"ip"`
		Score   int    `json:"score"`
		Blocked bool   `json:"blocked"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "203.0.113.64", resp.IP)
	assert.Equal(t, 10, resp.Score)
	assert.False(t, resp.Blocked)
}
