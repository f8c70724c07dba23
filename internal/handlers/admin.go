package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/mateit-cloudware/mate-sentinel/internal/security"
	pkghttp "github.com/mateit-cloudware/mate-sentinel/pkg/http"
)

// AdminHandler exposes the operator API over the detection engine.
type AdminHandler struct {
	engine *security.Engine
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(engine *security.Engine) *AdminHandler {
	return &AdminHandler{engine: engine}
}

// BlockIPRequest represents the request body for blocking an IP
type BlockIPRequest struct {
	IP     string `json:"ip" validate:"required,ip"`
	Reason string `json:"reason" validate:"required,min=1,max=255"`
}

// BlockedIPsResponse lists the current blocklist.
type BlockedIPsResponse struct {
	BlockedIPs []string `json:"blocked_ips"`
	Count      int      `json:"count"`
}

// EventsResponse wraps a filtered event listing.
type EventsResponse struct {
	Events []security.SecurityEvent `json:"events"`
	Count  int                      `json:"count"`
}

// GetStats handles GET /api/admin/security/stats
// Accepts optional query param ?hours=N (1-168, default 24).
func (h *AdminHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	hours := 24
	if v := r.URL.Query().Get("hours"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 168 {
			hours = n
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.engine.Statistics(hours))
}

// GetEvents handles GET /api/admin/security/events with optional filters
// ?type=, ?severity=, ?ip=, ?since=RFC3339, ?limit=N.
func (h *AdminHandler) GetEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := security.EventFilter{
		Type: q.Get("type"),
		IP:   q.Get("ip"),
	}
	if sev := q.Get("severity"); sev != "" {
		filter.Severity = security.Severity(sev)
	}
	if since := q.Get("since"); since != "" {
		ts, err := time.Parse(time.RFC3339, since)
		if err != nil {
			pkghttp.WriteBadRequest(w, "Invalid 'since' timestamp, expected RFC3339")
			return
		}
		filter.Since = ts
	}
	filter.Limit = 100
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 1000 {
			filter.Limit = n
		}
	}

	events := h.engine.Events(filter)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(EventsResponse{Events: events, Count: len(events)})
}

// GetBlockedIPs handles GET /api/admin/security/blocked-ips
func (h *AdminHandler) GetBlockedIPs(w http.ResponseWriter, r *http.Request) {
	ips := h.engine.BlockedIPs()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(BlockedIPsResponse{BlockedIPs: ips, Count: len(ips)})
}

// BlockIP handles POST /api/admin/security/blocked-ips
func (h *AdminHandler) BlockIP(w http.ResponseWriter, r *http.Request) {
	var req BlockIPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	h.engine.BlockIP(req.IP, req.Reason)
	pkghttp.WriteJSON(w, http.StatusCreated, map[string]string{"status": "blocked", "ip": req.IP})
}

// UnblockIP handles DELETE /api/admin/security/blocked-ips/{ip}
func (h *AdminHandler) UnblockIP(w http.ResponseWriter, r *http.Request) {
	ip := chi.URLParam(r, "ip")
	if ip == "" {
		pkghttp.WriteBadRequest(w, "IP address is required")
		return
	}

	h.engine.UnblockIP(ip)
	pkghttp.WriteJSON(w, http.StatusOK, map[string]string{"status": "unblocked", "ip": ip})
}

// GetIPStatus handles GET /api/admin/security/ips/{ip}
func (h *AdminHandler) GetIPStatus(w http.ResponseWriter, r *http.Request) {
	ip := chi.URLParam(r, "ip")
	if ip == "" {
		pkghttp.WriteBadRequest(w, "IP address is required")
		return
	}

	status := h.engine.IsSuspiciousIP(ip)
	resp := struct {
		IP string `json:"ip"`
		security.IPStatus
		Blocked bool `json:"blocked"`
	}{IP: ip, IPStatus: status, Blocked: h.engine.IsBlockedIP(ip)}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// MarkEventHandled handles POST /api/admin/security/events/{id}/handled
func (h *AdminHandler) MarkEventHandled(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		pkghttp.WriteBadRequest(w, "Invalid event ID")
		return
	}

	if err := h.engine.MarkEventHandled(id); err != nil {
		if errors.Is(err, security.ErrEventNotFound) {
			pkghttp.WriteNotFound(w, "Event not found")
			return
		}
		pkghttp.WriteInternalError(w, "Failed to update event")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]string{"status": "handled", "id": id.String()})
}
