package watch

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/HerbHall/driftwatch/pkg/drift"
	"github.com/HerbHall/driftwatch/pkg/plugin"
)

// Routes implements plugin.HTTPProvider.
func (m *Module) Routes() []plugin.Route {
	return []plugin.Route{
		{Method: "POST", Path: "/monitors", Handler: m.handleCreateMonitor},
		{Method: "GET", Path: "/monitors", Handler: m.handleListMonitors},
		{Method: "GET", Path: "/monitors/{id}", Handler: m.handleGetMonitor},
		{Method: "DELETE", Path: "/monitors/{id}", Handler: m.handleDeleteMonitor},
		{Method: "POST", Path: "/monitors/{id}/observations", Handler: m.handleObservationsPost},
		{Method: "GET", Path: "/monitors/{id}/status", Handler: m.handleMonitorStatus},
		{Method: "POST", Path: "/monitors/{id}/reset", Handler: m.handleResetMonitor},
		{Method: "GET", Path: "/events", Handler: m.handleListEvents},
	}
}

// CreateMonitorRequest is the body for POST /monitors.
type CreateMonitorRequest struct {
	Name     string       `json:"name"`
	Metric   string       `json:"metric,omitempty"`
	Config   drift.Config `json:"config"`
	Baseline []float64    `json:"baseline"`
}

// MonitorDetail extends MonitorInfo with the fitted model tables.
type MonitorDetail struct {
	MonitorInfo
	Model  *drift.Model     `json:"model"`
	Bounds drift.BoundTable `json:"bounds"`
}

// handleCreateMonitor fits a new monitor from baseline samples.
func (m *Module) handleCreateMonitor(w http.ResponseWriter, r *http.Request) {
	var req CreateMonitorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	if len(req.Baseline) == 0 {
		writeError(w, http.StatusBadRequest, "baseline is required")
		return
	}

	info, err := m.CreateMonitor(r.Context(), req.Name, req.Metric, req.Config, req.Baseline)
	if err != nil {
		writeDriftError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, info)
}

// handleListMonitors returns all registered monitors.
func (m *Module) handleListMonitors(w http.ResponseWriter, r *http.Request) {
	entries := m.monitors.list()
	infos := make([]MonitorInfo, 0, len(entries))
	for _, e := range entries {
		infos = append(infos, e.info())
	}
	writeJSON(w, http.StatusOK, infos)
}

// handleGetMonitor returns a monitor with its model and bound tables.
func (m *Module) handleGetMonitor(w http.ResponseWriter, r *http.Request) {
	e, ok := m.monitors.get(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "monitor not found")
		return
	}
	writeJSON(w, http.StatusOK, MonitorDetail{
		MonitorInfo: e.info(),
		Model:       e.mon.Model(),
		Bounds:      e.mon.Bounds(),
	})
}

// handleDeleteMonitor removes a monitor.
func (m *Module) handleDeleteMonitor(w http.ResponseWriter, r *http.Request) {
	if err := m.DeleteMonitor(r.Context(), r.PathValue("id")); err != nil {
		if errors.Is(err, ErrNotFound) {
			writeError(w, http.StatusNotFound, "monitor not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to delete monitor")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleObservationsPost ingests a batch of observations.
func (m *Module) handleObservationsPost(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Values []float64 `json:"values"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if len(req.Values) == 0 {
		writeError(w, http.StatusBadRequest, "values is required")
		return
	}
	if len(req.Values) > m.cfg.MaxBatch {
		writeError(w, http.StatusRequestEntityTooLarge, "batch exceeds max_batch")
		return
	}

	res, err := m.Ingest(r.PathValue("id"), req.Values)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			writeError(w, http.StatusNotFound, "monitor not found")
			return
		}
		writeDriftError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleMonitorStatus returns the drift state of a monitor.
func (m *Module) handleMonitorStatus(w http.ResponseWriter, r *http.Request) {
	e, ok := m.monitors.get(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "monitor not found")
		return
	}
	writeJSON(w, http.StatusOK, e.info())
}

// handleResetMonitor clears a monitor's window and drift state.
func (m *Module) handleResetMonitor(w http.ResponseWriter, r *http.Request) {
	info, err := m.ResetMonitor(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			writeError(w, http.StatusNotFound, "monitor not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to reset monitor")
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// handleListEvents returns stored drift events, newest first.
func (m *Module) handleListEvents(w http.ResponseWriter, r *http.Request) {
	if m.store == nil {
		writeJSON(w, http.StatusOK, []DriftEvent{})
		return
	}
	events, err := m.store.ListEvents(r.Context(), r.URL.Query().Get("monitor_id"), parseLimit(r, 50))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list drift events")
		return
	}
	if events == nil {
		events = []DriftEvent{}
	}
	writeJSON(w, http.StatusOK, events)
}

// -- helpers --

// writeDriftError maps drift package errors to HTTP statuses.
func writeDriftError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, drift.ErrInvalidConfig):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, drift.ErrEmptyBaseline), errors.Is(err, drift.ErrInsufficientData):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, drift.ErrInvalidObservation):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"type":   "https://driftwatch.dev/problems/" + http.StatusText(status),
		"title":  http.StatusText(status),
		"status": status,
		"detail": detail,
	})
}

func parseLimit(r *http.Request, defaultLimit int) int {
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 && n <= 1000 {
			return n
		}
	}
	return defaultLimit
}
