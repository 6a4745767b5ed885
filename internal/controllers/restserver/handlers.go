package restserver

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/chrissnell/disturbancemonitor/internal/state"
	"github.com/chrissnell/disturbancemonitor/internal/storage"
	"github.com/chrissnell/disturbancemonitor/pkg/config"
	"github.com/chrissnell/disturbancemonitor/pkg/responseformat"
)

// Handlers contains all HTTP handlers for the REST server
type Handlers struct {
	controller *Controller
	formatter  *responseformat.Formatter
}

// NewHandlers creates a new handlers instance
func NewHandlers(ctrl *Controller) *Handlers {
	return &Handlers{
		controller: ctrl,
		formatter:  responseformat.NewFormatter(),
	}
}

// ResultsResponse is the body of the results endpoint
type ResultsResponse struct {
	Monitor string           `json:"monitor"`
	Feature string           `json:"feature,omitempty"`
	Results []storage.Result `json:"results"`
}

// HealthResponse is the body of the health endpoint
type HealthResponse struct {
	Status   string                    `json:"status"`
	Backends map[string]storage.Health `json:"backends"`
}

func (h *Handlers) write(w http.ResponseWriter, req *http.Request, status int, data any) {
	if err := h.formatter.WriteResponse(w, req, status, data); err != nil {
		h.controller.logger.Errorf("error writing response to %s: %v", req.URL.Path, err)
	}
}

func (h *Handlers) fail(w http.ResponseWriter, req *http.Request, status int, err error) {
	if status >= http.StatusInternalServerError {
		h.controller.logger.Errorf("%s %s: %v", req.Method, req.URL.Path, err)
	}
	h.formatter.WriteError(w, req, status, err.Error())
}

// lookupMonitor resolves the {name} route variable to a configured monitor
func (h *Handlers) lookupMonitor(w http.ResponseWriter, req *http.Request) (*config.MonitorData, bool) {
	name := mux.Vars(req)["name"]

	monitors, err := h.controller.configProvider.GetMonitors()
	if err != nil {
		h.fail(w, req, http.StatusInternalServerError, err)
		return nil, false
	}
	for i := range monitors {
		if monitors[i].Name == name {
			return &monitors[i], true
		}
	}
	h.fail(w, req, http.StatusNotFound, config.ErrMonitorNotFound)
	return nil, false
}

// ListMonitors returns every configured monitor
func (h *Handlers) ListMonitors(w http.ResponseWriter, req *http.Request) {
	monitors, err := h.controller.configProvider.GetMonitors()
	if err != nil {
		h.fail(w, req, http.StatusInternalServerError, err)
		return
	}
	if monitors == nil {
		monitors = []config.MonitorData{}
	}
	h.write(w, req, http.StatusOK, monitors)
}

// GetMonitor returns one monitor's parameters and state
func (h *Handlers) GetMonitor(w http.ResponseWriter, req *http.Request) {
	m, ok := h.lookupMonitor(w, req)
	if !ok {
		return
	}
	h.write(w, req, http.StatusOK, m)
}

// DeleteMonitor drops a monitor's pixel states and results and marks it
// DELETED. It needs a writable configuration backend.
func (h *Handlers) DeleteMonitor(w http.ResponseWriter, req *http.Request) {
	recorder, ok := h.controller.configProvider.(config.ProgressRecorder)
	if !ok || h.controller.configProvider.IsReadOnly() {
		h.fail(w, req, http.StatusMethodNotAllowed, errors.New("configuration backend is read-only"))
		return
	}

	m, ok := h.lookupMonitor(w, req)
	if !ok {
		return
	}

	if err := h.controller.store.DeleteMonitor(req.Context(), m.Name); err != nil {
		h.fail(w, req, http.StatusInternalServerError, err)
		return
	}
	if err := recorder.UpdateMonitorState(m.Name, config.StateDeleted); err != nil {
		h.fail(w, req, http.StatusInternalServerError, err)
		return
	}

	h.controller.logger.Infof("monitor %s deleted", m.Name)
	w.WriteHeader(http.StatusNoContent)
}

// GetResults returns the per-date disturbance counts of a monitor,
// optionally restricted to one feature with ?feature=
func (h *Handlers) GetResults(w http.ResponseWriter, req *http.Request) {
	m, ok := h.lookupMonitor(w, req)
	if !ok {
		return
	}

	feature := req.URL.Query().Get("feature")
	results, err := h.controller.store.LoadResults(req.Context(), m.Name, feature)
	if err != nil {
		h.fail(w, req, http.StatusInternalServerError, err)
		return
	}
	if results == nil {
		results = []storage.Result{}
	}

	h.write(w, req, http.StatusOK, ResultsResponse{Monitor: m.Name, Feature: feature, Results: results})
}

// GetPixel returns the stored model and monitoring state of one pixel
func (h *Handlers) GetPixel(w http.ResponseWriter, req *http.Request) {
	m, ok := h.lookupMonitor(w, req)
	if !ok {
		return
	}

	px, err := h.controller.store.LoadPixel(req.Context(), m.Name, mux.Vars(req)["pixel"])
	switch {
	case errors.Is(err, storage.ErrNotFound):
		h.fail(w, req, http.StatusNotFound, err)
		return
	case errors.Is(err, state.ErrCorruptState):
		h.fail(w, req, http.StatusUnprocessableEntity, err)
		return
	case err != nil:
		h.fail(w, req, http.StatusInternalServerError, err)
		return
	}

	h.write(w, req, http.StatusOK, px)
}

// GetRuns returns the run log of a monitor, newest first
func (h *Handlers) GetRuns(w http.ResponseWriter, req *http.Request) {
	m, ok := h.lookupMonitor(w, req)
	if !ok {
		return
	}

	runs, err := h.controller.store.ListRuns(req.Context(), m.Name)
	if err != nil {
		h.fail(w, req, http.StatusInternalServerError, err)
		return
	}
	if runs == nil {
		runs = []storage.Run{}
	}
	h.write(w, req, http.StatusOK, runs)
}

// Health reports the last storage health checks. It answers 503 when any
// backend is unhealthy.
func (h *Handlers) Health(w http.ResponseWriter, req *http.Request) {
	resp := HealthResponse{Status: storage.StatusHealthy, Backends: h.controller.health.GetAllHealth()}
	status := http.StatusOK
	if !h.controller.health.IsHealthy() {
		resp.Status = storage.StatusUnhealthy
		status = http.StatusServiceUnavailable
	}
	h.write(w, req, status, resp)
}
