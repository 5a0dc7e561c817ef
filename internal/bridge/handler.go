package bridge

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// Handler exposes the bridge status API using go-chi.
type Handler struct {
	mod    *Module
	driver *Driver
	log    *slog.Logger
}

// NewHandler returns a Handler reading from mod. driver is the clock of an
// in-process host and may be nil, which disables scene activation.
func NewHandler(mod *Module, driver *Driver, log *slog.Logger) *Handler {
	return &Handler{mod: mod, driver: driver, log: log}
}

func (h *Handler) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Debug("write response failed", slog.String("error", err.Error()))
	}
}

// GetStatus handles GET /status.
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.mod.Status())
}

// GetSchema handles GET /schema. 404 until a schema is set.
func (h *Handler) GetSchema(w http.ResponseWriter, r *http.Request) {
	s := h.mod.Schema()
	if s == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	h.writeJSON(w, http.StatusOK, s)
}

// GetScenes handles GET /scenes.
func (h *Handler) GetScenes(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.mod.Repository().Scenes())
}

// GetStreams handles GET /streams.
func (h *Handler) GetStreams(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.mod.Repository().Streams())
}

// Healthz handles GET /healthz: 200 while the link is open.
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	if !h.mod.Status().Connected {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// ActivateScene handles POST /scenes/{scene_id}/activate. Following frames
// from the in-process host carry the scene id.
func (h *Handler) ActivateScene(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	id, err := strconv.ParseUint(chi.URLParam(r, "scene_id"), 10, 32)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if h.driver == nil {
		w.WriteHeader(http.StatusNotImplemented)
		return
	}
	sc, ok := h.mod.Schema().Scene(uint32(id))
	if !ok {
		h.log.Info("activate rejected unknown scene", slog.Uint64("scene", id))
		w.WriteHeader(http.StatusNotFound)
		return
	}

	h.driver.SetScene(uint32(id))
	h.writeJSON(w, http.StatusAccepted, map[string]any{"scene": id, "name": sc.Name})
}
