package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gyaneshwarpardhi/never2/internal/jobs"
	"github.com/gyaneshwarpardhi/never2/internal/network"
	"github.com/gyaneshwarpardhi/never2/internal/property"
	"github.com/gyaneshwarpardhi/never2/internal/session"
)

// Handler holds all HTTP handler dependencies.
type Handler struct {
	sess *session.Session
	mux  *http.ServeMux
}

// New creates an HTTP handler and registers all routes.
func New(sess *session.Session) http.Handler {
	h := &Handler{sess: sess, mux: http.NewServeMux()}

	h.mux.HandleFunc("GET /v1/catalog", h.listCatalog)
	h.mux.HandleFunc("GET /v1/scene", h.getScene)
	h.mux.HandleFunc("GET /v1/scene/watch", h.watchScene)
	h.mux.HandleFunc("POST /v1/scene/layers", h.appendLayer)
	h.mux.HandleFunc("PATCH /v1/scene/layers/{id}", h.updateLayer)
	h.mux.HandleFunc("DELETE /v1/scene/layers/{id}", h.removeLayer)
	h.mux.HandleFunc("PUT /v1/scene/input", h.setInput)
	h.mux.HandleFunc("POST /v1/scene/properties/{side}", h.defineProperty)
	h.mux.HandleFunc("DELETE /v1/scene/properties/{side}", h.removeProperty)
	h.mux.HandleFunc("POST /v1/scene/clear", h.clearScene)
	h.mux.HandleFunc("POST /v1/project/open", h.openProject)
	h.mux.HandleFunc("POST /v1/project/save", h.saveProject)
	h.mux.HandleFunc("POST /v1/project/properties", h.loadProperties)
	h.mux.HandleFunc("POST /v1/jobs/{kind}", h.startJob)
	h.mux.HandleFunc("GET /v1/jobs/current", h.currentJob)
	h.mux.HandleFunc("GET /healthz", h.healthz)
	h.mux.HandleFunc("GET /readyz", h.readyz)
	h.mux.Handle("GET /metrics", promhttp.Handler())

	return loggingMiddleware(h.mux)
}

// GET /v1/catalog: layer blocks, property kinds and registered strategies.
func (h *Handler) listCatalog(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"blocks":     h.sess.Catalog().Blocks(),
		"properties": property.Kinds(),
		"strategies": h.sess.Runner().Strategies(),
	})
}

// GET /v1/scene
func (h *Handler) getScene(w http.ResponseWriter, r *http.Request) {
	snap, err := h.sess.Snapshot(r.Context())
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// POST /v1/scene/layers
func (h *Handler) appendLayer(w http.ResponseWriter, r *http.Request) {
	var req appendLayerRequest
	if !decode(w, r, &req) {
		return
	}
	snap, err := h.sess.AppendLayer(r.Context(), req.Signature, req.Values, req.Confirm)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, snap)
}

// PATCH /v1/scene/layers/{id}: only the last layer accepts edits.
func (h *Handler) updateLayer(w http.ResponseWriter, r *http.Request) {
	var req updateLayerRequest
	if !decode(w, r, &req) {
		return
	}
	snap, err := h.sess.UpdateLayer(r.Context(), r.PathValue("id"), req.Values, req.Confirm)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// DELETE /v1/scene/layers/{id}?confirm=true
func (h *Handler) removeLayer(w http.ResponseWriter, r *http.Request) {
	confirm, ok := queryBool(w, r, "confirm")
	if !ok {
		return
	}
	snap, err := h.sess.RemoveLayer(r.Context(), r.PathValue("id"), confirm)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// PUT /v1/scene/input
func (h *Handler) setInput(w http.ResponseWriter, r *http.Request) {
	var req setInputRequest
	if !decode(w, r, &req) {
		return
	}
	snap, err := h.sess.SetInput(r.Context(), req.Identifier, network.Shape(req.Dimension))
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// POST /v1/scene/properties/{side}
func (h *Handler) defineProperty(w http.ResponseWriter, r *http.Request) {
	side, ok := pathSide(w, r)
	if !ok {
		return
	}
	var req propertyRequest
	if !decode(w, r, &req) {
		return
	}
	def, err := req.definition()
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	snap, err := h.sess.DefineProperty(r.Context(), side, def, req.Confirm)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// DELETE /v1/scene/properties/{side}
func (h *Handler) removeProperty(w http.ResponseWriter, r *http.Request) {
	side, ok := pathSide(w, r)
	if !ok {
		return
	}
	snap, err := h.sess.RemoveProperty(r.Context(), side)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// POST /v1/scene/clear
func (h *Handler) clearScene(w http.ResponseWriter, r *http.Request) {
	var req confirmRequest
	if !decodeOptional(w, r, &req) {
		return
	}
	snap, err := h.sess.Clear(r.Context(), req.Confirm)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// POST /v1/project/open
func (h *Handler) openProject(w http.ResponseWriter, r *http.Request) {
	var req pathRequest
	if !decode(w, r, &req) {
		return
	}
	snap, err := h.sess.Open(r.Context(), req.Path, req.Confirm)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// POST /v1/project/save: an empty path reuses the last one.
func (h *Handler) saveProject(w http.ResponseWriter, r *http.Request) {
	var req saveRequest
	if !decodeOptional(w, r, &req) {
		return
	}
	path, err := h.sess.Save(r.Context(), req.Path)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"path": path})
}

// POST /v1/project/properties
func (h *Handler) loadProperties(w http.ResponseWriter, r *http.Request) {
	var req pathRequest
	if !decode(w, r, &req) {
		return
	}
	snap, err := h.sess.LoadProperties(r.Context(), req.Path, req.Confirm)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// POST /v1/jobs/{kind}: kind is verify or train.
func (h *Handler) startJob(w http.ResponseWriter, r *http.Request) {
	kind := jobs.Kind(r.PathValue("kind"))
	if kind != jobs.KindVerify && kind != jobs.KindTrain {
		writeError(w, http.StatusNotFound, "unknown job kind "+string(kind))
		return
	}
	var req jobRequest
	if !decode(w, r, &req) {
		return
	}
	job, err := h.sess.StartJob(r.Context(), kind, req.Strategy)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, job)
}

// GET /v1/jobs/current
func (h *Handler) currentJob(w http.ResponseWriter, r *http.Request) {
	job, ok := h.sess.CurrentJob()
	if !ok {
		writeError(w, http.StatusNotFound, "no job has been started")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// GET /healthz: always 200 (liveness probe).
func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GET /readyz: 503 once the session loop has stopped.
func (h *Handler) readyz(w http.ResponseWriter, r *http.Request) {
	select {
	case <-h.sess.Done():
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{"status": "stopped"})
	default:
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status":   "ready",
			"job_busy": h.sess.Runner().Busy(),
		})
	}
}
