package api

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"

	"github.com/gyaneshwarpardhi/never2/internal/jobs"
	"github.com/gyaneshwarpardhi/never2/internal/network"
	"github.com/gyaneshwarpardhi/never2/internal/project"
	"github.com/gyaneshwarpardhi/never2/internal/scene"
	"github.com/gyaneshwarpardhi/never2/internal/session"
)

// writeJSON encodes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// errorResponse is the standard error envelope.
type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// declinedResponse is returned when a command needed a confirmation the
// caller did not give. Nothing was changed.
type declinedResponse struct {
	Declined bool   `json:"declined"`
	Reason   string `json:"reason"`
}

// writeFailure maps a session error to a response.
func writeFailure(w http.ResponseWriter, err error) {
	if errors.Is(err, scene.ErrDeclined) {
		writeJSON(w, http.StatusOK, declinedResponse{Declined: true, Reason: err.Error()})
		return
	}
	writeError(w, statusOf(err), err.Error())
}

func statusOf(err error) int {
	var ve *scene.ValidationError
	switch {
	case errors.As(err, &ve),
		errors.Is(err, network.ErrInvalidParameter),
		errors.Is(err, network.ErrShapeMismatch),
		errors.Is(err, project.ErrUnsupportedFormat),
		errors.Is(err, jobs.ErrUnknownStrategy):
		return http.StatusUnprocessableEntity
	case errors.Is(err, scene.ErrUnknownBlock),
		errors.Is(err, fs.ErrNotExist):
		return http.StatusNotFound
	case errors.Is(err, jobs.ErrBusy),
		errors.Is(err, scene.ErrNotEditable),
		errors.Is(err, scene.ErrPermanentBlock),
		errors.Is(err, scene.ErrNoNetwork),
		errors.Is(err, scene.ErrNoProperty),
		errors.Is(err, network.ErrEmptyNetwork),
		errors.Is(err, project.ErrNoPath):
		return http.StatusConflict
	case errors.Is(err, session.ErrTimeout),
		errors.Is(err, session.ErrStopped),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
