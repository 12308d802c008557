package http

import (
	"bytes"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"TanssiDashboard/internal/display"
	"TanssiDashboard/internal/log"
	"TanssiDashboard/internal/services"
)

type Handler struct {
	Dashboard *services.Dashboard
}

type networksResponse struct {
	Networks []services.Network `json:"networks"`
	Watching []string           `json:"watching"`
}

func NewHandler(dashboard *services.Dashboard) *Handler {
	return &Handler{Dashboard: dashboard}
}

func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	page, err := h.Dashboard.Page(r.URL.Query().Get("network"))
	status := http.StatusOK
	if err != nil {
		status = statusFor(err)
	}

	var buf bytes.Buffer
	if err := display.WriteHTML(&buf, page); err != nil {
		log.Error().Err(err).Msg("render dashboard page")
		writeError(w, http.StatusInternalServerError, "render failed")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

func (h *Handler) ListNetworks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, networksResponse{
		Networks: h.Dashboard.Networks(),
		Watching: h.Dashboard.Watching(),
	})
}

func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	view, err := h.Dashboard.View(chi.URLParam(r, "network"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) GetChain(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid chain id")
		return
	}
	row, err := h.Dashboard.Chain(chi.URLParam(r, "network"), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, row)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrUnknownNetwork), errors.Is(err, services.ErrChainNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrClosed):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrUnknownNetwork):
		writeError(w, http.StatusNotFound, "unknown network")
	case errors.Is(err, services.ErrChainNotFound):
		writeError(w, http.StatusNotFound, "chain not found")
	case errors.Is(err, services.ErrClosed):
		writeError(w, http.StatusServiceUnavailable, "shutting down")
	default:
		writeError(w, http.StatusInternalServerError, "status lookup failed")
	}
}
