package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ghostclick/internal/core"
	"ghostclick/internal/stats"
	"ghostclick/internal/window"
)

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"running": s.scheduler.Started(),
		"tasks":   s.scheduler.States(),
	})
}

func (s *Server) handleControlStart(w http.ResponseWriter, r *http.Request) {
	s.scheduler.Start()
	writeJSON(w, http.StatusOK, map[string]any{"running": true})
}

func (s *Server) handleControlStop(w http.ResponseWriter, r *http.Request) {
	s.scheduler.Stop()
	writeJSON(w, http.StatusOK, map[string]any{"running": false})
}

type clickOnceRequest struct {
	Window    string          `json:"window,omitempty"`
	Process   string          `json:"process,omitempty"`
	Image     string          `json:"image"`
	Action    core.ActionKind `json:"action,omitempty"`
	Threshold float64         `json:"threshold,omitempty"`
}

func (s *Server) handleClickOnce(w http.ResponseWriter, r *http.Request) {
	var req clickOnceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}
	if req.Image == "" {
		writeError(w, http.StatusBadRequest, "invalid_input", "image is required")
		return
	}
	sel := window.Selector{Title: req.Window, Process: req.Process}
	if err := sel.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", err.Error())
		return
	}

	score, err := s.scheduler.ClickOnce(r.Context(), sel, req.Image, req.Action, req.Threshold)
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"clicked": false,
			"score":   score,
			"error":   err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"clicked": true, "score": score})
}

type windowResponse struct {
	Title     string `json:"title"`
	Process   string `json:"process"`
	Desktop   int    `json:"desktop"`
	Minimized bool   `json:"minimized"`
	X         int    `json:"x"`
	Y         int    `json:"y"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
}

func (s *Server) handleListWindows(w http.ResponseWriter, r *http.Request) {
	wins, err := s.scheduler.Windows()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	out := make([]windowResponse, 0, len(wins))
	for _, win := range wins {
		out = append(out, windowResponse{
			Title:     win.Title,
			Process:   win.Process,
			Desktop:   win.Desktop,
			Minimized: win.Minimized,
			X:         win.Bounds.Min.X,
			Y:         win.Bounds.Min.Y,
			Width:     win.Bounds.Dx(),
			Height:    win.Bounds.Dy(),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"windows": out})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if s.stats == nil {
		writeError(w, http.StatusNotFound, "stats_disabled", "statistics are disabled")
		return
	}
	summaries, err := s.stats.Summaries(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"stats": summaries})
}

func (s *Server) handleTaskStats(w http.ResponseWriter, r *http.Request) {
	if s.stats == nil {
		writeError(w, http.StatusNotFound, "stats_disabled", "statistics are disabled")
		return
	}
	sum, err := s.stats.TaskSummary(r.Context(), chi.URLParam(r, "taskID"))
	if err != nil {
		if errors.Is(err, stats.ErrNoData) {
			writeError(w, http.StatusNotFound, "not_found", err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, sum)
}
