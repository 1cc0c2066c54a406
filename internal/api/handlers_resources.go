package api

import (
	"encoding/json"
	"errors"
	"image"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ghostclick/internal/script"
	"ghostclick/internal/store"
	"ghostclick/internal/window"
)

func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	names, err := s.templates.List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"templates": names})
}

type captureTemplateRequest struct {
	Name    string `json:"name"`
	Window  string `json:"window,omitempty"`
	Process string `json:"process,omitempty"`
	// Region is in logical window-relative coordinates.
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

func (s *Server) handleCaptureTemplate(w http.ResponseWriter, r *http.Request) {
	var req captureTemplateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "invalid_input", "name is required")
		return
	}
	if req.Width <= 0 || req.Height <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_input", "region needs positive width and height")
		return
	}
	sel := window.Selector{Title: req.Window, Process: req.Process}
	if err := sel.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", err.Error())
		return
	}

	region := image.Rect(req.X, req.Y, req.X+req.Width, req.Y+req.Height)
	frame, err := s.scheduler.CaptureRegion(r.Context(), sel, region)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "capture_failed", err.Error())
		return
	}
	if err := s.templates.Save(req.Name, frame); err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"name":   req.Name,
		"width":  frame.Width,
		"height": frame.Height,
		"scale":  frame.Scale,
	})
}

func (s *Server) handleDeleteTemplate(w http.ResponseWriter, r *http.Request) {
	if err := s.templates.Delete(chi.URLParam(r, "name")); err != nil {
		if errors.Is(err, store.ErrTemplateMissing) {
			writeError(w, http.StatusNotFound, "not_found", err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, "invalid_input", err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListScripts(w http.ResponseWriter, r *http.Request) {
	names, err := s.scripts.List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"scripts": names})
}

func (s *Server) handleRunScript(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	sc, err := s.scripts.Load(name)
	if err != nil {
		if errors.Is(err, script.ErrScriptMissing) {
			writeError(w, http.StatusNotFound, "not_found", err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, "invalid_input", err.Error())
		return
	}

	result, err := s.runner.Run(r.Context(), sc)
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"result": result,
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"result": result})
}

func (s *Server) handleListProfiles(w http.ResponseWriter, r *http.Request) {
	names, err := s.profiles.List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"profiles": names})
}

type saveProfileRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// handleSaveProfile snapshots the live task table under a profile name.
func (s *Server) handleSaveProfile(w http.ResponseWriter, r *http.Request) {
	var req saveProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}
	p := &store.Profile{
		Name:        req.Name,
		Description: req.Description,
		Tasks:       s.scheduler.List(),
	}
	if err := s.profiles.Save(p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"name":  p.Name,
		"tasks": len(p.Tasks),
	})
}

func (s *Server) handleActivateProfile(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	p, err := s.profiles.Load(name)
	if err != nil {
		if errors.Is(err, store.ErrProfileMissing) {
			writeError(w, http.StatusNotFound, "not_found", err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, "invalid_input", err.Error())
		return
	}
	if err := s.scheduler.Replace(p.Tasks); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid_profile", err.Error())
		return
	}
	s.persistTasks()
	writeJSON(w, http.StatusOK, map[string]any{
		"name":  p.Name,
		"tasks": len(p.Tasks),
	})
}

func (s *Server) handleDeleteProfile(w http.ResponseWriter, r *http.Request) {
	if err := s.profiles.Delete(chi.URLParam(r, "name")); err != nil {
		if errors.Is(err, store.ErrProfileMissing) {
			writeError(w, http.StatusNotFound, "not_found", err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, "invalid_input", err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
