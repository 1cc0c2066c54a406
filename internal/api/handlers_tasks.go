package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ghostclick/internal/core"
	"ghostclick/internal/window"
)

type createTaskRequest struct {
	Selector        window.Selector `json:"selector"`
	Target          core.Target     `json:"target"`
	Action          core.ActionKind `json:"action"`
	Repeat          bool            `json:"repeat"`
	IntervalSeconds float64         `json:"interval_s"`
	Threshold       float64         `json:"threshold"`
	Enabled         *bool           `json:"enabled"`
}

type updateTaskRequest struct {
	Selector        *window.Selector `json:"selector"`
	Target          *core.Target     `json:"target"`
	Action          *core.ActionKind `json:"action"`
	Repeat          *bool            `json:"repeat"`
	IntervalSeconds *float64         `json:"interval_s"`
	Threshold       *float64         `json:"threshold"`
	Enabled         *bool            `json:"enabled"`
}

type taskResponse struct {
	*core.Task
	Running bool   `json:"running"`
	Status  string `json:"status"`
	Clicks  int    `json:"clicks"`
}

func (s *Server) taskToResponse(task *core.Task) taskResponse {
	resp := taskResponse{Task: task}
	if st, err := s.scheduler.State(task.ID); err == nil {
		resp.Running = st.Running
		resp.Status = st.Status
		resp.Clicks = st.Clicks
	}
	return resp
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	tasks := s.scheduler.List()
	out := make([]taskResponse, 0, len(tasks))
	for _, task := range tasks {
		out = append(out, s.taskToResponse(task))
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": out})
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}

	task := &core.Task{
		ID:              core.NewID(),
		Selector:        req.Selector,
		Target:          req.Target,
		Action:          req.Action,
		Repeat:          req.Repeat,
		IntervalSeconds: req.IntervalSeconds,
		Threshold:       req.Threshold,
		Enabled:         req.Enabled == nil || *req.Enabled,
	}
	if err := s.scheduler.Add(task); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", err.Error())
		return
	}
	s.persistTasks()
	writeJSON(w, http.StatusCreated, s.taskToResponse(task))
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	task, err := s.scheduler.Get(chi.URLParam(r, "taskID"))
	if err != nil {
		writeError(w, http.StatusNotFound, "not_found", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.taskToResponse(task))
}

func (s *Server) handleUpdateTask(w http.ResponseWriter, r *http.Request) {
	task, err := s.scheduler.Get(chi.URLParam(r, "taskID"))
	if err != nil {
		writeError(w, http.StatusNotFound, "not_found", err.Error())
		return
	}

	var req updateTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}
	if req.Selector != nil {
		task.Selector = *req.Selector
	}
	if req.Target != nil {
		task.Target = *req.Target
	}
	if req.Action != nil {
		task.Action = *req.Action
	}
	if req.Repeat != nil {
		task.Repeat = *req.Repeat
	}
	if req.IntervalSeconds != nil {
		task.IntervalSeconds = *req.IntervalSeconds
	}
	if req.Threshold != nil {
		task.Threshold = *req.Threshold
	}
	if req.Enabled != nil {
		task.Enabled = *req.Enabled
	}

	if err := s.scheduler.Update(task); err != nil {
		if errors.Is(err, core.ErrTaskNotFound) {
			writeError(w, http.StatusNotFound, "not_found", err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, "invalid_input", err.Error())
		return
	}
	s.persistTasks()
	writeJSON(w, http.StatusOK, s.taskToResponse(task))
}

func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	if err := s.scheduler.Remove(chi.URLParam(r, "taskID")); err != nil {
		writeError(w, http.StatusNotFound, "not_found", err.Error())
		return
	}
	s.persistTasks()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStartTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "taskID")
	if err := s.scheduler.StartTask(id); err != nil {
		if errors.Is(err, core.ErrTaskNotFound) {
			writeError(w, http.StatusNotFound, "not_found", err.Error())
			return
		}
		writeError(w, http.StatusConflict, "not_startable", err.Error())
		return
	}
	st, _ := s.scheduler.State(id)
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleStopTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "taskID")
	if err := s.scheduler.StopTask(id); err != nil {
		writeError(w, http.StatusNotFound, "not_found", err.Error())
		return
	}
	st, _ := s.scheduler.State(id)
	writeJSON(w, http.StatusOK, st)
}
