package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/homeport/dbmigrate/internal/pkg/httputil"
	"github.com/homeport/dbmigrate/internal/task"
)

// logEntryResponse is one line of a task's message buffer on the wire.
type logEntryResponse struct {
	Time  time.Time `json:"ts"`
	Level string    `json:"level"`
	Text  string    `json:"text"`
}

// taskResponse is the wire shape of task.Snapshot, per spec.md §6.
type taskResponse struct {
	ID         string             `json:"id"`
	State      string             `json:"state"`
	CreateTime time.Time          `json:"createTime"`
	Messages   []logEntryResponse `json:"messages,omitempty"`
	OK         *bool              `json:"ok,omitempty"`
	Value      any                `json:"value,omitempty"`
}

func toTaskResponse(snap task.Snapshot) taskResponse {
	var messages []logEntryResponse
	if len(snap.Messages) > 0 {
		messages = make([]logEntryResponse, len(snap.Messages))
		for i, m := range snap.Messages {
			messages[i] = logEntryResponse{Time: m.Time, Level: m.Level, Text: m.Message}
		}
	}
	return taskResponse{
		ID:         snap.ID,
		State:      string(snap.State),
		CreateTime: snap.CreateTime,
		Messages:   messages,
		OK:         snap.OK,
		Value:      snap.Value,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// handleListKinds serves GET / -> {"tasks": [kinds...]}.
func (s *Server) handleListKinds(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"tasks": s.tasks.Kinds()})
}

// handleCreateTask serves POST /tasks/{kind}/{service}.
func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	kind := chi.URLParam(r, "kind")
	service := chi.URLParam(r, "service")

	id, err := s.tasks.Create(kind, service)
	if err != nil {
		switch err.(type) {
		case *task.ErrUnknownKind:
			httputil.NotFound(w, r, err.Error())
		case *task.ErrAlreadyExists:
			httputil.Conflict(w, r, err.Error())
		default:
			httputil.InternalError(w, r, err)
		}
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"state": "started", "id": id})
}

// handleGetTask serves GET /tasks/{kind}/{service}.
func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	kind := chi.URLParam(r, "kind")
	service := chi.URLParam(r, "service")

	snap, err := s.tasks.Get(kind, service)
	if err != nil {
		httputil.NotFound(w, r, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, toTaskResponse(snap))
}

// handleDeleteTask serves DELETE /tasks/{kind}/{service}.
func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	kind := chi.URLParam(r, "kind")
	service := chi.URLParam(r, "service")

	killed, err := s.tasks.Delete(kind, service)
	if err != nil {
		httputil.NotFound(w, r, err.Error())
		return
	}

	state := "deleted"
	if killed {
		state = "killed"
	}
	writeJSON(w, http.StatusOK, map[string]string{"state": state})
}

// handleListTasks serves GET /tasks (every kind).
func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	s.listTasks(w, r, "")
}

// handleListTasksOfKind serves GET /tasks/{kind}.
func (s *Server) handleListTasksOfKind(w http.ResponseWriter, r *http.Request) {
	s.listTasks(w, r, chi.URLParam(r, "kind"))
}

func (s *Server) listTasks(w http.ResponseWriter, r *http.Request, kind string) {
	includeCompleted := r.URL.Query().Get("include_completed") == "true"

	snaps := s.tasks.List(kind, includeCompleted)
	out := make([]taskResponse, 0, len(snaps))
	for _, snap := range snaps {
		out = append(out, toTaskResponse(snap))
	}

	writeJSON(w, http.StatusOK, out)
}
