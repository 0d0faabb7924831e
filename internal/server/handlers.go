package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/roach88/notesync/internal/gateway"
	"github.com/roach88/notesync/internal/model"
)

// ErrorBody is the JSON error response.
type ErrorBody struct {
	Code    gateway.ErrorCode `json:"code"`
	Op      string            `json:"op,omitempty"`
	ID      string            `json:"id,omitempty"`
	Message string            `json:"message"`
}

func (s *Server) listNotes(w http.ResponseWriter, r *http.Request) {
	owner := r.URL.Query().Get("user_id")
	if owner == "" {
		writeError(w, gateway.Invalid("list notes", "user_id is required"))
		return
	}
	notes, err := s.gw.ListNotes(r.Context(), owner)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, notes)
}

func (s *Server) createNote(w http.ResponseWriter, r *http.Request) {
	var draft model.NoteDraft
	if !readJSON(w, r, "insert note", &draft) {
		return
	}
	n, err := s.gw.InsertNote(r.Context(), draft)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, n)
}

func (s *Server) updateNote(w http.ResponseWriter, r *http.Request) {
	var patch model.NotePatch
	if !readJSON(w, r, "update note", &patch) {
		return
	}
	n, err := s.gw.UpdateNote(r.Context(), mux.Vars(r)["id"], patch)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

func (s *Server) deleteNote(w http.ResponseWriter, r *http.Request) {
	if err := s.gw.DeleteNote(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listTasks(w http.ResponseWriter, r *http.Request) {
	q := model.TaskQuery{
		NoteID:  r.URL.Query().Get("note_id"),
		OwnerID: r.URL.Query().Get("user_id"),
	}
	tasks, err := s.gw.ListTasks(r.Context(), q)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (s *Server) createTask(w http.ResponseWriter, r *http.Request) {
	var draft model.TaskDraft
	if !readJSON(w, r, "insert task", &draft) {
		return
	}
	t, err := s.gw.InsertTask(r.Context(), draft)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (s *Server) updateTask(w http.ResponseWriter, r *http.Request) {
	var patch model.TaskPatch
	if !readJSON(w, r, "update task", &patch) {
		return
	}
	t, err := s.gw.UpdateTask(r.Context(), mux.Vars(r)["id"], patch)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) deleteTask(w http.ResponseWriter, r *http.Request) {
	if err := s.gw.DeleteTask(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) getPreferences(w http.ResponseWriter, r *http.Request) {
	p, err := s.gw.GetPreferences(r.Context(), mux.Vars(r)["user_id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) putPreferences(w http.ResponseWriter, r *http.Request) {
	var p model.Preferences
	if !readJSON(w, r, "upsert preferences", &p) {
		return
	}
	p.UserID = mux.Vars(r)["user_id"]
	saved, err := s.gw.UpsertPreferences(r.Context(), p)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

func readJSON(w http.ResponseWriter, r *http.Request, op string, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, gateway.Invalid(op, "malformed body: "+err.Error()))
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to write response", "error", err)
	}
}

// writeError maps gateway codes onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	body := ErrorBody{Code: gateway.ErrCodeTransport, Message: err.Error()}
	var ge *gateway.Error
	if errors.As(err, &ge) {
		body.Code, body.Op, body.ID = ge.Code, ge.Op, ge.ID
		body.Message = ge.Message
		if ge.Err != nil {
			body.Message = ge.Err.Error()
		}
	}

	status := http.StatusInternalServerError
	switch body.Code {
	case gateway.ErrCodeInvalid:
		status = http.StatusBadRequest
	case gateway.ErrCodeNotFound:
		status = http.StatusNotFound
	}
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "error", err)
	}
	writeJSON(w, status, body)
}
