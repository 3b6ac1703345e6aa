package api

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tutu-network/taskd/internal/domain"
)

// notFoundBody is the plain-text body returned for unknown task ids.
const notFoundBody = "Task not found"

// CreateTaskRequest is the POST /tasks body. Type may be any JSON value.
type CreateTaskRequest struct {
	Type json.RawMessage `json:"type"`
}

// CompleteTaskRequest is the PUT /tasks/{id} body.
type CompleteTaskRequest struct {
	Result json.RawMessage `json:"result"`
}

// POST /tasks
func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req CreateTaskRequest
	if status, err := s.decodeBody(w, r, &req); err != nil {
		writeText(w, status, err.Error())
		return
	}

	task := s.tasks.Create(req.Type)
	writeJSON(w, http.StatusCreated, task)
}

// GET /tasks
func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.tasks.List())
}

// GET /tasks/{id}
func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	id, err := domain.ParseTaskID(chi.URLParam(r, "id"))
	if err != nil {
		writeText(w, http.StatusNotFound, notFoundBody)
		return
	}

	task, err := s.tasks.Get(id)
	if err != nil {
		s.writeTaskError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// PUT /tasks/{id}
func (s *Server) handleCompleteTask(w http.ResponseWriter, r *http.Request) {
	var req CompleteTaskRequest
	if status, err := s.decodeBody(w, r, &req); err != nil {
		writeText(w, status, err.Error())
		return
	}

	// A token that is not an integer can never name a task.
	id, err := domain.ParseTaskID(chi.URLParam(r, "id"))
	if err != nil {
		writeText(w, http.StatusNotFound, notFoundBody)
		return
	}

	task, err := s.tasks.Complete(id, req.Result)
	if err != nil {
		s.writeTaskError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) writeTaskError(w http.ResponseWriter, err error) {
	if errors.Is(err, domain.ErrTaskNotFound) {
		writeText(w, http.StatusNotFound, notFoundBody)
		return
	}
	log.Printf("[api] task error: %v", err)
	writeText(w, http.StatusInternalServerError, "internal error")
}

// errBadBody and errBodyTooLarge are returned to clients verbatim.
var (
	errBadBody      = errors.New("invalid request body")
	errBodyTooLarge = errors.New("request body too large")
)

// decodeBody reads a single JSON value into v. An empty body leaves v at its
// zero value; anything after the value other than whitespace is rejected.
// It returns the HTTP status to use when decoding fails.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) (int, error) {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.maxBodyBytes))
	err := dec.Decode(v)
	if err == nil {
		if err = dec.Decode(&json.RawMessage{}); err == io.EOF {
			return 0, nil
		} else if err == nil {
			return http.StatusBadRequest, errBadBody
		}
	}

	var tooLarge *http.MaxBytesError
	switch {
	case errors.Is(err, io.EOF):
		return 0, nil
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge, errBodyTooLarge
	default:
		return http.StatusBadRequest, errBadBody
	}
}
