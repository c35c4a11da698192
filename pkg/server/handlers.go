package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/arcflow/conductor/pkg/logger"
	"github.com/arcflow/conductor/pkg/task"
)

// submitRequest is the POST /tasks body.
type submitRequest struct {
	Type    string        `json:"type"`
	Prompt  string        `json:"prompt"`
	Context *task.Context `json:"context,omitempty"`
}

// submitResponse is returned immediately on submission; the task continues
// running in the background and is polled via GET /tasks/{id}.
type submitResponse struct {
	ID     string      `json:"id"`
	Status task.Status `json:"status"`
}

func (s *Server) handleSubmitTask(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body: "+err.Error())
		return
	}
	if req.Prompt == "" {
		badRequest(w, "prompt is required")
		return
	}
	if req.Type == "" {
		req.Type = "orchestrator"
	}

	t := task.New(req.Type, req.Prompt)
	t.Context = req.Context
	t.Enqueue()

	if err := s.storage.SaveTask(r.Context(), t.ToRecord()); err != nil {
		internalError(w, err)
		return
	}

	s.runTask(t)
	created(w, submitResponse{ID: t.ID, Status: t.Status()})
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rec, found, err := s.storage.LoadTask(r.Context(), id)
	if err != nil {
		internalError(w, err)
		return
	}
	if !found {
		notFound(w, "no task with id "+id)
		return
	}
	ok(w, rec)
}

func (s *Server) handleListCheckpoints(w http.ResponseWriter, r *http.Request) {
	taskID := r.URL.Query().Get("taskId")
	if taskID == "" {
		badRequest(w, "taskId query parameter is required")
		return
	}
	recs, err := s.storage.ListCheckpoints(r.Context(), taskID)
	if err != nil {
		internalError(w, err)
		return
	}
	ok(w, recs)
}

func (s *Server) handleListDLQ(w http.ResponseWriter, r *http.Request) {
	entries, err := s.dlq.ListEntries(r.Context())
	if err != nil {
		internalError(w, err)
		return
	}
	ok(w, entries)
}

func (s *Server) handleRetryDLQ(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rec, err := s.dlq.Retry(r.Context(), id)
	if err != nil {
		notFound(w, err.Error())
		return
	}
	s.runTask(task.FromRecord(rec))
	ok(w, submitResponse{ID: rec.ID, Status: task.Status(rec.Status)})
}

// runTask executes a task through the orchestrator in the background and
// persists its terminal record, moving it to the dead-letter queue if it
// comes back with an unrecoverable error.
func (s *Server) runTask(t *task.Task) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx := logger.WithTaskID(context.Background(), t.ID)

		result, err := s.orchestrator.Execute(ctx, t)
		if err != nil {
			s.logger.ErrorContext(ctx, "task execution failed", "error", err)
			if _, dlqErr := s.dlq.Add(ctx, t.ToRecord(), err, t.Metadata.RetryCount+1); dlqErr != nil {
				s.logger.ErrorContext(ctx, "failed to dead-letter task", "error", dlqErr)
			}
			return
		}
		t.Complete(result)
		if saveErr := s.storage.UpdateTask(ctx, t.ToRecord()); saveErr != nil {
			s.logger.ErrorContext(ctx, "failed to persist completed task", "error", saveErr)
		}
	}()
}
