package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arcflow/conductor/pkg/checkpoint"
	"github.com/arcflow/conductor/pkg/circuit"
	"github.com/arcflow/conductor/pkg/dlq"
	"github.com/arcflow/conductor/pkg/message"
	"github.com/arcflow/conductor/pkg/oracle"
	"github.com/arcflow/conductor/pkg/orchestrator"
	"github.com/arcflow/conductor/pkg/registry"
	"github.com/arcflow/conductor/pkg/storage"
	"github.com/arcflow/conductor/pkg/tool"
)

type answerOracle struct{ text string }

func (a *answerOracle) Decide(ctx context.Context, systemPrompt string, messages []message.Message, defs []tool.Definition) (oracle.Response, error) {
	return oracle.Response{Text: a.text}, nil
}

func newTestServer(t *testing.T) (*Server, storage.Adapter) {
	t.Helper()
	store := storage.NewMemoryAdapter()
	reg := registry.NewAgentRegistry()
	cb := circuit.NewBreaker(circuit.Config{})
	sched := checkpoint.NewScheduler(store, checkpoint.Config{})
	queue := dlq.NewQueue(store, 0)

	orch := orchestrator.New(&answerOracle{text: "done"}, reg, cb, sched, nil, nil)

	srv, err := New(Options{
		Config:       nil,
		Orchestrator: orch,
		Storage:      store,
		DLQ:          queue,
	})
	require.NoError(t, err)
	return srv, store
}

func TestSubmitAndGetTask(t *testing.T) {
	srv, _ := newTestServer(t)
	r := srv.router()

	body, _ := json.Marshal(submitRequest{Type: "orchestrator", Prompt: "summarise this repo"})
	req := httptest.NewRequest(http.MethodPost, "/tasks", bytes.NewReader(body))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code)

	var sub submitResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sub))
	require.NotEmpty(t, sub.ID)

	srv.wg.Wait() // the background execution is synchronous enough for this scripted oracle

	w2 := httptest.NewRecorder()
	r.ServeHTTP(w2, httptest.NewRequest(http.MethodGet, "/tasks/"+sub.ID, nil))
	assert.Equal(t, http.StatusOK, w2.Code)

	var rec storage.TaskRecord
	require.NoError(t, json.Unmarshal(w2.Body.Bytes(), &rec))
	assert.Equal(t, "completed", rec.Status)
}

func TestSubmitRejectsEmptyPrompt(t *testing.T) {
	srv, _ := newTestServer(t)
	r := srv.router()

	body, _ := json.Marshal(submitRequest{Type: "orchestrator"})
	req := httptest.NewRequest(http.MethodPost, "/tasks", bytes.NewReader(body))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetTaskNotFound(t *testing.T) {
	srv, _ := newTestServer(t)
	r := srv.router()

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/tasks/does-not-exist", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListCheckpointsRequiresTaskID(t *testing.T) {
	srv, _ := newTestServer(t)
	r := srv.router()

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/checkpoints", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDLQListAndRetry(t *testing.T) {
	srv, store := newTestServer(t)
	r := srv.router()
	ctx := context.Background()

	entry, err := srv.dlq.Add(ctx, storage.TaskRecord{ID: "failed-task", Type: "orchestrator", Status: "failed"}, assert.AnError, 3)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/dlq", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	var entries []storage.DeadLetterRecord
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &entries))
	require.Len(t, entries, 1)

	w2 := httptest.NewRecorder()
	r.ServeHTTP(w2, httptest.NewRequest(http.MethodPost, "/dlq/"+entry.ID+"/retry", nil))
	assert.Equal(t, http.StatusOK, w2.Code)

	srv.wg.Wait()
	_, found, err := store.LoadTask(ctx, "failed-task")
	require.NoError(t, err)
	assert.True(t, found)
}
