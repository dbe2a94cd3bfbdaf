package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"storemodel/internal/format"
	"storemodel/internal/journal"
	"storemodel/internal/model"
)

func newTestServer(t *testing.T, journalDir string) *Server {
	t.Helper()
	f, err := format.New(format.Config{WordSize: 4, TotalCapacity: 10, MaxKey: 100, MaxValueLen: 8, MaxUpdates: 4})
	require.NoError(t, err)
	s := NewServer(Options{Format: f, JournalDir: journalDir, Logger: zaptest.NewLogger(t)})
	t.Cleanup(func() { require.NoError(t, s.Close()) })
	return s
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func createSession(t *testing.T, h http.Handler, body string) uuid.UUID {
	t.Helper()
	rec := do(t, h, http.MethodPost, "/v1/sessions", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[sessionResponse](t, rec).ID
}

func applyOp(t *testing.T, h http.Handler, id uuid.UUID, op model.Operation) applyResponse {
	t.Helper()
	body, err := model.MarshalOperation(op)
	require.NoError(t, err)
	rec := do(t, h, http.MethodPost, "/v1/sessions/"+id.String()+"/apply", string(body))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decode[applyResponse](t, rec)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, "")
	rec := do(t, s, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestScenariosOverHTTP(t *testing.T) {
	s := newTestServer(t, "")
	id := createSession(t, s, "")

	resp := applyOp(t, s, id, model.Tx(model.Insert{K: 1, V: []byte{0, 0, 0, 0}}))
	assert.Equal(t, "ok", resp.Outcome)
	assert.Equal(t, capacityResponse{Used: 2, Total: 10, Remaining: 8}, resp.Capacity)

	resp = applyOp(t, s, id, model.Tx(model.Insert{K: 2, V: []byte{1}}, model.Insert{K: 2, V: []byte{2}}))
	assert.Equal(t, "invalid_argument", resp.Outcome)
	assert.Contains(t, resp.Detail, "key 2")

	resp = applyOp(t, s, id, model.Prepare{Length: 9})
	assert.Equal(t, "no_capacity", resp.Outcome)
	assert.Equal(t, 8, resp.Capacity.Remaining)

	rec := do(t, s, http.MethodGet, "/v1/sessions/"+id.String()+"/content", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []entryResponse{{Key: 1, Value: []byte{0, 0, 0, 0}}}, decode[[]entryResponse](t, rec))

	rec = do(t, s, http.MethodGet, "/v1/sessions/"+id.String()+"/content/1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, entryResponse{Key: 1, Value: []byte{0, 0, 0, 0}}, decode[entryResponse](t, rec))

	rec = do(t, s, http.MethodGet, "/v1/sessions/"+id.String()+"/content/2", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, s, http.MethodGet, "/v1/sessions/"+id.String()+"/capacity", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, capacityResponse{Used: 2, Total: 10, Remaining: 8}, decode[capacityResponse](t, rec))
}

func TestSessionsAreIndependent(t *testing.T) {
	s := newTestServer(t, "")
	a := createSession(t, s, "")
	b := createSession(t, s, `{"total_capacity": 3}`)

	assert.Equal(t, "ok", applyOp(t, s, a, model.Tx(model.Insert{K: 1, V: make([]byte, 8)})).Outcome)
	assert.Equal(t, "ok", applyOp(t, s, b, model.Tx(model.Insert{K: 1, V: make([]byte, 8)})).Outcome)
	assert.Equal(t, "no_capacity", applyOp(t, s, b, model.Tx(model.Insert{K: 2})).Outcome)
	assert.Equal(t, "ok", applyOp(t, s, a, model.Tx(model.Insert{K: 2})).Outcome)

	rec := do(t, s, http.MethodGet, "/v1/sessions/"+b.String()+"/format", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, format.Config{WordSize: 4, TotalCapacity: 3, MaxKey: 100, MaxValueLen: 8, MaxUpdates: 4}, decode[format.Config](t, rec))
}

func TestCreateSessionKeepsExplicitZeros(t *testing.T) {
	s := newTestServer(t, "")
	rec := do(t, s, http.MethodPost, "/v1/sessions", `{"total_capacity": 0, "max_key": 0, "max_updates": 0}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	sess := decode[sessionResponse](t, rec)
	assert.Equal(t, format.Config{WordSize: 4, TotalCapacity: 0, MaxKey: 0, MaxValueLen: 8, MaxUpdates: 0}, sess.Format)

	assert.Equal(t, "ok", applyOp(t, s, sess.ID, model.Tx()).Outcome)
	assert.Equal(t, "invalid_argument", applyOp(t, s, sess.ID, model.Tx(model.Remove{K: 0})).Outcome)
	assert.Equal(t, "invalid_argument", applyOp(t, s, sess.ID, model.Clear{MinKey: 1}).Outcome)
	assert.Equal(t, "no_capacity", applyOp(t, s, sess.ID, model.Prepare{Length: 1}).Outcome)
}

func TestCreateSessionRejectsBadFormat(t *testing.T) {
	s := newTestServer(t, "")
	rec := do(t, s, http.MethodPost, "/v1/sessions", `{"max_key": -3}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodPost, "/v1/sessions", `{"pages": 3}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBadRequests(t *testing.T) {
	s := newTestServer(t, "")
	id := createSession(t, s, "")
	base := "/v1/sessions/" + id.String()

	tcs := []struct {
		name   string
		method string
		path   string
		body   string
		status int
	}{
		{"malformed session id", http.MethodGet, "/v1/sessions/not-a-uuid/capacity", "", http.StatusBadRequest},
		{"unknown session", http.MethodGet, "/v1/sessions/" + uuid.NewString() + "/capacity", "", http.StatusNotFound},
		{"malformed key", http.MethodGet, base + "/content/abc", "", http.StatusBadRequest},
		{"malformed operation", http.MethodPost, base + "/apply", `{"type":`, http.StatusBadRequest},
		{"unknown operation", http.MethodPost, base + "/apply", `{"type":"compact"}`, http.StatusBadRequest},
		{"unknown field", http.MethodPost, base + "/apply", `{"type":"clear","min":2}`, http.StatusBadRequest},
	}
	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(t, s, tc.method, tc.path, tc.body)
			assert.Equal(t, tc.status, rec.Code, rec.Body.String())
			assert.NotEmpty(t, decode[errorResponse](t, rec).Message)
		})
	}
}

func TestDeleteSession(t *testing.T) {
	s := newTestServer(t, "")
	id := createSession(t, s, "")

	rec := do(t, s, http.MethodDelete, "/v1/sessions/"+id.String(), "")
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, s, http.MethodDelete, "/v1/sessions/"+id.String(), "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	rec = do(t, s, http.MethodGet, "/v1/sessions/"+id.String()+"/content", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSessionJournal(t *testing.T) {
	dir := t.TempDir()
	s := newTestServer(t, dir)
	id := createSession(t, s, "")

	applyOp(t, s, id, model.Tx(model.Insert{K: 1, V: []byte{0, 0, 0, 0}}))
	applyOp(t, s, id, model.Prepare{Length: 9})
	applyOp(t, s, id, model.Clear{MinKey: 0})

	// Deleting the session flushes its journal.
	rec := do(t, s, http.MethodDelete, "/v1/sessions/"+id.String(), "")
	require.Equal(t, http.StatusNoContent, rec.Code)

	path := filepath.Join(dir, id.String()+".journal")
	_, err := os.Stat(path)
	require.NoError(t, err)
	recs, err := journal.Load(path, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, model.OutcomeNoCapacity, recs[1].Outcome)

	m, err := journal.Replay(recs, s.opts.Format)
	require.NoError(t, err)
	assert.Zero(t, m.Len())
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, "")
	id := createSession(t, s, "")
	applyOp(t, s, id, model.Prepare{Length: 1})

	rec := do(t, s, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `storemodel_model_operations_total{op="prepare",outcome="ok"} 1`)
	assert.Contains(t, body, "storemodel_api_sessions 1")
	assert.True(t, bytes.Contains(rec.Body.Bytes(), []byte("go_goroutines")))
}
