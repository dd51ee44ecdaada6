package api

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foiacase/caseruntime/pkg/masking"
	"github.com/foiacase/caseruntime/pkg/runengine"
	"github.com/foiacase/caseruntime/pkg/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func jsonBody(s string) *bytes.Reader {
	return bytes.NewReader([]byte(s))
}

func newTestServer(t *testing.T) (*Server, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	client := store.NewClientFromDB(db)
	dispatcher := runengine.NewDispatcher(client, time.Minute)
	masker := masking.NewService(masking.Config{Enabled: false})

	srv := NewServer().SetStore(client).SetDispatcher(dispatcher).SetMasker(masker)
	require.NoError(t, srv.ValidateWiring())
	return srv, mock
}

func caseRow(mock sqlmock.Sqlmock, id int64, status store.CaseStatus) {
	cols := []string{"id", "status", "substatus", "requires_human", "pause_reason", "next_due_at",
		"autopilot_mode", "channel", "agency_name", "agency_jurisdiction", "agency_email", "portal_url",
		"requested_records", "scope_items", "constraints", "send_date", "last_response_date",
		"created_at", "updated_at", "deleted_at"}
	mock.ExpectQuery(`SELECT .+ FROM cases WHERE id = \$1 AND deleted_at IS NULL`).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows(cols).AddRow(
			id, status, "", false, "UNSPECIFIED", nil,
			store.AutopilotSupervised, store.ChannelEmail, "Agency", "federal", "foia@agency.gov", "",
			[]byte(`[]`), []byte(`{}`), []byte(`{}`), nil, nil,
			time.Now(), time.Now(), nil,
		))
}

func TestRunInitialHandler_ActiveRunProbeError_Returns500(t *testing.T) {
	srv, mock := newTestServer(t)
	caseRow(mock, 42, store.CaseStatusReadyToSend)
	mock.ExpectQuery(`SELECT .+ FROM agent_runs\s+WHERE case_id = \$1 AND status IN`).
		WithArgs(int64(42)).
		WillReturnError(sqlmock.ErrCancelled)

	// Any error from the active-run probe that isn't store.ErrNotFound bubbles
	// up as a 500 from this handler; sqlmock.ErrCancelled stands in for such
	// a database failure.
	req := httptest.NewRequest(http.MethodPost, "/cases/42/run-initial",
		jsonBody(`{"autopilotMode":"SUPERVISED"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	srv.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestRunInitialHandler_ActiveRunExists(t *testing.T) {
	srv, mock := newTestServer(t)
	caseRow(mock, 42, store.CaseStatusReadyToSend)
	runCols := []string{"id", "case_id", "trigger_type", "trigger_message_id", "scheduled_key",
		"status", "started_at", "ended_at", "heartbeat_at", "lock_expires_at",
		"autopilot_mode_snapshot", "error", "created_at"}
	mock.ExpectQuery(`SELECT .+ FROM agent_runs\s+WHERE case_id = \$1 AND status IN`).
		WithArgs(int64(42)).
		WillReturnRows(sqlmock.NewRows(runCols).AddRow(
			7, 42, store.TriggerInitialRequest, nil, nil,
			store.RunStatusRunning, nil, nil, time.Now(), time.Now().Add(time.Minute),
			store.AutopilotSupervised, nil, time.Now(),
		))

	req := httptest.NewRequest(http.MethodPost, "/cases/42/run-initial",
		jsonBody(`{"autopilotMode":"SUPERVISED"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	srv.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), `"runId":7`)
}

func TestRunInitialHandler_CaseNotFound(t *testing.T) {
	srv, mock := newTestServer(t)
	mock.ExpectQuery(`SELECT .+ FROM cases WHERE id = \$1 AND deleted_at IS NULL`).
		WithArgs(int64(99)).
		WillReturnError(store.ErrNotFound)

	req := httptest.NewRequest(http.MethodPost, "/cases/99/run-initial",
		jsonBody(`{"autopilotMode":"AUTO"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	srv.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRunInitialHandler_InvalidAutopilotMode(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/cases/1/run-initial",
		jsonBody(`{"autopilotMode":"YOLO"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	srv.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetCaseHandler_Success(t *testing.T) {
	srv, mock := newTestServer(t)
	caseRow(mock, 7, store.CaseStatusAwaitingResponse)

	req := httptest.NewRequest(http.MethodGet, "/cases/7", nil)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"id":7`)
}

func TestGetCaseHandler_NotFound(t *testing.T) {
	srv, mock := newTestServer(t)
	mock.ExpectQuery(`SELECT .+ FROM cases WHERE id = \$1 AND deleted_at IS NULL`).
		WithArgs(int64(99)).
		WillReturnError(store.ErrNotFound)

	req := httptest.NewRequest(http.MethodGet, "/cases/99", nil)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetCaseHandler_InvalidID(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/cases/not-a-number", nil)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWebhookInboundHandler_UnresolvableRecipient(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/inbound",
		jsonBody(`{"from":"agency@example.gov","to":"norouteaddr@example.org","subject":"s","body":"b"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCaseIDFromRecipient(t *testing.T) {
	id, ok := caseIDFromRecipient("requests+42@ouragency.org")
	require.True(t, ok)
	assert.Equal(t, int64(42), id)

	_, ok = caseIDFromRecipient("no-plus-address@ouragency.org")
	assert.False(t, ok)
}
