package events

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foiacase/caseruntime/pkg/store"
	"github.com/foiacase/caseruntime/test/util"
)

// eventsTestEnv holds all wired-up components for an integration test.
type eventsTestEnv struct {
	client    *store.Client
	publisher *Publisher
	manager   *ConnectionManager
	listener  *NotifyListener
	server    *httptest.Server
	caseID    int64
	channel   string // case:<caseID>
}

// setupEventsTest wires all real components together against a real
// PostgreSQL database (testcontainers locally, service container in CI).
func setupEventsTest(t *testing.T) *eventsTestEnv {
	t.Helper()

	client := util.SetupTestDatabase(t)
	ctx := context.Background()

	cs, err := client.InsertCase(ctx, &store.Case{
		Status:        store.CaseStatusReadyToSend,
		Channel:       store.ChannelEmail,
		AgencyName:    "Department of Integration Testing",
		AgencyEmail:   "foia@example.gov",
		AutopilotMode: store.AutopilotSupervised,
	})
	require.NoError(t, err)

	channel := CaseChannel(cs.ID)

	publisher := NewPublisher(client.DB())
	catchupQuerier := NewStoreCatchupAdapter(client)
	manager := NewConnectionManager(catchupQuerier, 5*time.Second)

	baseConnStr := util.GetBaseConnectionString(t)
	listener := NewNotifyListener(baseConnStr, manager)
	require.NoError(t, listener.Start(ctx))
	manager.SetListener(listener)

	t.Cleanup(func() { listener.Stop(context.Background()) })

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
		if err != nil {
			t.Logf("WebSocket accept error: %v", err)
			return
		}
		manager.HandleConnection(r.Context(), conn)
	}))
	t.Cleanup(func() { server.Close() })

	return &eventsTestEnv{
		client:    client,
		publisher: publisher,
		manager:   manager,
		listener:  listener,
		server:    server,
		caseID:    cs.ID,
		channel:   channel,
	}
}

func (env *eventsTestEnv) connectWS(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + env.server.URL[len("http"):]
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func readJSONTimeout(t *testing.T, conn *websocket.Conn, timeout time.Duration) map[string]interface{} {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	_, data, err := conn.Read(ctx)
	require.NoError(t, err)

	var msg map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func (env *eventsTestEnv) subscribeAndWait(t *testing.T) *websocket.Conn {
	t.Helper()
	conn := env.connectWS(t)

	msg := readJSONTimeout(t, conn, 5*time.Second)
	require.Equal(t, "connection.established", msg["type"])

	writeJSON(t, conn, ClientMessage{Action: "subscribe", Channel: env.channel})

	msg = readJSONTimeout(t, conn, 5*time.Second)
	require.Equal(t, "subscription.confirmed", msg["type"])

	require.Eventually(t, func() bool {
		return env.listener.isListening(env.channel)
	}, 2*time.Second, 10*time.Millisecond, "LISTEN did not propagate for channel %s", env.channel)

	return conn
}

// --- Tests ---

func TestIntegration_PublisherPersistsAndNotifies(t *testing.T) {
	env := setupEventsTest(t)
	ctx := context.Background()

	err := env.publisher.PublishCaseTransition(ctx, env.caseID, "CASE_SENT", "sent", false, "")
	require.NoError(t, err)

	err = env.publisher.PublishRunStatus(ctx, 1, env.caseID, "running")
	require.NoError(t, err)

	rows, err := env.client.GetEventsSince(ctx, env.channel, 0, 100)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	var first, second map[string]interface{}
	require.NoError(t, json.Unmarshal(rows[0].Payload, &first))
	require.NoError(t, json.Unmarshal(rows[1].Payload, &second))

	assert.Equal(t, EventTypeCaseTransition, first["type"])
	assert.Equal(t, "sent", first["status"])
	assert.Equal(t, EventTypeRunStatus, second["type"])
	assert.Equal(t, "running", second["status"])

	assert.Greater(t, rows[1].ID, rows[0].ID)
}

func TestIntegration_TransientEventsNotPersisted(t *testing.T) {
	env := setupEventsTest(t)
	ctx := context.Background()

	err := env.publisher.PublishRunHeartbeat(ctx, 1, env.caseID)
	require.NoError(t, err)

	rows, err := env.client.GetEventsSince(ctx, env.channel, 0, 100)
	require.NoError(t, err)
	assert.Empty(t, rows, "transient events should not be persisted in DB")
}

func TestIntegration_EndToEnd_PublishToWebSocket(t *testing.T) {
	env := setupEventsTest(t)
	ctx := context.Background()

	conn := env.subscribeAndWait(t)

	err := env.publisher.PublishCaseTransition(ctx, env.caseID, "PROPOSAL_GATED", "needs_human_review", true, "FEE_QUOTE")
	require.NoError(t, err)

	msg := readJSONTimeout(t, conn, 5*time.Second)
	assert.Equal(t, EventTypeCaseTransition, msg["type"])
	assert.Equal(t, "needs_human_review", msg["status"])
	assert.Equal(t, float64(env.caseID), msg["case_id"])
	assert.NotNil(t, msg["db_event_id"])
}

func TestIntegration_TransientEventDelivery(t *testing.T) {
	env := setupEventsTest(t)
	ctx := context.Background()

	conn := env.subscribeAndWait(t)

	err := env.publisher.PublishRunHeartbeat(ctx, 5, env.caseID)
	require.NoError(t, err)

	msg := readJSONTimeout(t, conn, 5*time.Second)
	assert.Equal(t, EventTypeRunHeartbeat, msg["type"])
	assert.Equal(t, float64(5), msg["run_id"])

	rows, err := env.client.GetEventsSince(ctx, env.channel, 0, 100)
	require.NoError(t, err)
	assert.Empty(t, rows, "transient events should not be persisted")
}

func TestIntegration_CatchupFromRealDB(t *testing.T) {
	env := setupEventsTest(t)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		err := env.publisher.PublishRunStatus(ctx, int64(i), env.caseID, "queued")
		require.NoError(t, err)
	}

	rows, err := env.client.GetEventsSince(ctx, env.channel, 0, 100)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	firstEventID := int(rows[0].ID)

	conn := env.connectWS(t)
	msg := readJSONTimeout(t, conn, 5*time.Second)
	require.Equal(t, "connection.established", msg["type"])

	writeJSON(t, conn, ClientMessage{Action: "subscribe", Channel: env.channel})
	msg = readJSONTimeout(t, conn, 5*time.Second)
	require.Equal(t, "subscription.confirmed", msg["type"])

	for i := 1; i <= 3; i++ {
		msg = readJSONTimeout(t, conn, 5*time.Second)
		assert.Equal(t, EventTypeRunStatus, msg["type"])
		assert.Equal(t, float64(i), msg["run_id"])
	}

	catchupFrom := firstEventID
	writeJSON(t, conn, ClientMessage{Action: "catchup", Channel: env.channel, LastEventID: &catchupFrom})

	for i := 2; i <= 3; i++ {
		msg = readJSONTimeout(t, conn, 5*time.Second)
		assert.Equal(t, float64(i), msg["run_id"])
	}

	readCtx, readCancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer readCancel()
	_, _, err = conn.Read(readCtx)
	assert.Error(t, err, "should not receive more messages after catchup")
}

func TestIntegration_ResubscribeAfterUnsubscribe_KeepsListen(t *testing.T) {
	// Regression test for the race condition where a rapid unsubscribe/resubscribe
	// cycle (as caused by a double-mounted client) would drop the PG LISTEN.
	env := setupEventsTest(t)
	ctx := context.Background()

	conn := env.connectWS(t)
	msg := readJSONTimeout(t, conn, 5*time.Second)
	require.Equal(t, "connection.established", msg["type"])

	writeJSON(t, conn, ClientMessage{Action: "subscribe", Channel: env.channel})
	msg = readJSONTimeout(t, conn, 5*time.Second)
	require.Equal(t, "subscription.confirmed", msg["type"])

	require.Eventually(t, func() bool {
		return env.listener.isListening(env.channel)
	}, 2*time.Second, 10*time.Millisecond, "initial LISTEN should propagate")

	writeJSON(t, conn, ClientMessage{Action: "unsubscribe", Channel: env.channel})
	writeJSON(t, conn, ClientMessage{Action: "subscribe", Channel: env.channel})

	msg = readJSONTimeout(t, conn, 5*time.Second)
	require.Equal(t, "subscription.confirmed", msg["type"])

	time.Sleep(200 * time.Millisecond)
	require.True(t, env.listener.isListening(env.channel),
		"LISTEN must survive a rapid unsubscribe/resubscribe cycle")

	err := env.publisher.PublishCaseTransition(ctx, env.caseID, "CASE_SENT", "sent", false, "")
	require.NoError(t, err)

	for {
		msg = readJSONTimeout(t, conn, 5*time.Second)
		if msg["event"] == "CASE_SENT" {
			break
		}
	}

	assert.Equal(t, EventTypeCaseTransition, msg["type"])
	assert.Equal(t, float64(env.caseID), msg["case_id"])
}

func TestIntegration_ListenerGenerationCounter_StaleUnlistenSkipped(t *testing.T) {
	env := setupEventsTest(t)
	ctx := context.Background()
	channel := env.channel

	require.NoError(t, env.listener.Subscribe(ctx, channel))
	require.True(t, env.listener.isListening(channel))

	unsubDone := make(chan struct{})
	go func() {
		defer close(unsubDone)
		_ = env.listener.Unsubscribe(context.Background(), channel)
	}()

	require.NoError(t, env.listener.Subscribe(ctx, channel))

	<-unsubDone

	require.True(t, env.listener.isListening(channel),
		"l.channels must stay true after stale UNLISTEN is skipped")

	conn := env.subscribeAndWait(t)

	err := env.publisher.PublishCaseTransition(ctx, env.caseID, "CASE_RECONCILED", "awaiting_response", false, "")
	require.NoError(t, err)

	for {
		msg := readJSONTimeout(t, conn, 5*time.Second)
		if msg["event"] == "CASE_RECONCILED" {
			assert.Equal(t, "awaiting_response", msg["status"])
			break
		}
	}
}
