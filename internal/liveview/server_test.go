package liveview

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	gws "github.com/gorilla/websocket"
	"github.com/rbright/lectern/internal/ipc"
	"github.com/rbright/lectern/internal/session"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, tr *session.Transcript) *Server {
	t.Helper()
	return New(Options{
		Bind:     "127.0.0.1:0",
		Snapshot: tr.Snapshot,
		Status: func() *ipc.SessionStatus {
			return &ipc.SessionStatus{ID: tr.ID(), Entries: tr.Len()}
		},
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = io.WriteString(w, "lectern_audio_chunks_total 3\n")
		}),
	})
}

func TestHTTPRoutes(t *testing.T) {
	tr := session.NewTranscript(time.Now(), "base")
	tr.Add("Vectors span a space.", session.StatusRefined, 0, 0)
	s := newTestServer(t, tr)

	resp, err := s.App().Test(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var health map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	require.Equal(t, "ok", health["status"])

	resp, err = s.App().Test(httptest.NewRequest(http.MethodGet, "/api/session", nil))
	require.NoError(t, err)
	var body struct {
		Transcript session.Snapshot   `json:"transcript"`
		Status     *ipc.SessionStatus `json:"status"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Transcript.Entries, 1)
	require.Equal(t, "Vectors span a space.", body.Transcript.Entries[0].Text)
	require.Equal(t, tr.ID(), body.Status.ID)

	resp, err = s.App().Test(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.NoError(t, err)
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(data), "lectern_audio_chunks_total 3")

	resp, err = s.App().Test(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	data, err = io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(data), "Lecture Transcript")

	resp, err = s.App().Test(httptest.NewRequest(http.MethodGet, "/ws", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusUpgradeRequired, resp.StatusCode)
}

func TestWebsocketStreamsEntries(t *testing.T) {
	tr := session.NewTranscript(time.Now(), "base")
	tr.Add("Earlier entry text.", session.StatusRefined, 0, 0)
	s := newTestServer(t, tr)
	require.NoError(t, s.Start())

	conn, _, err := gws.DefaultDialer.Dial("ws://"+s.Addr()+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	require.Equal(t, KindSnapshot, msg.Kind)
	require.Len(t, msg.Snapshot.Entries, 1)

	entry := tr.Add("A new draft sentence.", session.StatusStreaming, 1, 0)
	s.EntryAdded(entry)
	refined, _ := tr.Refine(entry.ID, "A new refined sentence.")
	s.EntryRefined(refined)

	require.NoError(t, conn.ReadJSON(&msg))
	require.Equal(t, KindAdded, msg.Kind)
	require.Equal(t, "A new draft sentence.", msg.Entry.Text)

	require.NoError(t, conn.ReadJSON(&msg))
	require.Equal(t, KindRefined, msg.Kind)
	require.Equal(t, session.StatusRefined, msg.Entry.Status)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = s.Shutdown(ctx)

	_, _, err = conn.ReadMessage()
	require.Error(t, err)
}

func TestHubDropsForSlowClients(t *testing.T) {
	h := newHub(nil)
	c, ok := h.register()
	require.True(t, ok)

	for i := 0; i < clientBuffer+5; i++ {
		h.broadcast(Message{Kind: KindAdded, Entry: &session.Entry{ID: i}})
	}
	require.Len(t, c.send, clientBuffer)
	require.Equal(t, uint64(5), h.dropped)

	h.close()
	_, ok = h.register()
	require.False(t, ok)
	require.Zero(t, h.count())
}

func TestSessionRouteBeforeControllerIsReady(t *testing.T) {
	tr := session.NewTranscript(time.Now(), "base")
	var controller *session.Controller
	s := New(Options{
		Snapshot: tr.Snapshot,
		Status:   func() *ipc.SessionStatus { return controller.SessionStatus() },
	})

	resp, err := s.App().Test(httptest.NewRequest(http.MethodGet, "/api/session", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body map[string]json.RawMessage
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Contains(t, body, "transcript")
	require.NotContains(t, body, "status")
}

func TestHandlerPanicBecomesServerError(t *testing.T) {
	s := New(Options{
		Status: func() *ipc.SessionStatus { panic("status unavailable") },
	})

	resp, err := s.App().Test(httptest.NewRequest(http.MethodGet, "/api/session", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)

	resp, err = s.App().Test(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
}
