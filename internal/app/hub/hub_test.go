package hub_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"recruit_exec/internal/app/hub"
	"recruit_exec/internal/domain/model"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeSink struct {
	mu   sync.Mutex
	msgs [][]byte
	full bool
}

func (s *fakeSink) Send(msg []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.full {
		return false
	}
	s.msgs = append(s.msgs, msg)
	return true
}

func (s *fakeSink) received() []model.LiveEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.LiveEvent, 0, len(s.msgs))
	for _, m := range s.msgs {
		var e model.LiveEvent
		_ = json.Unmarshal(m, &e)
		out = append(out, e)
	}
	return out
}

func progress(interviewID string) model.LiveEvent {
	return model.LiveEvent{Type: model.EventProgress, InterviewID: interviewID, SubmissionID: "sub-1", Resolved: 1, Total: 3}
}

func TestPushWithoutRegistrationIsDropped(t *testing.T) {
	h := hub.New(zap.NewNop())
	assert.False(t, h.Push("iv-1", progress("iv-1")))
}

func TestLastRegistrationWins(t *testing.T) {
	h := hub.New(zap.NewNop())
	first, second := &fakeSink{}, &fakeSink{}

	regFirst := h.Register("iv-1", first)
	regSecond := h.Register("iv-1", second)
	require.True(t, h.Push("iv-1", progress("iv-1")))
	assert.Empty(t, first.received())
	assert.Len(t, second.received(), 1)

	// the replaced connection disconnecting late must not evict its successor
	assert.False(t, h.Unregister(regFirst))
	assert.True(t, h.Push("iv-1", progress("iv-1")))
	assert.Len(t, second.received(), 2)

	assert.True(t, h.Unregister(regSecond))
	assert.False(t, h.Push("iv-1", progress("iv-1")))
	assert.Zero(t, h.Connections())
}

func TestPushToFullSinkReportsDrop(t *testing.T) {
	h := hub.New(zap.NewNop())
	h.Register("iv-1", &fakeSink{full: true})
	assert.False(t, h.Push("iv-1", progress("iv-1")))
}

func TestPushIsolatesInterviews(t *testing.T) {
	h := hub.New(zap.NewNop())
	a, b := &fakeSink{}, &fakeSink{}
	h.Register("iv-a", a)
	h.Register("iv-b", b)

	h.Notify(context.Background(), "iv-a", progress("iv-a"))
	assert.Len(t, a.received(), 1)
	assert.Empty(t, b.received())
}

func TestWebsocketClientDeliversPushes(t *testing.T) {
	h := hub.New(zap.NewNop())
	registered := make(chan *hub.Registration, 1)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		client := hub.NewClient(conn, 4, zap.NewNop())
		reg := h.Register("iv-1", client)
		registered <- reg
		client.Serve(r.Context())
		h.Unregister(reg)
	}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()
	<-registered

	require.True(t, h.Push("iv-1", progress("iv-1")))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var got model.LiveEvent
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, model.EventProgress, got.Type)
	assert.Equal(t, 3, got.Total)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return h.Connections() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestRedisRelayDeliversThroughLocalHub(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	h := hub.New(zap.NewNop())
	sink := &fakeSink{}
	h.Register("iv-1", sink)

	relay := hub.NewRedisRelay(rdb, "live-events", h, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- relay.Run(ctx) }()

	select {
	case <-relay.Ready():
	case err := <-done:
		t.Fatalf("relay stopped before subscribing: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("relay did not subscribe")
	}

	relay.Notify(context.Background(), "iv-1", model.LiveEvent{Type: model.EventPassed, InterviewID: "iv-1", Generation: 2})
	assert.Eventually(t, func() bool { return len(sink.received()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, model.EventPassed, sink.received()[0].Type)
	assert.Equal(t, 2, sink.received()[0].Generation)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("relay did not stop")
	}
}

func TestRedisRelayFallsBackToLocalDelivery(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer rdb.Close()
	mr.Close()

	h := hub.New(zap.NewNop())
	sink := &fakeSink{}
	h.Register("iv-1", sink)

	hub.NewRedisRelay(rdb, "live-events", h, zap.NewNop()).Notify(context.Background(), "iv-1", progress("iv-1"))
	assert.Len(t, sink.received(), 1)
}
