package monitor

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonitor_Counters(t *testing.T) {
	m := NewMonitor("test")

	m.ObserveRequest("draw-token", "ok", time.Millisecond)
	m.ObserveRequest("draw-token", "not_your_turn", time.Millisecond)
	m.ObserveRequest("draw-token", "ok", time.Millisecond)
	m.SetActiveRooms(3)
	m.IncOnlineSessions()
	m.IncOnlineSessions()
	m.DecOnlineSessions()
	m.IncGamesFinished()
	m.NotificationDropped("R1")
	m.NotificationFailed("R1")
	m.SetSubscribers(7)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.metrics.Requests.WithLabelValues("draw-token", "ok")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.metrics.ActiveRooms))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.metrics.OnlineSessions))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.metrics.GamesFinished))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.metrics.NotificationsDropped))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.metrics.NotificationFailures))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.metrics.Subscribers))
	assert.Equal(t, int64(3), m.RequestCount())
}

func TestMonitor_IndependentRegistries(t *testing.T) {
	// Two monitors in one process must not collide on registration.
	a := NewMonitor("test")
	b := NewMonitor("test")
	a.SetActiveRooms(1)
	assert.Equal(t, 0.0, testutil.ToFloat64(b.metrics.ActiveRooms))
}

func TestMonitor_Handler(t *testing.T) {
	m := NewMonitor("poison")
	m.SetActiveRooms(2)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "poison_active_rooms 2")
}
