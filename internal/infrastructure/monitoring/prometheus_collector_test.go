package monitoring

import (
	"testing"

	"novaled/internal/core/domain"
	"novaled/internal/core/ports"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

var _ ports.LiveObserver = (*PrometheusCollector)(nil)

func TestPrometheusCollector_LiveEvents(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewPrometheusCollector(reg)

	c.BroadcastStarted(false)
	c.BroadcastStarted(true)
	c.BroadcastStopped(domain.StopCapReached, 600)
	c.StartRejected("cooldown")
	c.StartRejected("cooldown")
	c.CooldownStarted()
	c.StoreError("delete")

	assert.Equal(t, 1.0, testutil.ToFloat64(c.broadcastsStarted.WithLabelValues("false")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.broadcastsStarted.WithLabelValues("true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.broadcastsStopped.WithLabelValues("cap_reached")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.startsRejected.WithLabelValues("cooldown")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.cooldownsStarted))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.storeErrors.WithLabelValues("delete")))
}

func TestPrometheusCollector_Gauges(t *testing.T) {
	c := NewPrometheusCollector(prometheus.NewRegistry())

	c.ClientConnected()
	c.ClientConnected()
	c.ClientDisconnected()
	assert.Equal(t, 1.0, testutil.ToFloat64(c.websocketClients))

	c.RecordReap(5, 2)
	assert.Equal(t, 3.0, testutil.ToFloat64(c.livesActive))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.livesReaped))

	c.RecordMessage("start_live")
	assert.Equal(t, 1.0, testutil.ToFloat64(c.websocketMessages.WithLabelValues("start_live")))
}

func TestPrometheusCollector_SeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		NewPrometheusCollector(prometheus.NewRegistry())
		NewPrometheusCollector(prometheus.NewRegistry())
	})
}
