package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetricsInitialization(t *testing.T) {
	assert.NotNil(t, SocketFailuresTotal)
	assert.NotNil(t, ActiveSockets)
	assert.NotNil(t, DatagramsReceivedTotal)
	assert.NotNil(t, DatagramsDroppedTotal)
	assert.NotNil(t, DatagramsSentTotal)
	assert.NotNil(t, SearchesTotal)
	assert.NotNil(t, SearchResponsesTotal)
	assert.NotNil(t, SearchDurationSeconds)
	assert.NotNil(t, NotificationsTotal)
}

func TestDroppedCounterLabels(t *testing.T) {
	c := DatagramsDroppedTotal.WithLabelValues(RoleNotify, ReasonParse)
	before := testutil.ToFloat64(c)

	c.Inc()

	assert.Equal(t, before+1, testutil.ToFloat64(c))
}
