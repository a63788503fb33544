package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gonzalop/ftpstore/storage/ftp"
)

var _ ftp.MetricsCollector = (*Collector)(nil)

func TestCollector(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewPedanticRegistry()
	c := New(reg)

	c.RecordOperation("list", "", 20*time.Millisecond)
	c.RecordOperation("list", "unauthorized", 5*time.Millisecond)
	c.RecordOperation("upload", "", time.Second)
	c.RecordTransfer("upload", 2048, time.Second)
	c.RecordTransfer("upload", 1024, time.Second)
	c.RecordConnection("ok")
	c.RecordConnection("login_failed")

	assert.InDelta(t, 1, testutil.ToFloat64(c.operationsTotal.WithLabelValues("list", "ok")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(c.operationsTotal.WithLabelValues("list", "unauthorized")), 0)
	assert.InDelta(t, 3072, testutil.ToFloat64(c.transferBytes.WithLabelValues("upload")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(c.connectionsTotal.WithLabelValues("login_failed")), 0)

	err := testutil.GatherAndCompare(reg, strings.NewReader(`
# HELP ftpstore_connections_total Total control connection attempts
# TYPE ftpstore_connections_total counter
ftpstore_connections_total{result="login_failed"} 1
ftpstore_connections_total{result="ok"} 1
`), "ftpstore_connections_total")
	require.NoError(t, err)
}

func TestDuplicateRegistrationPanics(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	New(reg)
	assert.Panics(t, func() { New(reg) })
}
