package cloudvm_metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/jacksonzamorano/cloudvm"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ cloudvm.RequestObserver = (*Collector)(nil)

func TestObserveRequest(t *testing.T) {
	c := NewCollector(nil, prometheus.NewRegistry())

	ok := cloudvm.StringResponse("hello")
	missing := cloudvm.ErrorJsonResponse(cloudvm.StatusNotFound, "Route not found")
	bad := cloudvm.ErrorJsonResponse(cloudvm.StatusBadRequest, "Bad request")

	c.ObserveRequest(&cloudvm.HttpRequest{Method: cloudvm.Get}, ok, 2*time.Millisecond)
	c.ObserveRequest(&cloudvm.HttpRequest{Method: cloudvm.Get}, ok, 3*time.Millisecond)
	c.ObserveRequest(&cloudvm.HttpRequest{Method: cloudvm.Post}, missing, time.Millisecond)
	c.ObserveRequest(nil, bad, time.Microsecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.requestsTotal.WithLabelValues("GET", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.requestsTotal.WithLabelValues("POST", "404")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.requestsTotal.WithLabelValues(InvalidMethod, "400")))
	assert.Equal(t, 3, testutil.CollectAndCount(c.requestDuration))
}

func TestPoolGauges(t *testing.T) {
	c := NewCollector(nil, nil)
	stats := cloudvm.PoolStats{Size: 4, Pending: 2, Active: 1, Completed: 9}
	c.RegisterPool(func() cloudvm.PoolStats { return stats })

	expected := `
# HELP cloudvm_http_pool_pending_tasks Tasks waiting in the queue
# TYPE cloudvm_http_pool_pending_tasks gauge
cloudvm_http_pool_pending_tasks 2
# HELP cloudvm_http_pool_workers Configured number of worker goroutines
# TYPE cloudvm_http_pool_workers gauge
cloudvm_http_pool_workers 4
`
	require.NoError(t, testutil.GatherAndCompare(c.Registry(), strings.NewReader(expected),
		"cloudvm_http_pool_pending_tasks", "cloudvm_http_pool_workers"))

	stats.Pending = 0
	expected = strings.Replace(expected, "cloudvm_http_pool_pending_tasks 2", "cloudvm_http_pool_pending_tasks 0", 1)
	require.NoError(t, testutil.GatherAndCompare(c.Registry(), strings.NewReader(expected),
		"cloudvm_http_pool_pending_tasks", "cloudvm_http_pool_workers"))
}

func TestHandlerRendersTextFormat(t *testing.T) {
	c := NewCollector(nil, nil)
	c.RegisterPool(func() cloudvm.PoolStats { return cloudvm.PoolStats{Size: 8} })
	c.ObserveRequest(&cloudvm.HttpRequest{Method: cloudvm.Get}, cloudvm.StringResponse("ok"), time.Millisecond)

	res := cloudvm.NewHttpResponse()
	require.NoError(t, c.Handler(&cloudvm.HttpRequest{Method: cloudvm.Get, Path: "/metrics"}, res))

	assert.Equal(t, cloudvm.StatusOK, res.StatusCode)
	assert.True(t, strings.HasPrefix(res.Headers["Content-Type"], "text/plain"))
	body := string(res.Body)
	assert.Contains(t, body, `cloudvm_http_requests_total{method="GET",status="200"} 1`)
	assert.Contains(t, body, "cloudvm_http_pool_workers 8")
	assert.Contains(t, body, "# TYPE cloudvm_http_request_duration_seconds histogram")
}
