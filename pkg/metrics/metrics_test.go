package metrics

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/tinyweb/pkg/store/credential"
)

func familyNames(t *testing.T) map[string]bool {
	t.Helper()
	families, err := GetRegistry().Gather()
	require.NoError(t, err)
	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	return names
}

func TestCollectorsAndServer(t *testing.T) {
	InitRegistry()
	require.True(t, IsEnabled())

	s3m := NewS3Metrics()
	require.NotNil(t, s3m)
	s3m.ObserveOperation("GetObject", 10*time.Millisecond, nil)
	s3m.ObserveOperation("HeadObject", time.Millisecond, errors.New("boom"))
	s3m.RecordBytes("read", 42)

	cm := NewCredentialMetrics("memory")
	require.NotNil(t, cm)
	cm.ObserveOperation("lookup", time.Millisecond, &credential.StoreError{Code: credential.ErrNotFound})
	cm.ObservePoolWait("read", time.Microsecond)

	names := familyNames(t)
	for _, want := range []string{
		"go_goroutines",
		"tinyweb_s3_operations_total",
		"tinyweb_s3_errors_total",
		"tinyweb_s3_bytes_transferred_total",
		"tinyweb_credential_operations_total",
		"tinyweb_credential_pool_wait_seconds",
	} {
		assert.True(t, names[want], "missing %s", want)
	}

	srv := NewServer(ServerConfig{Port: 0})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx) }()
	<-srv.Ready()

	resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/metrics", srv.Port()))
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "tinyweb_s3_operations_total")

	cancel()
	require.NoError(t, <-done)
}

func TestNoopHTTPMetrics(t *testing.T) {
	m := NewNoopHTTPMetrics()
	m.RecordRequest("GET", 200, time.Millisecond)
	m.RecordConnectionClosed("done")
	m.SetPendingTasks(3)
}
