package main

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/jacksonzamorano/cloudvm/cloudvm-config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *cloudvm_config.Config {
	cfg := cloudvm_config.Default()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0
	cfg.Server.Workers = 2
	cfg.Auth.SigningKey = "test-secret"
	return cfg
}

func TestServeHealthAndMetrics(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	app, err := buildApplication(context.Background(), testConfig(), true, logger)
	require.NoError(t, err)
	defer app.Close()

	require.NoError(t, app.server.Start())
	defer app.server.Stop()

	get := func(path string) *http.Response {
		conn, err := net.DialTimeout("tcp", app.server.Addr().String(), time.Second)
		require.NoError(t, err)
		defer conn.Close()
		fmt.Fprintf(conn, "GET %s HTTP/1.1\r\nHost: localhost\r\n\r\n", path)
		res, err := http.ReadResponse(bufio.NewReader(conn), nil)
		require.NoError(t, err)
		body, err := io.ReadAll(res.Body)
		require.NoError(t, err)
		res.Body = io.NopCloser(bytes.NewReader(body))
		return res
	}

	res := get("/health")
	assert.Equal(t, 200, res.StatusCode)
	assert.Equal(t, "*", res.Header.Get("Access-Control-Allow-Origin"))

	res = get("/metrics")
	assert.Equal(t, 200, res.StatusCode)
	body, _ := io.ReadAll(res.Body)
	assert.Contains(t, string(body), "# TYPE cloudvm_http_pool_active_tasks gauge")
	assert.Contains(t, string(body), "cloudvm_http_pool_workers 2")

	res = get("/api/vms")
	assert.Equal(t, 401, res.StatusCode)
}

func TestServeRequiresSigningKey(t *testing.T) {
	t.Setenv("SIGNING_KEY", "")
	defer func(memoryStore bool) { serveFlags.memoryStore = memoryStore }(serveFlags.memoryStore)

	serveFlags.memoryStore = false
	_, err := loadConfig()
	var validation cloudvm_config.ValidationError
	require.ErrorAs(t, err, &validation)
	assert.Equal(t, "auth.signing_key", validation.Errors[0].Field)

	serveFlags.memoryStore = true
	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Empty(t, cfg.Auth.SigningKey)

	t.Setenv("SIGNING_KEY", "s3cret")
	serveFlags.memoryStore = false
	cfg, err = loadConfig()
	require.NoError(t, err)
	assert.Equal(t, "s3cret", cfg.Auth.SigningKey)
}

func TestRoutesCommand(t *testing.T) {
	t.Setenv("SIGNING_KEY", "test-secret")
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"routes"})
	require.NoError(t, rootCmd.Execute())

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 10)
	assert.Equal(t, "GET     /health", lines[0])
	assert.Equal(t, "GET     /metrics", lines[1])
	assert.Equal(t, "DELETE  /api/vms/:id", lines[9])
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"version"})
	require.NoError(t, rootCmd.Execute())
	assert.True(t, strings.HasPrefix(out.String(), "CloudVM "+Version+"\n"))
}
