package cli

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServe_StartsAndShutsDown(t *testing.T) {
	t.Setenv("FUSIONSYNC_DRIVER", "memory")
	t.Setenv("FUSIONSYNC_ADDR", "127.0.0.1:0")
	t.Setenv("FUSIONSYNC_SHUTDOWN_TIMEOUT", "2s")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ready := make(chan string, 1)
	rootOpts := &RootOptions{Format: "text"}
	opts := &ServeOptions{RootOptions: rootOpts, Ready: ready}

	cmd := NewServeCommand(rootOpts)
	cmd.SetContext(ctx)
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(io.Discard)

	done := make(chan error, 1)
	go func() {
		done <- runServe(opts, cmd)
	}()

	var addr string
	select {
	case addr = <-ready:
	case err := <-done:
		t.Fatalf("server exited early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not start")
	}
	assert.Equal(t, "Listening on "+addr+"\n", out.String())

	resp, err := http.Get("http://" + addr + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Post("http://"+addr+"/api/v1/designs/sync", "application/json", strings.NewReader(gearboxPayload))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestServe_InvalidConfig(t *testing.T) {
	t.Setenv("FUSIONSYNC_DRIVER", "memory")
	t.Setenv("FUSIONSYNC_LOG_LEVEL", "loud")

	rootOpts := &RootOptions{Format: "text"}
	cmd := NewServeCommand(rootOpts)
	cmd.SetContext(context.Background())
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)

	err := runServe(&ServeOptions{RootOptions: rootOpts}, cmd)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "invalid configuration")
}

func TestServeConfig_FlagsOverrideEnvironment(t *testing.T) {
	t.Setenv("FUSIONSYNC_DRIVER", "postgres")
	t.Setenv("FUSIONSYNC_DATABASE", "host=db dbname=parts")
	t.Setenv("FUSIONSYNC_ADDR", ":9000")

	cmd := NewRootCommand()
	serveCmd, _, err := cmd.Find([]string{"serve"})
	require.NoError(t, err)
	require.NoError(t, cmd.ParseFlags([]string{"--driver", "memory"}))

	opts := &ServeOptions{RootOptions: &RootOptions{Driver: "memory", Database: "fusionsync.db", Verbose: true}}
	cfg, err := serveConfig(opts, serveCmd)
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Driver)
	assert.Equal(t, "host=db dbname=parts", cfg.Database, "--db was not set, so the environment wins")
	assert.Equal(t, ":9000", cfg.Addr)
	assert.Equal(t, "debug", cfg.LogLevel)

	opts.Addr = "127.0.0.1:7000"
	cfg, err = serveConfig(opts, serveCmd)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:7000", cfg.Addr)
}
