package client

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"runtime"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	mng "github.com/loykin/procman/internal/manager"
	"github.com/loykin/procman/internal/server"
)

func newTestAPI(t *testing.T) (*mng.Manager, *Client) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("unix-only test")
	}
	gin.SetMode(gin.TestMode)
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	mgr := mng.New(mng.Options{Logger: quiet})
	t.Cleanup(func() { _ = mgr.StopAll() })

	ts := httptest.NewServer(server.NewRouter(mgr, "/api").Handler())
	t.Cleanup(ts.Close)

	c, err := New(Config{BaseURL: ts.URL + "/api", Logger: quiet})
	require.NoError(t, err)
	return mgr, c
}

func TestRegisterListGetStop(t *testing.T) {
	mgr, c := newTestAPI(t)
	ctx := context.Background()

	require.True(t, c.IsReachable(ctx))

	info, err := c.Register(ctx, RegisterRequest{Name: "sleeper", Command: "sleep", Args: []string{"10"}})
	require.NoError(t, err)
	require.Equal(t, "sleeper", info.Name)
	require.NotEmpty(t, info.RunID)
	require.Positive(t, info.PID)

	list, err := c.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "sleep", list[0].Spec.Command)

	got, err := c.Get(ctx, "sleeper")
	require.NoError(t, err)
	require.Equal(t, info.RunID, got.RunID)

	require.NoError(t, c.Stop(ctx, "sleeper"))
	require.Zero(t, mgr.Len())

	err = c.Stop(ctx, "sleeper")
	require.True(t, errors.Is(err, ErrNotFound), "got %v", err)
}

func TestRegisterDuplicateReportsConflict(t *testing.T) {
	_, c := newTestAPI(t)
	ctx := context.Background()

	_, err := c.Register(ctx, RegisterRequest{Name: "dup", Command: "sleep 10"})
	require.NoError(t, err)
	_, err = c.Register(ctx, RegisterRequest{Name: "dup", Command: "sleep 10"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "409")
}

func TestGetUnknown(t *testing.T) {
	_, c := newTestAPI(t)
	_, err := c.Get(context.Background(), "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestNonJSONErrorBody(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("<html>bad gateway</html>"))
	}))
	defer ts.Close()
	c, err := New(Config{BaseURL: ts.URL})
	require.NoError(t, err)

	_, err = c.List(context.Background())
	require.EqualError(t, err, "HTTP 502")
	require.False(t, c.IsReachable(context.Background()))
}

func TestNewRejectsMissingCACert(t *testing.T) {
	_, err := New(Config{CACert: "/does/not/exist.pem"})
	require.Error(t, err)
}
