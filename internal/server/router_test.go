package server

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"runtime"
	"testing"

	"github.com/gin-gonic/gin"

	mng "github.com/loykin/procman/internal/manager"
)

func requireUnix(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("unix-only test")
	}
}

func setupRouter(t *testing.T, base string) (*mng.Manager, http.Handler) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	mgr := mng.New(mng.Options{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	t.Cleanup(func() { _ = mgr.StopAll() })
	return mgr, NewRouter(mgr, base).Handler()
}

func doReq(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		rdr = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rdr)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRegisterGetListStop(t *testing.T) {
	requireUnix(t)
	mgr, h := setupRouter(t, "/api")

	rec := doReq(t, h, http.MethodPost, "/api/processes", registerReq{Name: "sleeper", Command: "sleep", Args: []string{"5"}})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var info mng.Info
	if err := json.Unmarshal(rec.Body.Bytes(), &info); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if info.Name != "sleeper" || info.PID <= 0 || info.RunID == "" {
		t.Fatalf("unexpected info %+v", info)
	}

	rec = doReq(t, h, http.MethodPost, "/api/processes", registerReq{Name: "sleeper", Command: "sleep", Args: []string{"5"}})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate, got %d", rec.Code)
	}

	rec = doReq(t, h, http.MethodGet, "/api/processes/sleeper", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var got map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &got)
	if got["name"] != "sleeper" {
		t.Fatalf("unexpected body %v", got)
	}
	if _, ok := got["usage"]; !ok {
		t.Fatalf("expected usage for a running process: %v", got)
	}

	rec = doReq(t, h, http.MethodGet, "/api/processes", nil)
	var list []mng.Info
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil || len(list) != 1 {
		t.Fatalf("expected one process, got %s", rec.Body.String())
	}

	rec = doReq(t, h, http.MethodDelete, "/api/processes/sleeper", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if mgr.Len() != 0 {
		t.Fatalf("registry should be empty")
	}
	rec = doReq(t, h, http.MethodDelete, "/api/processes/sleeper", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 on second stop, got %d", rec.Code)
	}
}

func TestRegisterRejectsBadInput(t *testing.T) {
	_, h := setupRouter(t, "")
	cases := []struct {
		name string
		body any
	}{
		{"bad name", registerReq{Name: "../x", Command: "true"}},
		{"missing command", registerReq{Name: "ok"}},
		{"relative workdir", registerReq{Name: "ok", Command: "true", WorkDir: "tmp"}},
		{"not json", "nope"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			rec := doReq(t, h, http.MethodPost, "/processes", c.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestGetUnknown(t *testing.T) {
	_, h := setupRouter(t, "/x/")
	rec := doReq(t, h, http.MethodGet, "/x/processes/ghost", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestSanitizeBase(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"/", ""},
		{"api", "/api"},
		{"/api/", "/api"},
		{" api ", "/api"},
	}
	for _, c := range cases {
		if got := sanitizeBase(c.in); got != c.want {
			t.Fatalf("sanitizeBase(%q)=%q want %q", c.in, got, c.want)
		}
	}
}

func TestIsSafeAbsPath(t *testing.T) {
	requireUnix(t)
	dir, _ := os.Getwd()
	for _, ok := range []string{"", "/", "/srv/app", "/srv/app/", dir} {
		if !isSafeAbsPath(ok) {
			t.Fatalf("expected %q to be accepted", ok)
		}
	}
	for _, bad := range []string{"rel/path", "/srv/../etc", "/srv/./x"} {
		if isSafeAbsPath(bad) {
			t.Fatalf("expected %q to be rejected", bad)
		}
	}
}
