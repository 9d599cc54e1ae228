package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

func TestRequestID_GeneratesNew(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := func(c echo.Context) error {
		rid := c.Get("request_id").(string)
		if rid == "" {
			t.Error("expected request_id to be generated")
		}
		return c.String(http.StatusOK, "ok")
	}

	mw := RequestID()
	h := mw(handler)
	err := h(c)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Header().Get(RequestIDHeader) == "" {
		t.Error("expected X-Request-ID response header")
	}
}

func TestRequestID_PreservesExisting(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "my-custom-id")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := func(c echo.Context) error {
		rid := c.Get("request_id").(string)
		if rid != "my-custom-id" {
			t.Errorf("expected my-custom-id, got %s", rid)
		}
		return c.String(http.StatusOK, "ok")
	}

	mw := RequestID()
	h := mw(handler)
	h(c)

	if rec.Header().Get(RequestIDHeader) != "my-custom-id" {
		t.Errorf("expected my-custom-id in response header, got %s", rec.Header().Get(RequestIDHeader))
	}
}

// runLogged drives one request through the Logger middleware and returns the
// captured log output.
func runLogged(t *testing.T, path string, handler echo.HandlerFunc) string {
	t.Helper()
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Set("request_id", "rid-1")

	h := Logger(logger)(handler)
	if err := h(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return buf.String()
}

func TestLogger_LogsRequest(t *testing.T) {
	out := runLogged(t, "/search/explain/Patient?name=smith", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	for _, want := range []string{`"level":"info"`, `"method":"GET"`, `"path":"/search/explain/Patient"`, `"status":200`, `"request_id":"rid-1"`} {
		if !strings.Contains(out, want) {
			t.Errorf("log line missing %s: %s", want, out)
		}
	}
}

func TestLogger_WarnsOnClientError(t *testing.T) {
	out := runLogged(t, "/search/explain/Zork", func(c echo.Context) error {
		return c.String(http.StatusBadRequest, "no")
	})

	if !strings.Contains(out, `"level":"warn"`) {
		t.Errorf("expected warn level for a 400 response, got %s", out)
	}
}

func TestLogger_ErrorsOnServerError(t *testing.T) {
	out := runLogged(t, "/search/explain", func(c echo.Context) error {
		return c.String(http.StatusInternalServerError, "boom")
	})

	if !strings.Contains(out, `"level":"error"`) {
		t.Errorf("expected error level for a 500 response, got %s", out)
	}
}

func TestLogger_SkipsHealthProbes(t *testing.T) {
	for _, path := range []string{"/health", "/health/db"} {
		out := runLogged(t, path, func(c echo.Context) error {
			return c.String(http.StatusOK, "ok")
		})
		if out != "" {
			t.Errorf("expected no log line for %s, got %s", path, out)
		}
	}
}

func TestRecovery_CatchesPanic(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/panic", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := func(c echo.Context) error {
		panic("test panic")
	}

	mw := Recovery(logger)
	h := mw(handler)
	err := h(c)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "OperationOutcome") {
		t.Errorf("expected an OperationOutcome body, got %s", rec.Body)
	}
	if !strings.Contains(rec.Body.String(), "exception") {
		t.Errorf("expected an exception issue, got %s", rec.Body)
	}
	if !strings.Contains(buf.String(), "test panic") {
		t.Errorf("expected the panic value in the log, got %s", buf.String())
	}
}

func TestRecovery_PassesThrough(t *testing.T) {
	logger := zerolog.New(&bytes.Buffer{})
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/ok", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	}

	mw := Recovery(logger)
	h := mw(handler)
	err := h(c)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
