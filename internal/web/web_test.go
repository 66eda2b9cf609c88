package web

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"icsanon/internal/model"
)

func get(t *testing.T, h http.Handler, path string, auth ...string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if len(auth) == 2 {
		req.SetBasicAuth(auth[0], auth[1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec.Result()
}

func TestHealth(t *testing.T) {
	s := NewServer(Options{Username: "u", Password: "p"}, zerolog.Nop())
	resp := get(t, s.Handler(), "/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCalendarBeforeFirstRun(t *testing.T) {
	s := NewServer(Options{CalendarPath: filepath.Join(t.TempDir(), "busy.ics")}, zerolog.Nop())
	resp := get(t, s.Handler(), "/calendar.ics")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestCalendarServesOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "busy.ics")
	body := "BEGIN:VCALENDAR\r\nEND:VCALENDAR\r\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	s := NewServer(Options{CalendarPath: path}, zerolog.Nop())
	resp := get(t, s.Handler(), "/calendar.ics")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/calendar; charset=utf-8", resp.Header.Get("Content-Type"))

	got, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, body, string(got))
}

func TestBasicAuth(t *testing.T) {
	path := filepath.Join(t.TempDir(), "busy.ics")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	h := NewServer(Options{CalendarPath: path, Username: "family", Password: "s3cret"}, zerolog.Nop()).Handler()

	assert.Equal(t, http.StatusUnauthorized, get(t, h, "/calendar.ics").StatusCode)
	assert.Equal(t, http.StatusUnauthorized, get(t, h, "/calendar.ics", "family", "wrong").StatusCode)
	assert.Equal(t, http.StatusOK, get(t, h, "/calendar.ics", "family", "s3cret").StatusCode)
}

func TestStatusReflectsLastRun(t *testing.T) {
	s := NewServer(Options{}, zerolog.Nop())
	at := time.Date(2024, 10, 1, 3, 0, 0, 0, time.UTC)
	s.RecordRun(model.Report{Mode: "normalize", EventsIn: 4, EventsOut: 3, Pruned: 1}, nil, at)
	s.RecordRun(model.Report{}, errors.New("fetch: timeout"), at.Add(time.Hour))

	resp := get(t, s.Handler(), "/api/status")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got statusResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.True(t, at.Equal(got.LastSuccess))
	assert.True(t, at.Add(time.Hour).Equal(got.LastRun))
	assert.Equal(t, "fetch: timeout", got.LastError)
	assert.Equal(t, 3, got.EventsOut)
	assert.Equal(t, 1, got.Pruned)
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "icsanon_test_total", Help: "test"})
	reg.MustRegister(c)
	c.Inc()

	h := NewServer(Options{Gatherer: reg}, zerolog.Nop()).Handler()
	resp := get(t, h, "/metrics")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "icsanon_test_total 1")

	h = NewServer(Options{}, zerolog.Nop()).Handler()
	assert.Equal(t, http.StatusNotFound, get(t, h, "/metrics").StatusCode)
}

func TestCalendarRejectsWrites(t *testing.T) {
	h := NewServer(Options{CalendarPath: filepath.Join(t.TempDir(), "busy.ics")}, zerolog.Nop()).Handler()
	req := httptest.NewRequest(http.MethodPut, "/calendar.ics", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
