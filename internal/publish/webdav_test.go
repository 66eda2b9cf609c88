package publish

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedPut struct {
	method string
	path   string
	body   string
	user   string
	pass   string
}

func newDAVServer(t *testing.T, status int) (*httptest.Server, func() recordedPut) {
	t.Helper()
	var mu sync.Mutex
	var got recordedPut
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		user, pass, _ := r.BasicAuth()
		mu.Lock()
		got = recordedPut{method: r.Method, path: r.URL.Path, body: string(body), user: user, pass: pass}
		mu.Unlock()
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, func() recordedPut {
		mu.Lock()
		defer mu.Unlock()
		return got
	}
}

func TestPublishPutsDocument(t *testing.T) {
	srv, recorded := newDAVServer(t, http.StatusCreated)

	pub, err := NewWebDAV(Target{
		URL:      srv.URL + "/dav/public/busy.ics",
		Username: "alice",
		Password: "pw",
	}, zerolog.Nop())
	require.NoError(t, err)

	require.NoError(t, pub.Publish(context.Background(), []byte("BEGIN:VCALENDAR\r\nEND:VCALENDAR\r\n")))

	got := recorded()
	assert.Equal(t, http.MethodPut, got.method)
	assert.Equal(t, "/dav/public/busy.ics", got.path)
	assert.Equal(t, "BEGIN:VCALENDAR\r\nEND:VCALENDAR\r\n", got.body)
	assert.Equal(t, "alice", got.user)
	assert.Equal(t, "pw", got.pass)
}

func TestPublishReportsServerError(t *testing.T) {
	srv, _ := newDAVServer(t, http.StatusForbidden)

	pub, err := NewWebDAV(Target{URL: srv.URL + "/busy.ics"}, zerolog.Nop())
	require.NoError(t, err)

	assert.Error(t, pub.Publish(context.Background(), []byte("x")))
}

func TestNewWebDAVRejectsCollectionURL(t *testing.T) {
	_, err := NewWebDAV(Target{URL: "https://dav.example.com/"}, zerolog.Nop())
	assert.Error(t, err)

	_, err = NewWebDAV(Target{URL: "dav.example.com/file.ics"}, zerolog.Nop())
	assert.Error(t, err)
}
