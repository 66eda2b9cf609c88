// Package publish uploads the anonymized calendar to a WebDAV collection so
// it can be subscribed to without exposing the host that runs the job.
package publish

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/emersion/go-webdav"
	"github.com/rs/zerolog"

	appLog "icsanon/internal/log"
)

// Target describes where to PUT the document.
type Target struct {
	// URL is the full URL of the destination file,
	// e.g. https://dav.example.com/remote.php/dav/files/me/public/busy.ics
	URL      string
	Username string
	Password string
	Timeout  time.Duration
}

// WebDAV publishes to a single file on a WebDAV server.
type WebDAV struct {
	client *webdav.Client
	path   string
	url    string
	log    zerolog.Logger
}

func NewWebDAV(t Target, logger zerolog.Logger) (*WebDAV, error) {
	u, err := url.Parse(t.URL)
	if err != nil {
		return nil, fmt.Errorf("parse publish URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" || u.Path == "" || u.Path == "/" {
		return nil, fmt.Errorf("publish URL must name a file: %s", appLog.RedactURL(t.URL))
	}
	if t.Timeout <= 0 {
		t.Timeout = 30 * time.Second
	}

	var hc webdav.HTTPClient = &http.Client{Timeout: t.Timeout}
	if t.Username != "" {
		hc = webdav.HTTPClientWithBasicAuth(hc, t.Username, t.Password)
	}

	endpoint := u.Scheme + "://" + u.Host
	client, err := webdav.NewClient(hc, endpoint)
	if err != nil {
		return nil, fmt.Errorf("create webdav client: %w", err)
	}

	return &WebDAV{
		client: client,
		path:   u.Path,
		url:    t.URL,
		log:    logger,
	}, nil
}

// Publish replaces the remote file with data.
func (w *WebDAV) Publish(ctx context.Context, data []byte) error {
	wc, err := w.client.Create(ctx, w.path)
	if err != nil {
		return fmt.Errorf("webdav create: %w", err)
	}
	if _, err := wc.Write(data); err != nil {
		wc.Close()
		return fmt.Errorf("webdav write: %w", err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("webdav upload: %w", err)
	}

	w.log.Info().Str("url", appLog.RedactURL(w.url)).Int("bytes", len(data)).Msg("calendar published")
	return nil
}
