package station

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/klauspost/pgzip"
)

// DefaultURL is the KC2G station status endpoint.
const DefaultURL = "https://prop.kc2g.com/api/stations.json"

// DefaultTimeout bounds the whole request, body included.
const DefaultTimeout = 20 * time.Second

// maxBodyBytes caps the feed body; the real feed is well under 1 MiB.
const maxBodyBytes = 20 << 20

// UserAgent is sent with every feed request.
var UserAgent = "OHB muf-rt"

// Fetcher downloads the station feed over HTTP. There is no retry: a failed
// fetch fails the run and the scheduler tries again next cycle.
type Fetcher struct {
	url    string
	client *http.Client
	logger *slog.Logger
}

// NewFetcher returns a Fetcher for url with a fixed request timeout.
func NewFetcher(url string, timeout time.Duration, logger *slog.Logger) *Fetcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Fetcher{
		url:    url,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// Fetch returns the raw feed body.
func (f *Fetcher) Fetch(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Accept", "application/json")
	// Asking explicitly turns off the transport's transparent gunzip, so the
	// body is decoded here with pgzip instead.
	req.Header.Set("Accept-Encoding", "gzip")

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP GET failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("HTTP %d from %s", resp.StatusCode, f.url)
	}

	var body io.Reader = resp.Body
	if strings.EqualFold(resp.Header.Get("Content-Encoding"), "gzip") {
		gz, err := pgzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("gzip body: %w", err)
		}
		defer gz.Close()
		body = gz
	}

	b, err := io.ReadAll(io.LimitReader(body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	f.logger.Debug("station feed fetched",
		"url", f.url,
		"bytes", len(b),
		"elapsed", time.Since(start).Round(time.Millisecond))
	return b, nil
}

// Observations fetches and parses the feed.
func (f *Fetcher) Observations(ctx context.Context, now time.Time) ([]Observation, Stats, error) {
	body, err := f.Fetch(ctx)
	if err != nil {
		return nil, Stats{}, err
	}
	return ParseRecords(body, now)
}
