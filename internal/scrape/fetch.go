package scrape

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

// userAgent identifies this monitor to the upstream site.
const userAgent = "p2000mon/1.0 (P2000 region monitor)"

// FetchErrorKind classifies why a page download failed.
type FetchErrorKind string

const (
	KindTimeout    FetchErrorKind = "timeout"
	KindHTTPStatus FetchErrorKind = "http_status"
	KindNetwork    FetchErrorKind = "network"
	KindEmptyBody  FetchErrorKind = "empty_body"
)

// FetchError is a failed page download with its classification. Status is set
// only for KindHTTPStatus.
type FetchError struct {
	Kind   FetchErrorKind
	URL    string
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	switch e.Kind {
	case KindTimeout:
		return fmt.Sprintf("timeout fetching %s", e.URL)
	case KindHTTPStatus:
		return fmt.Sprintf("unexpected status %d from %s", e.Status, e.URL)
	case KindEmptyBody:
		return fmt.Sprintf("empty body from %s", e.URL)
	default:
		return fmt.Sprintf("fetching %s: %v", e.URL, e.Err)
	}
}

func (e *FetchError) Unwrap() error { return e.Err }

// Fetcher downloads region pages from the upstream site.
type Fetcher struct {
	client  *http.Client
	baseURL string
}

// NewFetcher builds a Fetcher for the given base URL. The timeout bounds each
// download end to end.
func NewFetcher(baseURL string, timeout time.Duration) *Fetcher {
	return &Fetcher{
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(baseURL, "/") + "/",
	}
}

// URL resolves a region path against the base URL. The upstream site requires
// a trailing slash and redirects without it.
func (f *Fetcher) URL(regionPath string) string {
	return f.baseURL + strings.Trim(regionPath, "/") + "/"
}

// Fetch downloads the page for a region path and returns its HTML. Every
// failure comes back as a *FetchError.
func (f *Fetcher) Fetch(ctx context.Context, regionPath string) (string, error) {
	url := f.URL(regionPath)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", &FetchError{Kind: KindNetwork, URL: url, Err: err}
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return "", &FetchError{Kind: classifyNetErr(err), URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &FetchError{Kind: KindHTTPStatus, URL: url, Status: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &FetchError{Kind: classifyNetErr(err), URL: url, Err: err}
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return "", &FetchError{Kind: KindEmptyBody, URL: url}
	}
	return string(body), nil
}

func classifyNetErr(err error) FetchErrorKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return KindTimeout
	}
	return KindNetwork
}
