// Package archive fetches raw HMP155 logger files over HTTP from the
// site archive when no local copy exists.
package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/sony/gobreaker"
)

// ErrDayMissing reports that the archive has no file for the requested
// day. An unarchived day is a normal condition during backfills.
var ErrDayMissing = errors.New("day not in archive")

// RelativeDayPath returns the archive-relative location of one day's
// raw file, e.g. 2020/202006/chilbolton-hmp155_20200615.dat. The local
// raw directory mirrors the same layout.
func RelativeDayPath(prefix string, date time.Time) string {
	date = date.UTC()
	return path.Join(date.Format("2006"), date.Format("200601"),
		fmt.Sprintf("%s_%s.dat", prefix, date.Format("20060102")))
}

// Client fetches raw day files from the archive host.
type Client struct {
	baseURL string
	prefix  string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
}

// NewClient builds a client for the archive rooted at baseURL. prefix
// is the logger file prefix, e.g. chilbolton-hmp155.
func NewClient(baseURL, prefix string, client *http.Client) *Client {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "archive",
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     2 * time.Minute,
		// Missing days must not open the circuit; the host answered.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrDayMissing)
		},
	})

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		prefix:  prefix,
		httpCfg: HTTPClientConfig{
			Client: client,
			Backoff: BackoffConfig{
				MaxRetries:      3,
				InitialInterval: 500 * time.Millisecond,
				MaxInterval:     5 * time.Second,
			},
		},
		circuit: cb,
	}
}

// FetchDay downloads the raw TOA5 file for the given day. It returns
// ErrDayMissing when the archive has no file for that day.
func (c *Client) FetchDay(ctx context.Context, date time.Time) ([]byte, error) {
	rel := RelativeDayPath(c.prefix, date)

	buildRequest := func() (*http.Request, error) {
		return http.NewRequest(http.MethodGet, c.baseURL+"/"+rel, nil)
	}

	resp, err := doRequestWithResilience(ctx, c.httpCfg, c.circuit, buildRequest)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading archive response for %s: %w", rel, err)
	}
	return data, nil
}
