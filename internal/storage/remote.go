package storage

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"catch-forecast/internal/records"

	"github.com/go-resty/resty/v2"
)

// RemoteSource fetches the ledger over HTTP. A CSV export is decoded as
// such; an HTML response is read as the fishing-history page.
type RemoteSource struct {
	url  string
	rest *resty.Client
}

func NewRemoteSource(url string, timeout time.Duration) *RemoteSource {
	r := resty.New()
	if timeout > 0 {
		r.SetTimeout(timeout)
	} else {
		r.SetTimeout(10 * time.Second)
	}
	r.SetRetryCount(2)
	r.SetRetryWaitTime(500 * time.Millisecond)
	return &RemoteSource{url: url, rest: r}
}

func (s *RemoteSource) LoadRaw(ctx context.Context) ([]records.RawRecord, error) {
	resp, err := s.rest.R().
		SetContext(ctx).
		SetHeader("Accept", "text/csv, text/html;q=0.9").
		Get(s.url)
	if err != nil {
		return nil, fmt.Errorf("fetch ledger: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("fetch ledger: status %d", resp.StatusCode())
	}
	if strings.HasPrefix(resp.Header().Get("Content-Type"), "text/html") {
		return ReadHistoryPage(bytes.NewReader(resp.Body()))
	}
	return ReadCSV(bytes.NewReader(resp.Body()))
}
