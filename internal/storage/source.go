package storage

import (
	"context"
	"errors"
	"time"

	"catch-forecast/internal/records"
)

// Source loads the raw ledger.
type Source interface {
	LoadRaw(ctx context.Context) ([]records.RawRecord, error)
}

var ErrNoSource = errors.New("no ledger source configured")

// Open picks the ledger source in order of preference: the local database
// under dataPath, the CSV file, then the remote export. The returned close
// func is never nil.
func Open(dataPath, csvPath, url string, timeout time.Duration) (Source, func() error, error) {
	noop := func() error { return nil }
	switch {
	case dataPath != "":
		store, err := New(dataPath)
		if err != nil {
			return nil, noop, err
		}
		return store, store.Close, nil
	case csvPath != "":
		return CSVSource{Path: csvPath}, noop, nil
	case url != "":
		return NewRemoteSource(url, timeout), noop, nil
	}
	return nil, noop, ErrNoSource
}
