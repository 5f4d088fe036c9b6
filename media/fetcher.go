package media

import (
	"context"
	"io/ioutil"
	"net/http"
	"sync"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
)

const maxFetchRetries = 3

// DownloadFunc fetches the media bytes at url. Injected in tests.
type DownloadFunc func(ctx context.Context, url string) ([]byte, error)

// Fetcher downloads media single-flight per logical slot: starting a fetch
// for a slot cancels the slot's prior in-flight fetch, and a superseded
// fetch never delivers. This is what keeps an older story fetch from
// resolving after a newer cursor move and overwriting fresher state.
type Fetcher struct {
	download DownloadFunc

	mu       sync.Mutex
	gen      uint64
	inFlight map[string]*flight
}

type flight struct {
	gen    uint64
	cancel context.CancelFunc
}

func NewFetcher() *Fetcher {
	return NewFetcherWithDownload(httpDownload)
}

func NewFetcherWithDownload(download DownloadFunc) *Fetcher {
	return &Fetcher{
		download: download,
		inFlight: map[string]*flight{},
	}
}

// Fetch starts a background download for the slot, cancelling any prior
// fetch on the same slot first. deliver is invoked exactly once unless the
// fetch is superseded or canceled, in which case it is never invoked.
func (f *Fetcher) Fetch(ctx context.Context, slot, url string, deliver func(data []byte, err error)) {
	f.mu.Lock()
	if prior, ok := f.inFlight[slot]; ok {
		prior.cancel()
	}
	fetchCtx, cancel := context.WithCancel(ctx)
	f.gen++
	current := &flight{gen: f.gen, cancel: cancel}
	f.inFlight[slot] = current
	f.mu.Unlock()

	go func() {
		data, err := f.downloadWithRetry(fetchCtx, url)

		f.mu.Lock()
		latest := f.inFlight[slot] == current
		if latest {
			delete(f.inFlight, slot)
		}
		f.mu.Unlock()

		// A canceled or superseded fetch must not land.
		if !latest || fetchCtx.Err() != nil {
			return
		}
		deliver(data, err)
	}()
}

// Cancel aborts the slot's in-flight fetch, if any.
func (f *Fetcher) Cancel(slot string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if prior, ok := f.inFlight[slot]; ok {
		prior.cancel()
		delete(f.inFlight, slot)
	}
}

// downloadWithRetry retries transient failures with bounded exponential
// backoff; cancellation cuts the retry loop short.
func (f *Fetcher) downloadWithRetry(ctx context.Context, url string) ([]byte, error) {
	var data []byte
	operation := func() error {
		var err error
		data, err = f.download(ctx, url)
		return err
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxFetchRetries), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return nil, err
	}
	return data, nil
}

func httpDownload(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("media fetch failed with status %d", resp.StatusCode)
	}
	return ioutil.ReadAll(resp.Body)
}
