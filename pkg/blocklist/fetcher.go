package blocklist

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"asnwatch/pkg/netutil"
)

// Source is one configured (org tag, URL) pair to fetch each cycle.
type Source struct {
	Org string
	URL string
}

// Fetcher downloads each configured blocklist URL and streams its lines to
// C4 (C6). Unlike the teacher's iptoasn fetcher, there is no ETag/
// Last-Modified caching: each ingest cycle wants the current body, and
// nothing is kept on disk between cycles, per the "no persistent storage
// across cycles" Non-goal.
type Fetcher struct {
	client    *http.Client
	userAgent string
}

const (
	defaultTimeout  = 30 * time.Second
	defaultMaxLines = 0 // unbounded
)

// NewFetcher returns a Fetcher using the given user agent string.
func NewFetcher(userAgent string) *Fetcher {
	return &Fetcher{
		client:    &http.Client{Timeout: defaultTimeout},
		userAgent: userAgent,
	}
}

// FetchAll issues one GET per configured source, concurrently, and streams
// each response's lines to sink under that source's org tag. A failing
// fetch is logged and does not cancel the others — one bad blocklist must
// not cancel the cycle. FetchAll blocks until every fetch has settled,
// matching C6's "completion signal to C9 only after every per-URL fetch has
// settled" contract.
func (f *Fetcher) FetchAll(ctx context.Context, sources []Source, sink Sink) {
	var wg sync.WaitGroup
	for _, src := range sources {
		wg.Add(1)
		go func(src Source) {
			defer wg.Done()
			if err := f.fetchOne(ctx, src, sink); err != nil {
				log.Printf("ERROR: blocklist fetch failed for %s (%s): %v", src.Org, src.URL, err)
			}
		}(src)
	}
	wg.Wait()
}

func (f *Fetcher) fetchOne(ctx context.Context, src Source, sink Sink) error {
	var lineCount int
	err := netutil.Retry(ctx, netutil.DefaultRetryConfig(), func() error {
		req, err := http.NewRequestWithContext(ctx, "GET", src.URL, nil)
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		if f.userAgent != "" {
			req.Header.Set("User-Agent", f.userAgent)
		}

		resp, err := f.client.Do(req)
		if err != nil {
			return fmt.Errorf("request: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode/100 != 2 {
			return fmt.Errorf("unexpected status %d", resp.StatusCode)
		}

		scanner := bufio.NewScanner(resp.Body)
		buf := make([]byte, 0, 64*1024)
		scanner.Buffer(buf, 1024*1024)
		for scanner.Scan() {
			ParseLine(scanner.Text(), src.Org, sink)
			lineCount++
		}
		return scanner.Err()
	})
	if err != nil {
		return err
	}
	log.Printf("INFO: blocklist[%s]: fetched %d lines from %s", src.Org, lineCount, src.URL)
	return nil
}
