// Package reporter provides minimal concrete implementations of the
// orchestrator's Reporter collaborator (the out-of-scope external
// messaging system). The chat transport itself — StatBotProtocol's XMPP
// session in original_source/blk_wk_msg.py — is explicitly out of scope;
// these implementations exist so the daemon has somewhere to send a report
// without pulling in an XMPP stack.
package reporter

import (
	"fmt"
	"io"
	"log"
	"sync"
	"time"
)

// LogReporter emits each report as a single log line, prefixed the way the
// source timestamps its status message in WorkerService.set_status.
type LogReporter struct{}

func (LogReporter) Emit(report string) error {
	log.Printf("INFO: report: %s %s", time.Now().Format(time.RFC1123), report)
	return nil
}

// WriterReporter writes each report to w, terminated by a newline. Safe for
// concurrent use.
type WriterReporter struct {
	mu sync.Mutex
	w  io.Writer
}

func NewWriterReporter(w io.Writer) *WriterReporter {
	return &WriterReporter{w: w}
}

func (r *WriterReporter) Emit(report string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := fmt.Fprintln(r.w, report); err != nil {
		return fmt.Errorf("reporter: write: %w", err)
	}
	return nil
}

// LatestReporter holds only the most recently emitted report, for a status
// page or health-check handler to read back. This stands in for the
// source's get_status_msg accessor without the XMPP delivery attached to it.
type LatestReporter struct {
	mu     sync.Mutex
	latest string
	at     time.Time
}

func (r *LatestReporter) Emit(report string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.latest = report
	r.at = time.Now()
	return nil
}

// Latest returns the most recently emitted report and when it was emitted.
func (r *LatestReporter) Latest() (string, time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.latest, r.at
}
