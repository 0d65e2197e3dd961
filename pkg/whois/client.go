// Package whois implements the bulk-whois client (C8): opens a TCP session
// to a Cymru-style bulk whois service, submits a batch of IPs framed by
// literal "begin"/"countrycode"/"end" sentinels, and feeds response lines
// back to the registry's merger. Grounded on the BulkDataProtocol /
// BulkDataFactory session in original_source/blk_rdblk.py; "connection
// closed cleanly" is success there and here, the same convention the
// route-server client uses.
package whois

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"net"
	"strconv"
	"strings"
	"time"

	"asnwatch/pkg/netutil"

	"golang.org/x/time/rate"
)

// Merger is the subset of the registry's API the whois client needs: one
// merge call per response line.
type Merger interface {
	MergeWhoisLine(line string) error
}

// Config describes one bulk-whois round trip.
type Config struct {
	Host          string
	Port          int // default 43
	DialTimeout   time.Duration
	MaxLineLength int // default 16384, per the source's BulkDataProtocol.MAX_LENGTH
}

func (c *Config) setDefaults() {
	if c.Port == 0 {
		c.Port = 43
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = 10 * time.Second
	}
	if c.MaxLineLength == 0 {
		c.MaxLineLength = 16384
	}
}

// Limiter paces successive whois round trips so a chatty monitoring
// deployment doesn't trip the bulk service's abuse detection; cymru.org's
// documented acceptable-use policy is the reason the source throttles this
// independently of the per-cycle schedule.
type Limiter struct {
	rl *rate.Limiter
}

// NewLimiter returns a Limiter allowing on average one whois round trip per
// interval, with a burst of one.
func NewLimiter(interval time.Duration) *Limiter {
	return &Limiter{rl: rate.NewLimiter(rate.Every(interval), 1)}
}

// BuildRequest assembles the literal request body: "begin", "countrycode",
// one IP per line, then "end".
func BuildRequest(ips []string) []byte {
	var b strings.Builder
	b.WriteString("begin\n")
	b.WriteString("countrycode\n")
	for _, ip := range ips {
		b.WriteString(ip)
		b.WriteString("\n")
	}
	b.WriteString("end\n")
	return []byte(b.String())
}

// Run submits ips to the bulk-whois service and merges every response line
// into merger. It returns nil only when the server closed the connection
// after the full response was read — any other disconnect or I/O error is
// propagated, matching the route-server client's "closed cleanly is
// success" convention applied to the whois protocol in §4.8.
func Run(ctx context.Context, cfg Config, limiter *Limiter, ips []string, merger Merger) error {
	cfg.setDefaults()
	if len(ips) == 0 {
		return nil
	}
	if limiter != nil {
		if err := limiter.rl.Wait(ctx); err != nil {
			return fmt.Errorf("whois: rate limit wait: %w", err)
		}
	}

	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	dialer := net.Dialer{Timeout: cfg.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("whois: dial %s: %w", addr, err)
	}
	defer conn.Close()
	netutil.TuneSocket(conn)

	req := BuildRequest(ips)
	if _, err := conn.Write(req); err != nil {
		return fmt.Errorf("whois: write request: %w", err)
	}
	log.Printf("INFO: whois: submitted %d IPs to %s", len(ips), addr)

	type outcome struct {
		merged int
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		n, err := readResponses(conn, cfg.MaxLineLength, merger)
		done <- outcome{merged: n, err: err}
	}()

	select {
	case <-ctx.Done():
		conn.Close()
		<-done
		return fmt.Errorf("whois: %w", ctx.Err())
	case o := <-done:
		if o.err != nil {
			return o.err
		}
		log.Printf("INFO: whois: connection closed cleanly, merged %d lines", o.merged)
		return nil
	}
}

// readResponses reads CR/LF-tolerant lines until EOF, discarding any line
// longer than maxLine with a log entry rather than failing the session, and
// passes every other non-empty line to merger.MergeWhoisLine.
func readResponses(conn net.Conn, maxLine int, merger Merger) (int, error) {
	reader := bufio.NewReaderSize(conn, 4096)
	merged := 0
	for {
		line, err := reader.ReadString('\n')
		trimmed := strings.TrimRight(line, "\r\n")
		if len(trimmed) > maxLine {
			log.Printf("WARN: whois: line too long (%d bytes), discarding", len(trimmed))
		} else if trimmed != "" {
			if merr := merger.MergeWhoisLine(trimmed); merr != nil {
				log.Printf("WARN: whois: %v", merr)
			} else {
				merged++
			}
		}
		if err != nil {
			if err == io.EOF {
				return merged, nil
			}
			return merged, fmt.Errorf("whois: read: %w", err)
		}
	}
}
