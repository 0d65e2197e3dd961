// Package routeserver implements the route-server client (C5): a
// line-oriented telnet-style session against a Cisco-like BGP route
// server, grounded on the TelnetClient/TelnetFactory state machine in
// original_source/blk_rteserv.py. Go has no Twisted-style reactor, so the
// callback-driven session there (lineReceived, enterLoop, connectionLost)
// is reshaped into a single reading goroutine plus a nudge goroutine
// writing a blank line on a ticker, joined by a done channel — the
// cooperative-scheduling model SPEC_FULL.md §9 calls for, expressed with
// goroutines instead of callbacks.
package routeserver

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"net"
	"strconv"
	"strings"
	"time"

	"asnwatch/pkg/model"
	"asnwatch/pkg/netutil"
	"asnwatch/pkg/prefixindex"
)

const (
	promptMore  = "--More--"
	promptChar  = ">"
	routePrefix = "*"
)

// Config describes one route-server session.
type Config struct {
	Host            string
	Port            int // default 23
	ASNs            []string
	CmdTemplate     string // default "show ip bgp regexp _%s$"
	NudgeInterval   time.Duration
	PromptCountdown int // "asCmdThrottle" consecutive prompts before advancing
	DialTimeout     time.Duration
}

func (c *Config) setDefaults() {
	if c.Port == 0 {
		c.Port = 23
	}
	if c.CmdTemplate == "" {
		c.CmdTemplate = "show ip bgp regexp _%s$"
	}
	if c.NudgeInterval == 0 {
		c.NudgeInterval = 2 * time.Second
	}
	if c.PromptCountdown == 0 {
		c.PromptCountdown = 2
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = 10 * time.Second
	}
}

// Run drives one full session: connects, lists every configured ASN into a
// fresh prefix index, and returns that index only if the server closed the
// connection cleanly after "exit" — a partially built index is never
// returned, matching "C1 replacement happens only on clean end-of-session."
func Run(ctx context.Context, cfg Config) (*prefixindex.Tree, error) {
	cfg.setDefaults()
	if len(cfg.ASNs) == 0 {
		return nil, fmt.Errorf("routeserver: no monitored ASNs configured")
	}

	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	dialer := net.Dialer{Timeout: cfg.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("routeserver: dial %s: %w", addr, err)
	}
	defer conn.Close()
	netutil.TuneSocket(conn)

	sess := &session{
		conn:            conn,
		asns:            cfg.ASNs,
		cmdTemplate:     cfg.CmdTemplate,
		promptCountdown: cfg.PromptCountdown,
		tree:            prefixindex.New(),
	}
	return sess.run(ctx, cfg.NudgeInterval)
}

type session struct {
	conn            net.Conn
	asns            []string
	cmdTemplate     string
	promptCountdown int

	tree        *prefixindex.Tree
	workingList []model.Prefix
	asnIdx      int
	sawMore     bool
	countdown   int
	closing     bool
}

func (s *session) run(ctx context.Context, nudgeInterval time.Duration) (*prefixindex.Tree, error) {
	s.countdown = s.promptCountdown

	nudgeDone := make(chan struct{})
	go s.nudgeLoop(nudgeInterval, nudgeDone)
	defer close(nudgeDone)

	log.Printf("INFO: routeserver: connected, listing %d ASNs", len(s.asns))
	s.sendListCmd(s.asns[0])

	type outcome struct {
		aborted bool
		err     error
	}
	done := make(chan outcome, 1)
	go func() {
		scanner := bufio.NewScanner(s.conn)
		buf := make([]byte, 0, 16*1024)
		scanner.Buffer(buf, 64*1024)

		for scanner.Scan() {
			s.handleLine(scanner.Text())
		}

		if err := scanner.Err(); err != nil {
			done <- outcome{err: fmt.Errorf("routeserver: %w", err)}
			return
		}

		// Scanner hit EOF: the server closed the connection. Per the source
		// protocol, this is the *normal* termination path once we've sent
		// "exit" — a disconnect before that point is an aborted build.
		done <- outcome{aborted: !s.closing}
	}()

	select {
	case <-ctx.Done():
		s.conn.Close()
		<-done
		return nil, ctx.Err()
	case o := <-done:
		if o.err != nil {
			log.Printf("ERROR: routeserver: session ended with error: %v", o.err)
			return nil, o.err
		}
		if o.aborted {
			return nil, model.ErrSessionAborted
		}
		log.Printf("INFO: routeserver: connection closed cleanly, tree height %d", s.tree.Height())
		return s.tree, nil
	}
}

func (s *session) nudgeLoop(interval time.Duration, done <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			s.conn.Write([]byte("\n"))
		}
	}
}

func (s *session) handleLine(line string) {
	tokens := strings.Fields(line)
	if len(tokens) == 0 {
		return
	}

	if s.sawMore && strings.HasSuffix(tokens[len(tokens)-1], promptChar) {
		s.onPrompt()
	}

	switch {
	case tokens[0] == promptMore:
		s.sawMore = true
		s.conn.Write([]byte(" "))
	case strings.HasPrefix(tokens[0], routePrefix):
		if len(tokens) > 1 && len(tokens[1]) > 1 {
			s.processAddr(tokens[1])
		}
	}
}

// processAddr parses the second field of a route line into a prefix,
// stripping a leading "i" continuation marker and dropping single-host
// prefixes, which usually indicate a next-hop column mis-parsed as a
// network on continuation lines.
func (s *session) processAddr(raw string) {
	ip := raw
	if strings.HasPrefix(ip, "i") {
		ip = ip[1:]
	}
	p, err := model.ParsePrefix(ip)
	if err != nil {
		return
	}
	if p.Bits == 32 {
		return
	}
	s.workingList = append(s.workingList, p)
}

// onPrompt implements the prompt-countdown throttle: wait for
// promptCountdown consecutive command prompts (collapsing the extra
// prompts the nudge loop produces) before aggregating and advancing.
// sawMore is deliberately never reset here — state_more in
// original_source/blk_rteserv.py is set once and never cleared for the
// rest of the session, so a later ASN whose listing never pages still
// reaches this point via the first ASN's sighting of "--More--".
// Prompts seen after "exit" has been sent are ignored.
func (s *session) onPrompt() {
	if s.closing {
		return
	}
	s.countdown--
	if s.countdown > 0 {
		return
	}
	s.countdown = s.promptCountdown

	aggregated := prefixindex.Aggregate(s.workingList)
	s.workingList = nil
	asn := s.asns[s.asnIdx]
	for _, p := range aggregated {
		s.tree.Insert(p, asn)
	}

	s.asnIdx++
	if s.asnIdx >= len(s.asns) {
		s.closing = true
		s.conn.Write([]byte("exit\n"))
		return
	}
	s.sendListCmd(s.asns[s.asnIdx])
}

func (s *session) sendListCmd(asn string) {
	cmd := fmt.Sprintf(s.cmdTemplate, asn)
	s.conn.Write([]byte(cmd + "\n"))
}
