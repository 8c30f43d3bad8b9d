// Package reactor owns the single UDP socket used for upstream queries and
// multiplexes it: many callers submit queries concurrently, one goroutine
// does all the sending and owns the id registry, a second goroutine reads
// datagrams and hands them to it, and replies are matched back to their
// caller by DNS transaction id.
package reactor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net"

	"github.com/lafolle/rrdns/internal/dns"
)

// ErrClosed is returned by Submit once the reactor has been shut down.
var ErrClosed = errors.New("reactor: closed")

// NetworkError wraps a send or socket failure. The resolver treats this
// per-peer as "try the next one".
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string { return fmt.Sprintf("reactor: network error: %v", e.Err) }
func (e *NetworkError) Unwrap() error { return e.Err }

// QueryError means an authoritative server replied with rcode != NoError.
// The response is preserved so the client can see the authoritative rcode.
type QueryError struct {
	Response dns.Packet
}

func (e *QueryError) Error() string {
	rc := dns.RCodeFromFlags(e.Response.Header.Flags)
	return fmt.Sprintf("reactor: query error: rcode=%d", rc)
}

type job struct {
	query    dns.Packet
	peer     *net.UDPAddr
	resultCh chan result
}

type result struct {
	resp dns.Packet
	err  error
}

type datagram struct {
	data []byte
}

// Reactor owns one UDP socket. All sends and all registry access happen
// from its single run-loop goroutine; a read-loop goroutine does the socket
// reads and forwards each datagram to it. Callers interact only through
// Submit.
type Reactor struct {
	conn        net.PacketConn
	submissions chan *job
	incoming    chan datagram
	done        chan struct{}
	log         *slog.Logger

	maxIDRetries int
}

// New binds a UDP socket on an ephemeral local port and starts the
// reactor's run loop and read loop. Call Close to release the socket.
func New(log *slog.Logger) (*Reactor, error) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{})
	if err != nil {
		return nil, fmt.Errorf("reactor: bind: %w", err)
	}
	if log == nil {
		log = slog.Default()
	}
	r := &Reactor{
		conn:         conn,
		submissions:  make(chan *job),
		incoming:     make(chan datagram, 64),
		done:         make(chan struct{}),
		log:          log,
		maxIDRetries: 5,
	}
	go r.readLoop()
	go r.run()
	return r, nil
}

// Close shuts down the reactor and releases its socket. In-flight Submit
// calls receive ErrClosed or a send error, whichever they observe first.
func (r *Reactor) Close() error {
	select {
	case <-r.done:
		return nil
	default:
		close(r.done)
	}
	return r.conn.Close()
}

// Submit hands a fully constructed query (id already assigned, R1) to the
// reactor for delivery to peer and waits for the matching reply. On an id
// collision with a currently-registered submission, the reactor redraws a
// random id for this submission (bounded retries) rather than treating the
// collision as fatal — see the transaction id allocation decision in
// SPEC_FULL.md §9.
func (r *Reactor) Submit(ctx context.Context, query dns.Packet, peer *net.UDPAddr) (dns.Packet, error) {
	resultCh := make(chan result, 1)
	j := &job{query: query, peer: peer, resultCh: resultCh}

	select {
	case r.submissions <- j:
	case <-ctx.Done():
		return dns.Packet{}, ctx.Err()
	case <-r.done:
		return dns.Packet{}, ErrClosed
	}

	select {
	case res := <-resultCh:
		return res.resp, res.err
	case <-ctx.Done():
		return dns.Packet{}, ctx.Err()
	case <-r.done:
		return dns.Packet{}, ErrClosed
	}
}

func (r *Reactor) readLoop() {
	buf := make([]byte, dns.MaxIncomingDNSMessageSize)
	for {
		n, _, err := r.conn.ReadFrom(buf)
		if err != nil {
			return
		}
		cp := make([]byte, n)
		copy(cp, buf[:n])
		select {
		case r.incoming <- datagram{data: cp}:
		case <-r.done:
			return
		}
	}
}

func (r *Reactor) run() {
	registry := make(map[uint16]chan result)

	for {
		select {
		case j := <-r.submissions:
			r.handleSubmission(registry, j)
		case dg := <-r.incoming:
			r.handleDatagram(registry, dg)
		case <-r.done:
			return
		}
	}
}

func (r *Reactor) handleSubmission(registry map[uint16]chan result, j *job) {
	id := j.query.Header.ID
	for attempt := 0; attempt < r.maxIDRetries; attempt++ {
		if _, taken := registry[id]; !taken {
			break
		}
		id = uint16(rand.IntN(1 << 16))
	}
	if _, taken := registry[id]; taken {
		j.resultCh <- result{err: fmt.Errorf("reactor: exhausted id retries, registry saturated")}
		return
	}
	j.query.Header.ID = id

	wire, err := j.query.Marshal()
	if err != nil {
		j.resultCh <- result{err: &NetworkError{Err: err}}
		return
	}
	if _, err := r.conn.WriteTo(wire, j.peer); err != nil {
		j.resultCh <- result{err: &NetworkError{Err: err}}
		return
	}
	registry[id] = j.resultCh
}

func (r *Reactor) handleDatagram(registry map[uint16]chan result, dg datagram) {
	resp, err := dns.ParsePacket(dg.data)
	if err != nil {
		r.log.Debug("reactor: dropping malformed reply", "error", err)
		return
	}

	ch, ok := registry[resp.Header.ID]
	if !ok {
		r.log.Debug("reactor: orphan reply", "id", resp.Header.ID)
		return
	}
	delete(registry, resp.Header.ID)

	if dns.RCodeFromFlags(resp.Header.Flags) != dns.RCodeNoError {
		ch <- result{err: &QueryError{Response: resp}}
		return
	}
	ch <- result{resp: resp}
}
