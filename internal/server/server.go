// Package server runs the single-socket UDP front door: one listener, one
// reader loop, one goroutine per datagram, graceful shutdown on signal.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"

	"github.com/lafolle/rrdns/internal/dns"
	"github.com/lafolle/rrdns/internal/pool"
	"github.com/lafolle/rrdns/internal/udpconn"
)

// Handler processes one client datagram and returns the wire-format
// response, or nil to drop silently.
type Handler interface {
	Handle(ctx context.Context, datagram []byte) []byte
}

// Server owns the single client-facing UDP socket.
type Server struct {
	conn    *net.UDPConn
	handler Handler
	log     *slog.Logger
	bufPool *pool.Pool[[]byte]

	wg sync.WaitGroup
}

// New binds addr and returns a Server ready for Serve. SO_RCVBUF/SO_SNDBUF
// are tuned best-effort via udpconn.Tune to socketBufferBytes; 0 leaves the
// OS/udpconn default in place.
func New(addr string, handler Handler, log *slog.Logger, socketBufferBytes int) (*Server, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}
	if err := udpconn.Tune(conn, socketBufferBytes); err != nil {
		log.Warn("server: socket buffer tuning failed, continuing with OS defaults", "error", err)
	}

	return &Server{
		conn:    conn,
		handler: handler,
		log:     log,
		bufPool: pool.New(func() []byte { return make([]byte, dns.MaxIncomingDNSMessageSize) }),
	}, nil
}

// Addr returns the bound local address, useful when the listen address
// uses port 0.
func (s *Server) Addr() net.Addr { return s.conn.LocalAddr() }

// Serve reads datagrams until ctx is cancelled, dispatching each to its own
// goroutine. Cancellation closes the socket, which ends the read loop; Serve
// then blocks until every in-flight handler goroutine has returned.
func (s *Server) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.conn.Close()
	}()

	for {
		buf := s.bufPool.Get()
		n, peer, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			s.wg.Wait()
			if errors.Is(ctx.Err(), context.Canceled) || isClosedConnError(err) {
				return nil
			}
			return err
		}

		datagram := make([]byte, n)
		copy(datagram, buf[:n])
		s.bufPool.Put(buf)

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.process(ctx, datagram, peer)
		}()
	}
}

func (s *Server) process(ctx context.Context, datagram []byte, peer *net.UDPAddr) {
	resp := s.handler.Handle(ctx, datagram)
	if resp == nil {
		return
	}
	if _, err := s.conn.WriteToUDP(resp, peer); err != nil {
		s.log.Warn("server: write failed", "peer", peer, "error", err)
	}
}

func isClosedConnError(err error) bool {
	return errors.Is(err, net.ErrClosed)
}
