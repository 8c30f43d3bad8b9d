// Package handler implements the front-end that turns an inbound client
// datagram into an outbound response: decode, rewrite, resolve, restore.
package handler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/lafolle/rrdns/internal/dns"
	"github.com/lafolle/rrdns/internal/metrics"
	"github.com/lafolle/rrdns/internal/reactor"
	"github.com/lafolle/rrdns/internal/resolver"
)

// Resolver is the subset of *resolver.Resolver the handler depends on,
// narrowed for testability.
type Resolver interface {
	Resolve(ctx context.Context, qname string, qtype uint16) (dns.Packet, error)
}

// Handler decodes, rewrites, resolves, and restores DNS queries arriving
// over UDP. It holds no per-request state.
type Handler struct {
	resolver Resolver
	metrics  *metrics.Metrics
	log      *slog.Logger
}

// New builds a Handler. m may be nil in tests that don't care about
// metrics.
func New(res Resolver, m *metrics.Metrics, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{resolver: res, metrics: m, log: log}
}

// Handle implements handle(bytes) -> result from §4.5: decode, remember
// the client's original identity, rewrite, resolve, and restore. It
// returns the wire-format response to send, or nil if the query should be
// silently dropped.
func (h *Handler) Handle(ctx context.Context, datagram []byte) []byte {
	if h.metrics != nil {
		h.metrics.QueryCount.Inc()
		h.metrics.QuerySizeBytes.Observe(float64(len(datagram)))
	}

	// ParseRequestBounded enforces the client listener's ingress limits
	// (spec's maximum accepted datagram, QR-flag-set rejection, opcode and
	// section-count bounds) in addition to basic wire decoding.
	query, err := dns.ParseRequestBounded(datagram)
	if err != nil {
		h.log.Debug("handler: dropping malformed or out-of-bounds client datagram", "error", err)
		h.countFailure("decode")
		return nil
	}

	clientID := query.Header.ID
	clientQuestion := query.Questions[0]

	qname := dns.NormalizeName(clientQuestion.Name)
	qtype := clientQuestion.Type

	// The client's own id never reaches the reactor: Resolve takes just
	// (qname, qtype), and every sub-query gets its own fresh id down in
	// the resolver/reactor layer (R1). That sidesteps the id-collision
	// concern the rewrite step exists for entirely, rather than requiring
	// the handler to allocate and track one.
	start := time.Now()
	resp, err := h.resolver.Resolve(ctx, qname, qtype)
	if h.metrics != nil {
		h.metrics.ObserveResolution(start)
	}

	if err != nil {
		var queryErr *reactor.QueryError
		if errors.As(err, &queryErr) {
			resp = queryErr.Response
		} else {
			h.log.Info("handler: resolution failed, dropping", "qname", qname, "qtype", qtype, "error", err)
			h.countFailure(failureReason(err))
			return nil
		}
	}

	resp.Header.ID = clientID
	resp.Header.Flags |= uint16(dns.RAFlag)
	if len(resp.Questions) == 0 {
		resp.Questions = []dns.Question{clientQuestion}
	} else {
		resp.Questions[0] = clientQuestion
	}
	resp.Header.QDCount = uint16(len(resp.Questions))

	wire, err := resp.Marshal()
	if err != nil {
		h.log.Error("handler: failed to marshal response", "error", err)
		h.countFailure("encode")
		return nil
	}
	if h.metrics != nil {
		h.metrics.ResponseSizeBytes.Observe(float64(len(wire)))
	}
	return wire
}

func (h *Handler) countFailure(reason string) {
	if h.metrics != nil {
		h.metrics.ResolutionFailure.WithLabelValues(reason).Inc()
	}
}

func failureReason(err error) string {
	var netErr *reactor.NetworkError
	var recErr *resolver.InfiniteRecursionError
	var noIPErr *resolver.NoIPError
	var depthErr *resolver.MaxDepthError
	switch {
	case errors.As(err, &netErr):
		return "network"
	case errors.As(err, &recErr):
		return "infinite_recursion"
	case errors.As(err, &noIPErr):
		return "no_ip"
	case errors.As(err, &depthErr):
		return "max_depth"
	default:
		return "other"
	}
}
