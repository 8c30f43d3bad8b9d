// Package resolver implements the recursive, iterative-from-root DNS
// resolution engine: given a query, it walks the delegation chain from
// whatever is cached (ultimately the root hints) down to an authoritative
// answer, populating the cache as it goes.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net"
	"net/netip"

	"golang.org/x/sync/singleflight"

	"github.com/lafolle/rrdns/internal/cache"
	"github.com/lafolle/rrdns/internal/dns"
	"github.com/lafolle/rrdns/internal/reactor"
)

// defaultMaxRecursionDepth bounds the resolver against pathological or
// adversarial delegation chains (invariant R6, added beyond the original's
// unbounded recursion per its own §9 recommendation). Overridable via
// SetMaxDepth, normally from server.max_recursion_depth in config.
const defaultMaxRecursionDepth = 16

// dnsPort is the standard port name servers listen on. It is only the
// default of the Resolver's port field, so tests can point resolution at
// loopback servers on an ephemeral port instead.
const dnsPort = 53

// Resolver is the recursive resolution engine. It holds no per-request
// state: every resolution chain is stack-local aside from the shared cache.
type Resolver struct {
	cache    *cache.Cache
	reactor  *reactor.Reactor
	log      *slog.Logger
	sf       singleflight.Group
	port     int
	maxDepth int
}

// New builds a Resolver over the given cache and reactor. The cache should
// already have root hints seeded.
func New(c *cache.Cache, r *reactor.Reactor, log *slog.Logger) *Resolver {
	if log == nil {
		log = slog.Default()
	}
	return &Resolver{cache: c, reactor: r, log: log, port: dnsPort, maxDepth: defaultMaxRecursionDepth}
}

// SetMaxDepth overrides the recursion depth bound (see
// defaultMaxRecursionDepth). Values <= 0 are ignored, leaving the current
// bound in place.
func (res *Resolver) SetMaxDepth(n int) {
	if n > 0 {
		res.maxDepth = n
	}
}

// NewWithPort is New but targets name servers on port instead of 53; used
// by tests to drive a simulated delegation chain over loopback.
func NewWithPort(c *cache.Cache, r *reactor.Reactor, log *slog.Logger, port int) *Resolver {
	res := New(c, r, log)
	res.port = port
	return res
}

// Resolve is the single public entry point: resolve(query) -> result.
// Concurrent callers asking for the same (qname, qtype) share one in-flight
// resolution (the "at-most-one in-flight per fingerprint" extension noted
// in the original design's open questions).
func (res *Resolver) Resolve(ctx context.Context, qname string, qtype uint16) (dns.Packet, error) {
	qname = dns.NormalizeName(qname)
	key := fmt.Sprintf("%s|%d", qname, qtype)

	v, err, _ := res.sf.Do(key, func() (any, error) {
		return res.resolve(ctx, qname, qtype, 0)
	})
	if err != nil {
		return dns.Packet{}, err
	}
	return v.(dns.Packet), nil
}

func (res *Resolver) resolve(ctx context.Context, qname string, qtype uint16, depth int) (dns.Packet, error) {
	if depth > res.maxDepth {
		return dns.Packet{}, &MaxDepthError{Depth: depth}
	}

	res.log.Debug("resolve", "qname", qname, "qtype", qtype, "depth", depth)

	if rrs, ok := res.cache.Get(qname, qtype); ok {
		return synthesizeFromCache(qname, qtype, rrs), nil
	}

	nsSet, err := res.fetchNameServers(ctx, qname, depth)
	if err != nil {
		return dns.Packet{}, err
	}

	if qtype == uint16(dns.TypeNS) {
		return synthesizeFromCache(qname, qtype, nsSet), nil
	}

	query := buildQuery(qname, qtype)
	resp, err := res.resolveFromAuthority(ctx, query, nsSet, depth)
	if err != nil {
		return dns.Packet{}, err
	}

	if qtype != uint16(dns.TypeCNAME) {
		res.chaseCNAMEs(ctx, &resp, depth)
	}

	return resp, nil
}

// fetchNameServers implements §4.4.1 step 2: find candidate authoritative
// name servers for qname, recursing up the delegation chain as needed.
func (res *Resolver) fetchNameServers(ctx context.Context, qname string, depth int) ([]dns.Record, error) {
	if ns, ok := res.cache.Get(qname, uint16(dns.TypeNS)); ok {
		return ns, nil
	}

	parent := parentZone(qname)
	parentResp, err := res.resolve(ctx, parent, uint16(dns.TypeNS), depth+1)
	if err != nil {
		return nil, err
	}

	delegation := parentResp.Answers
	if len(delegation) == 0 {
		delegation = parentResp.Authorities
	}

	for _, rr := range delegation {
		if target, ok := rr.Data.(string); ok && dns.NormalizeName(target) == qname {
			return nil, &InfiniteRecursionError{
				Msg: fmt.Sprintf("NS for %s depends on resolving %s itself", qname, qname),
			}
		}
	}

	nsQuery := buildQuery(qname, uint16(dns.TypeNS))
	resp, err := res.resolveFromAuthority(ctx, nsQuery, delegation, depth+1)
	if err != nil {
		// The parent-provided delegation is the best we have even if we
		// couldn't reach it for an exact answer; only a hard failure from
		// resolveFromAuthority propagates.
		var noIP *NoIPError
		if errors.As(err, &noIP) {
			res.adoptDelegation(qname, delegation)
			return delegation, nil
		}
		return nil, err
	}

	if len(resp.Answers) > 0 && allNS(resp.Answers) {
		return resp.Answers, nil
	}
	if len(resp.Answers) == 0 && allNS(resp.Authorities) {
		return resp.Authorities, nil
	}

	res.adoptDelegation(qname, delegation)
	return delegation, nil
}

// adoptDelegation clones each NS in an inherited delegation set with its
// owner rewritten to qname, so subsequent lookups find NS at qname
// directly (§4.4.1 step 3).
func (res *Resolver) adoptDelegation(qname string, delegation []dns.Record) {
	for _, rr := range delegation {
		clone := rr
		clone.Name = qname
		res.cache.Insert(clone)
	}
}

func allNS(rrs []dns.Record) bool {
	if len(rrs) == 0 {
		return false
	}
	for _, rr := range rrs {
		if rr.Type != uint16(dns.TypeNS) {
			return false
		}
	}
	return true
}

// resolveFromAuthority implements §4.4.2: try each NS in order, pass 1
// against whatever glue is already cached, pass 2 resolving the NS's own
// address first.
func (res *Resolver) resolveFromAuthority(ctx context.Context, query dns.Packet, nsSet []dns.Record, depth int) (dns.Packet, error) {
	var unresolved []string

	for _, ns := range nsSet {
		name, ok := ns.Data.(string)
		if !ok {
			continue
		}
		name = dns.NormalizeName(name)

		if a, ok := res.cache.Get(name, uint16(dns.TypeA)); ok {
			resp, err := res.request(ctx, query, a)
			if err == nil {
				return resp, nil
			}
			var netErr *reactor.NetworkError
			if errors.As(err, &netErr) {
				continue
			}
			return dns.Packet{}, err
		}
		if aaaa, ok := res.cache.Get(name, uint16(dns.TypeAAAA)); ok {
			resp, err := res.request(ctx, query, aaaa)
			if err == nil {
				return resp, nil
			}
			var netErr *reactor.NetworkError
			if errors.As(err, &netErr) {
				continue
			}
			return dns.Packet{}, err
		}
		unresolved = append(unresolved, name)
	}

	for _, name := range unresolved {
		if _, err := res.resolve(ctx, name, uint16(dns.TypeA), depth+1); err != nil {
			res.log.Debug("resolveFromAuthority: could not resolve NS address", "ns", name, "error", err)
			continue
		}
		if a, ok := res.cache.Get(name, uint16(dns.TypeA)); ok {
			resp, err := res.request(ctx, query, a)
			if err == nil {
				return resp, nil
			}
			var netErr *reactor.NetworkError
			if errors.As(err, &netErr) {
				continue
			}
			return dns.Packet{}, err
		}
	}

	return dns.Packet{}, &NoIPError{Msg: fmt.Sprintf("no usable address among %d name servers", len(nsSet))}
}

// request implements §4.4.3: try each candidate IP in order, submit via the
// reactor, cache the response sections on success.
func (res *Resolver) request(ctx context.Context, query dns.Packet, ipRecords []dns.Record) (dns.Packet, error) {
	for _, rr := range ipRecords {
		peer, ok := res.rrToUDPAddr(rr)
		if !ok {
			continue
		}

		q := query
		q.Header.ID = uint16(rand.IntN(1 << 16))

		resp, err := res.reactor.Submit(ctx, q, peer)
		if err != nil {
			var netErr *reactor.NetworkError
			if errors.As(err, &netErr) {
				continue
			}
			return dns.Packet{}, err
		}

		res.cache.InsertAll(resp.Answers)
		res.cache.InsertAll(resp.Authorities)
		res.cache.InsertAll(resp.Additionals)
		return resp, nil
	}
	return dns.Packet{}, &NoIPError{Msg: "no reachable IP among candidates"}
}

func (res *Resolver) rrToUDPAddr(rr dns.Record) (*net.UDPAddr, bool) {
	data, ok := rr.Data.([]byte)
	if !ok {
		return nil, false
	}
	var addr netip.Addr
	var ok2 bool
	switch rr.Type {
	case uint16(dns.TypeA):
		if len(data) != 4 {
			return nil, false
		}
		addr, ok2 = netip.AddrFromSlice(data)
	case uint16(dns.TypeAAAA):
		if len(data) != 16 {
			return nil, false
		}
		addr, ok2 = netip.AddrFromSlice(data)
	default:
		return nil, false
	}
	if !ok2 {
		return nil, false
	}
	return &net.UDPAddr{IP: addr.AsSlice(), Port: res.port}, true
}

// chaseCNAMEs implements §4.4.1 step 6. Requests A only, per the decision
// to keep CNAME chasing as specified (see SPEC_FULL.md's open question
// resolution) — IPv6-only CNAME targets remain unreachable.
func (res *Resolver) chaseCNAMEs(ctx context.Context, resp *dns.Packet, depth int) {
	for _, rr := range resp.Answers {
		if rr.Type != uint16(dns.TypeCNAME) {
			continue
		}
		target, ok := rr.Data.(string)
		if !ok {
			continue
		}
		chased, err := res.resolve(ctx, dns.NormalizeName(target), uint16(dns.TypeA), depth+1)
		if err != nil {
			res.log.Debug("chaseCNAMEs: tolerated failure", "target", target, "error", err)
			continue
		}
		resp.Answers = append(resp.Answers, chased.Answers...)
	}
	resp.Header.ANCount = uint16(len(resp.Answers))
}

// buildQuery constructs a fresh outgoing query. R2: qname absolute. R3:
// additional section empty. The id is a placeholder; request assigns a
// freshly randomized one per attempt (R1).
func buildQuery(qname string, qtype uint16) dns.Packet {
	return dns.Packet{
		Header: dns.Header{
			Flags:   uint16(dns.RDFlag),
			QDCount: 1,
		},
		Questions: []dns.Question{
			{Name: dns.NormalizeName(qname), Type: qtype, Class: uint16(dns.ClassIN)},
		},
	}
}

// synthesizeFromCache builds a response (§4.4.1 step 1 and the NS
// shortcut in step 4) directly from a cached RRSet: QR=1, RA=1, AA=0.
func synthesizeFromCache(qname string, qtype uint16, rrs []dns.Record) dns.Packet {
	return dns.Packet{
		Header: dns.Header{
			Flags:   uint16(dns.QRFlag) | uint16(dns.RAFlag),
			QDCount: 1,
			ANCount: uint16(len(rrs)),
		},
		Questions: []dns.Question{
			{Name: qname, Type: qtype, Class: uint16(dns.ClassIN)},
		},
		Answers: rrs,
	}
}
