package handler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lafolle/rrdns/internal/dns"
	"github.com/lafolle/rrdns/internal/reactor"
	"github.com/lafolle/rrdns/internal/resolver"
)

type stubResolver struct {
	resp dns.Packet
	err  error
}

func (s stubResolver) Resolve(ctx context.Context, qname string, qtype uint16) (dns.Packet, error) {
	return s.resp, s.err
}

func buildClientQuery(id uint16, name string) []byte {
	p := dns.Packet{
		Header:    dns.Header{ID: id, Flags: uint16(dns.RDFlag), QDCount: 1},
		Questions: []dns.Question{{Name: name, Type: uint16(dns.TypeA), Class: uint16(dns.ClassIN)}},
	}
	wire, err := p.Marshal()
	if err != nil {
		panic(err)
	}
	return wire
}

func TestHandleRestoresClientIDAndQuestion(t *testing.T) {
	stub := stubResolver{
		resp: dns.Packet{
			Header:  dns.Header{Flags: uint16(dns.QRFlag), ANCount: 1},
			Answers: []dns.Record{{Name: "example.com.", Type: uint16(dns.TypeA), Class: uint16(dns.ClassIN), TTL: 60, Data: []byte{1, 2, 3, 4}}},
		},
	}
	h := New(stub, nil, nil)

	in := buildClientQuery(0xBEEF, "example.com")
	out := h.Handle(context.Background(), in)
	require.NotNil(t, out)

	resp, err := dns.ParsePacket(out)
	require.NoError(t, err)
	assert.Equal(t, uint16(0xBEEF), resp.Header.ID)
	assert.Equal(t, "example.com.", resp.Questions[0].Name)
	assert.NotZero(t, resp.Header.Flags&uint16(dns.RAFlag))
}

func TestHandleReturnsResponseOnQueryError(t *testing.T) {
	qerr := &reactor.QueryError{
		Response: dns.Packet{
			Header: dns.Header{Flags: uint16(dns.QRFlag) | uint16(dns.RCodeMask&uint16(dns.RCodeNXDomain))},
		},
	}
	stub := stubResolver{err: qerr}
	h := New(stub, nil, nil)

	in := buildClientQuery(7, "missing.example.")
	out := h.Handle(context.Background(), in)
	require.NotNil(t, out, "QueryError must still produce a client reply carrying the rcode")

	resp, err := dns.ParsePacket(out)
	require.NoError(t, err)
	assert.Equal(t, uint16(7), resp.Header.ID)
	assert.Equal(t, dns.RCodeNXDomain, dns.RCodeFromFlags(resp.Header.Flags))
}

func TestHandleSilentOnNetworkError(t *testing.T) {
	stub := stubResolver{err: &reactor.NetworkError{}}
	h := New(stub, nil, nil)

	out := h.Handle(context.Background(), buildClientQuery(1, "example.com."))
	assert.Nil(t, out)
}

func TestHandleSilentOnInfiniteRecursion(t *testing.T) {
	stub := stubResolver{err: &resolver.InfiniteRecursionError{Msg: "cycle"}}
	h := New(stub, nil, nil)

	out := h.Handle(context.Background(), buildClientQuery(1, "bbc.com."))
	assert.Nil(t, out)
}

func TestHandleDropsMalformedDatagram(t *testing.T) {
	h := New(stubResolver{}, nil, nil)
	out := h.Handle(context.Background(), []byte{1, 2, 3})
	assert.Nil(t, out)
}

// TestHandleDropsOversizedDatagram covers the client listener's maximum
// accepted datagram bound, enforced via dns.ParseRequestBounded.
func TestHandleDropsOversizedDatagram(t *testing.T) {
	h := New(stubResolver{}, nil, nil)
	oversized := make([]byte, dns.MaxIncomingDNSMessageSize+1)
	out := h.Handle(context.Background(), oversized)
	assert.Nil(t, out)
}

// TestHandleDropsResponsePacket covers rejection of a datagram with the QR
// flag already set — the handler only ever accepts queries.
func TestHandleDropsResponsePacket(t *testing.T) {
	h := New(stubResolver{}, nil, nil)
	p := dns.Packet{
		Header:    dns.Header{ID: 1, Flags: uint16(dns.QRFlag), QDCount: 1},
		Questions: []dns.Question{{Name: "example.com.", Type: uint16(dns.TypeA), Class: uint16(dns.ClassIN)}},
	}
	wire, err := p.Marshal()
	require.NoError(t, err)

	out := h.Handle(context.Background(), wire)
	assert.Nil(t, out)
}
