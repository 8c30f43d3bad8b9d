package reactor

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lafolle/rrdns/internal/dns"
)

// fakeServer is a bare UDP listener that answers every query with a
// caller-supplied transform, standing in for an upstream authoritative or
// root server.
type fakeServer struct {
	conn *net.UDPConn
}

func newFakeServer(t *testing.T, respond func(q dns.Packet) dns.Packet) *fakeServer {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{})
	require.NoError(t, err)
	fs := &fakeServer{conn: conn}

	go func() {
		buf := make([]byte, dns.MaxIncomingDNSMessageSize)
		for {
			n, addr, err := conn.ReadFrom(buf)
			if err != nil {
				return
			}
			q, err := dns.ParsePacket(buf[:n])
			if err != nil {
				continue
			}
			resp := respond(q)
			wire, err := resp.Marshal()
			if err != nil {
				continue
			}
			_, _ = conn.WriteTo(wire, addr)
		}
	}()

	t.Cleanup(func() { conn.Close() })
	return fs
}

func (fs *fakeServer) addr() *net.UDPAddr {
	return fs.conn.LocalAddr().(*net.UDPAddr)
}

func query(id uint16, name string) dns.Packet {
	return dns.Packet{
		Header: dns.Header{ID: id, Flags: uint16(dns.RDFlag), QDCount: 1},
		Questions: []dns.Question{
			{Name: name, Type: uint16(dns.TypeA), Class: uint16(dns.ClassIN)},
		},
	}
}

func echoReply(q dns.Packet) dns.Packet {
	resp := q
	resp.Header.Flags |= uint16(dns.QRFlag) | uint16(dns.RAFlag)
	resp.Header.ANCount = 1
	resp.Answers = []dns.Record{
		{Name: q.Questions[0].Name, Type: uint16(dns.TypeA), Class: uint16(dns.ClassIN), TTL: 60, Data: []byte{192, 0, 2, 1}},
	}
	return resp
}

func nxdomainReply(q dns.Packet) dns.Packet {
	resp := q
	resp.Header.Flags |= uint16(dns.QRFlag) | uint16(dns.RAFlag) | uint16(dns.RCodeMask&uint16(dns.RCodeNXDomain))
	return resp
}

func TestSubmitReturnsResponse(t *testing.T) {
	fs := newFakeServer(t, echoReply)
	r, err := New(nil)
	require.NoError(t, err)
	defer r.Close()

	resp, err := r.Submit(context.Background(), query(1, "example.com."), fs.addr())
	require.NoError(t, err)
	require.Len(t, resp.Answers, 1)
	ip, ok := resp.Answers[0].IPv4()
	require.True(t, ok)
	assert.Equal(t, "192.0.2.1", ip)
}

func TestSubmitQueryErrorOnNonNoErrorRcode(t *testing.T) {
	fs := newFakeServer(t, nxdomainReply)
	r, err := New(nil)
	require.NoError(t, err)
	defer r.Close()

	_, err = r.Submit(context.Background(), query(2, "missing.example."), fs.addr())
	require.Error(t, err)
	var qerr *QueryError
	require.ErrorAs(t, err, &qerr)
	assert.Equal(t, dns.RCodeNXDomain, dns.RCodeFromFlags(qerr.Response.Header.Flags))
}

func TestSubmitErrorsOnUnreachablePeer(t *testing.T) {
	r, err := New(nil)
	require.NoError(t, err)
	defer r.Close()

	conn, derr := net.ListenUDP("udp", &net.UDPAddr{})
	require.NoError(t, derr)
	unreachable := conn.LocalAddr().(*net.UDPAddr)
	conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err = r.Submit(ctx, query(3, "example.com."), unreachable)
	assert.Error(t, err)
}

func TestSubmitHonorsContextCancellation(t *testing.T) {
	// No fake server listening on this address: the reactor sends but never
	// gets a reply, so only ctx cancellation can unblock Submit.
	conn, err := net.ListenUDP("udp", &net.UDPAddr{})
	require.NoError(t, err)
	silent := conn.LocalAddr().(*net.UDPAddr)
	defer conn.Close()

	r, err := New(nil)
	require.NoError(t, err)
	defer r.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = r.Submit(ctx, query(4, "example.com."), silent)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestConcurrentSubmissionsGetDistinctReplies(t *testing.T) {
	fs := newFakeServer(t, echoReply)
	r, err := New(nil)
	require.NoError(t, err)
	defer r.Close()

	const n = 20
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		go func(i int) {
			name := dns.NormalizeName("host-example.test")
			resp, err := r.Submit(context.Background(), query(uint16(100+i), name), fs.addr())
			if err != nil {
				errs <- err
				return
			}
			if len(resp.Answers) != 1 {
				errs <- assert.AnError
				return
			}
			errs <- nil
		}(i)
	}
	for i := 0; i < n; i++ {
		assert.NoError(t, <-errs)
	}
}

func TestSubmitAfterCloseFails(t *testing.T) {
	fs := newFakeServer(t, echoReply)
	r, err := New(nil)
	require.NoError(t, err)
	require.NoError(t, r.Close())

	_, err = r.Submit(context.Background(), query(5, "example.com."), fs.addr())
	assert.Error(t, err)
}
