package server

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoHandler struct{}

func (echoHandler) Handle(ctx context.Context, datagram []byte) []byte {
	out := make([]byte, len(datagram))
	copy(out, datagram)
	return out
}

type dropHandler struct{}

func (dropHandler) Handle(ctx context.Context, datagram []byte) []byte { return nil }

func TestServeEchoesDatagram(t *testing.T) {
	srv, err := New("127.0.0.1:0", echoHandler{}, nil, 0)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()

	client, err := net.DialUDP("udp", nil, srv.Addr().(*net.UDPAddr))
	require.NoError(t, err)
	defer client.Close()

	_, err = client.Write([]byte("hello"))
	require.NoError(t, err)

	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 64)
	n, err := client.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf[:n]))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancellation")
	}
}

func TestServeSilentlyDropsWhenHandlerReturnsNil(t *testing.T) {
	srv, err := New("127.0.0.1:0", dropHandler{}, nil, 0)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.Serve(ctx)

	client, err := net.DialUDP("udp", nil, srv.Addr().(*net.UDPAddr))
	require.NoError(t, err)
	defer client.Close()

	_, err = client.Write([]byte("ping"))
	require.NoError(t, err)

	client.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	buf := make([]byte, 64)
	_, err = client.Read(buf)
	assert.Error(t, err, "expected a read timeout since the handler dropped the datagram")
}
