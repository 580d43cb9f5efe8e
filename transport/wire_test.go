package transport

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDialAndAcceptExchangeControlMessage(t *testing.T) {
	ln, err := Listen("127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	accepted := make(chan *WireConn, 1)
	go func() {
		conn, err := ln.Accept()
		require.NoError(t, err)
		accepted <- conn
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	client, err := Dial(ctx, ln.Addr().String(), WithHealthInterval(0))
	require.NoError(t, err)
	defer client.Close()

	assert.Equal(t, StatusConnected, client.Status())
	assert.True(t, client.IsHealthy())

	server := <-accepted
	defer server.Close()

	require.NoError(t, client.SendControl(ControlMessage{
		Kind:        Announce,
		SenderID:    "host-a",
		MonotonicNS: 42,
	}))

	msg, err := server.RecvControl()
	require.NoError(t, err)
	assert.Equal(t, Announce, msg.Kind)
	assert.Equal(t, "host-a", msg.SenderID)
	assert.Equal(t, int64(42), msg.MonotonicNS)
}

func TestDialAndAcceptExchangeDataEnvelope(t *testing.T) {
	ln, err := Listen("127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	accepted := make(chan *WireConn, 1)
	go func() {
		conn, err := ln.Accept()
		require.NoError(t, err)
		accepted <- conn
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	client, err := Dial(ctx, ln.Addr().String(), WithHealthInterval(0))
	require.NoError(t, err)
	defer client.Close()

	server := <-accepted
	defer server.Close()

	env := DataEnvelope{Topic: "imu/acc", PublisherID: "node.imu01", Seq: 7, ReferenceTSNS: 99, Payload: []byte{9, 9}}
	require.NoError(t, client.SendData(env))

	got, err := server.RecvData()
	require.NoError(t, err)
	assert.Equal(t, env, got)
}

func TestDialFailsAgainstUnreachableAddress(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	_, err := Dial(ctx, "127.0.0.1:1", WithDialTimeout(100*time.Millisecond))
	assert.Error(t, err)
}

func TestWireConnCloseIsIdempotent(t *testing.T) {
	ln, err := Listen("127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err == nil {
			conn.Close()
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	client, err := Dial(ctx, ln.Addr().String(), WithHealthInterval(0))
	require.NoError(t, err)

	assert.NoError(t, client.Close())
	assert.NoError(t, client.Close())
}

func TestConnStatusString(t *testing.T) {
	assert.Equal(t, "connected", StatusConnected.String())
	assert.Equal(t, "circuit_open", StatusCircuitOpen.String())
	assert.Equal(t, "disconnected", ConnStatus(99).String())
}
