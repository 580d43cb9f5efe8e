package broker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emedia-lab/hermes/transport"
)

func TestDiscoverPeersAnnounceExchange(t *testing.T) {
	lnA, err := transport.Listen("127.0.0.1:0")
	require.NoError(t, err)
	defer lnA.Close()

	lnB, err := transport.Listen("127.0.0.1:0")
	require.NoError(t, err)
	defer lnB.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	linksADone := make(chan map[string]*peerLink, 1)
	go func() {
		links, _ := discoverPeers(ctx, lnA, "host-a", true, []string{lnB.Addr().String()}, time.Second)
		linksADone <- links
	}()

	linksB, err := discoverPeers(ctx, lnB, "host-b", false, []string{lnA.Addr().String()}, time.Second)
	require.NoError(t, err)
	require.Len(t, linksB, 1)
	assert.Equal(t, "host-a", linksB["host-a"].brokerID)
	assert.True(t, linksB["host-a"].clockEligible)

	linksA := <-linksADone
	require.Len(t, linksA, 1)
	assert.Equal(t, "host-b", linksA["host-b"].brokerID)
	assert.False(t, linksA["host-b"].clockEligible)
}

func TestDiscoverPeersTimesOutWithoutQuorum(t *testing.T) {
	ln, err := transport.Listen("127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err = discoverPeers(ctx, ln, "host-a", true, []string{"127.0.0.1:1"}, 100*time.Millisecond)
	assert.Error(t, err)
}
