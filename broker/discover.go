package broker

import (
	"context"
	"sync"
	"time"

	"github.com/emedia-lab/hermes/errors"
	"github.com/emedia-lab/hermes/transport"
)

// peerLink is one established control-plane connection to a peer broker,
// paired with the identity it announced.
type peerLink struct {
	brokerID      string
	clockEligible bool
	conn          *transport.WireConn
}

// discoverPeers dials every address in peerAddrs and, in parallel, accepts
// inbound connections off ln, exchanging ANNOUNCE on each link until either
// every configured peer has been confirmed or timeout elapses (spec.md
// §4.1: "await quorum"). ln may be nil when the broker has no peers
// configured to accept from.
func discoverPeers(ctx context.Context, ln *transport.Listener, selfID string, clockEligible bool, peerAddrs []string, timeout time.Duration) (map[string]*peerLink, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	links := make(map[string]*peerLink)
	var mu sync.Mutex
	var wg sync.WaitGroup

	// A symmetric peer list causes each pair of brokers to dial one
	// another independently, producing two TCP connections per pair; only
	// the first to complete its ANNOUNCE exchange is kept.
	record := func(l *peerLink) {
		mu.Lock()
		defer mu.Unlock()
		if _, exists := links[l.brokerID]; exists {
			l.conn.Close()
			return
		}
		links[l.brokerID] = l
	}

	for _, addr := range peerAddrs {
		addr := addr
		wg.Add(1)
		go func() {
			defer wg.Done()
			link, err := dialAndAnnounce(ctx, addr, selfID, clockEligible)
			if err != nil {
				return
			}
			record(link)
		}()
	}

	if ln != nil {
		go acceptAnnouncements(ctx, ln, selfID, clockEligible, record)
	}

	waitDone := make(chan struct{})
	go func() { wg.Wait(); close(waitDone) }()

	quorumTicker := time.NewTicker(20 * time.Millisecond)
	defer quorumTicker.Stop()
	for {
		mu.Lock()
		got := len(links)
		mu.Unlock()
		if got >= len(peerAddrs) {
			break
		}
		select {
		case <-ctx.Done():
			return links, errors.WrapFatal(errors.ErrDiscoveryTimeout, "broker", "discoverPeers", "quorum not reached")
		case <-quorumTicker.C:
		}
	}
	return links, nil
}

func dialAndAnnounce(ctx context.Context, addr, selfID string, clockEligible bool) (*peerLink, error) {
	conn, err := transport.Dial(ctx, addr)
	if err != nil {
		return nil, err
	}
	if err := conn.SendControl(announceMessage(selfID, clockEligible)); err != nil {
		conn.Close()
		return nil, err
	}
	reply, err := conn.RecvControl()
	if err != nil {
		conn.Close()
		return nil, err
	}
	if reply.Kind != transport.Announce {
		conn.Close()
		return nil, errors.WrapFatal(errors.ErrInvalidData, "broker", "dialAndAnnounce", "expected ANNOUNCE, got "+reply.Kind.String())
	}
	return &peerLink{brokerID: reply.SenderID, clockEligible: len(reply.Payload) == 1 && reply.Payload[0] == 1, conn: conn}, nil
}

func acceptAnnouncements(ctx context.Context, ln *transport.Listener, selfID string, clockEligible bool, record func(*peerLink)) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		go func() {
			msg, err := conn.RecvControl()
			if err != nil || msg.Kind != transport.Announce {
				conn.Close()
				return
			}
			if err := conn.SendControl(announceMessage(selfID, clockEligible)); err != nil {
				conn.Close()
				return
			}
			record(&peerLink{brokerID: msg.SenderID, clockEligible: len(msg.Payload) == 1 && msg.Payload[0] == 1, conn: conn})
		}()
		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

func announceMessage(selfID string, clockEligible bool) transport.ControlMessage {
	payload := []byte{0}
	if clockEligible {
		payload[0] = 1
	}
	return transport.ControlMessage{Kind: transport.Announce, SenderID: selfID, Payload: payload}
}
