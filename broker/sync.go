package broker

import (
	"encoding/binary"

	"github.com/emedia-lab/hermes/clock"
	"github.com/emedia-lab/hermes/errors"
	"github.com/emedia-lab/hermes/transport"
)

// encodeProbeReply packs the reference broker's T1 reading and its
// reference_time origin into a SYNC_REPLY payload.
func encodeProbeReply(t1, originNS int64) []byte {
	buf := make([]byte, 16)
	binary.BigEndian.PutUint64(buf[0:8], uint64(t1))
	binary.BigEndian.PutUint64(buf[8:16], uint64(originNS))
	return buf
}

func decodeProbeReply(payload []byte) (t1, originNS int64, err error) {
	if len(payload) != 16 {
		return 0, 0, errors.WrapInvalid(errors.ErrInvalidData, "broker", "decodeProbeReply", "malformed SYNC_REPLY payload")
	}
	t1 = int64(binary.BigEndian.Uint64(payload[0:8]))
	originNS = int64(binary.BigEndian.Uint64(payload[8:16]))
	return t1, originNS, nil
}

// requestSync drives the non-reference side of one SYNC exchange (spec.md
// §4.1): send SYNC_PROBE, block for SYNC_REPLY, feed the four timestamps to
// the round-trip estimator, install the resulting offset on clk, and ack
// with SYNC_OK so the reference broker can track which peers have synced.
func requestSync(conn *transport.WireConn, selfID string, clk *clock.Clock) (offsetNS, roundTripNS int64, err error) {
	t0 := clk.Now()
	if err := conn.SendControl(transport.ControlMessage{Kind: transport.SyncProbe, SenderID: selfID, MonotonicNS: t0}); err != nil {
		return 0, 0, errors.WrapTransient(err, "broker", "requestSync", "send SYNC_PROBE")
	}

	reply, err := conn.RecvControl()
	if err != nil {
		return 0, 0, errors.WrapTransient(err, "broker", "requestSync", "recv SYNC_REPLY")
	}
	t3 := clk.Now()
	if reply.Kind != transport.SyncReply {
		return 0, 0, errors.WrapFatal(errors.ErrInvalidData, "broker", "requestSync", "expected SYNC_REPLY, got "+reply.Kind.String())
	}

	t1, originNS, err := decodeProbeReply(reply.Payload)
	if err != nil {
		return 0, 0, err
	}

	offsetNS, roundTripNS, err = clock.EstimateOffset(clock.Probe{
		T0: t0, T1: t1, T2: reply.MonotonicNS, T3: t3, ReferenceOriginNS: originNS,
	})
	if err != nil {
		return 0, 0, errors.WrapFatal(err, "broker", "requestSync", "estimate offset")
	}

	clk.SetOffset(offsetNS)
	if err := conn.SendControl(transport.ControlMessage{Kind: transport.SyncOK, SenderID: selfID, MonotonicNS: clk.Now()}); err != nil {
		return 0, 0, errors.WrapTransient(err, "broker", "requestSync", "send SYNC_OK")
	}
	return offsetNS, roundTripNS, nil
}

// serveSyncProbe drives the reference broker's side of one exchange: read
// the SYNC_PROBE, stamp T1/T2 off the reference clock (whose offset is zero
// by definition), and wait for the peer's SYNC_OK acknowledgement.
func serveSyncProbe(conn *transport.WireConn, selfID string, clk *clock.Clock) error {
	probe, err := conn.RecvControl()
	if err != nil {
		return errors.WrapTransient(err, "broker", "serveSyncProbe", "recv SYNC_PROBE")
	}
	if probe.Kind != transport.SyncProbe {
		return errors.WrapFatal(errors.ErrInvalidData, "broker", "serveSyncProbe", "expected SYNC_PROBE, got "+probe.Kind.String())
	}
	t1 := clk.Now()

	t2 := clk.Now()
	reply := transport.ControlMessage{
		Kind:        transport.SyncReply,
		SenderID:    selfID,
		MonotonicNS: t2,
		Payload:     encodeProbeReply(t1, clk.Offset()),
	}
	if err := conn.SendControl(reply); err != nil {
		return errors.WrapTransient(err, "broker", "serveSyncProbe", "send SYNC_REPLY")
	}

	ok, err := conn.RecvControl()
	if err != nil {
		return errors.WrapTransient(err, "broker", "serveSyncProbe", "recv SYNC_OK")
	}
	if ok.Kind != transport.SyncOK {
		return errors.WrapFatal(errors.ErrInvalidData, "broker", "serveSyncProbe", "expected SYNC_OK, got "+ok.Kind.String())
	}
	return nil
}
