package transport

import (
	"context"
	"fmt"

	"github.com/emedia-lab/hermes/errors"
	"github.com/emedia-lab/hermes/natsclient"
)

// NATSRelay is the secondary transport driver (transport.driver=nats):
// the same control/data envelope bytes carried over NATS subjects instead
// of a raw TCP connection per peer, for deployments that already run a
// NATS broker for other services. It wraps natsclient.Client directly
// rather than reimplementing connection lifecycle.
type NATSRelay struct {
	client   *natsclient.Client
	brokerID string
}

// controlSubject is the control-plane subject for a given broker_id.
func controlSubject(brokerID string) string {
	return fmt.Sprintf("hermes.%s.control", brokerID)
}

// dataSubject is the data-plane subject for a given stream_id.
func dataSubject(streamID string) string {
	return fmt.Sprintf("hermes.data.%s", streamID)
}

// NewNATSRelay connects to the given NATS URL and returns a relay bound
// to brokerID's control subject.
func NewNATSRelay(ctx context.Context, url, brokerID string, opts ...natsclient.ClientOption) (*NATSRelay, error) {
	client, err := natsclient.NewClient(url, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "transport", "NewNATSRelay", "construct client")
	}
	if err := client.Connect(ctx); err != nil {
		return nil, errors.Wrap(err, "transport", "NewNATSRelay", "connect")
	}
	return &NATSRelay{client: client, brokerID: brokerID}, nil
}

// NewNATSRelayFromClient binds a relay to an already-connected client,
// letting a Broker share one NATS connection between the data-plane relay
// and anything else (e.g. the status gateway's log/status subscriptions)
// that needs the same client.
func NewNATSRelayFromClient(client *natsclient.Client, brokerID string) *NATSRelay {
	return &NATSRelay{client: client, brokerID: brokerID}
}

// Publish implements the same shape as Bus.Publish, so a Producer or
// Pipeline (which depend only on a Publish(DataEnvelope) error method) can
// target a NATSRelay interchangeably with the in-process Bus.
func (r *NATSRelay) Publish(env DataEnvelope) error {
	return r.PublishData(context.Background(), env)
}

// Subscribe implements the same shape as Bus.Subscribe: it returns a
// channel fed by every envelope published on topic, backed by a NATS
// subscription instead of an in-process fan-out list.
func (r *NATSRelay) Subscribe(topic string) <-chan DataEnvelope {
	ch := make(chan DataEnvelope, inprocCapacity)
	if err := r.SubscribeData(context.Background(), topic, func(env DataEnvelope) {
		ch <- env
	}); err != nil {
		close(ch)
	}
	return ch
}

// PublishControl sends a control message on brokerID's control subject.
func (r *NATSRelay) PublishControl(ctx context.Context, brokerID string, m ControlMessage) error {
	frame, err := EncodeControl(m)
	if err != nil {
		return err
	}
	if err := r.client.Publish(ctx, controlSubject(brokerID), frame); err != nil {
		return errors.WrapTransient(err, "transport", "NATSRelay.PublishControl", "publish")
	}
	return nil
}

// SubscribeControl invokes handler for every control message on
// r.brokerID's control subject.
func (r *NATSRelay) SubscribeControl(ctx context.Context, handler func(ControlMessage)) error {
	return r.client.Subscribe(ctx, controlSubject(r.brokerID), func(_ context.Context, data []byte) {
		msg, err := parseControlBody(data[4:])
		if err != nil {
			return
		}
		handler(msg)
	})
}

// PublishData sends a data envelope on its stream's data subject.
func (r *NATSRelay) PublishData(ctx context.Context, e DataEnvelope) error {
	frame, err := EncodeData(e)
	if err != nil {
		return err
	}
	if err := r.client.Publish(ctx, dataSubject(e.Topic), frame); err != nil {
		return errors.WrapTransient(err, "transport", "NATSRelay.PublishData", "publish")
	}
	return nil
}

// SubscribeData invokes handler for every data envelope published on
// streamID's data subject.
func (r *NATSRelay) SubscribeData(ctx context.Context, streamID string, handler func(DataEnvelope)) error {
	return r.client.Subscribe(ctx, dataSubject(streamID), func(_ context.Context, data []byte) {
		env, err := parseDataBody(data[4:])
		if err != nil {
			return
		}
		handler(env)
	})
}

// Close closes the underlying NATS connection.
func (r *NATSRelay) Close(ctx context.Context) error {
	return r.client.Close(ctx)
}
