package sample

import (
	"fmt"

	"github.com/emedia-lab/hermes/errors"
)

// Schema describes the fixed shape of a tabular stream's payload. Video
// streams carry an empty Schema; their shape is implicit in the codec.
type Schema struct {
	ChannelNames []string `json:"channel_names,omitempty"`
	Dtype        string   `json:"dtype,omitempty"`
	Shape        []int    `json:"shape,omitempty"`
}

// Stream is a typed channel of samples from one device under one Node
// (spec.md §3). Nominal rates observed in practice span 20-100 Hz for
// inertial/EMG streams and 20 FPS for cameras.
type Stream struct {
	StreamID    string  `json:"stream_id"`
	DeviceID    string  `json:"device_id"`
	NodeID      string  `json:"node_id"`
	Schema      Schema  `json:"schema"`
	NominalRate float64 `json:"nominal_rate"`
	IsBurst     bool    `json:"is_burst"`
	IsVideo     bool    `json:"is_video"`
}

// Validate checks that the stream descriptor is complete enough to be
// registered with Storage and the Transport layer.
func (s Stream) Validate() error {
	if s.StreamID == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Stream", "Validate", "stream_id cannot be empty")
	}
	if s.NodeID == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Stream", "Validate", "node_id cannot be empty")
	}
	if s.NominalRate <= 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Stream", "Validate",
			fmt.Sprintf("nominal_rate must be positive, got %f", s.NominalRate))
	}
	if s.IsVideo && len(s.Schema.ChannelNames) > 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Stream", "Validate", "video streams cannot declare tabular channel names")
	}
	return nil
}
