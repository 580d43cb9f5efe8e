// Package sample defines the data-plane unit types HERMES moves between
// Producers, Consumers, Pipelines, and Storage: Sample and Stream.
//
// Samples are immutable once constructed, mirroring the teacher's
// BaseMessage design (message/base_message.go) but stripped of the
// behavioral-payload and federation machinery HERMES has no use for: a
// Sample's payload is either a fixed-shape tabular tensor or an opaque
// video frame, never a polymorphic entity graph.
package sample
