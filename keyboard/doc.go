// Package keyboard implements the single-reader, multi-consumer stdin
// fan-out described in spec.md §4.5: exactly one goroutine per host reads
// stdin line-by-line and broadcasts each line to every registered
// consumer (Nodes, Storage, Broker), each of which sees every keystroke
// exactly once. Each consumer has its own bounded buffer; a consumer whose
// buffer is full holds up delivery to all of them until it reads.
//
// Shutdown is cooperative: a sentinel value posted when the Broker enters
// DRAIN unblocks the reader even if stdin is still open, following the
// teacher's context-cancellation-driven daemon goroutine shape
// (component/lifecycle.go's named child contexts).
package keyboard
