package node

import (
	"context"

	"github.com/emedia-lab/hermes/sample"
)

// Device abstracts the external sensor SDK a Producer acquires in INIT and
// releases on DRAIN (spec.md §4.2). HERMES never prescribes a concrete
// device binding; callers supply one per Node.
type Device interface {
	Open() error
	Read(ctx context.Context) (sample.Sample, error)
	Close() error
}
