// Package transport delivers span batches to the remote collector.
package transport

import (
	"context"

	"github.com/spanflow/spanflow-go/core/batch"
)

// Transport accepts one batch and reports success or failure. A failed send
// leaves the batch to be requeued by the caller; the transport itself holds
// no state about past batches.
type Transport interface {
	Send(ctx context.Context, b batch.Batch) error
}

// Func adapts a function to the Transport interface.
type Func func(ctx context.Context, b batch.Batch) error

func (f Func) Send(ctx context.Context, b batch.Batch) error { return f(ctx, b) }
