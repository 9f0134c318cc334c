// Package intent defines the Provider interface for intent resolvers.
//
// A resolver maps a [stt.Transcript] to a structured [Intent]: one command from
// a closed, registered set plus string slot values. A resolver never invents a
// command; when the transcript matches nothing it returns [ErrNoMatch].
package intent

import (
	"context"
	"errors"

	"github.com/MrWong99/voxprivate/pkg/provider/stt"
)

// ErrNoMatch is returned when a transcript does not correspond to any
// registered command.
var ErrNoMatch = errors.New("intent: no match")

// Provider is the abstraction over any intent resolver.
//
// Implementations must be safe for concurrent use and honour ctx.
type Provider interface {
	Resolve(ctx context.Context, t stt.Transcript) (Intent, error)
}
