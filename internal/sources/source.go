package sources

import (
	"context"
	"iter"

	"github.com/rajasatyajit/brocante/internal/models"
)

// Params bounds one fetch
type Params struct {
	Window models.Window
}

// Source defines a pluggable event feed. Fetch returns a lazy, finite
// sequence that re-reads the origin each time it is ranged over. Errors are
// yielded in-line so one bad record does not end the sequence; an error
// wrapping ErrSourceUnavailable means the source could not be read at all.
type Source interface {
	Name() string
	Fetch(ctx context.Context, params Params) iter.Seq2[RawRecord, error]
}
