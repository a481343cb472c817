package fingerprint

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/rajasatyajit/brocante/internal/models"
	"github.com/rajasatyajit/brocante/pkg/utils"
)

// Lookup is the storage side of duplicate detection
type Lookup interface {
	ExistsByFingerprint(ctx context.Context, fingerprint string) (bool, error)
}

// Engine computes deduplication keys for canonical events
type Engine struct {
	loc *time.Location
}

// New creates an engine that takes calendar dates in loc
func New(loc *time.Location) *Engine {
	if loc == nil {
		loc = time.UTC
	}
	return &Engine{loc: loc}
}

// Compute returns the fingerprint of ev: a SHA-256 over the start date and
// the coordinates truncated to four decimals. Title, source and IDs do not
// take part, so the same event reported by two sources collides.
func (e *Engine) Compute(ev *models.CanonicalEvent) string {
	return utils.HashString(e.Key(ev.StartAt, ev.Latitude, ev.Longitude))
}

// Key is the unhashed fingerprint input
func (e *Engine) Key(startAt time.Time, lat, lon float64) string {
	return startAt.In(e.loc).Format(time.DateOnly) + "|" + Round4(lat) + "|" + Round4(lon)
}

// Exists reports whether a stored event already carries fingerprint fp
func (e *Engine) Exists(ctx context.Context, store Lookup, fp string) (bool, error) {
	return store.ExistsByFingerprint(ctx, fp)
}

// Round4 truncates x toward zero at the fourth decimal and renders it with
// exactly four decimals. Truncation works on the shortest decimal text of x,
// so 43.5716 is not pulled down by its binary representation and
// 43.571699999 is not carried up to 43.5717.
func Round4(x float64) string {
	s := strconv.FormatFloat(x, 'f', -1, 64)
	i := strings.IndexByte(s, '.')
	if i < 0 {
		s += "."
		i = len(s) - 1
	}
	if len(s) > i+5 {
		s = s[:i+5]
	}
	s += strings.Repeat("0", i+5-len(s))
	if s == "-0.0000" {
		s = "0.0000"
	}
	return s
}
