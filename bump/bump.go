// Package bump implements the collision/bumping engine: given a set of
// BumpRequest{name, interval, height} items, assign each a row offset
// such that the rectangles they describe do not overlap along the
// horizontal axis, reporting the total stack height so a caller can size
// its container.
package bump

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"
	"sort"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Interval is a horizontal span on the bump axis, half-open [Start, End).
type Interval struct {
	Start float64
	End   float64
}

// RangeKind discriminates how much horizontal width a BumpRequest
// actually occupies.
type RangeKind int

const (
	// RangeNone means the request contributes no width: it still gets a
	// row, but never blocks another request's placement.
	RangeNone RangeKind = iota
	// RangeAll means the request spans the whole carriage.
	RangeAll
	// RangePart means the request spans only [Start, End) of the carriage.
	RangePart
)

// Range describes a BumpRequest's horizontal extent (the supplemented
// RangeAll/RangeNone/RangePart model).
type Range struct {
	Kind  RangeKind
	Start float64
	End   float64
}

// RangeAllExtent returns the whole-carriage extent.
func RangeAllExtent() Range { return Range{Kind: RangeAll} }

// RangeNoneExtent returns the contributes-no-width extent.
func RangeNoneExtent() Range { return Range{Kind: RangeNone} }

// RangePartExtent returns the sub-range [start, end) extent.
func RangePartExtent(start, end float64) Range { return Range{Kind: RangePart, Start: start, End: end} }

// BumpRequest is one item to place.
type BumpRequest struct {
	Name string
	// Index is the request's position in the caller's original list,
	// used as the tie-break for requests sharing an interval start.
	Index    int
	Interval Interval
	Height   float64
	Extent   Range
}

// Offset is where one named request landed: its row index and the
// vertical coordinate (row * rowHeight, or the wall-mode cumulative
// offset) plus any caller-supplied base offset.
type Offset struct {
	Name string
	Row  int
	Y    float64
}

// Result is the outcome of one bump pass.
type Result struct {
	Offsets     []Offset
	TotalHeight float64
}

// effectiveInterval returns the span used for row-placement collision
// checks: the full Interval for RangeAll/RangePart requests, and a
// zero-width point at Interval.Start for RangeNone, which only fixes its
// place in the sort order (Bump places RangeNone requests without any
// collision check).
func effectiveInterval(r BumpRequest) Interval {
	switch r.Extent.Kind {
	case RangeNone:
		return Interval{Start: r.Interval.Start, End: r.Interval.Start}
	case RangePart:
		return Interval{Start: r.Extent.Start, End: r.Extent.End}
	default:
		return r.Interval
	}
}

// normalize clamps any inverted interval (End < Start) and is run with
// bounded concurrency so a very large request set doesn't serialize
// through one goroutine before the (inherently sequential) packing pass.
func normalize(ctx context.Context, requests []BumpRequest) ([]BumpRequest, error) {
	out := make([]BumpRequest, len(requests))
	copy(out, requests)

	sem := semaphore.NewWeighted(8)
	var wg sync.WaitGroup

	for i := range out {
		i := i
		if err := sem.Acquire(ctx, 1); err != nil {
			return nil, err
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)
			if out[i].Interval.End < out[i].Interval.Start {
				out[i].Interval.End = out[i].Interval.Start
			}
		}()
	}
	wg.Wait()
	return out, nil
}

// row tracks the leftmost start already occupied in the row (requests are
// packed in descending start order), plus the tallest request placed in
// it for wall mode.
type row struct {
	firstStart float64
	height     float64
}

// Bump runs the row-packing algorithm over requests.
//
// rowHeight is the uniform row height used unless wall is true, in which
// case each row grows to the tallest request placed in it. base shifts
// the whole pack, for a non-zero parent offset.
func Bump(ctx context.Context, requests []BumpRequest, rowHeight float64, wall bool, base float64) (Result, error) {
	normalized, err := normalize(ctx, requests)
	if err != nil {
		return Result{}, err
	}

	ordered := make([]BumpRequest, len(normalized))
	copy(ordered, normalized)
	sort.SliceStable(ordered, func(i, j int) bool {
		ei, ej := effectiveInterval(ordered[i]), effectiveInterval(ordered[j])
		if ei.Start != ej.Start {
			return ei.Start > ej.Start
		}
		return ordered[i].Index < ordered[j].Index
	})

	var rows []row
	offsets := make([]Offset, 0, len(ordered))

	for _, req := range ordered {
		iv := effectiveInterval(req)
		placed := -1
		for i := range rows {
			// A request fits when it ends at or before everything already
			// in the row; RangeNone requests take the first row unchecked.
			if req.Extent.Kind == RangeNone || iv.End <= rows[i].firstStart {
				placed = i
				break
			}
		}
		if placed == -1 {
			rows = append(rows, row{firstStart: math.Inf(1)})
			placed = len(rows) - 1
		}
		if req.Extent.Kind != RangeNone {
			rows[placed].firstStart = iv.Start
		}
		if req.Height > rows[placed].height {
			rows[placed].height = req.Height
		}

		y := base
		if wall {
			for i := 0; i < placed; i++ {
				y += rows[i].height
			}
		} else {
			y += float64(placed) * rowHeight
		}
		offsets = append(offsets, Offset{Name: req.Name, Row: placed, Y: y})
	}

	total := base
	if wall {
		for _, r := range rows {
			total += r.height
		}
	} else {
		total += float64(len(rows)) * rowHeight
	}

	return Result{Offsets: offsets, TotalHeight: total}, nil
}

// UniformRowCount reports how many rows Bump needs for requests of
// uniform height packed across totalSpan when their combined width sums
// to totalWidth: ceil(span/width).
func UniformRowCount(totalSpan, totalWidth float64) int {
	if totalWidth <= 0 {
		return 0
	}
	return int(math.Ceil(totalSpan / totalWidth))
}

// digest computes a stable fingerprint of requests, used by Bumper to
// decide whether a cached result for a persistent key is still valid:
// re-bumps under identical inputs are stable.
func digest(requests []BumpRequest, rowHeight float64, wall bool, base float64) string {
	h := sha256.New()
	var buf [8]byte
	writeFloat := func(f float64) {
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(f))
		h.Write(buf[:])
	}
	for _, r := range requests {
		h.Write([]byte(r.Name))
		writeFloat(r.Interval.Start)
		writeFloat(r.Interval.End)
		writeFloat(r.Height)
		binary.LittleEndian.PutUint64(buf[:], uint64(r.Extent.Kind))
		h.Write(buf[:])
		writeFloat(r.Extent.Start)
		writeFloat(r.Extent.End)
	}
	writeFloat(rowHeight)
	if wall {
		h.Write([]byte{1})
	} else {
		h.Write([]byte{0})
	}
	writeFloat(base)
	return hex.EncodeToString(h.Sum(nil))
}

// Bumper caches Bump results per persistent key, recomputing only when
// the inputs for that key actually change.
type Bumper struct {
	mu    sync.Mutex
	cache map[string]cachedResult
}

type cachedResult struct {
	digest string
	result Result
}

// NewBumper returns an empty Bumper.
func NewBumper() *Bumper {
	return &Bumper{cache: make(map[string]cachedResult)}
}

// Bump returns the cached Result for key if requests (and the packing
// parameters) are unchanged since the last call for that key, else
// recomputes and caches it.
func (b *Bumper) Bump(ctx context.Context, key string, requests []BumpRequest, rowHeight float64, wall bool, base float64) (Result, error) {
	d := digest(requests, rowHeight, wall, base)

	b.mu.Lock()
	if c, ok := b.cache[key]; ok && c.digest == d {
		b.mu.Unlock()
		return c.result, nil
	}
	b.mu.Unlock()

	result, err := Bump(ctx, requests, rowHeight, wall, base)
	if err != nil {
		return Result{}, err
	}

	b.mu.Lock()
	b.cache[key] = cachedResult{digest: d, result: result}
	b.mu.Unlock()

	return result, nil
}
