package pattern

import (
	"errors"
	"fmt"

	"gitlab.com/stephen-fox/sigkit/memory"
)

var (
	// ErrCountMismatch is wrapped by *CountError.
	ErrCountMismatch = errors.New("unexpected number of matches")

	// ErrIndexOutOfRange is returned by Search.Get.
	ErrIndexOutOfRange = errors.New("match index out of range")
)

// CountPolicy selects what happens when a search does not find the
// expected number of matches.
type CountPolicy int

const (
	// Recoverable returns a *CountError to the caller.
	Recoverable CountPolicy = iota

	// Strict passes the error to DefaultExitFn.
	Strict
)

func (o CountPolicy) String() string {
	switch o {
	case Recoverable:
		return "recoverable"
	case Strict:
		return "strict"
	default:
		return "unknown"
	}
}

// CountError reports a search that found an unexpected number of
// matches. When Truncated is true the search stopped early, and Got
// is a lower bound on the real number of matches.
type CountError struct {
	Signature string
	Expected  int
	Got       int
	Truncated bool
}

func (o *CountError) Error() string {
	atLeast := ""
	if o.Truncated {
		atLeast = "at least "
	}

	return fmt.Sprintf("pattern '%s': expected %d matches - got %s%d",
		o.Signature, o.Expected, atLeast, o.Got)
}

func (o *CountError) Unwrap() error {
	return ErrCountMismatch
}

// Match is the address of a pattern match.
type Match uintptr

// Addr returns the match address adjusted by offset.
func (o Match) Addr(offset int) uintptr {
	return uintptr(o) + uintptr(offset)
}

// Search is a lookup of one pattern over a list of segments. It scans
// on first use and caches the matches until Clear is called.
type Search struct {
	ctx      *Context
	pattern  Pattern
	segments []memory.Range
	err      error

	matched   bool
	complete  bool
	truncated bool
	matches   []Match
}

// Pattern returns the pattern being searched for.
func (o *Search) Pattern() Pattern {
	return o.pattern
}

// Segments returns the segments being searched.
func (o *Search) Segments() []memory.Range {
	return o.segments
}

// Count searches for exactly expected matches. If a different number
// is found, a *CountError is returned.
//
// The scan collects up to expected+1 matches, so a surplus is
// detected without scanning every segment.
func (o *Search) Count(expected int) (*Search, error) {
	err := o.ensure(expected + 1)
	if err != nil {
		return o, err
	}

	if len(o.matches) != expected {
		return o, &CountError{
			Signature: o.describe(),
			Expected:  expected,
			Got:       len(o.matches),
			Truncated: o.truncated,
		}
	}

	return o, nil
}

// CountOrExit is the strict form of Count.
func (o *Search) CountOrExit(expected int) *Search {
	_, err := o.Count(expected)
	if err != nil {
		DefaultExitFn(err)
	}
	return o
}

// Expect calls Count or CountOrExit depending on policy.
func (o *Search) Expect(expected int, policy CountPolicy) (*Search, error) {
	if policy == Strict {
		return o.CountOrExit(expected), nil
	}

	return o.Count(expected)
}

// CountHint collects at most max matches without enforcing a count.
func (o *Search) CountHint(max int) (*Search, error) {
	return o, o.ensure(max)
}

// Clear discards the cached matches. The next call rescans.
func (o *Search) Clear() *Search {
	o.matched = false
	o.complete = false
	o.truncated = false
	o.matches = nil
	return o
}

// Size returns the number of matches.
func (o *Search) Size() (int, error) {
	err := o.ensure(0)
	if err != nil {
		return 0, err
	}

	return len(o.matches), nil
}

// Empty returns true if there are no matches.
func (o *Search) Empty() (bool, error) {
	size, err := o.Size()
	return size == 0, err
}

// Matches returns all matches in scan order: segments in the order
// they were supplied, increasing address within a segment.
func (o *Search) Matches() ([]Match, error) {
	err := o.ensure(0)
	if err != nil {
		return nil, err
	}

	return append([]Match(nil), o.matches...), nil
}

// Found returns the matches collected so far without scanning.
// It is empty until the search has run, and it may be a prefix of
// the full result after CountHint or a failed Count.
func (o *Search) Found() []Match {
	return append([]Match(nil), o.matches...)
}

// Get returns match number i.
func (o *Search) Get(i int) (Match, error) {
	err := o.ensure(0)
	if err != nil {
		return 0, err
	}

	if i < 0 || i >= len(o.matches) {
		return 0, fmt.Errorf("%d of %d - %w", i, len(o.matches), ErrIndexOutOfRange)
	}

	return o.matches[i], nil
}

func (o *Search) GetOrExit(i int) Match {
	m, err := o.Get(i)
	if err != nil {
		DefaultExitFn(fmt.Errorf("failed to get match of pattern '%s' - %w", o.describe(), err))
	}
	return m
}

// GetOne returns the only match. It fails with a *CountError if
// there is not exactly one match.
func (o *Search) GetOne() (Match, error) {
	_, err := o.Count(1)
	if err != nil {
		return 0, err
	}

	return o.matches[0], nil
}

func (o *Search) GetOneOrExit() Match {
	m, err := o.GetOne()
	if err != nil {
		DefaultExitFn(err)
	}
	return m
}

// GetFirst returns the address of the first match plus offset.
// Only one match is searched for.
func (o *Search) GetFirst(offset int) (uintptr, error) {
	err := o.ensure(1)
	if err != nil {
		return 0, err
	}

	if len(o.matches) == 0 {
		return 0, &CountError{
			Signature: o.describe(),
			Expected:  1,
		}
	}

	return o.matches[0].Addr(offset), nil
}

func (o *Search) GetFirstOrExit(offset int) uintptr {
	addr, err := o.GetFirst(offset)
	if err != nil {
		DefaultExitFn(err)
	}
	return addr
}

// ForEach calls fn for every match in scan order.
// It stops at the first error returned by fn.
func (o *Search) ForEach(fn func(m Match) error) error {
	err := o.ensure(0)
	if err != nil {
		return err
	}

	for _, m := range o.matches {
		err := fn(m)
		if err != nil {
			return err
		}
	}

	return nil
}

// ensure makes sure that the search has collected at least max
// matches, or every match if max is zero or less.
func (o *Search) ensure(max int) error {
	if o.err != nil {
		return o.err
	}

	if o.matched && (o.complete || (max > 0 && len(o.matches) >= max)) {
		return nil
	}

	hints := o.ctx.verifiedHints(o.pattern, o.segments)
	if len(hints) > 0 {
		if o.ctx.hintsComplete(o.pattern, o.segments) {
			o.useHints(hints, max, true)
			return nil
		}

		if max > 0 && o.ctx.hintsLead(o.pattern, o.segments, hints, max) {
			o.useHints(hints, max, false)
			return nil
		}
	}

	found, truncated, err := o.ctx.fullScan(o.pattern, o.segments, max)
	if err != nil {
		return err
	}

	o.setMatches(found, truncated)
	o.complete = !truncated

	return nil
}

// useHints stores verified hints as the matches, capped at max if
// max is positive. complete is true if hints holds every match.
func (o *Search) useHints(hints []uintptr, max int, complete bool) {
	truncated := !complete
	if max > 0 && len(hints) > max {
		hints = hints[:max]
		truncated = true
	}

	o.setMatches(hints, truncated)
	o.complete = !truncated
}

func (o *Search) setMatches(addrs []uintptr, truncated bool) {
	o.matches = make([]Match, len(addrs))
	for i, addr := range addrs {
		o.matches[i] = Match(addr)
	}

	o.matched = true
	o.truncated = truncated
}

func (o *Search) describe() string {
	if o.pattern.source != "" {
		return o.pattern.source
	}

	return o.pattern.String()
}
