package pattern

import (
	"fmt"
	"log"
	"sort"

	"gitlab.com/stephen-fox/sigkit/memory"
	"gitlab.com/stephen-fox/sigkit/peimage"
)

// ContextConfig configures a Context.
type ContextConfig struct {
	// Space is the address space that is searched.
	Space memory.Space

	// OptDefaultSegments returns the segments searched by Find.
	// It is called at most once. If nil, the readable sections
	// of the process's main module are used.
	OptDefaultSegments func() ([]memory.Range, error)

	// OptHints is the hint cache. A new, empty cache is created
	// if nil.
	OptHints *HintCache

	// OptLogger logs hint usage and full scans if specified.
	OptLogger *log.Logger
}

// NewContext creates a new *Context.
func NewContext(config ContextConfig) (*Context, error) {
	if config.Space == nil {
		return nil, fmt.Errorf("address space cannot be nil")
	}

	if config.OptHints == nil {
		config.OptHints = NewHintCache()
	}

	if config.OptDefaultSegments == nil {
		space := config.Space
		config.OptDefaultSegments = func() ([]memory.Range, error) {
			base, err := peimage.MainModule()
			if err != nil {
				return nil, err
			}

			return peimage.ReadableSegments(space, base)
		}
	}

	return &Context{
		config:         config,
		moduleSegments: make(map[uintptr][]memory.Range),
		scanned:        make(map[uint64][]memory.Range),
	}, nil
}

func NewContextOrExit(config ContextConfig) *Context {
	ctx, err := NewContext(config)
	if err != nil {
		DefaultExitFn(fmt.Errorf("failed to create pattern context - %w", err))
	}
	return ctx
}

// NewProcessContext creates a Context that searches the memory of
// the current process.
func NewProcessContext() *Context {
	return NewContextOrExit(ContextConfig{
		Space: memory.CurrentProcess(),
	})
}

// Context holds the state shared by every search: the address space,
// the cached segment lists and the HintCache. A Context is not safe
// for concurrent use.
type Context struct {
	config         ContextConfig
	defaultLoaded  bool
	defaultSegs    []memory.Range
	defaultErr     error
	moduleSegments map[uintptr][]memory.Range
	fullScans      int

	// scanned maps the hash of every pattern that was scanned for
	// to the segments that were scanned completely. The hints of a
	// scanned pattern are only every match within those segments.
	scanned map[uint64][]memory.Range
}

// Space returns the address space searched by the Context.
func (o *Context) Space() memory.Space {
	return o.config.Space
}

// Hints returns the Context's hint cache.
func (o *Context) Hints() *HintCache {
	return o.config.OptHints
}

// FullScans returns the number of times a search had to scan its
// segments because no hint verified.
func (o *Context) FullScans() int {
	return o.fullScans
}

// DefaultSegments returns the segments searched by Find. They are
// computed on first use and cached for the life of the Context.
func (o *Context) DefaultSegments() ([]memory.Range, error) {
	if !o.defaultLoaded {
		o.defaultSegs, o.defaultErr = o.config.OptDefaultSegments()
		if o.defaultErr != nil {
			o.defaultErr = fmt.Errorf("failed to get default scan segments - %w", o.defaultErr)
		}

		o.defaultLoaded = true
	}

	return o.defaultSegs, o.defaultErr
}

// ModuleSegments returns the readable segments of the image loaded
// at base. They are cached per module.
func (o *Context) ModuleSegments(base uintptr) ([]memory.Range, error) {
	segs, cached := o.moduleSegments[base]
	if cached {
		return segs, nil
	}

	segs, err := peimage.ReadableSegments(o.config.Space, base)
	if err != nil {
		return nil, fmt.Errorf("failed to get scan segments of module 0x%x - %w", base, err)
	}

	o.moduleSegments[base] = segs

	return segs, nil
}

// Find searches the default segments for signature.
func (o *Context) Find(signature string) *Search {
	segs, err := o.DefaultSegments()
	return o.newSearch(Compile(signature), segs, err)
}

// FindInModule searches the readable sections of the image loaded
// at base for signature.
func (o *Context) FindInModule(base uintptr, signature string) *Search {
	segs, err := o.ModuleSegments(base)
	return o.newSearch(Compile(signature), segs, err)
}

// FindInSection searches the sections named section of the image
// loaded at base. The boolean is false, and the Search is nil, if
// the image has no such section.
func (o *Context) FindInSection(base uintptr, section string, signature string) (*Search, bool, error) {
	image, err := peimage.Open(o.config.Space, base)
	if err != nil {
		return nil, false, err
	}

	segs, found := image.SectionByName(section)
	if !found {
		return nil, false, nil
	}

	return o.newSearch(Compile(signature), segs, nil), true, nil
}

// FindInRange searches [begin, end) for signature.
func (o *Context) FindInRange(begin uintptr, end uintptr, signature string) *Search {
	var err error
	if end < begin {
		err = fmt.Errorf("range end 0x%x is before its start 0x%x", end, begin)
	}

	return o.newSearch(Compile(signature), []memory.Range{{Start: begin, End: end}}, err)
}

// FindPattern searches segs for a pre-compiled pattern.
func (o *Context) FindPattern(p Pattern, segs []memory.Range) *Search {
	return o.newSearch(p, segs, nil)
}

func (o *Context) newSearch(p Pattern, segs []memory.Range, err error) *Search {
	if err == nil && p.Len() == 0 {
		err = ErrEmptyPattern
	}

	return &Search{
		ctx:      o,
		pattern:  p,
		segments: segs,
		err:      err,
	}
}

// verifiedHints returns the hint addresses for p that lie within segs
// and still match, in scan order. If a hint within segs no longer
// matches, the memory changed since it was recorded. Every hint for p
// is forgotten along with the segments scanned for it, and nil is
// returned.
func (o *Context) verifiedHints(p Pattern, segs []memory.Range) []uintptr {
	candidates := o.config.OptHints.Lookup(p.hash)
	if len(candidates) == 0 {
		return nil
	}

	type scanPos struct {
		segment int
		addr    uintptr
	}

	var verified []scanPos
	for _, addr := range candidates {
		index := segmentIndex(segs, addr, uintptr(p.Len()))
		if index < 0 {
			continue
		}

		b, err := o.config.Space.Bytes(addr, p.Len())
		if err != nil || !p.MatchAt(b) {
			if o.config.OptLogger != nil {
				o.config.OptLogger.Printf("pattern 0x%016x: hint 0x%x is stale - forgetting %d hints",
					p.hash, addr, len(candidates))
			}

			o.config.OptHints.Forget(p.hash)
			delete(o.scanned, p.hash)

			return nil
		}

		verified = append(verified, scanPos{segment: index, addr: addr})
	}

	sort.Slice(verified, func(i, j int) bool {
		if verified[i].segment != verified[j].segment {
			return verified[i].segment < verified[j].segment
		}

		return verified[i].addr < verified[j].addr
	})

	if o.config.OptLogger != nil {
		o.config.OptLogger.Printf("pattern 0x%016x: %d of %d hints verified",
			p.hash, len(verified), len(candidates))
	}

	addrs := make([]uintptr, len(verified))
	for i, pos := range verified {
		addrs[i] = pos.addr
	}

	return addrs
}

// segmentIndex returns the index of the first segment that contains
// the n bytes at addr, or -1.
func segmentIndex(segs []memory.Range, addr uintptr, n uintptr) int {
	for i, seg := range segs {
		if seg.Contains(addr, n) {
			return i
		}
	}

	return -1
}

// hintsComplete returns true if the hints for p can be trusted to
// hold every match in segs. Hints that were seeded by the caller,
// rather than recorded by a scan, are always trusted.
func (o *Context) hintsComplete(p Pattern, segs []memory.Range) bool {
	covered, scanned := o.scanned[p.hash]
	if !scanned {
		return true
	}

	for _, seg := range segs {
		if seg.Len() < uintptr(p.Len()) {
			continue
		}

		_, found := memory.FindRange(covered, seg.Start, seg.Len())
		if !found {
			return false
		}
	}

	return true
}

// hintsLead returns true if hints, which are in scan order, start with
// the first n matches in segs. That is the case when a previous scan
// covered every byte that a full scan of segs would visit before
// reaching the n-th hint.
func (o *Context) hintsLead(p Pattern, segs []memory.Range, hints []uintptr, n int) bool {
	if n <= 0 || len(hints) < n {
		return false
	}

	covered, scanned := o.scanned[p.hash]
	if !scanned {
		return true
	}

	last := hints[n-1]
	size := uintptr(p.Len())

	for _, seg := range segs {
		if seg.Contains(last, size) {
			_, found := memory.FindRange(covered, seg.Start, last+size-seg.Start)
			return found
		}

		if seg.Len() < size {
			continue
		}

		_, found := memory.FindRange(covered, seg.Start, seg.Len())
		if !found {
			return false
		}
	}

	return false
}

// fullScan scans segs for p, recording every match as a hint.
// A max of zero or less is unbounded. The boolean is true if
// scanning stopped because max was reached.
func (o *Context) fullScan(p Pattern, segs []memory.Range, max int) ([]uintptr, bool, error) {
	o.fullScans++

	if _, scanned := o.scanned[p.hash]; !scanned {
		o.scanned[p.hash] = nil
	}

	if o.config.OptLogger != nil {
		o.config.OptLogger.Printf("pattern 0x%016x: scanning %d segments for '%s'",
			p.hash, len(segs), p)
	}

	table := newShiftTable(p)

	var matches []uintptr
	onMatch := func(addr uintptr) bool {
		matches = append(matches, addr)
		o.config.OptHints.Hint(p.hash, addr)
		return max > 0 && len(matches) >= max
	}

	for _, seg := range segs {
		if seg.Len() < uintptr(p.Len()) {
			continue
		}

		data, err := o.config.Space.Bytes(seg.Start, int(seg.Len()))
		if err != nil {
			return nil, false, fmt.Errorf("failed to read scan segment %s - %w", seg, err)
		}

		if scan(p, table, data, seg.Start, onMatch) {
			return matches, true, nil
		}
	}

	o.scanned[p.hash] = append(o.scanned[p.hash], segs...)

	return matches, false, nil
}
