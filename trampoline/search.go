package trampoline

import (
	"errors"
	"fmt"

	"gitlab.com/stephen-fox/sigkit/memory"
)

// reserveNear reserves one allocation granularity unit of RWX memory
// within reach of anchor. Free regions at or above anchor are tried
// first, in increasing address order, followed by free regions below
// it in decreasing order.
//
// A failed reservation moves on to the next region. A failed query
// other than one beyond the edge of the address space is returned
// as an error.
func (o *Registry) reserveNear(anchor uintptr) (uintptr, error) {
	base, found, err := o.searchUp(anchor)
	if err != nil {
		return 0, err
	}

	if found {
		return base, nil
	}

	base, found, err = o.searchDown(anchor)
	if err != nil {
		return 0, err
	}

	if found {
		return base, nil
	}

	return 0, fmt.Errorf("anchor 0x%x - %w", anchor, ErrNoReachableSpace)
}

func (o *Registry) searchUp(anchor uintptr) (uintptr, bool, error) {
	g := o.granularity
	cur := anchor

	for {
		region, err := o.config.VM.Query(cur)
		if err != nil {
			if errors.Is(err, memory.ErrOutOfAddressSpace) {
				return 0, false, nil
			}

			return 0, false, fmt.Errorf("failed to query region at 0x%x - %w", cur, err)
		}

		if region.State == memory.RegionFree {
			candidate := alignUp(cur, g)
			if candidate >= cur && candidate+g > candidate && candidate+g <= region.End() {
				if !Reachable(candidate+g-1, anchor) {
					return 0, false, nil
				}

				if o.tryReserve(candidate) {
					return candidate, true, nil
				}
			}
		}

		next := region.End()
		if next <= cur || !Reachable(next, anchor) {
			return 0, false, nil
		}

		cur = next
	}
}

func (o *Registry) searchDown(anchor uintptr) (uintptr, bool, error) {
	g := o.granularity
	cur := anchor

	for {
		region, err := o.config.VM.Query(cur)
		if err != nil {
			if errors.Is(err, memory.ErrOutOfAddressSpace) {
				return 0, false, nil
			}

			return 0, false, fmt.Errorf("failed to query region at 0x%x - %w", cur, err)
		}

		if region.State == memory.RegionFree {
			limit := region.End()
			if limit > anchor {
				limit = anchor
			}

			if limit >= g {
				candidate := alignDown(limit-g, g)
				if candidate >= region.Base {
					if !Reachable(candidate, anchor) {
						return 0, false, nil
					}

					if o.tryReserve(candidate) {
						return candidate, true, nil
					}
				}
			}
		}

		if region.Base == 0 || !Reachable(region.Base-1, anchor) {
			return 0, false, nil
		}

		cur = region.Base - 1
	}
}

func (o *Registry) tryReserve(addr uintptr) bool {
	_, err := o.config.VM.ReserveAndCommit(addr, o.granularity, memory.ProtRWX)
	if err != nil {
		if o.config.OptLogger != nil {
			o.config.OptLogger.Printf("failed to reserve trampoline block at 0x%x - %s", addr, err)
		}

		return false
	}

	return true
}
