// Package partition computes how a backlog of refresh work is spread
// across a fixed number of scheduling slots, typically the 24 hours of
// a day. Spreading the backlog keeps the bulk refresh sweep from
// enqueuing every stale record at once.
package partition

// Partition divides a total item count across a fixed number of slots.
// The division is as even as integer arithmetic allows: any remainder
// is absorbed by the last slot so that the slot counts always sum to
// the total.
type Partition struct {
	interval int
	total    int

	slots []int
}

// New creates a Partition of total items across interval slots.
// interval must be positive and total non-negative.
func New(interval, total int) *Partition {
	return &Partition{interval: interval, total: total}
}

// Interval returns the number of slots.
func (p *Partition) Interval() int { return p.interval }

// Total returns the number of items being partitioned.
func (p *Partition) Total() int { return p.total }

// Split returns the per-slot item count before remainder handling.
// When the total does not fill a single slot per item, the whole total
// lands in the first slot.
func (p *Partition) Split() int {
	if p.total < p.interval {
		return p.total
	}
	return p.total / p.interval
}

// Remaining returns the items left over after an even split.
func (p *Partition) Remaining() int {
	return p.total % p.interval
}

// Slots returns the per-slot item counts. The slice has exactly
// Interval() entries and sums to Total(). The computation is cached;
// both inputs are fixed at construction.
func (p *Partition) Slots() []int {
	if p.slots != nil {
		return p.slots
	}

	slots := make([]int, p.interval)
	switch {
	case p.total < p.interval:
		// Not enough items to fill one per slot: front-load slot 0.
		slots[0] = p.total
	case p.Remaining() == 0:
		for i := range slots {
			slots[i] = p.Split()
		}
	default:
		// Uneven: the last slot absorbs the remainder so the sum
		// stays exact.
		split := p.Split()
		sum := 0
		for i := 0; i < p.interval-1; i++ {
			slots[i] = split
			sum += split
		}
		slots[p.interval-1] = p.total - sum
	}

	p.slots = slots
	return p.slots
}

// At returns the item count for the given slot index.
func (p *Partition) At(index int) int {
	return p.Slots()[index]
}
