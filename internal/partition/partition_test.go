package partition

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
)

func sum(xs []int) int {
	total := 0
	for _, x := range xs {
		total += x
	}
	return total
}

func TestPartition_EvenSplit(t *testing.T) {
	p := New(24, 48)

	expected := make([]int, 24)
	for i := range expected {
		expected[i] = 2
	}

	assert.Equal(t, expected, p.Slots())
	assert.Equal(t, p.Total(), sum(p.Slots()))
}

func TestPartition_UnevenSplit(t *testing.T) {
	p := New(2, 5)

	assert.Equal(t, 2, p.Split())
	assert.Equal(t, 1, p.Remaining())
	assert.Equal(t, []int{2, 3}, p.Slots())
	assert.Equal(t, p.Total(), sum(p.Slots()))
}

func TestPartition_TotalSmallerThanInterval(t *testing.T) {
	p := New(2, 1)

	assert.Equal(t, []int{1, 0}, p.Slots())
	assert.Equal(t, p.Total(), sum(p.Slots()))
}

func TestPartition_FrontLoadsSmallTotals(t *testing.T) {
	p := New(24, 5)

	slots := p.Slots()
	assert.Len(t, slots, 24)
	assert.Equal(t, 5, slots[0])
	for i := 1; i < len(slots); i++ {
		assert.Zero(t, slots[i], "slot %d", i)
	}
}

func TestPartition_ZeroTotal(t *testing.T) {
	p := New(24, 0)

	assert.Len(t, p.Slots(), 24)
	assert.Zero(t, sum(p.Slots()))
}

func TestPartition_At(t *testing.T) {
	p := New(2, 5)

	assert.Equal(t, 2, p.At(0))
	assert.Equal(t, 3, p.At(1))
}

func TestPartition_SlotsAreCached(t *testing.T) {
	p := New(24, 48)

	first := p.Slots()
	second := p.Slots()
	assert.Equal(t, &first[0], &second[0], "expected the same backing array")
}

func TestPartition_Properties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("slot counts sum to the total", prop.ForAll(
		func(interval, total int) bool {
			p := New(interval, total)
			return sum(p.Slots()) == total
		},
		gen.IntRange(1, 100),
		gen.IntRange(0, 10000),
	))

	properties.Property("slot count equals the interval", prop.ForAll(
		func(interval, total int) bool {
			p := New(interval, total)
			return len(p.Slots()) == interval
		},
		gen.IntRange(1, 100),
		gen.IntRange(0, 10000),
	))

	properties.Property("no slot is negative", prop.ForAll(
		func(interval, total int) bool {
			for _, n := range New(interval, total).Slots() {
				if n < 0 {
					return false
				}
			}
			return true
		},
		gen.IntRange(1, 100),
		gen.IntRange(0, 10000),
	))

	properties.TestingRun(t)
}
