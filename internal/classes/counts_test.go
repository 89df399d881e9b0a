package classes

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewCounts(t *testing.T) {
	c := NewCounts()
	assert.Len(t, c, 3)
	for _, k := range Known {
		v, ok := c[k]
		assert.True(t, ok, "missing %s", k)
		assert.Zero(t, v)
	}
}

func TestCounts_AddIgnoresUnrecognized(t *testing.T) {
	c := NewCounts()
	c.Add(RBC)
	c.Add(RBC)
	c.Add(Platelets)
	c.Add(Unrecognized)

	assert.Equal(t, 2, c.Get(RBC))
	assert.Equal(t, 0, c.Get(WBC))
	assert.Equal(t, 1, c.Get(Platelets))
	assert.Equal(t, 3, c.Total())
	_, ok := c[Unrecognized]
	assert.False(t, ok)
}

func TestCounts_Percentages(t *testing.T) {
	c := Counts{RBC: 6, WBC: 3, Platelets: 1}
	p := c.Percentages()

	assert.InDelta(t, 60.0, p.Get(RBC), 1e-9)
	assert.InDelta(t, 30.0, p.Get(WBC), 1e-9)
	assert.InDelta(t, 10.0, p.Get(Platelets), 1e-9)
	assert.InDelta(t, 100.0, p.Sum(), 1e-6)
}

func TestCounts_PercentagesZeroTotal(t *testing.T) {
	p := NewCounts().Percentages()
	assert.Len(t, p, 3)
	for _, k := range Known {
		assert.Equal(t, 0.0, p.Get(k))
	}
}

func TestCounts_PercentagesSumToHundred(t *testing.T) {
	cases := []Counts{
		{RBC: 1, WBC: 1, Platelets: 1},
		{RBC: 7, WBC: 0, Platelets: 0},
		{RBC: 13, WBC: 29, Platelets: 3},
	}
	for _, c := range cases {
		assert.InDelta(t, 100.0, c.Percentages().Sum(), 1e-6)
	}
}

func TestCounts_MergeIgnoresExtraKeys(t *testing.T) {
	total := NewCounts()
	total.Merge(Counts{RBC: 2, WBC: 1, Unrecognized: 5, Class(99): 4})
	total.Merge(Counts{Platelets: 3})

	assert.Equal(t, Counts{RBC: 2, WBC: 1, Platelets: 3}, total)
}
