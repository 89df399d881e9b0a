package classes

// Counts holds a non-negative count per known class.
type Counts map[Class]int

// Percentages holds a share in [0, 100] per known class.
type Percentages map[Class]float64

// NewCounts returns counts with every known class present and zero.
func NewCounts() Counts {
	c := make(Counts, len(Known))
	for _, k := range Known {
		c[k] = 0
	}
	return c
}

// Add increments the count for class. Unrecognized classes are ignored.
func (c Counts) Add(class Class) {
	if !class.IsKnown() {
		return
	}
	c[class]++
}

// Merge adds the known-class entries of other into c. Keys outside the known set
// are ignored.
func (c Counts) Merge(other Counts) {
	for _, k := range Known {
		c[k] += other[k]
	}
}

// Get returns the count for class, zero when absent.
func (c Counts) Get(class Class) int {
	return c[class]
}

// Total returns the sum over the known classes.
func (c Counts) Total() int {
	total := 0
	for _, k := range Known {
		total += c[k]
	}
	return total
}

// Percentages derives per-class shares from the counts.
//
// Each known class gets 100 * count / total. When total is zero every class
// gets 0.0.
func (c Counts) Percentages() Percentages {
	p := make(Percentages, len(Known))
	total := c.Total()
	for _, k := range Known {
		if total == 0 {
			p[k] = 0.0
			continue
		}
		p[k] = float64(c[k]) / float64(total) * 100
	}
	return p
}

// Get returns the percentage for class, zero when absent.
func (p Percentages) Get(class Class) float64 {
	return p[class]
}

// Sum returns the sum over the known classes.
func (p Percentages) Sum() float64 {
	var sum float64
	for _, k := range Known {
		sum += p[k]
	}
	return sum
}
