// Package aggregate holds the value types accumulated per dimension key
// and the insertion-ordered store that maps keys to them.
package aggregate

// Counter counts events. Used for API results and error occurrences.
type Counter struct {
	Count int64 `cbor:"1,keyasint"`
}

// Inc returns the counter incremented by one.
func (c Counter) Inc() Counter {
	c.Count++

	return c
}

// Values returns the pulled representation: [count].
func (c Counter) Values() []int64 {
	return []int64{c.Count}
}

// RunningAverage tracks a count and an incrementally updated mean.
// No samples are retained.
type RunningAverage struct {
	Count int64 `cbor:"1,keyasint"`
	Mean  int64 `cbor:"2,keyasint"`
}

// Add folds a sample into the average. The update uses truncating
// integer division so persisted means stay identical across restarts.
func (a RunningAverage) Add(sample int64) RunningAverage {
	a.Count++
	a.Mean += (sample - a.Mean) / a.Count

	return a
}

// Values returns the pulled representation: [count, mean].
func (a RunningAverage) Values() []int64 {
	return []int64{a.Count, a.Mean}
}
