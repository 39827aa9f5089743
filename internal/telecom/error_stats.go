package telecom

import (
	"github.com/ethpandaops/callmetrics/internal/aggregate"
	"github.com/ethpandaops/callmetrics/internal/pulled"
)

// ErrorKey is the error stats dimension.
type ErrorKey struct {
	Module SubModule `cbor:"1,keyasint"`
	Error  ErrorName `cbor:"2,keyasint"`
}

// Values returns [sub_module, error_name].
func (k ErrorKey) Values() []int64 {
	return []int64{int64(k.Module), int64(k.Error)}
}

// ErrorStats counts errors by reporting module.
type ErrorStats struct {
	*pulled.Metric[ErrorKey, aggregate.Counter]
}

// NewErrorStats creates the error stats metric and loads its snapshot.
func NewErrorStats(opts Options) *ErrorStats {
	return &ErrorStats{
		Metric: pulled.NewMetric[ErrorKey, aggregate.Counter](IDErrorStats, NameErrorStats, opts.metricOptions()),
	}
}

// Log counts one occurrence of err in module.
func (s *ErrorStats) Log(module SubModule, err ErrorName) {
	key := ErrorKey{Module: module.normalize(), Error: err.normalize()}

	s.Post(func() {
		s.Update(key, aggregate.Counter.Inc)
	})
}
