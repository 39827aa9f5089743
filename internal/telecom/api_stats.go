package telecom

import (
	"github.com/ethpandaops/callmetrics/internal/aggregate"
	"github.com/ethpandaops/callmetrics/internal/pulled"
)

// APIKey is the API stats dimension.
type APIKey struct {
	API    APIName   `cbor:"1,keyasint"`
	UID    int64     `cbor:"2,keyasint"`
	Result APIResult `cbor:"3,keyasint"`
}

// Values returns [api_name, uid, api_result].
func (k APIKey) Values() []int64 {
	return []int64{int64(k.API), k.UID, int64(k.Result)}
}

// APIStats counts public API calls by caller and result.
type APIStats struct {
	*pulled.Metric[APIKey, aggregate.Counter]
}

// NewAPIStats creates the API stats metric and loads its snapshot.
func NewAPIStats(opts Options) *APIStats {
	return &APIStats{
		Metric: pulled.NewMetric[APIKey, aggregate.Counter](IDAPIStats, NameAPIStats, opts.metricOptions()),
	}
}

// Log counts one call to api by uid with result.
func (s *APIStats) Log(api APIName, uid int64, result APIResult) {
	key := APIKey{API: api.normalize(), UID: uid, Result: result.normalize()}

	s.Post(func() {
		s.Update(key, aggregate.Counter.Inc)
	})
}
