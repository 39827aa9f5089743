package telecom

import (
	"context"
	"time"

	"github.com/ethpandaops/callmetrics/internal/aggregate"
	"github.com/ethpandaops/callmetrics/internal/pulled"
)

// CallKey is the call stats dimension.
type CallKey struct {
	Direction              Direction   `cbor:"1,keyasint"`
	External               bool        `cbor:"2,keyasint"`
	Emergency              bool        `cbor:"3,keyasint"`
	MultipleAudioAvailable bool        `cbor:"4,keyasint"`
	AccountType            AccountType `cbor:"5,keyasint"`
	UID                    int64       `cbor:"6,keyasint"`
}

// Values returns [call_direction, external_call, emergency_call,
// multiple_audio_available, account_type, uid].
func (k CallKey) Values() []int64 {
	return []int64{
		int64(k.Direction),
		boolValue(k.External),
		boolValue(k.Emergency),
		boolValue(k.MultipleAudioAvailable),
		int64(k.AccountType),
		k.UID,
	}
}

// Call is a finished call as reported by the call lifecycle.
type Call struct {
	ID           string
	Direction    Direction
	External     bool
	Emergency    bool
	Capabilities Capability
	UID          int64
	Age          time.Duration
}

// CallStats averages call duration by call attributes.
//
// Ongoing calls are split by whether multiple audio devices were
// available. When devices become available every ongoing call moves to
// the with-multiple set and stays there; a call never moves back.
type CallStats struct {
	*pulled.Metric[CallKey, aggregate.RunningAverage]

	// Owned by the queue.
	hasMultipleAudioDevices bool
	withMultiple            map[string]struct{}
	withoutMultiple         map[string]struct{}
}

// NewCallStats creates the call stats metric and loads its snapshot.
func NewCallStats(opts Options) *CallStats {
	return &CallStats{
		Metric: pulled.NewMetric[CallKey, aggregate.RunningAverage](
			IDCallStats, NameCallStats, opts.metricOptions(),
		),
		withMultiple:    make(map[string]struct{}, 4),
		withoutMultiple: make(map[string]struct{}, 4),
	}
}

// Log folds one call duration into the average for its attributes.
func (s *CallStats) Log(key CallKey, duration time.Duration) {
	key.Direction = key.Direction.normalize()
	key.AccountType = key.AccountType.normalize()

	s.Post(func() {
		s.add(key, duration)
	})
}

// OnCallStart tracks a call under the current audio device condition.
func (s *CallStats) OnCallStart(callID string) {
	s.Post(func() {
		if s.hasMultipleAudioDevices {
			s.withMultiple[callID] = struct{}{}
		} else {
			s.withoutMultiple[callID] = struct{}{}
		}
	})
}

// OnCallEnd logs the call duration. The multiple-audio dimension comes
// from the set the call was last tracked in.
func (s *CallStats) OnCallEnd(call Call) {
	key := CallKey{
		Direction:   call.Direction.normalize(),
		External:    call.External,
		Emergency:   call.Emergency,
		AccountType: AccountTypeOf(call.Capabilities),
		UID:         call.UID,
	}
	duration := call.Age

	s.Post(func() {
		_, key.MultipleAudioAvailable = s.withMultiple[call.ID]

		delete(s.withMultiple, call.ID)
		delete(s.withoutMultiple, call.ID)

		s.add(key, duration)
	})
}

// OnAudioDevicesChange records whether multiple audio devices are
// available.
func (s *CallStats) OnAudioDevicesChange(hasMultiple bool) {
	s.Post(func() {
		if s.hasMultipleAudioDevices == hasMultiple {
			return
		}

		s.hasMultipleAudioDevices = hasMultiple

		if !hasMultiple {
			return
		}

		for id := range s.withoutMultiple {
			s.withMultiple[id] = struct{}{}
		}

		clear(s.withoutMultiple)
	})
}

// OngoingCalls returns the number of tracked calls with and without
// multiple audio devices. Must not be called from a task.
func (s *CallStats) OngoingCalls(ctx context.Context) (withMultiple, withoutMultiple int, err error) {
	err = s.Do(ctx, func() {
		withMultiple = len(s.withMultiple)
		withoutMultiple = len(s.withoutMultiple)
	})

	return withMultiple, withoutMultiple, err
}

func (s *CallStats) add(key CallKey, duration time.Duration) {
	ms := duration.Milliseconds()

	s.Update(key, func(avg aggregate.RunningAverage) aggregate.RunningAverage {
		return avg.Add(ms)
	})
}
