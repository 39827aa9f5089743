package pulled

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Key is a dimension key: a comparable struct of small integer and
// boolean fields that renders itself as pulled values.
type Key interface {
	comparable
	Values() []int64
}

// Value is an aggregate that renders itself as pulled values.
type Value interface {
	Values() []int64
}

// Entry is one persisted (key, aggregate) pair.
type Entry[K Key, A Value] struct {
	Key   K `cbor:"1,keyasint"`
	Value A `cbor:"2,keyasint"`
}

// Snapshot is the unit of persistence for one metric: every entry in
// store order plus the metric-wide last pull timestamp.
type Snapshot[K Key, A Value] struct {
	PullTimestampMillis int64         `cbor:"1,keyasint"`
	Entries             []Entry[K, A] `cbor:"2,keyasint"`
}

// IsEmpty reports whether the snapshot has no entries.
func (s Snapshot[K, A]) IsEmpty() bool {
	return len(s.Entries) == 0
}

// encMode is the CBOR encoder configured with Core Deterministic
// Encoding: the same snapshot always produces identical bytes.
var encMode cbor.EncMode

var decMode cbor.DecMode

func init() {
	var err error

	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("pulled: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		MaxArrayElements: 1 << 20,
	}.DecMode()
	if err != nil {
		panic("pulled: CBOR decoder initialization failed: " + err.Error())
	}
}

// EncodeSnapshot serializes s to CBOR.
func EncodeSnapshot[K Key, A Value](s Snapshot[K, A]) ([]byte, error) {
	data, err := encMode.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encoding snapshot: %w", err)
	}

	return data, nil
}

// DecodeSnapshot parses a CBOR snapshot.
func DecodeSnapshot[K Key, A Value](data []byte) (Snapshot[K, A], error) {
	var s Snapshot[K, A]

	if err := decMode.Unmarshal(data, &s); err != nil {
		return Snapshot[K, A]{}, fmt.Errorf("decoding snapshot: %w", err)
	}

	return s, nil
}
