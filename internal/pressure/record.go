package pressure

import (
	"encoding/json"
	"time"
)

var origin = time.Now()

// Now returns the current time on the package's monotonic clock, in
// milliseconds since an arbitrary but fixed origin.
func Now() float64 {
	return float64(time.Since(origin)) / float64(time.Millisecond)
}

// Record is an immutable observation of a source's pressure state.
// Consecutive records for one source never repeat the same state; the
// timestamp alone never makes two records distinct.
type Record struct {
	Source Source
	State  State
	Time   float64
}

// NewRecord constructs a record with an explicit timestamp.
func NewRecord(source Source, state State, timestamp float64) Record {
	return Record{
		Source: source,
		State:  state,
		Time:   timestamp,
	}
}

// MarshalJSON serializes exactly the source, state and time fields.
func (r Record) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Source string  `json:"source"`
		State  string  `json:"state"`
		Time   float64 `json:"time"`
	}{
		Source: r.Source.String(),
		State:  r.State.String(),
		Time:   r.Time,
	})
}
