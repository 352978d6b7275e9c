package ledger

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// stamp is the on-disk form of an insertion time: an RFC 3339 string with
// nanoseconds. Ledgers written by the old tooling store
// {"__type__": "seconds", "seconds": <unix float>} instead; both load.
type stamp time.Time

type legacyStamp struct {
	Type    string  `json:"__type__"`
	Seconds float64 `json:"seconds"`
}

func (s stamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Time(s).Format(time.RFC3339Nano))
}

func (s *stamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '{' {
		var legacy legacyStamp
		if err := json.Unmarshal(data, &legacy); err != nil {
			return err
		}
		if legacy.Type != "seconds" {
			return fmt.Errorf("unsupported timestamp type %q", legacy.Type)
		}
		sec, frac := math.Modf(legacy.Seconds)
		*s = stamp(time.Unix(int64(sec), int64(frac*1e9)))
		return nil
	}

	var text string
	if err := json.Unmarshal(data, &text); err != nil {
		return err
	}
	t, err := time.Parse(time.RFC3339Nano, text)
	if err != nil {
		return err
	}
	*s = stamp(t)
	return nil
}
