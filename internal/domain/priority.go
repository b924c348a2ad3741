package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Priority is an active note's sort key. An unset priority sorts after
// every set one.
type Priority struct {
	Value int64
	Set   bool
}

func P(v int64) Priority {
	return Priority{Value: v, Set: true}
}

func (p Priority) Equal(o Priority) bool {
	if !p.Set || !o.Set {
		return p.Set == o.Set
	}
	return p.Value == o.Value
}

func (p Priority) String() string {
	if !p.Set {
		return ""
	}
	return strconv.FormatInt(p.Value, 10)
}

func (p Priority) MarshalJSON() ([]byte, error) {
	if !p.Set {
		return []byte(`""`), nil
	}
	return []byte(strconv.FormatInt(p.Value, 10)), nil
}

// UnmarshalJSON accepts numbers, numeric strings, "" and null.
func (p *Priority) UnmarshalJSON(b []byte) error {
	*p = Priority{}
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}

	raw := string(b)
	if b[0] == '"' {
		if err := json.Unmarshal(b, &raw); err != nil {
			return err
		}
		raw = strings.TrimSpace(raw)
		if raw == "" {
			return nil
		}
	}

	if v, err := strconv.ParseInt(raw, 10, 64); err == nil {
		*p = P(v)
		return nil
	}

	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Errorf("invalid priority %q", raw)
	}
	// float64(math.MaxInt64) rounds up to 2^63, which int64 cannot hold
	if f < math.MinInt64 || f >= math.MaxInt64 {
		return fmt.Errorf("priority %q out of range", raw)
	}
	*p = P(int64(f))
	return nil
}
