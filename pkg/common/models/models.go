package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Event Bus models
type Event struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"` // episode.updated, product_request.updated, ivr.mapping.completed
	Source    string                 `json:"source"`
	Data      map[string]interface{} `json:"data"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]string      `json:"metadata,omitempty"`
}

const (
	EventEpisodeUpdated        = "episode.updated"
	EventProductRequestUpdated = "product_request.updated"
	EventMappingCompleted      = "ivr.mapping.completed"
	EventSubmissionCreated     = "ivr.submission.created"
)

// FactMap is the flat snake_case view of everything known about one episode.
type FactMap map[string]interface{}

func (f FactMap) Has(key string) bool {
	v, ok := f[key]
	return ok && !IsEmpty(v)
}

// String renders a scalar fact; missing keys and nil values give "".
func (f FactMap) String(key string) string {
	return Stringify(f[key])
}

func (f FactMap) Float(key string) (float64, bool) {
	return ToFloat(f[key])
}

func (f FactMap) Int(key string) int {
	v, ok := ToFloat(f[key])
	if !ok {
		return 0
	}
	return int(v)
}

// Merge copies other into f, overwriting existing keys.
func (f FactMap) Merge(other map[string]interface{}) FactMap {
	for k, v := range other {
		f[k] = v
	}
	return f
}

func (f FactMap) Clone() FactMap {
	out := make(FactMap, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

func IsEmpty(v interface{}) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(val) == ""
	case []interface{}:
		return len(val) == 0
	case []string:
		return len(val) == 0
	case map[string]interface{}:
		return len(val) == 0
	default:
		return false
	}
}

func Stringify(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case bool:
		return strconv.FormatBool(val)
	case time.Time:
		return val.Format("2006-01-02")
	case fmt.Stringer:
		return strings.TrimSpace(val.String())
	default:
		return strings.TrimSpace(fmt.Sprintf("%v", val))
	}
}

func ToFloat(v interface{}) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case int32:
		return float64(val), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
