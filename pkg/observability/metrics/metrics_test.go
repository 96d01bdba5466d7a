package metrics

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWritePrometheusIncludesCounters(t *testing.T) {
	CacheHit()
	FallbackMatch("fuzzy")
	MappingCompleted(false)

	rec := httptest.NewRecorder()
	WritePrometheus(rec)

	body := rec.Body.String()
	assert.Contains(t, body, "ivr_episode_cache_hits_total")
	assert.Contains(t, body, `ivr_fallback_matches_total{match_type="fuzzy"}`)
	assert.Contains(t, body, "ivr_mappings_invalid_total")
	assert.GreaterOrEqual(t, Read().MappingsInvalid, int64(1))
}
