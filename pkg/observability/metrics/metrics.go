package metrics

import (
	"fmt"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
)

var (
	episodeCacheHits      atomic.Int64
	episodeCacheMisses    atomic.Int64
	extractionFailures    atomic.Int64
	clinicalLookupFailure atomic.Int64
	mappingsCompleted     atomic.Int64
	mappingsInvalid       atomic.Int64
	submissionsCreated    atomic.Int64
	submissionsFailed     atomic.Int64

	matchMu     sync.Mutex
	matchCounts = map[string]int64{}
)

func CacheHit() { episodeCacheHits.Add(1) }
func CacheMiss() { episodeCacheMisses.Add(1) }
func ExtractionFailed() { extractionFailures.Add(1) }
func ClinicalLookupFailed() { clinicalLookupFailure.Add(1) }
func SubmissionCreated() { submissionsCreated.Add(1) }
func SubmissionFailed() { submissionsFailed.Add(1) }

func MappingCompleted(valid bool) {
	mappingsCompleted.Add(1)
	if !valid {
		mappingsInvalid.Add(1)
	}
}

// FallbackMatch counts fields filled by the matcher, by match type.
func FallbackMatch(matchType string) {
	matchMu.Lock()
	matchCounts[matchType]++
	matchMu.Unlock()
}

type Snapshot struct {
	CacheHits       int64
	CacheMisses     int64
	ExtractionFails int64
	ClinicalFailed  int64
	Mappings        int64
	MappingsInvalid int64
	Submissions     int64
	SubmissionsFail int64
	Matches         map[string]int64
}

func Read() Snapshot {
	matchMu.Lock()
	matches := make(map[string]int64, len(matchCounts))
	for k, v := range matchCounts {
		matches[k] = v
	}
	matchMu.Unlock()

	return Snapshot{
		CacheHits:       episodeCacheHits.Load(),
		CacheMisses:     episodeCacheMisses.Load(),
		ExtractionFails: extractionFailures.Load(),
		ClinicalFailed:  clinicalLookupFailure.Load(),
		Mappings:        mappingsCompleted.Load(),
		MappingsInvalid: mappingsInvalid.Load(),
		Submissions:     submissionsCreated.Load(),
		SubmissionsFail: submissionsFailed.Load(),
		Matches:         matches,
	}
}

func Handler(w http.ResponseWriter, _ *http.Request) {
	WritePrometheus(w)
}

func WritePrometheus(w http.ResponseWriter) {
	s := Read()
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")

	counter(w, "ivr_episode_cache_hits_total", "Episode fact map cache hits.", s.CacheHits)
	counter(w, "ivr_episode_cache_misses_total", "Episode fact map cache misses.", s.CacheMisses)
	counter(w, "ivr_extraction_failures_total", "Episode extractions that failed.", s.ExtractionFails)
	counter(w, "ivr_clinical_lookup_failures_total", "External clinical data lookups that failed and were skipped.", s.ClinicalFailed)
	counter(w, "ivr_mappings_total", "Completed manufacturer field mappings.", s.Mappings)
	counter(w, "ivr_mappings_invalid_total", "Completed mappings with critical validation errors.", s.MappingsInvalid)
	counter(w, "ivr_submissions_total", "E-sign submissions created.", s.Submissions)
	counter(w, "ivr_submissions_failed_total", "E-sign submissions that failed.", s.SubmissionsFail)

	fmt.Fprintf(w, "# HELP ivr_fallback_matches_total Template fields filled by the field matcher.\n")
	fmt.Fprintf(w, "# TYPE ivr_fallback_matches_total counter\n")
	types := make([]string, 0, len(s.Matches))
	for k := range s.Matches {
		types = append(types, k)
	}
	sort.Strings(types)
	for _, k := range types {
		fmt.Fprintf(w, "ivr_fallback_matches_total{match_type=%q} %d\n", k, s.Matches[k])
	}
}

func counter(w http.ResponseWriter, name, help string, value int64) {
	fmt.Fprintf(w, "# HELP %s %s\n", name, help)
	fmt.Fprintf(w, "# TYPE %s counter\n", name)
	fmt.Fprintf(w, "%s %d\n", name, value)
}
