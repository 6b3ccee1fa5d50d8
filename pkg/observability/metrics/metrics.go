package metrics

import (
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
)

var (
	uploadsReceived      atomic.Int64
	uploadsRejected      atomic.Int64
	assessmentsCompleted atomic.Int64
	assessmentsFailed    atomic.Int64
	parseRejections      atomic.Int64
	recordsSkipped       atomic.Int64
	scorerFallbacks      atomic.Int64
	cacheHits            atomic.Int64
)

func IncUploadsReceived()      { uploadsReceived.Add(1) }
func IncUploadsRejected()      { uploadsRejected.Add(1) }
func IncAssessmentsCompleted() { assessmentsCompleted.Add(1) }
func IncAssessmentsFailed()    { assessmentsFailed.Add(1) }
func IncParseRejections()      { parseRejections.Add(1) }
func IncScorerFallbacks()      { scorerFallbacks.Add(1) }
func IncCacheHits()            { cacheHits.Add(1) }

func AddRecordsSkipped(n int) {
	if n > 0 {
		recordsSkipped.Add(int64(n))
	}
}

type Snapshot struct {
	UploadsReceived      int64 `json:"uploads_received"`
	UploadsRejected      int64 `json:"uploads_rejected"`
	AssessmentsCompleted int64 `json:"assessments_completed"`
	AssessmentsFailed    int64 `json:"assessments_failed"`
	ParseRejections      int64 `json:"parse_rejections"`
	RecordsSkipped       int64 `json:"records_skipped"`
	ScorerFallbacks      int64 `json:"scorer_fallbacks"`
	CacheHits            int64 `json:"cache_hits"`
}

func Current() Snapshot {
	return Snapshot{
		UploadsReceived:      uploadsReceived.Load(),
		UploadsRejected:      uploadsRejected.Load(),
		AssessmentsCompleted: assessmentsCompleted.Load(),
		AssessmentsFailed:    assessmentsFailed.Load(),
		ParseRejections:      parseRejections.Load(),
		RecordsSkipped:       recordsSkipped.Load(),
		ScorerFallbacks:      scorerFallbacks.Load(),
		CacheHits:            cacheHits.Load(),
	}
}

type counter struct {
	name  string
	help  string
	value int64
}

func WritePrometheus(w io.Writer) {
	s := Current()
	counters := []counter{
		{"geririsk_uploads_received_total", "Uploaded files accepted for storage.", s.UploadsReceived},
		{"geririsk_uploads_rejected_total", "Uploads rejected by validation before processing.", s.UploadsRejected},
		{"geririsk_assessments_completed_total", "Pipelines that produced aggregates and risk scores.", s.AssessmentsCompleted},
		{"geririsk_assessments_failed_total", "Pipelines that ended in a request-level error.", s.AssessmentsFailed},
		{"geririsk_csv_parse_rejections_total", "Files rejected for structural CSV errors.", s.ParseRejections},
		{"geririsk_records_skipped_total", "Records dropped by the preprocessor.", s.RecordsSkipped},
		{"geririsk_scorer_fallbacks_total", "Risk scorer failures degraded to default low-risk output.", s.ScorerFallbacks},
		{"geririsk_assessment_cache_hits_total", "Assessments served from the result cache.", s.CacheHits},
	}
	for _, c := range counters {
		fmt.Fprintf(w, "# HELP %s %s\n", c.name, c.help)
		fmt.Fprintf(w, "# TYPE %s counter\n", c.name)
		fmt.Fprintf(w, "%s %d\n", c.name, c.value)
	}
}

func Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		WritePrometheus(w)
	})
}
