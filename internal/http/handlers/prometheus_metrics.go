package handlers

import (
	"bytes"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"github.com/valyala/fasthttp"

	"originmetrics/internal/apperr"
)

const originLabel = "origin"

var (
	ingestedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "originmetrics",
			Name:      "ingested_requests_total",
			Help:      "Total number of ingested requests.",
		},
		[]string{originLabel, "method", "status"},
	)
	ingestedSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "originmetrics",
			Name:      "ingested_response_seconds",
			Help:      "Histogram of ingested response times in seconds.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{originLabel, "method"},
	)
	queryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "originmetrics",
			Name:      "aggregation_query_seconds",
			Help:      "Duration of aggregation queries by family.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"stat"},
	)

	registerOnce sync.Once
)

// InitPrometheusMetrics registers the collectors with the default registry.
// It is safe to call more than once.
func InitPrometheusMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(ingestedTotal, ingestedSeconds, queryDuration)
	})
}

func observeQuery(stat string, start time.Time) {
	queryDuration.WithLabelValues(stat).Observe(time.Since(start).Seconds())
}

// filterFamilies keeps the series labelled with originID. Families without
// an origin label are instance-wide and never shown to an origin.
func filterFamilies(families []*dto.MetricFamily, originID string) []*dto.MetricFamily {
	out := make([]*dto.MetricFamily, 0, len(families))
	for _, mf := range families {
		var kept []*dto.Metric
		for _, m := range mf.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == originLabel && l.GetValue() == originID {
					kept = append(kept, m)
					break
				}
			}
		}
		if len(kept) == 0 {
			continue
		}
		out = append(out, &dto.MetricFamily{
			Name:   mf.Name,
			Help:   mf.Help,
			Type:   mf.Type,
			Metric: kept,
		})
	}
	return out
}

// OriginPrometheusMetrics exposes the ingestion series of the origin
// resolved by APIKeyAuth in the Prometheus text format.
func OriginPrometheusMetrics() fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		origin, ok := MustOrigin(ctx)
		if !ok {
			return
		}

		families, err := prometheus.DefaultGatherer.Gather()
		if err != nil {
			errResponse(ctx, apperr.Wrap(err, "gather metrics"))
			return
		}

		var buf bytes.Buffer
		encoder := expfmt.NewEncoder(&buf, expfmt.FmtText)
		for _, mf := range filterFamilies(families, origin.ID) {
			if err := encoder.Encode(mf); err != nil {
				errResponse(ctx, apperr.Wrap(err, "encode metrics"))
				return
			}
		}

		ctx.SetContentType(string(expfmt.FmtText))
		ctx.Response.Header.Set("Cache-Control", "no-store")
		ctx.SetBody(buf.Bytes())
	}
}
