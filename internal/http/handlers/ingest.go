package handlers

import (
	"strconv"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
	"gorm.io/datatypes"

	"originmetrics/internal/apperr"
	dbpkg "originmetrics/internal/db"
)

const maxPathLength = 2048

// IngestEvent is one observed request as reported by an integration.
type IngestEvent struct {
	APIKey string `json:"apiKey,omitempty"`

	Path         string `json:"path"`
	Method       string `json:"method"`
	StatusCode   *int   `json:"statusCode,omitempty"`
	TimeMillis   *int64 `json:"timeMillis"`
	RequestSize  int64  `json:"requestSize"`
	ResponseSize int64  `json:"responseSize"`

	CPUUsage    *float64 `json:"cpuUsage,omitempty"`
	MemoryUsage *float64 `json:"memoryUsage,omitempty"`

	Browser            *string `json:"browser,omitempty"`
	OS                 *string `json:"os,omitempty"`
	Device             *string `json:"device,omitempty"`
	Country            *string `json:"country,omitempty"`
	CountryCode        *string `json:"countryCode,omitempty"`
	Region             *string `json:"region,omitempty"`
	City               *string `json:"city,omitempty"`
	Integration        *string `json:"integration,omitempty"`
	IntegrationVersion *string `json:"integrationVersion,omitempty"`

	Attributes map[string]any `json:"attributes,omitempty"`
	Timestamp  *time.Time     `json:"timestamp,omitempty"`
}

// Validate reports the first missing or malformed required field.
func (e *IngestEvent) Validate() error {
	switch {
	case strings.TrimSpace(e.Path) == "":
		return apperr.Invalid("path is required")
	case !strings.HasPrefix(e.Path, "/"):
		return apperr.Invalid("path must start with /")
	case len(e.Path) > maxPathLength:
		return apperr.Invalid("path must be at most %d bytes", maxPathLength)
	case strings.TrimSpace(e.Method) == "":
		return apperr.Invalid("method is required")
	case e.TimeMillis == nil:
		return apperr.Invalid("timeMillis is required")
	case *e.TimeMillis < 0:
		return apperr.Invalid("timeMillis must not be negative")
	case e.RequestSize < 0 || e.ResponseSize < 0:
		return apperr.Invalid("sizes must not be negative")
	case e.StatusCode != nil && (*e.StatusCode < 100 || *e.StatusCode > 599):
		return apperr.Invalid("statusCode must be between 100 and 599")
	}
	return nil
}

func optional(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

// Metric converts e into a row for originID. The query string is dropped
// from the path and timestamps in the future are replaced by now.
func (e *IngestEvent) Metric(originID string, now time.Time) *dbpkg.Metric {
	path, _, _ := strings.Cut(e.Path, "?")

	createdAt := now
	if e.Timestamp != nil && !e.Timestamp.IsZero() && e.Timestamp.Before(now) {
		createdAt = *e.Timestamp
	}

	attrs := datatypes.JSONMap{}
	for k, v := range e.Attributes {
		attrs[k] = v
	}

	return &dbpkg.Metric{
		CreatedAt:          createdAt.UTC(),
		OriginID:           originID,
		Path:               path,
		Method:             strings.ToUpper(strings.TrimSpace(e.Method)),
		StatusCode:         e.StatusCode,
		ResponseTime:       *e.TimeMillis,
		RequestSize:        e.RequestSize,
		ResponseSize:       e.ResponseSize,
		CPUUsage:           e.CPUUsage,
		MemoryUsage:        e.MemoryUsage,
		Browser:            optional(e.Browser),
		OS:                 optional(e.OS),
		Device:             optional(e.Device),
		Country:            optional(e.Country),
		CountryCode:        optional(e.CountryCode),
		Region:             optional(e.Region),
		City:               optional(e.City),
		Integration:        optional(e.Integration),
		IntegrationVersion: optional(e.IntegrationVersion),
		Attributes:         attrs,
	}
}

// Ingest appends one metric to the origin resolved by APIKeyAuth.
func Ingest(store Store) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		origin, ok := MustOrigin(ctx)
		if !ok {
			return
		}

		var ev IngestEvent
		if err := decodeJSON(ctx, &ev); err != nil {
			errResponse(ctx, err)
			return
		}
		if err := ev.Validate(); err != nil {
			errResponse(ctx, err)
			return
		}

		m := ev.Metric(origin.ID, time.Now())
		res, err := store.InsertMetric(ctx, m)
		if err != nil {
			errResponse(ctx, err)
			return
		}

		status := "unknown"
		if m.StatusCode != nil {
			status = strconv.Itoa(*m.StatusCode)
		}
		ingestedTotal.WithLabelValues(origin.ID, m.Method, status).Inc()
		ingestedSeconds.WithLabelValues(origin.ID, m.Method).Observe(float64(m.ResponseTime) / 1000.0)

		jsonResponse(ctx, fasthttp.StatusAccepted, map[string]any{
			"endpoint": res.Endpoint,
			"excluded": res.Excluded,
		})
	}
}
