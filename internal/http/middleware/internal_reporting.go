package middleware

import (
	"encoding/json"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"originmetrics/internal/config"
)

// Version is reported as the integration version of self-reported traffic.
var Version = "dev"

// skipReporting lists paths whose traffic is never self-reported.
var skipReporting = map[string]bool{
	"/v1/events":  true,
	"/v1/metrics": true,
	"/healthz":    true,
	"/login":      true,
}

type internalEvent struct {
	Path               string `json:"path"`
	Method             string `json:"method"`
	StatusCode         int    `json:"statusCode"`
	TimeMillis         int64  `json:"timeMillis"`
	RequestSize        int64  `json:"requestSize"`
	ResponseSize       int64  `json:"responseSize"`
	Integration        string `json:"integration"`
	IntegrationVersion string `json:"integrationVersion"`
}

func newInternalEvent(ctx *fasthttp.RequestCtx, took time.Duration) internalEvent {
	return internalEvent{
		Path:               string(ctx.Path()),
		Method:             string(ctx.Method()),
		StatusCode:         ctx.Response.StatusCode(),
		TimeMillis:         took.Milliseconds(),
		RequestSize:        int64(len(ctx.Request.Body())),
		ResponseSize:       int64(len(ctx.Response.Body())),
		Integration:        "originmetrics",
		IntegrationVersion: Version,
	}
}

// InternalReporting reports this instance's own traffic to the ingestion
// endpoint at ingestURL under APP_INTERNAL_API_KEY. If the key is not set,
// this middleware does nothing.
func InternalReporting(cfg *config.Config, ingestURL string) func(fasthttp.RequestHandler) fasthttp.RequestHandler {
	if cfg.InternalAPIKey == "" {
		return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
			return next
		}
	}
	client := &fasthttp.Client{Name: "originmetrics-internal"}
	return reporting(func(body []byte) error {
		req := fasthttp.AcquireRequest()
		resp := fasthttp.AcquireResponse()
		defer fasthttp.ReleaseRequest(req)
		defer fasthttp.ReleaseResponse(resp)

		req.SetRequestURI(ingestURL)
		req.Header.SetMethod(fasthttp.MethodPost)
		req.Header.SetContentType("application/json")
		req.Header.Set("Authorization", "Bearer "+cfg.InternalAPIKey)
		req.SetBody(body)
		return client.DoTimeout(req, resp, 2*time.Second)
	})
}

// reporting calls send with every reportable request's event, off the
// request goroutine.
func reporting(send func(body []byte) error) func(fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(ctx *fasthttp.RequestCtx) {
			start := time.Now()
			next(ctx)

			if skipReporting[string(ctx.Path())] {
				return
			}
			body, err := json.Marshal(newInternalEvent(ctx, time.Since(start)))
			if err != nil {
				return
			}
			go func() {
				if err := send(body); err != nil {
					zap.L().Debug("self-report failed", zap.Error(err))
				}
			}()
		}
	}
}
