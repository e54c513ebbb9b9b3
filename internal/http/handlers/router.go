package handlers

import (
	"github.com/fasthttp/router"
	"github.com/valyala/fasthttp"

	dbpkg "originmetrics/internal/db"
	appmw "originmetrics/internal/http/middleware"
	"originmetrics/internal/session"
)

// NewRouter registers every API route against store.
func NewRouter(store Store, codec *session.Codec) *router.Router {
	InitPrometheusMetrics()

	signedIn := appmw.SessionAuth(codec, store)
	member := func(min dbpkg.Role) func(fasthttp.RequestHandler) fasthttp.RequestHandler {
		access := appmw.OriginAccess(store, min)
		return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
			return signedIn(access(next))
		}
	}
	viewer, admin := member(dbpkg.RoleViewer), member(dbpkg.RoleAdmin)
	apiKey := appmw.APIKeyAuth(store)

	r := router.New()

	r.GET("/healthz", func(ctx *fasthttp.RequestCtx) {
		ctx.SetStatusCode(fasthttp.StatusOK)
		ctx.SetBodyString("ok")
	})

	r.POST("/login", Login(store, codec))
	r.POST("/logout", Logout())
	r.GET("/me", signedIn(Me()))

	r.GET("/origins", signedIn(ListOrigins(store)))
	r.POST("/origins", signedIn(CreateOrigin(store)))

	r.GET("/origins/{slug}/metrics", viewer(OriginMetrics(store)))
	r.GET("/origins/{slug}/metrics/version", viewer(MetricsVersion(store)))

	r.GET("/origins/{slug}/dynamic-routes", viewer(ListRoutes(store, dbpkg.KindDynamic)))
	r.PUT("/origins/{slug}/dynamic-routes", admin(ReplaceRoutes(store, dbpkg.KindDynamic)))
	r.GET("/origins/{slug}/excluded-routes", viewer(ListRoutes(store, dbpkg.KindExcluded)))
	r.PUT("/origins/{slug}/excluded-routes", admin(ReplaceRoutes(store, dbpkg.KindExcluded)))
	r.POST("/origins/{slug}/reclassify", admin(Reclassify(store)))

	r.POST("/v1/events", apiKey(Ingest(store)))
	r.GET("/v1/metrics", apiKey(OriginPrometheusMetrics()))

	return r
}
