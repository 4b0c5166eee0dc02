package httpmiddleware

import (
	"context"
	"net/http"
	"sync/atomic"
)

type routeKey struct{}

// TrackRoute reserves a slot in the request context where the router
// records the matched route template. Middleware placed inside TrackRoute
// can read it with RouteFromContext once the handler returns.
func TrackRoute() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := context.WithValue(r.Context(), routeKey{}, new(atomic.Pointer[string]))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SetRoute records the matched route template, e.g. "/api/drafts/:id".
// It is a no-op when TrackRoute is not installed.
func SetRoute(ctx context.Context, route string) {
	if slot, ok := ctx.Value(routeKey{}).(*atomic.Pointer[string]); ok {
		slot.Store(&route)
	}
}

// RouteFromContext returns the recorded route template or "".
func RouteFromContext(ctx context.Context) string {
	slot, ok := ctx.Value(routeKey{}).(*atomic.Pointer[string])
	if !ok {
		return ""
	}
	if route := slot.Load(); route != nil {
		return *route
	}
	return ""
}
