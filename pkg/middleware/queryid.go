package middleware

import (
	"net/http"

	"github.com/Adithya-Monish-Kumar-K/Sharded-Field-Index/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Sharded-Field-Index/pkg/tracing"
)

const QueryIDHeader = "X-Query-ID"

// QueryID tags the request context with the caller's X-Query-ID, or a fresh
// one, and echoes it on the response. Database spans and logs pick it up.
func QueryID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(QueryIDHeader)
		if id == "" || len(id) > 64 {
			id = tracing.NewTraceID()
		}
		w.Header().Set(QueryIDHeader, id)
		next.ServeHTTP(w, r.WithContext(logger.WithQueryID(r.Context(), id)))
	})
}
