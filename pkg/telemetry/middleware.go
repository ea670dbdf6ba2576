package telemetry

import (
	"fmt"
	"net/http"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Middleware records one trace per request under the "http.request" op,
// with the route and final status as steps.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tr := Track("http.request")
		srw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(srw, r)
		tr.Mark(fmt.Sprintf("%s %s -> %d", r.Method, r.URL.Path, srw.status))
		tr.Finish()
	})
}
