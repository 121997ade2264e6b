package server

import "net/http"

// DemoMiddleware enforces read-only access for demo deployments. GET,
// HEAD, and OPTIONS pass through; every mutating method is rejected with
// a 405 problem response.
func DemoMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			next.ServeHTTP(w, r)
		default:
			WriteProblem(w, Problem{
				Type:     ProblemTypeForbidden,
				Title:    "Method Not Allowed",
				Status:   http.StatusMethodNotAllowed,
				Detail:   "demo mode: read-only access",
				Instance: r.URL.Path,
			})
		}
	})
}
