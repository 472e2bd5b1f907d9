package corshandler

import "net/http"

// CorsHandler allows cross-origin access to the data plane so browser
// clients can upload and fetch chunks directly.
type CorsHandler struct {
	Sub http.Handler
}

func (h *CorsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, HEAD, PUT, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "*")
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	h.Sub.ServeHTTP(w, r)
}
