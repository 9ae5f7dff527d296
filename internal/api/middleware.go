package api

import (
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"earthworks-ledger/internal/service"
)

// PassphraseHeader carries the shared passphrase on every gated request.
const PassphraseHeader = "X-Passphrase"

func openPath(path string) bool {
	return path == "/healthz" || path == "/api/gate" || strings.HasPrefix(path, "/api/gate/")
}

// requirePassphrase rejects requests whose passphrase does not verify.
// Health and gate endpoints stay open so a fresh install can be set up.
func requirePassphrase(gate *service.Gate, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if openPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}
		err := gate.Verify(r.Context(), r.Header.Get(PassphraseHeader))
		if err == nil {
			next.ServeHTTP(w, r)
			return
		}
		if errors.Is(err, service.ErrWrongPassphrase) && r.Header.Get(PassphraseHeader) == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing "+PassphraseHeader+" header")
			return
		}
		writeGateError(w, err)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func logRequests(logger *log.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		if rec.status >= http.StatusInternalServerError {
			logger.Printf("[error] %s %s -> %d (%s)", r.Method, r.URL.Path, rec.status, time.Since(start).Round(time.Millisecond))
			return
		}
		if r.URL.Path != "/healthz" {
			logger.Printf("[info] %s %s -> %d (%s)", r.Method, r.URL.Path, rec.status, time.Since(start).Round(time.Millisecond))
		}
	})
}
