package httpmiddleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/lewisedginton/npc_registry/pkg/logger"
)

const panicResponse = `{"error":"internal server error"}`

// Recovery turns a handler panic into a JSON 500 and logs it with the
// stack. http.ErrAbortHandler is re-raised so net/http can drop the
// connection quietly.
func Recovery(log logger.Logger) func(http.Handler) http.Handler {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler { //nolint:errorlint // sentinel compared by identity
					panic(rec)
				}

				fields := []logger.LogField{
					logger.StringField("panic_error", fmt.Sprintf("%v", rec)),
					logger.StringField("http_method", r.Method),
					logger.StringField("http_path", r.URL.Path),
					logger.StringField("stack_trace", string(debug.Stack())),
				}
				if r.URL.RawQuery != "" {
					fields = append(fields, logger.StringField("query_params", r.URL.RawQuery))
				}
				logger.FromContext(r.Context(), log).Error("HTTP request panic recovered", fields...)

				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Connection", "close")
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = w.Write([]byte(panicResponse))
			}()

			next.ServeHTTP(w, r)
		})
	}
}
