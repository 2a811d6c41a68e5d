package middleware

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
)

type errorSinkKey struct{}

// ErrorSink attaches w to every request context. Errors reported while
// serving the request are copied to it; the test harness reads it back to
// fail tests on server side errors. A nil w disables the copy.
func ErrorSink(w io.Writer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			if w != nil {
				r = r.WithContext(context.WithValue(r.Context(), errorSinkKey{}, w))
			}
			next.ServeHTTP(rw, r)
		})
	}
}

// ReportError logs err and copies it to the request's error sink, if any.
func ReportError(ctx context.Context, err error, msg string) {
	reqID := middleware.GetReqID(ctx)
	log.Error().Err(err).Str("request_id", reqID).Msg(msg)

	if w, ok := ctx.Value(errorSinkKey{}).(io.Writer); ok {
		fmt.Fprintf(w, "%s [%s] %s: %v\n", time.Now().Format(time.RFC3339), reqID, msg, err)
	}
}

// Recoverer turns a handler panic into a 500 and reports it with its stack.
func Recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rvr := recover()
			if rvr == nil {
				return
			}
			if rvr == http.ErrAbortHandler {
				panic(rvr)
			}

			ReportError(r.Context(), fmt.Errorf("panic: %v\n%s", rvr, debug.Stack()), "Handler panicked")

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error":"internal server error"}`))
		}()

		next.ServeHTTP(w, r)
	})
}
