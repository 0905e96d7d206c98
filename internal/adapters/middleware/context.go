package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"gitlab.com/timkado/api/daisi-panel-service/pkg/contextkeys"
)

const (
	XRequestIDHeader = "X-Request-ID"

	maxRequestIDLen = 128
)

// validRequestID accepts short printable ASCII ids so a client value can be
// echoed into logs and headers as is.
func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLen {
		return false
	}
	for i := 0; i < len(id); i++ {
		if id[i] < 0x21 || id[i] > 0x7e {
			return false
		}
	}
	return true
}

// RequestIDMiddleware stores a request id on the context and echoes it in the
// response. A valid client X-Request-ID is reused, anything else is replaced
// with a fresh UUID.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(XRequestIDHeader)
		if !validRequestID(requestID) {
			requestID = uuid.NewString()
		}

		ctx := context.WithValue(r.Context(), contextkeys.RequestIDKey, requestID)
		w.Header().Set(XRequestIDHeader, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
