package middleware

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

// Envelope is the body of every cart API response
type Envelope struct {
	Error   bool              `json:"error"`
	Message string            `json:"message"`
	Data    interface{}       `json:"data,omitempty"`
	Details string            `json:"details,omitempty"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

// RespondWithError sends an error envelope
func RespondWithError(w http.ResponseWriter, statusCode int, message string) {
	RespondWithJSON(w, statusCode, Envelope{Error: true, Message: message})
}

// RespondWithErrorDetails sends an error envelope with diagnostic details
func RespondWithErrorDetails(w http.ResponseWriter, statusCode int, message, details string) {
	RespondWithJSON(w, statusCode, Envelope{Error: true, Message: message, Details: details})
}

// RespondWithValidationErrors sends validation error response. The first
// field error becomes the message.
func RespondWithValidationErrors(w http.ResponseWriter, errors []ValidationError) {
	message := "Validation failed"
	if len(errors) > 0 {
		message = errors[0].Message
	}

	RespondWithJSON(w, http.StatusBadRequest, Envelope{
		Error:   true,
		Message: message,
		Errors:  errors,
	})
}

// RespondWithData sends a success envelope carrying data
func RespondWithData(w http.ResponseWriter, statusCode int, message string, data interface{}) {
	RespondWithJSON(w, statusCode, Envelope{Message: message, Data: data})
}

// ErrorHandlingMiddleware catches panics and converts them to 500 errors
func ErrorHandlingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					if err == http.ErrAbortHandler {
						panic(err)
					}

					logger.Error("Panic recovered",
						zap.Any("error", err),
						zap.String("path", r.URL.Path),
						zap.String("method", r.Method),
						zap.Stack("stack"),
					)

					RespondWithError(w, http.StatusInternalServerError, "Internal server error")
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// RespondWithJSON sends a JSON response
func RespondWithJSON(w http.ResponseWriter, statusCode int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(payload)
}
