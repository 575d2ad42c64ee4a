package chi

import (
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httplog"
	"github.com/marcelsud/webhook-relay/webhook"
)

/* HTTP layer DTOs for the webhook API
 * Separate from domain entities to avoid leaking internal structure
 */

// maxBodyBytes bounds inbound webhook bodies
const maxBodyBytes = 5 << 20

// webhookResponse is returned for every inbound call
type webhookResponse struct {
	Success           bool   `json:"success"`
	EventID           string `json:"eventId,omitempty"`
	DeliveriesCreated *int   `json:"deliveriesCreated,omitempty"`
	Message           string `json:"message,omitempty"`
	Error             string `json:"error,omitempty"`
}

// postWebhook handles POST /webhook/{orgSlug}/{endpointSlug}
func postWebhook(webhookService webhook.UseCase) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()

		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				writeJSON(w, http.StatusRequestEntityTooLarge, webhookResponse{Error: "Payload too large"})
				return
			}
			writeJSON(w, http.StatusBadRequest, webhookResponse{Error: "Failed to read request body"})
			return
		}

		// only the first value of repeated headers is kept
		headers := make(map[string]string, len(r.Header))
		for key, values := range r.Header {
			if len(values) > 0 {
				headers[key] = values[0]
			}
		}

		result, err := webhookService.Ingest(r.Context(), webhook.Request{
			OrgSlug:      chi.URLParam(r, "orgSlug"),
			EndpointSlug: chi.URLParam(r, "endpointSlug"),
			Body:         body,
			Headers:      headers,
			SourceIP:     clientIP(r),
			UserAgent:    r.UserAgent(),
		})

		switch {
		case errors.Is(err, webhook.ErrInvalidPayload):
			writeJSON(w, http.StatusBadRequest, webhookResponse{Error: "Invalid JSON payload"})
		case errors.Is(err, webhook.ErrEndpointNotFound):
			writeJSON(w, http.StatusNotFound, webhookResponse{Error: "Endpoint not found"})
		case errors.Is(err, webhook.ErrInvalidSignature):
			writeJSON(w, http.StatusUnauthorized, webhookResponse{EventID: result.EventID, Error: "Invalid signature"})
		case err != nil:
			httplog.LogEntrySetField(r.Context(), "ingest_error", err.Error())
			writeJSON(w, http.StatusInternalServerError, webhookResponse{EventID: result.EventID, Error: "Internal server error"})
		case result.Status == webhook.EventIgnored:
			writeJSON(w, http.StatusOK, webhookResponse{Success: true, EventID: result.EventID, Message: result.Message})
		default:
			created := result.DeliveriesCreated
			writeJSON(w, http.StatusOK, webhookResponse{
				Success:           true,
				EventID:           result.EventID,
				DeliveriesCreated: &created,
				Message:           result.Message,
			})
		}
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// clientIP strips the port RemoteAddr carries; RealIP has already applied forwarding headers
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
