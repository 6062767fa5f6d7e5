package federation

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"quasiboard/internal/httpsig"
	"quasiboard/internal/ledger"
	"quasiboard/internal/tasks"
)

type bodyBytesKey struct{}

type apiErrorBody struct {
	Code    string         `json:"code" example:"conflict"`
	Message string         `json:"message" example:"task is actively claimed"`
	Details map[string]any `json:"details,omitempty"`
}

// apiError is the required error envelope: {"error": {code, message, details}}.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{status: status, Body: apiErrorBody{Code: code, Message: message, Details: details}}
}

// handleError maps the system's typed error taxonomy onto the API
// error envelope.
func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var conflict *ledger.ConflictError
	if errors.As(err, &conflict) {
		return newAPIError(http.StatusConflict, "conflict", err.Error(), map[string]any{"held_by": conflict.HeldBy})
	}
	var done *ledger.AlreadyDoneError
	if errors.As(err, &done) {
		return newAPIError(http.StatusGone, "already_done", err.Error(), nil)
	}
	var storage *ledger.StorageError
	if errors.As(err, &storage) {
		return newAPIError(http.StatusInternalServerError, "storage_error", "internal storage error", nil)
	}
	var auth *httpsig.AuthError
	if errors.As(err, &auth) {
		return newAPIError(http.StatusUnauthorized, "auth_error", err.Error(), nil)
	}
	var upstream *tasks.UpstreamError
	if errors.As(err, &upstream) {
		return newAPIError(http.StatusBadGateway, "upstream_error", err.Error(), nil)
	}
	var validation *ValidationError
	if errors.As(err, &validation) {
		return newAPIError(http.StatusBadRequest, "validation_error", err.Error(), nil)
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", nil)
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "auth_error"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusGone:
		return "already_done"
	case http.StatusBadGateway:
		return "upstream_error"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

// ValidationError covers a malformed activity, a missing required
// field, or an unrecognized required shape.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return "validation error: " + e.Reason }

// New builds the complete federation HTTP handler: chi router, a huma
// group hosting the JSON GET endpoints, and raw chi routes for the
// inbox and webhook handlers that need pre-parsed raw body bytes for
// signature/HMAC verification ahead of any JSON decoding.
func New(cfg Config) (http.Handler, error) {
	router := chi.NewRouter()
	router.Use(bufferBody)

	hcfg := huma.DefaultConfig("quasi-board", "1.0.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "/docs"
	api := humachi.New(router, hcfg)

	delivery := newDeliveryManager(cfg)

	registerWebfinger(api, cfg)
	registerActor(api, cfg)
	registerOutbox(api, cfg)
	registerTaskLookup(api, cfg)
	registerLedger(api, cfg)
	registerVerify(api, cfg)

	router.Post("/quasi-board/inbox", inboxHandler(cfg, delivery))
	router.Post("/quasi-board/github-webhook", webhookHandler(cfg, delivery))

	return router, nil
}

// bufferBody reads the request body once into context so handlers
// needing raw bytes (signature/HMAC verification) and huma's own JSON
// binding can both see it.
func bufferBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(io.LimitReader(r.Body, 1<<20))
		r.Body = io.NopCloser(bytes.NewReader(body))
		ctx := context.WithValue(r.Context(), bodyBytesKey{}, body)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bodyBytes(r *http.Request) []byte {
	b, _ := r.Context().Value(bodyBytesKey{}).([]byte)
	return b
}

func isLoopback(r *http.Request) bool {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return host == "127.0.0.1" || host == "::1" || host == "localhost"
}
