package apperr

import (
	"context"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/keithlinneman/linnemanlabs-api/internal/log"
)

// ErrorFunc is how pipeline stages and handlers hand an error to the terminal handler.
type ErrorFunc func(w http.ResponseWriter, r *http.Request, err error)

// HandlerFunc is a route handler that reports failure by returning an error.
type HandlerFunc func(w http.ResponseWriter, r *http.Request) error

// Handle adapts fn into an http.Handler, forwarding any returned error to onErr.
func Handle(fn HandlerFunc, onErr ErrorFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := fn(w, r); err != nil {
			onErr(w, r, err)
		}
	})
}

// Body is the JSON shape of every error response.
type Body struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	Error     string `json:"error,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

type HandlerOptions struct {
	// Development adds the raw error and request id to response bodies.
	Development bool
	// Logger is used when the request context carries no logger.
	Logger log.Logger
	// RequestID resolves the request id for development responses.
	RequestID func(context.Context) string
	// OnError is called once per rendered error with the final status code.
	OnError func(status int)
}

// Handler is the terminal error handler of the pipeline.
type Handler struct {
	opts HandlerOptions
}

func NewHandler(opts HandlerOptions) *Handler {
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	return &Handler{opts: opts}
}

// ServeError renders err as the final response. It satisfies ErrorFunc.
func (h *Handler) ServeError(w http.ResponseWriter, r *http.Request, err error) {
	if err == nil {
		return
	}
	ctx := r.Context()
	L, ok := log.Lookup(ctx)
	if !ok {
		L = h.opts.Logger
	}

	body := Body{}
	status := http.StatusInternalServerError

	if e, ok := As(err); ok && e.Operational {
		status = e.StatusCode
		body.Status = e.Status
		body.Message = e.Message
		if status >= 500 {
			L.Error(ctx, err, "request failed", "http.response.status_code", status)
		} else {
			L.Debug(ctx, "request rejected",
				"http.response.status_code", status,
				"reason", e.Message,
			)
		}
	} else {
		body.Status = StatusError
		body.Message = MsgInternal
		L.Error(ctx, err, "unhandled request error")
	}

	if h.opts.Development {
		body.Error = err.Error()
		if h.opts.RequestID != nil {
			body.RequestID = h.opts.RequestID(ctx)
		}
	}

	if h.opts.OnError != nil {
		h.opts.OnError(status)
	}

	WriteJSON(ctx, w, status, body)
}

// WriteJSON writes v as a non-cacheable JSON response.
func WriteJSON(ctx context.Context, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.FromContext(ctx).Warn(ctx, "failed to encode JSON response", "error", err)
	}
}
