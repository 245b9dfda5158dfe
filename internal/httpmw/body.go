package httpmw

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/goccy/go-json"

	"github.com/keithlinneman/linnemanlabs-api/internal/apperr"
)

// Payload is the parsed JSON request body. Later stages rewrite Value in place
// and every downstream reader of r.Body sees the rewritten document.
type Payload struct {
	// Value is a map[string]any or []any. Numbers are json.Number.
	Value any
	// Size is the number of body bytes read off the wire.
	Size int
}

type payloadKey struct{}

func WithPayload(ctx context.Context, p *Payload) context.Context {
	if p == nil {
		return ctx
	}
	return context.WithValue(ctx, payloadKey{}, p)
}

// PayloadFromContext returns the parsed body, if the request carried JSON.
func PayloadFromContext(ctx context.Context) (*Payload, bool) {
	p, ok := ctx.Value(payloadKey{}).(*Payload)
	return p, ok && p != nil
}

// JSONBody parses JSON request bodies of at most limit bytes. Oversized bodies
// are rejected with 413 and malformed JSON with 400, both before the request
// reaches route dispatch. An empty JSON body parses as an empty object.
// Bodies of other content types are read under the same limit and handed on
// as raw bytes without a Payload, so BindJSON sees an empty object for them.
func JSONBody(limit int64, onErr apperr.ErrorFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body == nil || r.Body == http.NoBody {
				next.ServeHTTP(w, r)
				return
			}
			if r.ContentLength > limit {
				onErr(w, r, apperr.PayloadTooLarge())
				return
			}

			data, err := readLimited(r.Body, limit)
			if err != nil {
				onErr(w, r, err)
				return
			}

			if !isJSONContentType(r.Header.Get("Content-Type")) {
				r.Body = io.NopCloser(bytes.NewReader(data))
				r.ContentLength = int64(len(data))
				next.ServeHTTP(w, r)
				return
			}

			value, err := decodeJSON(data)
			if err != nil {
				onErr(w, r, apperr.Wrap(err, http.StatusBadRequest, apperr.MsgInvalidJSON))
				return
			}

			p := &Payload{Value: value, Size: len(data)}
			r = r.WithContext(WithPayload(r.Context(), p))
			r.Body = &payloadReader{p: p}
			r.ContentLength = -1

			next.ServeHTTP(w, r)
		})
	}
}

// readLimited drains body, failing with 413 once more than limit bytes arrive.
func readLimited(body io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(body, limit+1))
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return nil, apperr.PayloadTooLarge()
		}
		return nil, apperr.Wrap(err, http.StatusBadRequest, "could not read request body")
	}
	if int64(len(data)) > limit {
		return nil, apperr.PayloadTooLarge()
	}
	return data, nil
}

// BindJSON decodes the sanitized request payload into dst. A request that
// carried no JSON payload binds as an empty object and leaves dst untouched,
// raw bodies are never decoded here.
func BindJSON(r *http.Request, dst any) error {
	p, ok := PayloadFromContext(r.Context())
	if !ok {
		return nil
	}
	data, err := json.Marshal(p.Value)
	if err != nil {
		return apperr.Wrap(err, http.StatusBadRequest, apperr.MsgInvalidJSON)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return apperr.Wrap(err, http.StatusBadRequest, apperr.MsgInvalidJSON)
	}
	return nil
}

// decodeJSON accepts a single object or array, like a strict JSON body parser.
func decodeJSON(data []byte) (any, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return map[string]any{}, nil
	}
	if trimmed[0] != '{' && trimmed[0] != '[' {
		return nil, errors.New("request body must be a JSON object or array")
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	// exactly one document per body
	var extra any
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		return nil, errors.New("unexpected data after top-level JSON value")
	}
	return v, nil
}

func isJSONContentType(ct string) bool {
	if ct == "" {
		return false
	}
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return false
	}
	mt = strings.ToLower(mt)
	return mt == "application/json" || (strings.HasPrefix(mt, "application/") && strings.HasSuffix(mt, "+json"))
}

// payloadReader serializes the payload on first read so sanitizers running
// after JSONBody are reflected in what handlers read.
type payloadReader struct {
	p   *Payload
	buf *bytes.Reader
	err error
}

func (pr *payloadReader) Read(b []byte) (int, error) {
	if pr.buf == nil && pr.err == nil {
		data, err := json.Marshal(pr.p.Value)
		if err != nil {
			pr.err = err
		} else {
			pr.buf = bytes.NewReader(data)
		}
	}
	if pr.err != nil {
		return 0, pr.err
	}
	return pr.buf.Read(b)
}

func (pr *payloadReader) Close() error { return nil }
