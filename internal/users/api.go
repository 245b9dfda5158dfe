package users

import (
	"net/http"
	"net/mail"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/linnemanlabs-api/internal/apperr"
	"github.com/keithlinneman/linnemanlabs-api/internal/httpmw"
	"github.com/keithlinneman/linnemanlabs-api/internal/log"
)

const maxNameLen = 100

type Options struct {
	Store *Store
	// OnError renders failures, normally the terminal error handler
	OnError apperr.ErrorFunc
	// EnableEcho mounts GET /echo, which reflects the query and payload as
	// handlers see them after the sanitizing stages.
	EnableEcho bool
}

// API serves the user routes.
type API struct {
	store      *Store
	onErr      apperr.ErrorFunc
	enableEcho bool
}

func NewAPI(opts Options) *API {
	if opts.Store == nil {
		opts.Store = NewStore()
	}
	if opts.OnError == nil {
		opts.OnError = apperr.NewHandler(apperr.HandlerOptions{}).ServeError
	}
	return &API{store: opts.Store, onErr: opts.OnError, enableEcho: opts.EnableEcho}
}

// RegisterRoutes attaches the user routes to r, which the server mounts at
// /api/v1/users.
func (a *API) RegisterRoutes(r chi.Router) {
	r.Use(httpmw.Scope("users"))

	r.Method(http.MethodGet, "/", a.handle(a.list))
	r.Method(http.MethodPost, "/", a.handle(a.create))
	if a.enableEcho {
		r.Method(http.MethodGet, "/echo", a.handle(a.echo))
	}
	r.Method(http.MethodGet, "/{id}", a.handle(a.get))
	r.Method(http.MethodPatch, "/{id}", a.handle(a.update))
	r.Method(http.MethodDelete, "/{id}", a.handle(a.remove))
}

func (a *API) handle(fn apperr.HandlerFunc) http.Handler {
	return apperr.Handle(fn, a.onErr)
}

// envelope is the success body of every user route
type envelope struct {
	Status  string `json:"status"`
	Results *int   `json:"results,omitempty"`
	Data    any    `json:"data"`
}

func writeData(w http.ResponseWriter, r *http.Request, code int, data any) {
	apperr.WriteJSON(r.Context(), w, code, envelope{Status: "success", Data: data})
}

func (a *API) list(w http.ResponseWriter, r *http.Request) error {
	all := a.store.List()
	n := len(all)
	apperr.WriteJSON(r.Context(), w, http.StatusOK, envelope{
		Status:  "success",
		Results: &n,
		Data:    map[string]any{"users": all},
	})
	return nil
}

type createRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

func (a *API) create(w http.ResponseWriter, r *http.Request) error {
	var req createRequest
	if err := httpmw.BindJSON(r, &req); err != nil {
		return err
	}
	name, err := validName(req.Name)
	if err != nil {
		return err
	}
	email, err := validEmail(req.Email)
	if err != nil {
		return err
	}

	u, err := a.store.Create(name, email)
	if err != nil {
		return err
	}
	ctx := r.Context()
	log.FromContext(ctx).Info(ctx, "user created", "user.id", u.ID)

	w.Header().Set("Location", "/api/v1/users/"+u.ID)
	writeData(w, r, http.StatusCreated, map[string]any{"user": u})
	return nil
}

func (a *API) get(w http.ResponseWriter, r *http.Request) error {
	u, err := a.store.Get(chi.URLParam(r, "id"))
	if err != nil {
		return err
	}
	writeData(w, r, http.StatusOK, map[string]any{"user": u})
	return nil
}

func (a *API) update(w http.ResponseWriter, r *http.Request) error {
	var p Patch
	if err := httpmw.BindJSON(r, &p); err != nil {
		return err
	}
	if p.Name == nil && p.Email == nil {
		return apperr.BadRequest("nothing to update: provide name or email")
	}
	if p.Name != nil {
		name, err := validName(*p.Name)
		if err != nil {
			return err
		}
		p.Name = &name
	}
	if p.Email != nil {
		email, err := validEmail(*p.Email)
		if err != nil {
			return err
		}
		p.Email = &email
	}

	u, err := a.store.Update(chi.URLParam(r, "id"), p)
	if err != nil {
		return err
	}
	writeData(w, r, http.StatusOK, map[string]any{"user": u})
	return nil
}

func (a *API) remove(w http.ResponseWriter, r *http.Request) error {
	if err := a.store.Delete(chi.URLParam(r, "id")); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

// echo reflects what reached the handler: the query after HPP and
// sanitizing, the payload after sanitizing, and any collapsed parameters.
func (a *API) echo(w http.ResponseWriter, r *http.Request) error {
	out := map[string]any{
		"query": r.URL.Query(),
	}
	if p, ok := httpmw.PayloadFromContext(r.Context()); ok {
		out["body"] = p.Value
	}
	if polluted := httpmw.PollutedQueryFromContext(r.Context()); polluted != nil {
		out["polluted"] = polluted
	}
	writeData(w, r, http.StatusOK, out)
	return nil
}

func validName(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", apperr.BadRequest("a user must have a name")
	}
	if len([]rune(s)) > maxNameLen {
		return "", apperr.BadRequest("a user name must be at most 100 characters")
	}
	return s, nil
}

func validEmail(s string) (string, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "", apperr.BadRequest("a user must have an email")
	}
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s {
		return "", apperr.BadRequest("please provide a valid email")
	}
	return s, nil
}
