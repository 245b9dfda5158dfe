// Package users is the route table mounted at /api/v1/users. Records live in
// process memory only and are lost on restart.
package users

import (
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/keithlinneman/linnemanlabs-api/internal/apperr"
)

// MsgNotFound is rendered for unknown ids.
const MsgNotFound = "no user found with that id"

type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Patch holds the fields of a partial update; nil means unchanged.
type Patch struct {
	Name  *string `json:"name"`
	Email *string `json:"email"`
}

// Store is a concurrency-safe in-memory user table.
type Store struct {
	mu      sync.RWMutex
	byID    map[string]*User
	byEmail map[string]string

	now      func() time.Time
	onChange func(n int)
}

type StoreOption func(*Store)

// WithOnChange registers a callback fired with the new record count after
// every create or delete. It runs under the store lock, so counts arrive in
// commit order; fn must not call back into the store.
func WithOnChange(fn func(n int)) StoreOption {
	return func(s *Store) { s.onChange = fn }
}

func withClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		byID:    make(map[string]*User),
		byEmail: make(map[string]string),
		now:     time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// List returns every user ordered by creation time. uuid v7 ids sort the
// same way, which breaks ties between records created in the same instant.
func (s *Store) List() []User {
	s.mu.RLock()
	out := make([]User, 0, len(s.byID))
	for _, u := range s.byID {
		out = append(out, *u)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *Store) Get(id string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.byID[id]
	if !ok {
		return User{}, notFound()
	}
	return *u, nil
}

// Create stores a new user. name and email must already be validated.
func (s *Store) Create(name, email string) (User, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return User{}, err
	}
	now := s.now().UTC()
	u := &User{ID: id.String(), Name: name, Email: email, CreatedAt: now, UpdatedAt: now}

	s.mu.Lock()
	if _, taken := s.byEmail[email]; taken {
		s.mu.Unlock()
		return User{}, duplicateEmail(email)
	}
	s.byID[u.ID] = u
	s.byEmail[email] = u.ID
	s.changed(len(s.byID))
	s.mu.Unlock()

	return *u, nil
}

// Update applies p to the user with id. Fields must already be validated.
func (s *Store) Update(id string, p Patch) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.byID[id]
	if !ok {
		return User{}, notFound()
	}
	if p.Email != nil && *p.Email != u.Email {
		if _, taken := s.byEmail[*p.Email]; taken {
			return User{}, duplicateEmail(*p.Email)
		}
		delete(s.byEmail, u.Email)
		s.byEmail[*p.Email] = id
		u.Email = *p.Email
	}
	if p.Name != nil {
		u.Name = *p.Name
	}
	u.UpdatedAt = s.now().UTC()
	return *u, nil
}

func (s *Store) Delete(id string) error {
	s.mu.Lock()
	u, ok := s.byID[id]
	if !ok {
		s.mu.Unlock()
		return notFound()
	}
	delete(s.byID, id)
	delete(s.byEmail, u.Email)
	s.changed(len(s.byID))
	s.mu.Unlock()

	return nil
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

func (s *Store) changed(n int) {
	if s.onChange != nil {
		s.onChange(n)
	}
}

func notFound() *apperr.Error {
	return apperr.New(http.StatusNotFound, apperr.StatusFail, MsgNotFound)
}

func duplicateEmail(email string) *apperr.Error {
	return apperr.New(http.StatusBadRequest, apperr.StatusFail, "duplicate field value: "+email+". please use another value")
}
