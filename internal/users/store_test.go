package users

import (
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/keithlinneman/linnemanlabs-api/internal/apperr"
)

func statusOf(t *testing.T, err error) int {
	t.Helper()
	e, ok := apperr.As(err)
	if !ok {
		t.Fatalf("err = %v, want *apperr.Error", err)
	}
	return e.StatusCode
}

func TestStore_CreateGet(t *testing.T) {
	s := NewStore()
	u, err := s.Create("Ada", "ada@example.com")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if u.ID == "" || u.CreatedAt.IsZero() || !u.CreatedAt.Equal(u.UpdatedAt) {
		t.Fatalf("created = %+v", u)
	}

	got, err := s.Get(u.ID)
	if err != nil || got != u {
		t.Fatalf("Get = %+v, %v", got, err)
	}
}

func TestStore_GetUnknown(t *testing.T) {
	_, err := NewStore().Get("nope")
	if statusOf(t, err) != 404 {
		t.Fatalf("err = %v", err)
	}
	if e, _ := apperr.As(err); e.Message != "no user found with that id" {
		t.Fatalf("message = %q", e.Message)
	}
}

func TestStore_DuplicateEmail(t *testing.T) {
	s := NewStore()
	a, _ := s.Create("A", "a@example.com")
	b, _ := s.Create("B", "b@example.com")

	if _, err := s.Create("A2", "a@example.com"); statusOf(t, err) != 400 {
		t.Fatalf("duplicate create: %v", err)
	}

	email := "a@example.com"
	if _, err := s.Update(b.ID, Patch{Email: &email}); statusOf(t, err) != 400 {
		t.Fatalf("duplicate update: %v", err)
	}

	// the original owner may resubmit its own address
	if _, err := s.Update(a.ID, Patch{Email: &email}); err != nil {
		t.Fatalf("self update: %v", err)
	}
}

func TestStore_UpdateFreesOldEmail(t *testing.T) {
	s := NewStore()
	u, _ := s.Create("A", "old@example.com")
	newEmail := "new@example.com"
	if _, err := s.Update(u.ID, Patch{Email: &newEmail}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if _, err := s.Create("B", "old@example.com"); err != nil {
		t.Fatalf("old address should be free again: %v", err)
	}
}

func TestStore_Update(t *testing.T) {
	clock := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	s := NewStore(withClock(func() time.Time { return clock }))
	u, _ := s.Create("Ada", "ada@example.com")

	clock = clock.Add(time.Minute)
	name := "Ada L."
	got, err := s.Update(u.ID, Patch{Name: &name})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got.Name != "Ada L." || got.Email != "ada@example.com" {
		t.Fatalf("updated = %+v", got)
	}
	if !got.UpdatedAt.Equal(clock) || !got.CreatedAt.Equal(u.CreatedAt) {
		t.Fatalf("timestamps = %v / %v", got.CreatedAt, got.UpdatedAt)
	}

	if _, err := s.Update("missing", Patch{Name: &name}); statusOf(t, err) != 404 {
		t.Fatalf("update missing: %v", err)
	}
}

func TestStore_DeleteAndOnChange(t *testing.T) {
	var counts []int
	s := NewStore(WithOnChange(func(n int) { counts = append(counts, n) }))

	u, _ := s.Create("A", "a@example.com")
	_, _ = s.Create("B", "b@example.com")
	if err := s.Delete(u.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Delete(u.ID); statusOf(t, err) != 404 {
		t.Fatalf("second delete: %v", err)
	}

	if len(counts) != 3 || counts[0] != 1 || counts[1] != 2 || counts[2] != 1 {
		t.Fatalf("OnChange counts = %v, want [1 2 1]", counts)
	}
	if s.Len() != 1 {
		t.Fatalf("Len = %d", s.Len())
	}
}

func TestStore_ListOrdered(t *testing.T) {
	s := NewStore()
	var want []string
	for _, e := range []string{"a@x.io", "b@x.io", "c@x.io", "d@x.io"} {
		u, _ := s.Create(e, e)
		want = append(want, u.ID)
	}

	got := s.List()
	if len(got) != len(want) {
		t.Fatalf("len = %d", len(got))
	}
	for i := range want {
		if got[i].ID != want[i] {
			t.Fatalf("order[%d] = %s, want %s", i, got[i].ID, want[i])
		}
	}
}

func TestStore_Concurrent(t *testing.T) {
	s := NewStore()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			u, err := s.Create("u", string(rune('a'+i))+"@example.com")
			if err != nil {
				t.Errorf("Create: %v", err)
				return
			}
			_, _ = s.Get(u.ID)
			_ = s.List()
		}(i)
	}
	wg.Wait()
	if s.Len() != 20 {
		t.Fatalf("Len = %d, want 20", s.Len())
	}
}

func TestStore_OnChangeInCommitOrder(t *testing.T) {
	var counts []int
	s := NewStore(WithOnChange(func(n int) { counts = append(counts, n) }))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			u, err := s.Create("u", "user"+strconv.Itoa(i)+"@example.com")
			if err != nil {
				t.Errorf("Create: %v", err)
				return
			}
			if i%2 == 0 {
				_ = s.Delete(u.ID)
			}
		}(i)
	}
	wg.Wait()

	if len(counts) != 75 {
		t.Fatalf("OnChange fired %d times, want 75", len(counts))
	}
	prev := 0
	for i, n := range counts {
		if d := n - prev; d != 1 && d != -1 {
			t.Fatalf("counts[%d] = %d after %d, want a step of one", i, n, prev)
		}
		prev = n
	}
	if last := counts[len(counts)-1]; last != s.Len() {
		t.Fatalf("last reported count = %d, Len = %d", last, s.Len())
	}
}
