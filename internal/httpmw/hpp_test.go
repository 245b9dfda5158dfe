package httpmw

import (
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
)

func TestHPP_LastValueWins(t *testing.T) {
	var polluted []string
	var seen map[string][]string
	var original map[string][]string

	h := HPP(HPPOptions{OnPolluted: func(k string) { polluted = append(polluted, k) }})(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen = r.URL.Query()
			original = PollutedQueryFromContext(r.Context())
		}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/users?sort=name&sort=email&page=2", nil)
	h.ServeHTTP(httptest.NewRecorder(), req)

	if got := seen["sort"]; !reflect.DeepEqual(got, []string{"email"}) {
		t.Fatalf("sort = %q, want single last value", got)
	}
	if got := seen["page"]; !reflect.DeepEqual(got, []string{"2"}) {
		t.Fatalf("page = %q", got)
	}
	if got := original["sort"]; !reflect.DeepEqual(got, []string{"name", "email"}) {
		t.Fatalf("polluted sort = %q", got)
	}
	if !reflect.DeepEqual(polluted, []string{"sort"}) {
		t.Fatalf("OnPolluted keys = %v", polluted)
	}
}

func TestHPP_Whitelist(t *testing.T) {
	var seen map[string][]string
	h := HPP(HPPOptions{Whitelist: []string{"tag"}})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.URL.Query()
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/?tag=a&tag=b&id=1&id=2", nil))

	if got := seen["tag"]; !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Fatalf("tag = %q, want both values kept", got)
	}
	if got := seen["id"]; !reflect.DeepEqual(got, []string{"2"}) {
		t.Fatalf("id = %q, want last value", got)
	}
}

func TestHPP_NoPollution(t *testing.T) {
	var ctxPolluted bool
	h := HPP(HPPOptions{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctxPolluted = PollutedQueryFromContext(r.Context()) != nil
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/?a=1&b=2", nil))

	if ctxPolluted {
		t.Fatal("no parameter repeated, context should carry nothing")
	}
}
