package httpmw

import (
	"net/http"
	"net/url"
)

// withQuery returns a shallow copy of r whose URL carries q. The original
// request, which outer middleware still hold, is left untouched.
func withQuery(r *http.Request, q url.Values) *http.Request {
	u := *r.URL
	u.RawQuery = q.Encode()
	r2 := r.WithContext(r.Context())
	r2.URL = &u
	return r2
}
