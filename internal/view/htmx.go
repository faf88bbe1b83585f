package view

import "net/http"

// htmx request/response header names.
const (
	HXRequest  = "HX-Request"
	HXRedirect = "HX-Redirect"
	HXReswap   = "HX-Reswap"
)

// IsPartial reports whether the request came from htmx and expects a fragment.
func IsPartial(r *http.Request) bool {
	return r.Header.Get(HXRequest) == "true"
}

// Redirect sends the browser to url: HX-Redirect for htmx, 303 otherwise.
func Redirect(w http.ResponseWriter, r *http.Request, url string) {
	if IsPartial(r) {
		w.Header().Set(HXRedirect, url)
		w.WriteHeader(http.StatusOK)
		return
	}
	http.Redirect(w, r, url, http.StatusSeeOther)
}

// Discard tells htmx to leave the DOM alone for this response.
func Discard(w http.ResponseWriter) {
	w.Header().Set(HXReswap, "none")
	w.WriteHeader(http.StatusNoContent)
}

