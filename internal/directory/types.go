package directory

// User is a record as returned by the upstream API.
type User struct {
	ID        int64  `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Avatar    string `json:"avatar"`
}

// Page is one page of the upstream user listing.
type Page struct {
	Page       int    `json:"page"`
	PerPage    int    `json:"per_page"`
	Total      int    `json:"total"`
	TotalPages int    `json:"total_pages"`
	Data       []User `json:"data"`
}

// UserUpdate is the body sent on PUT /users/{id}. Job is left out when blank
// so an edit never resets a value the operator did not touch.
type UserUpdate struct {
	FirstName string `json:"first_name"`
	Job       string `json:"job,omitempty"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
	Error string `json:"error"`
}
