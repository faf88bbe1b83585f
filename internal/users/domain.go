package users

import (
	"strings"

	"golang.org/x/text/cases"

	"github.com/odyssey-erp/userdesk/internal/directory"
)

// Record is one user row of the loaded listing page. Records are owned by the
// upstream API; only FirstName is ever changed locally.
type Record struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatar_url"`
}

// FullName joins first and last name.
func (r Record) FullName() string {
	return strings.TrimSpace(r.FirstName + " " + r.LastName)
}

// Listing is the page of records a session currently has loaded.
type Listing struct {
	Page       int      `json:"page"`
	PerPage    int      `json:"per_page"`
	Total      int      `json:"total"`
	TotalPages int      `json:"total_pages"`
	Seq        int64    `json:"seq"`
	Records    []Record `json:"records"`
}

// EditInput carries the editable fields of a record.
type EditInput struct {
	FirstName string `validate:"required"`
	Job       string
}

func listingFromPage(p directory.Page, seq int64) Listing {
	out := Listing{
		Page:       p.Page,
		PerPage:    p.PerPage,
		Total:      p.Total,
		TotalPages: p.TotalPages,
		Seq:        seq,
		Records:    make([]Record, 0, len(p.Data)),
	}
	for _, u := range p.Data {
		out.Records = append(out.Records, Record{
			ID:        u.ID,
			FirstName: u.FirstName,
			LastName:  u.LastName,
			Email:     u.Email,
			AvatarURL: u.Avatar,
		})
	}
	return out
}

// Filter returns the records whose full name or email contains query,
// compared with Unicode case folding. The query is matched as typed; a blank
// query keeps every record.
func Filter(records []Record, query string) []Record {
	out := make([]Record, 0, len(records))
	if strings.TrimSpace(query) == "" {
		return append(out, records...)
	}
	fold := cases.Fold()
	needle := fold.String(query)
	for _, r := range records {
		if strings.Contains(fold.String(r.FirstName+" "+r.LastName), needle) ||
			strings.Contains(fold.String(r.Email), needle) {
			out = append(out, r)
		}
	}
	return out
}

// Find returns the record with id.
func (l *Listing) Find(id int64) (Record, bool) {
	if l == nil {
		return Record{}, false
	}
	for _, r := range l.Records {
		if r.ID == id {
			return r, true
		}
	}
	return Record{}, false
}

// Remove drops the record with id, keeping the order of the others.
func (l *Listing) Remove(id int64) bool {
	for i, r := range l.Records {
		if r.ID == id {
			l.Records = append(l.Records[:i:i], l.Records[i+1:]...)
			return true
		}
	}
	return false
}

// Rename sets FirstName of the record with id and touches nothing else.
func (l *Listing) Rename(id int64, firstName string) bool {
	for i := range l.Records {
		if l.Records[i].ID == id {
			l.Records[i].FirstName = firstName
			return true
		}
	}
	return false
}
