// Package candidate is the read side of the talent pool plus the per-account
// shortlist and paid contact unlocking.
package candidate

import (
	"context"
	"strings"
	"time"
)

type Availability string

const (
	AvailabilityAvailable   Availability = "available"
	AvailabilityUnavailable Availability = "unavailable"
	AvailabilityOpenToWork  Availability = "open_to_work"
)

type Candidate struct {
	ID                 int64        `json:"id"`
	Name               string       `json:"name"`
	Email              string       `json:"email,omitempty"`
	Title              string       `json:"title,omitempty"`
	Company            string       `json:"company,omitempty"`
	ExperienceYears    int          `json:"experience_years"`
	Location           string       `json:"location,omitempty"`
	AvailabilityStatus Availability `json:"availability_status"`
	ImageURL           string       `json:"image_url,omitempty"`
	About              string       `json:"about,omitempty"`
	ContactLocked      bool         `json:"contact_locked"`
	MatchPercent       int          `json:"match_percent,omitempty"`
	Skills             []string     `json:"skills,omitempty"`
	CreatedAt          time.Time    `json:"created_at"`
	UpdatedAt          time.Time    `json:"updated_at"`
}

// Redacted hides contact details while the contact is locked.
func (c Candidate) Redacted() Candidate {
	if c.ContactLocked {
		c.Email = ""
	}
	return c
}

type Experience struct {
	ID          int64      `json:"id"`
	Company     string     `json:"company"`
	Position    string     `json:"position"`
	StartDate   time.Time  `json:"start_date"`
	EndDate     *time.Time `json:"end_date,omitempty"`
	Description string     `json:"description,omitempty"`
	OrderIndex  int        `json:"order_index"`
}

type Education struct {
	ID             int64  `json:"id"`
	Institution    string `json:"institution"`
	Degree         string `json:"degree"`
	FieldOfStudy   string `json:"field_of_study,omitempty"`
	GraduationYear int    `json:"graduation_year,omitempty"`
	OrderIndex     int    `json:"order_index"`
}

// Details is the full profile view.
type Details struct {
	Candidate
	Experience    []Experience `json:"experience"`
	Education     []Education  `json:"education"`
	IsShortlisted bool         `json:"is_shortlisted"`
}

// Filter narrows a listing. Zero values match everything. Location and Role
// are case-insensitive substring matches; Skills requires every listed skill.
type Filter struct {
	Role          string   `json:"role,omitempty"`
	Location      string   `json:"location,omitempty"`
	ExperienceMin int      `json:"experience_min,omitempty"`
	Skills        []string `json:"skills,omitempty"`
}

// Normalize trims whitespace and drops empty skills.
func (f Filter) Normalize() Filter {
	f.Role = strings.TrimSpace(f.Role)
	f.Location = strings.TrimSpace(f.Location)
	if f.ExperienceMin < 0 {
		f.ExperienceMin = 0
	}
	skills := make([]string, 0, len(f.Skills))
	for _, s := range f.Skills {
		if s = strings.TrimSpace(s); s != "" {
			skills = append(skills, s)
		}
	}
	f.Skills = skills
	return f
}

// Matches applies f to c in memory with the same semantics as the SQL query.
func (f Filter) Matches(c Candidate) bool {
	if f.Location != "" && !containsFold(c.Location, f.Location) {
		return false
	}
	if f.Role != "" && !containsFold(c.Title, f.Role) {
		return false
	}
	if f.ExperienceMin > 0 && c.ExperienceYears < f.ExperienceMin {
		return false
	}
	for _, want := range f.Skills {
		found := false
		for _, have := range c.Skills {
			if strings.EqualFold(have, want) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

// Repository is the candidate storage collaborator.
type Repository interface {
	// List returns candidates matching f ordered by id descending, plus the
	// total number of matches.
	List(ctx context.Context, f Filter, limit, offset int) ([]Candidate, int, error)
	Count(ctx context.Context, f Filter) (int, error)
	Get(ctx context.Context, id int64) (Candidate, error)
	Details(ctx context.Context, accountID, id int64) (Details, error)
	// ToggleShortlist flips membership and reports the new state.
	ToggleShortlist(ctx context.Context, accountID, id int64) (bool, error)
	Shortlist(ctx context.Context, accountID int64) ([]Candidate, error)
	// Unlock clears contact_locked and reports whether this call changed it.
	Unlock(ctx context.Context, id int64) (bool, error)
}
