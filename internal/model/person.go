package model

import (
	"time"
)

// DefaultRole is recorded when a person is added without a known role.
const DefaultRole = "Unknown"

// Position is a role held at a company. EndDate is set once the position
// has been displaced into history.
type Position struct {
	Company   string     `json:"company"`
	Role      string     `json:"role"`
	StartDate *time.Time `json:"start_date,omitempty"`
	EndDate   *time.Time `json:"end_date,omitempty"`
}

// SameJob reports whether two positions name the same company and role.
func (p Position) SameJob(other Position) bool {
	return p.Company == other.Company && p.Role == other.Role
}

// Person is a tracked individual whose employment is re-checked on a schedule.
type Person struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Current     Position   `json:"current_position"`
	History     []Position `json:"position_history"` // newest first
	Recipients  []string   `json:"notification_recipients"`
	LastChecked *time.Time `json:"last_checked,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// PersonUpdate is a partial update to a Person. Nil fields are left untouched.
type PersonUpdate struct {
	Name        *string    `json:"name,omitempty"`
	Current     *Position  `json:"current_position,omitempty"`
	Recipients  []string   `json:"notification_recipients,omitempty"`
	LastChecked *time.Time `json:"last_checked,omitempty"`
}

// NewPerson builds a person starting in the given position at now.
func NewPerson(id, name, company, role string, recipients []string, now time.Time) Person {
	if role == "" {
		role = DefaultRole
	}
	start := now
	return Person{
		ID:         id,
		Name:       name,
		Current:    Position{Company: company, Role: role, StartDate: &start},
		History:    []Position{},
		Recipients: recipients,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Apply merges u into p. When u carries a current position whose company or
// role differs from the stored one, the displaced position is closed out with
// an end marker of now and prepended to History.
func (p *Person) Apply(u PersonUpdate, now time.Time) {
	if u.Name != nil {
		p.Name = *u.Name
	}
	if u.Current != nil {
		next := *u.Current
		next.EndDate = nil
		if !p.Current.SameJob(next) {
			prior := p.Current
			end := now
			prior.EndDate = &end
			p.History = append([]Position{prior}, p.History...)
			if next.StartDate == nil {
				start := now
				next.StartDate = &start
			}
			p.Current = next
		} else if next.StartDate != nil {
			p.Current.StartDate = next.StartDate
		}
	}
	if u.Recipients != nil {
		p.Recipients = u.Recipients
	}
	if u.LastChecked != nil {
		p.LastChecked = u.LastChecked
	}
	p.UpdatedAt = now
}
