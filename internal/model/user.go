package model

import "strings"

// Payer is the read-only view of a user needed to start a checkout.  Users
// are owned by the authentication service; this engine never writes them.
type Payer struct {
	ID    uint64 `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// SplitName returns the first whitespace-separated token as the first name
// and the remaining tokens joined by single spaces as the last name.
func (p Payer) SplitName() (first, last string) {
	parts := strings.Fields(p.Name)
	if len(parts) == 0 {
		return "", ""
	}
	return parts[0], strings.Join(parts[1:], " ")
}
