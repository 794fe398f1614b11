// Package model contains the domain types shared by the selector, the
// stats pipeline, the server and the game client.
package model

import (
	"strings"
)

// RoleGroup is the ground-truth label a player is guessing.
type RoleGroup string

const (
	RoleExecutive RoleGroup = "executive"
	RoleTechnical RoleGroup = "technical"
)

// Valid reports whether g is one of the two known groups.
func (g RoleGroup) Valid() bool {
	return g == RoleExecutive || g == RoleTechnical
}

// ParseRoleGroup maps free-form role labels onto a group. Anything that
// reads as technical (cto, engineering, tech) is technical; the rest is executive.
func ParseRoleGroup(s string) RoleGroup {
	v := strings.ToLower(strings.TrimSpace(s))
	switch {
	case v == string(RoleTechnical), v == "cto", strings.Contains(v, "tech"), strings.Contains(v, "engineer"):
		return RoleTechnical
	default:
		return RoleExecutive
	}
}

// LocationRandom is the sentinel location meaning "no region filter".
const LocationRandom = "random"

// Profile is one person in the population. Session deltas are zero on
// batch entry and are never written to the store directly.
type Profile struct {
	ID                  string    `json:"id" yaml:"id"`
	Name                string    `json:"name" yaml:"name"`
	Company             string    `json:"company" yaml:"company"`
	Role                string    `json:"role" yaml:"role"`
	RoleGroup           RoleGroup `json:"roleGroup" yaml:"roleGroup"`
	ImageURL            string    `json:"imageUrl" yaml:"imageUrl"`
	AlternateImageURL   string    `json:"alternateImageUrl,omitempty" yaml:"alternateImageUrl,omitempty"`
	Location            string    `json:"location" yaml:"location"`
	SuccessCount        int       `json:"successCount" yaml:"successCount"`
	TotalCount          int       `json:"totalCount" yaml:"totalCount"`
	SessionSuccessDelta int       `json:"sessionSuccessDelta" yaml:"-"`
	SessionTotalDelta   int       `json:"sessionTotalDelta" yaml:"-"`
	SponsorName         string    `json:"sponsorName,omitempty" yaml:"sponsorName,omitempty"`
	SponsorURL          string    `json:"sponsorUrl,omitempty" yaml:"sponsorUrl,omitempty"`
	Sponsored           bool      `json:"sponsored,omitempty" yaml:"sponsored,omitempty"`
	LinkedInProfileURL  string    `json:"linkedInProfileUrl,omitempty" yaml:"linkedInProfileUrl,omitempty"`
}

// SuccessRatio is successCount/totalCount, or 0 for a profile never shown.
func (p Profile) SuccessRatio() float64 {
	if p.TotalCount <= 0 {
		return 0
	}
	return float64(p.SuccessCount) / float64(p.TotalCount)
}

// IsTechnical reports whether picking p is a correct answer.
func (p Profile) IsTechnical() bool { return p.RoleGroup == RoleTechnical }

// ResetSession returns a copy of p with zeroed session deltas.
func (p Profile) ResetSession() Profile {
	p.SessionSuccessDelta = 0
	p.SessionTotalDelta = 0
	return p
}

// Increment is the net persisted effect of one profile's session deltas.
type Increment struct {
	ProfileID string `json:"profileId"`
	Success   int    `json:"success"`
	Total     int    `json:"total"`
}

// IncrementOf derives the increment carried by p's session deltas.
func IncrementOf(p Profile) Increment {
	return Increment{ProfileID: p.ID, Success: p.SessionSuccessDelta, Total: p.SessionTotalDelta}
}
