// Package access defines the confidentiality tiers, user roles, and the
// role→tier visibility mapping that gates every retrieval in the system.
package access

import (
	"errors"
	"fmt"
)

// Tier is a document confidentiality tier.
type Tier string

const (
	TierLow    Tier = "Low"
	TierMedium Tier = "Medium"
	TierHigh   Tier = "High"
)

// Role is a user role.
type Role string

const (
	RoleEmployee Role = "Employee"
	RoleManager  Role = "Manager"
	RoleAdmin    Role = "Admin"
)

var (
	// ErrUnknownRole is returned for any role outside the closed role set.
	// An unknown role never falls back to a permissive tier set.
	ErrUnknownRole = errors.New("unknown role")

	// ErrInvalidTier is returned for any tier outside the closed tier set.
	ErrInvalidTier = errors.New("invalid confidentiality tier")
)

// Tiers lists all confidentiality tiers from least to most restricted.
var Tiers = []Tier{TierLow, TierMedium, TierHigh}

// Roles lists all user roles from least to most privileged.
var Roles = []Role{RoleEmployee, RoleManager, RoleAdmin}

// tierRank orders tiers by restriction. Low < Medium < High.
var tierRank = map[Tier]int{
	TierLow:    0,
	TierMedium: 1,
	TierHigh:   2,
}

// roleClearance maps each role to the highest tier it may read.
// Visibility is monotonic: a role sees its clearance tier and everything below.
var roleClearance = map[Role]Tier{
	RoleEmployee: TierLow,
	RoleManager:  TierMedium,
	RoleAdmin:    TierHigh,
}

// visibility is the single role→tiers lookup table, derived from roleClearance.
var visibility map[Role][]Tier

func init() {
	visibility = make(map[Role][]Tier, len(Roles))
	for _, role := range Roles {
		clearance, ok := roleClearance[role]
		if !ok {
			panic(fmt.Sprintf("access: role %q has no clearance entry", role))
		}
		var tiers []Tier
		for _, t := range Tiers {
			if tierRank[t] <= tierRank[clearance] {
				tiers = append(tiers, t)
			}
		}
		visibility[role] = tiers
	}
	for _, t := range Tiers {
		if _, ok := tierRank[t]; !ok {
			panic(fmt.Sprintf("access: tier %q has no rank entry", t))
		}
	}
}

// VisibleTiers returns the confidentiality tiers the given role may read.
// The returned slice is a copy; callers may not mutate the table through it.
func VisibleTiers(role Role) ([]Tier, error) {
	tiers, ok := visibility[role]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRole, role)
	}
	out := make([]Tier, len(tiers))
	copy(out, tiers)
	return out, nil
}

// CanRead reports whether the role may read documents at the given tier.
func CanRead(role Role, tier Tier) (bool, error) {
	clearance, ok := roleClearance[role]
	if !ok {
		return false, fmt.Errorf("%w: %q", ErrUnknownRole, role)
	}
	rank, ok := tierRank[tier]
	if !ok {
		return false, fmt.Errorf("%w: %q", ErrInvalidTier, tier)
	}
	return rank <= tierRank[clearance], nil
}

// CanUpload reports whether the role may upload documents at the given tier.
// A role may only upload at tiers it can also read.
func CanUpload(role Role, tier Tier) (bool, error) {
	return CanRead(role, tier)
}

// ParseTier validates a tier string against the closed tier set.
func ParseTier(s string) (Tier, error) {
	t := Tier(s)
	if _, ok := tierRank[t]; !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidTier, s)
	}
	return t, nil
}

// ParseRole validates a role string against the closed role set.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if _, ok := roleClearance[r]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, s)
	}
	return r, nil
}
