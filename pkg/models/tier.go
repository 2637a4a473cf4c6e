// Package models contains shared data models used across the Luma generation API.
package models

import "fmt"

// Tier is a caller's service level. It determines rate limit, quota, queue
// priority and feature access.
type Tier string

const (
	TierFree       Tier = "free"
	TierDeveloper  Tier = "developer"
	TierPro        Tier = "pro"
	TierEnterprise Tier = "enterprise"
)

// Tiers lists every tier from lowest to highest.
var Tiers = []Tier{TierFree, TierDeveloper, TierPro, TierEnterprise}

func (t Tier) Valid() bool {
	switch t {
	case TierFree, TierDeveloper, TierPro, TierEnterprise:
		return true
	}
	return false
}

// Rank orders tiers so that a higher rank unlocks more features.
func (t Tier) Rank() int {
	for i, v := range Tiers {
		if v == t {
			return i
		}
	}
	return -1
}

// ParseTier converts a raw string into a Tier.
func ParseTier(s string) (Tier, error) {
	t := Tier(s)
	if !t.Valid() {
		return "", fmt.Errorf("unknown tier %q: must be one of free, developer, pro, enterprise", s)
	}
	return t, nil
}

// Priority is the queue a job waits in.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityNormal   Priority = "normal"
)

// Priorities lists the classes from heaviest to lightest. The scheduler breaks
// credit ties in this order.
var Priorities = []Priority{PriorityCritical, PriorityHigh, PriorityNormal}

func (p Priority) Valid() bool {
	switch p {
	case PriorityCritical, PriorityHigh, PriorityNormal:
		return true
	}
	return false
}
