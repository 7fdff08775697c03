package tiers

import "slices"

// Tier is a named subscription level.
type Tier string

const (
	Free    Tier = "free"
	Starter Tier = "starter"
	Pro     Tier = "pro"
	Max     Tier = "max"
)

var ordered = []Tier{Free, Starter, Pro, Max}

// Valid reports whether t is a known tier.
func (t Tier) Valid() bool {
	return slices.Contains(ordered, t)
}

// Paid reports whether t is billed through the payments provider.
func (t Tier) Paid() bool {
	return t.Valid() && t != Free
}

func (t Tier) String() string {
	return string(t)
}

// BillingCycle is the billing frequency of a paid price.
type BillingCycle string

const (
	Monthly BillingCycle = "monthly"
	Yearly  BillingCycle = "yearly"
)

// Valid reports whether c is a known billing cycle.
func (c BillingCycle) Valid() bool {
	return c == Monthly || c == Yearly
}

// allotments is the per-tier credit cap. Free is a lifetime cap, paid tiers are per period.
var allotments = map[Tier]int64{
	Free:    5,
	Starter: 100,
	Pro:     500,
	Max:     2000,
}

// Allotment returns the credit cap for a tier. Unknown tiers get the free allotment.
func Allotment(t Tier) int64 {
	if n, ok := allotments[t]; ok {
		return n
	}
	return allotments[Free]
}
