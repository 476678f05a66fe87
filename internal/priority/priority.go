// Package priority converts between the local and the Todoist priority scales.
//
// Locally priority 1 is the most urgent and 4 the least. Todoist uses the
// inverse: 4 is the most urgent ("p1" in its UI) and 1 is normal. Both
// directions are the same involution, 5 - x.
//
// Conversion happens only at the synchronization boundary. Callers validate
// the range with Valid before converting.
package priority

const (
	// Highest is the most urgent local priority.
	Highest = 1
	// Lowest is the least urgent local priority and the default.
	Lowest = 4
)

// ToRemote converts a local priority (1..4) to the Todoist scale.
func ToRemote(local int) int {
	return 5 - local
}

// ToLocal converts a Todoist priority (1..4) to the local scale.
func ToLocal(remote int) int {
	return 5 - remote
}

// Valid reports whether p lies on the closed 1..4 scale shared by both sides.
func Valid(p int) bool {
	return p >= Highest && p <= Lowest
}
