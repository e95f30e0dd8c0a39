// File: internal/agent/coords.go
package agent

// The decision service expresses screen positions on a virtual 1000x1000
// grid regardless of the actual viewport. MapAxis converts one normalized
// coordinate in [0, 999] to a device pixel for the configured dimension.
//
// Integer arithmetic gives the same floor(n/1000*dim) result as the
// floating-point form for non-negative inputs. Out-of-range values are not
// special-cased; they simply map outside the viewport.
func MapAxis(normalized, dimension int) int {
	return normalized * dimension / 1000
}
