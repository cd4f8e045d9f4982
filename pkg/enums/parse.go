package enums

import (
	"fmt"
	"slices"
)

// parse resolves raw against the known values of one enum kind.
func parse[T ~string](kind string, values []T, raw string) (T, error) {
	v := T(raw)
	if !slices.Contains(values, v) {
		var zero T
		return zero, fmt.Errorf("invalid %s %q", kind, raw)
	}
	return v, nil
}
