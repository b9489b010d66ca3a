// Package selection turns an operator's host picks into a safe,
// AZ-balanced removal order.
package selection

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/nimbusops/fleetroll/pkg/inventory"
)

// SortKey selects the display ordering shown to the operator.
type SortKey string

const (
	SortLaunchTime  SortKey = "launch_time"
	SortUtilization SortKey = "utilization"
)

// Sorted returns hosts ordered for display. launch_time sorts oldest first;
// utilization sorts most-utilized (cpu%+mem%) first. Unknown utilization
// values sort last regardless of direction.
func Sorted(hosts []inventory.Host, key SortKey) []inventory.Host {
	out := make([]inventory.Host, len(hosts))
	copy(out, hosts)

	switch key {
	case SortUtilization:
		sort.SliceStable(out, func(i, j int) bool {
			return score(out[i]) > score(out[j])
		})
	default:
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].LaunchTime.Before(out[j].LaunchTime)
		})
	}
	return out
}

func score(h inventory.Host) int {
	if h.CPUPercent == inventory.UnknownUtilization || h.MemPercent == inventory.UnknownUtilization {
		return -1
	}
	return h.CPUPercent + h.MemPercent
}

// ParseIndices parses a comma-separated list of indices or inclusive
// ranges ("a-b") into the displayed list, returning the set of selected
// zero-based indices in input order, deduplicated.
func ParseIndices(expr string, displayedLen int) ([]int, error) {
	seen := make(map[int]bool)
	var out []int

	for _, part := range strings.Split(expr, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		lo, hi, err := parseRange(part)
		if err != nil {
			return nil, err
		}
		if lo > hi {
			lo, hi = hi, lo
		}
		for i := lo; i <= hi; i++ {
			if i < 0 || i >= displayedLen {
				return nil, fmt.Errorf("selection: index %d out of range [0,%d)", i, displayedLen)
			}
			if !seen[i] {
				seen[i] = true
				out = append(out, i)
			}
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("selection: no hosts selected")
	}
	return out, nil
}

func parseRange(part string) (lo, hi int, err error) {
	if dash := strings.IndexByte(part, '-'); dash > 0 {
		lo, err = strconv.Atoi(strings.TrimSpace(part[:dash]))
		if err != nil {
			return 0, 0, fmt.Errorf("selection: invalid range %q: %w", part, err)
		}
		hi, err = strconv.Atoi(strings.TrimSpace(part[dash+1:]))
		if err != nil {
			return 0, 0, fmt.Errorf("selection: invalid range %q: %w", part, err)
		}
		return lo, hi, nil
	}
	v, err := strconv.Atoi(part)
	if err != nil {
		return 0, 0, fmt.Errorf("selection: invalid index %q: %w", part, err)
	}
	return v, v, nil
}
