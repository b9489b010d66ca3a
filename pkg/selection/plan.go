package selection

import (
	"sort"

	"github.com/nimbusops/fleetroll/pkg/cloud"
	"github.com/nimbusops/fleetroll/pkg/inventory"
)

// Plan is the ordered removal sequence for one Engine run, plus the
// visibility the operator gets before confirming it.
type Plan struct {
	Order []inventory.Host

	// BeforeCounts and AfterCounts are per-AZ ASG membership counts,
	// computed over ASG-resident hosts only, before and after the
	// selected hosts are removed. Carried from the source tool's
	// per-AZ count printout even though only the maxDiff threshold is
	// load-bearing for the warning.
	BeforeCounts map[string]int
	AfterCounts  map[string]int

	// MaxDiff is the largest |count(AZi)-count(AZj)| over AfterCounts.
	MaxDiff int
	// Warn is true when the post-removal distribution is imbalanced
	// (MaxDiff > 1) or only one AZ remains populated.
	Warn bool

	// NotInASG lists selected hosts whose VM id has no ASG membership;
	// they are warned about but not excluded from the plan.
	NotInASG []inventory.Host
}

// BuildPlan computes the AZ-balanced removal order for the selected hosts,
// given the full ASG membership. Hosts not present in members are still
// included in Order (they are deregistered and terminated without an
// awaited replacement) but are reported via NotInASG and excluded from the
// AZ bucketing math.
func BuildPlan(selected []inventory.Host, members []cloud.Member) Plan {
	azOf := make(map[string]string, len(members)) // vmID -> AZ
	for _, m := range members {
		azOf[m.VMID] = m.AZ
	}

	selectedVMIDs := make(map[string]bool, len(selected))
	for _, h := range selected {
		selectedVMIDs[h.VMID] = true
	}

	plan := Plan{BeforeCounts: make(map[string]int), AfterCounts: make(map[string]int)}

	toRemove := make(map[string][]inventory.Host) // AZ -> queue
	remainingByAZ := make(map[string]int)

	for _, m := range members {
		plan.BeforeCounts[m.AZ]++
		if _, ok := remainingByAZ[m.AZ]; !ok {
			remainingByAZ[m.AZ] = 0 // every AZ present in the ASG participates, even if emptied
		}
		if !selectedVMIDs[m.VMID] {
			remainingByAZ[m.AZ]++
		}
	}

	for _, h := range selected {
		az, ok := azOf[h.VMID]
		if !ok {
			h.NotInASG = true
			plan.NotInASG = append(plan.NotInASG, h)
			continue
		}
		toRemove[az] = append(toRemove[az], h)
	}
	// Ensure every AZ present in the ASG participates in round-robin,
	// even ones with nothing selected from them.
	azOrder := make([]string, 0, len(remainingByAZ))
	for az := range remainingByAZ {
		azOrder = append(azOrder, az)
	}
	// Stable on ties: start from a deterministic (lexical) order since map
	// iteration order is not deterministic.
	sort.Strings(azOrder)
	sort.SliceStable(azOrder, func(i, j int) bool {
		return remainingByAZ[azOrder[i]] > remainingByAZ[azOrder[j]]
	})

	remaining := totalSelected(toRemove)
	for remaining > 0 {
		for _, az := range azOrder {
			queue := toRemove[az]
			if len(queue) == 0 {
				continue
			}
			plan.Order = append(plan.Order, queue[0])
			toRemove[az] = queue[1:]
			remaining--
		}
	}
	// Hosts with no ASG membership are appended last; their order among
	// themselves doesn't affect AZ balance since they never counted
	// toward it.
	plan.Order = append(plan.Order, plan.NotInASG...)

	for az, count := range remainingByAZ {
		plan.AfterCounts[az] = count
	}
	plan.MaxDiff, plan.Warn = balanceWarning(plan.AfterCounts)
	return plan
}

func totalSelected(toRemove map[string][]inventory.Host) int {
	n := 0
	for _, q := range toRemove {
		n += len(q)
	}
	return n
}

func balanceWarning(afterCounts map[string]int) (maxDiff int, warn bool) {
	if len(afterCounts) <= 1 {
		return 0, true
	}
	counts := make([]int, 0, len(afterCounts))
	populated := 0
	for _, c := range afterCounts {
		counts = append(counts, c)
		if c > 0 {
			populated++
		}
	}
	min, max := counts[0], counts[0]
	for _, c := range counts[1:] {
		if c < min {
			min = c
		}
		if c > max {
			max = c
		}
	}
	maxDiff = max - min
	return maxDiff, maxDiff > 1 || populated <= 1
}
