package selection

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nimbusops/fleetroll/pkg/inventory"
)

func TestSortedByLaunchTime(t *testing.T) {
	now := time.Now()
	hosts := []inventory.Host{
		{ID: "b", LaunchTime: now.Add(-1 * time.Hour)},
		{ID: "a", LaunchTime: now.Add(-2 * time.Hour)},
	}
	out := Sorted(hosts, SortLaunchTime)
	require.Equal(t, []string{"a", "b"}, ids(out))
}

func TestSortedByUtilization(t *testing.T) {
	hosts := []inventory.Host{
		{ID: "low", CPUPercent: 10, MemPercent: 10},
		{ID: "high", CPUPercent: 80, MemPercent: 90},
		{ID: "unknown", CPUPercent: inventory.UnknownUtilization, MemPercent: 50},
	}
	out := Sorted(hosts, SortUtilization)
	require.Equal(t, []string{"high", "low", "unknown"}, ids(out))
}

func TestParseIndices(t *testing.T) {
	idx, err := ParseIndices("0,2-3,3", 5)
	require.NoError(t, err)
	require.Equal(t, []int{0, 2, 3}, idx)
}

func TestParseIndicesOutOfRange(t *testing.T) {
	_, err := ParseIndices("9", 5)
	require.Error(t, err)
}

func TestParseIndicesEmpty(t *testing.T) {
	_, err := ParseIndices("", 5)
	require.Error(t, err)
}

func ids(hosts []inventory.Host) []string {
	out := make([]string, len(hosts))
	for i, h := range hosts {
		out[i] = h.ID
	}
	return out
}
