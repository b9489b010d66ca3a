package selection

import (
	"fmt"

	"github.com/nimbusops/fleetroll/pkg/cloud"
)

// PreconditionError reports a failed safety check; the run exits before
// any mutation occurs.
type PreconditionError struct {
	Services []string
	Reason   string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("precondition failed: %s (services: %v)", e.Reason, e.Services)
}

// Mode distinguishes the two pipelines the safety checks gate.
type Mode string

const (
	ModeRollover  Mode = "ROLLOVER"
	ModeScaleDown Mode = "SCALE_DOWN"
)

// CheckPreconditions runs the once-before-the-loop safety gate: every
// service must be ACTIVE, and in scale-down mode the post-removal host
// count must cover the largest desired count across all services.
func CheckPreconditions(services []cloud.Service, mode Mode, totalHosts, selectedCount int) error {
	var inactive []string
	maxDesired := 0
	for _, s := range services {
		if s.Status != "ACTIVE" {
			inactive = append(inactive, s.ID)
		}
		if s.DesiredCount > maxDesired {
			maxDesired = s.DesiredCount
		}
	}
	if len(inactive) > 0 {
		return &PreconditionError{Services: inactive, Reason: "not all services are ACTIVE"}
	}

	if mode == ModeScaleDown {
		remaining := totalHosts - selectedCount
		if remaining < maxDesired {
			return &PreconditionError{Reason: fmt.Sprintf(
				"post-removal host count %d is below the maximum desired count %d", remaining, maxDesired)}
		}
	}
	return nil
}
