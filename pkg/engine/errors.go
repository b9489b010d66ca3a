package engine

import "fmt"

// TimeoutError reports a steady-state or replacement-ready deadline
// exceeded. The run stops at the current host, so the operator must
// inspect it: after a steady-state timeout it has already been detached
// and deregistered; after a replacement-ready timeout it has been
// detached but not yet deregistered.
type TimeoutError struct {
	HostID string
	Stage  string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timeout waiting for %s on host %s", e.Stage, e.HostID)
}

// RemoteExecWarning reports that the container-stop preflight or the stop
// itself failed. It is never fatal and the run continues. After a
// preflight failure the host is recorded as skipped and its VM is not
// terminated; after a stop failure the VM is still stopped and terminated.
type RemoteExecWarning struct {
	HostID string
	Stage  string
	Cause  error
}

func (e *RemoteExecWarning) Error() string {
	return fmt.Sprintf("remote exec warning on host %s at %s: %v", e.HostID, e.Stage, e.Cause)
}

func (e *RemoteExecWarning) Unwrap() error { return e.Cause }

// NotInASGWarning reports that a selected host's VM id was not a member of
// the autoscaling group at plan-build time, so its ASG detach and
// replacement-await were skipped. Never fatal.
type NotInASGWarning struct {
	HostID string
}

func (e *NotInASGWarning) Error() string {
	return fmt.Sprintf("host %s is not an ASG member; detach and replacement wait skipped", e.HostID)
}
