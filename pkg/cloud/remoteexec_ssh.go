package cloud

import (
	"context"
	"net"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"
)

// SSHRemoteExec implements RemoteExec by dialing each VM's private IP over
// SSH, running the command, and tearing the connection down immediately —
// there is no connection pool to leak across the one command a caller
// issues per state transition.
type SSHRemoteExec struct {
	// AddressOf resolves a VM id to the address (host:port or host) to
	// dial. In practice this is the Host Inventory's private IP.
	AddressOf func(vmID string) (string, error)
	User      string
	Signer    ssh.Signer
	Logger    *zap.Logger
}

// NewSSHRemoteExec constructs a RemoteExec backed by SSH key auth.
func NewSSHRemoteExec(addressOf func(string) (string, error), user string, signer ssh.Signer, logger *zap.Logger) *SSHRemoteExec {
	return &SSHRemoteExec{AddressOf: addressOf, User: user, Signer: signer, Logger: logger}
}

// Run dials vmID's address, runs command, and returns whether it exited
// zero. The SSH client and session are always closed before returning,
// success or failure.
func (r *SSHRemoteExec) Run(ctx context.Context, vmID string, command string, timeout time.Duration) (bool, error) {
	addr, err := r.AddressOf(vmID)
	if err != nil {
		return false, NewError("remoteexec.resolve", err)
	}

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	config := &ssh.ClientConfig{
		User:            r.User,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(r.Signer)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         10 * time.Second,
	}

	var d net.Dialer
	conn, err := d.DialContext(dialCtx, "tcp", addrWithDefaultPort(addr))
	if err != nil {
		return false, NewError("remoteexec.dial", err)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		_ = conn.Close()
		return false, NewError("remoteexec.handshake", err)
	}
	client := ssh.NewClient(sshConn, chans, reqs)
	defer func() { _ = client.Close() }()

	session, err := client.NewSession()
	if err != nil {
		return false, NewError("remoteexec.session", err)
	}
	defer func() { _ = session.Close() }()

	runCtx, cancelRun := context.WithTimeout(ctx, timeout)
	defer cancelRun()

	type result struct {
		err error
	}
	done := make(chan result, 1)
	go func() {
		done <- result{err: session.Run(command)}
	}()

	select {
	case res := <-done:
		if res.err == nil {
			return true, nil
		}
		if _, ok := res.err.(*ssh.ExitError); ok {
			return false, nil
		}
		return false, NewError("remoteexec.run", res.err)
	case <-runCtx.Done():
		_ = session.Signal(ssh.SIGKILL)
		return false, NewError("remoteexec.run", runCtx.Err())
	}
}

func addrWithDefaultPort(addr string) string {
	if _, _, err := net.SplitHostPort(addr); err == nil {
		return addr
	}
	return net.JoinHostPort(addr, strconv.Itoa(22))
}
