package devices

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// Session is an open CLI connection to one device
type Session interface {
	Send(ctx context.Context, command string, timeout time.Duration) (string, error)
	SendConfig(ctx context.Context, lines []string, timeout time.Duration) (string, error)
	Close() error
}

// Dialer opens sessions to devices
type Dialer interface {
	Dial(ctx context.Context, h Host) (Session, error)
}

// SSHDialer opens password-authenticated SSH sessions
type SSHDialer struct {
	KnownHostsFile string
}

// Dial connects to the host and completes the SSH handshake
func (d *SSHDialer) Dial(ctx context.Context, h Host) (Session, error) {
	hostKeyCallback := ssh.InsecureIgnoreHostKey()
	if d.KnownHostsFile != "" {
		cb, err := knownhosts.New(d.KnownHostsFile)
		if err != nil {
			return nil, errors.Wrap(err, "failed to load known hosts")
		}
		hostKeyCallback = cb
	}

	password := h.Password
	cfg := &ssh.ClientConfig{
		User: h.Username,
		Auth: []ssh.AuthMethod{
			ssh.Password(password),
			ssh.KeyboardInteractive(func(user, instruction string, questions []string, echos []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for i := range answers {
					answers[i] = password
				}
				return answers, nil
			}),
		},
		HostKeyCallback: hostKeyCallback,
		Timeout:         h.Timeout,
	}

	timeout := h.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	addr := net.JoinHostPort(h.Hostname, strconv.Itoa(h.Port))
	netDialer := net.Dialer{Timeout: timeout}
	conn, err := netDialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to connect to %s", addr)
	}

	_ = conn.SetDeadline(time.Now().Add(timeout))
	c, chans, reqs, err := ssh.NewClientConn(conn, addr, cfg)
	if err != nil {
		conn.Close()
		return nil, errors.Wrapf(err, "ssh handshake with %s failed", addr)
	}
	_ = conn.SetDeadline(time.Time{})

	return &sshSession{client: ssh.NewClient(c, chans, reqs), platform: h.Platform}, nil
}

type sshSession struct {
	client   *ssh.Client
	platform string
}

// Send runs one command on an exec channel
func (s *sshSession) Send(ctx context.Context, command string, timeout time.Duration) (string, error) {
	sess, err := s.client.NewSession()
	if err != nil {
		return "", errors.Wrap(err, "failed to open ssh session")
	}
	defer sess.Close()

	var out lockedBuffer
	sess.Stdout = &out
	sess.Stderr = &out

	err = waitSession(ctx, sess, timeout, func() error { return sess.Run(command) })
	if err != nil {
		return out.String(), errors.Wrapf(err, "command %q failed", command)
	}
	return out.String(), nil
}

// SendConfig enters configuration mode on an interactive shell and applies lines
func (s *sshSession) SendConfig(ctx context.Context, lines []string, timeout time.Duration) (string, error) {
	sess, err := s.client.NewSession()
	if err != nil {
		return "", errors.Wrap(err, "failed to open ssh session")
	}
	defer sess.Close()

	modes := ssh.TerminalModes{
		ssh.ECHO:          0,
		ssh.TTY_OP_ISPEED: 14400,
		ssh.TTY_OP_OSPEED: 14400,
	}
	if err := sess.RequestPty("vt100", 200, 512, modes); err != nil {
		return "", errors.Wrap(err, "failed to request pty")
	}

	var out lockedBuffer
	sess.Stdout = &out
	sess.Stderr = &out

	stdin, err := sess.StdinPipe()
	if err != nil {
		return "", errors.Wrap(err, "failed to open stdin")
	}
	if err := sess.Shell(); err != nil {
		return "", errors.Wrap(err, "failed to start shell")
	}

	enter, exit := configMode(s.platform)
	script := make([]string, 0, len(enter)+len(lines)+len(exit)+1)
	script = append(script, enter...)
	script = append(script, lines...)
	script = append(script, exit...)
	if platformFamily(s.platform) == "vrp" {
		script = append(script, "quit")
	} else {
		script = append(script, "exit")
	}

	for _, line := range script {
		if _, err := fmt.Fprintf(stdin, "%s\n", line); err != nil {
			return out.String(), errors.Wrapf(err, "failed to send %q", line)
		}
	}
	stdin.Close()

	err = waitSession(ctx, sess, timeout, sess.Wait)
	var exitMissing *ssh.ExitMissingError
	if err != nil && !errors.As(err, &exitMissing) {
		return out.String(), errors.Wrap(err, "config session failed")
	}
	return out.String(), nil
}

func (s *sshSession) Close() error {
	return s.client.Close()
}

// waitSession runs fn and closes the session when ctx ends or timeout elapses
func waitSession(ctx context.Context, sess *ssh.Session, timeout time.Duration, fn func() error) error {
	done := make(chan error, 1)
	go func() { done <- fn() }()

	var timer <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timer = t.C
	}

	select {
	case err := <-done:
		return err
	case <-timer:
		sess.Close()
		return errors.Errorf("timed out after %s", timeout)
	case <-ctx.Done():
		sess.Close()
		return ctx.Err()
	}
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
