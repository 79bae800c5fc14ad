package ssh

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/imamik/infractl/internal/util/retry"
)

const (
	defaultPort        = 22
	defaultDialTimeout = 10 * time.Second
	defaultMaxRetries  = 3
	defaultRetryDelay  = 2 * time.Second
	defaultMaxDelay    = 10 * time.Second
)

// Config holds SSH client configuration.
type Config struct {
	Port       int
	User       string
	PrivateKey []byte

	// DialTimeout bounds the TCP connect and handshake.
	// If zero, defaultDialTimeout is used.
	DialTimeout time.Duration

	// MaxRetries is the number of reconnect attempts after the first.
	// Negative disables retries; zero uses defaultMaxRetries.
	MaxRetries int

	// RetryDelay is the initial delay between retry attempts.
	// If zero, defaultRetryDelay is used.
	RetryDelay time.Duration

	// KnownHostsFile enables host key verification when set.
	KnownHostsFile string

	// HostKeyCallback overrides KnownHostsFile.
	HostKeyCallback ssh.HostKeyCallback
}

// Result is the outcome of a command that ran to completion.
type Result struct {
	Output     string
	ExitStatus int
}

// Client executes commands on remote hosts via SSH.
type Client struct {
	config *Config
	signer ssh.Signer
}

// NewClient creates a new SSH client and validates the private key.
func NewClient(cfg *Config) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.User == "" {
		return nil, fmt.Errorf("config user cannot be empty")
	}
	if len(cfg.PrivateKey) == 0 {
		return nil, fmt.Errorf("config private key cannot be empty")
	}

	configCopy := *cfg
	if configCopy.Port == 0 {
		configCopy.Port = defaultPort
	}
	if configCopy.DialTimeout == 0 {
		configCopy.DialTimeout = defaultDialTimeout
	}
	if configCopy.MaxRetries == 0 {
		configCopy.MaxRetries = defaultMaxRetries
	}
	if configCopy.MaxRetries < 0 {
		configCopy.MaxRetries = 0
	}
	if configCopy.RetryDelay == 0 {
		configCopy.RetryDelay = defaultRetryDelay
	}
	if configCopy.HostKeyCallback == nil {
		if configCopy.KnownHostsFile != "" {
			cb, err := knownhosts.New(ExpandHome(configCopy.KnownHostsFile))
			if err != nil {
				return nil, fmt.Errorf("failed to load known hosts: %w", err)
			}
			configCopy.HostKeyCallback = cb
		} else {
			configCopy.HostKeyCallback = ssh.InsecureIgnoreHostKey() //nolint:gosec // freshly provisioned hosts have no recorded key yet
		}
	}

	signer, err := ssh.ParsePrivateKey(configCopy.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	return &Client{
		config: &configCopy,
		signer: signer,
	}, nil
}

// Run executes command on host. A command that exits non-zero is not an
// error; its status is reported in the Result. Errors are reserved for
// connection and session failures.
func (c *Client) Run(ctx context.Context, host, command string) (Result, error) {
	client, err := c.connect(ctx, host)
	if err != nil {
		return Result{}, err
	}
	defer func() { _ = client.Close() }()

	session, err := client.NewSession()
	if err != nil {
		return Result{}, fmt.Errorf("failed to create SSH session on %s: %w", host, err)
	}
	defer func() { _ = session.Close() }()

	type outcome struct {
		output []byte
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		out, err := session.CombinedOutput(command)
		done <- outcome{out, err}
	}()

	select {
	case <-ctx.Done():
		_ = client.Close()
		return Result{}, fmt.Errorf("command on %s cancelled: %w", host, ctx.Err())
	case res := <-done:
		output := strings.TrimSpace(string(res.output))
		if res.err == nil {
			return Result{Output: output}, nil
		}
		var exitErr *ssh.ExitError
		if errors.As(res.err, &exitErr) {
			return Result{Output: output, ExitStatus: exitErr.ExitStatus()}, nil
		}
		return Result{Output: output}, fmt.Errorf("command failed on %s: %w", host, res.err)
	}
}

// connect establishes an SSH connection with retry logic.
func (c *Client) connect(ctx context.Context, host string) (*ssh.Client, error) {
	config := &ssh.ClientConfig{
		User:            c.config.User,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(c.signer)},
		HostKeyCallback: c.config.HostKeyCallback,
		Timeout:         c.config.DialTimeout,
	}

	addr := c.address(host)
	var client *ssh.Client

	err := retry.Do(ctx, func(ctx context.Context) error {
		var dialErr error
		client, dialErr = c.dial(ctx, addr, config)
		if dialErr != nil && isAuthError(dialErr) {
			return retry.Fatal(dialErr)
		}
		return dialErr
	},
		retry.WithMaxRetries(c.config.MaxRetries),
		retry.WithInitialDelay(c.config.RetryDelay),
		retry.WithMaxDelay(defaultMaxDelay),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to establish SSH connection to %s: %w", addr, err)
	}
	return client, nil
}

func (c *Client) dial(ctx context.Context, addr string, config *ssh.ClientConfig) (*ssh.Client, error) {
	dialer := net.Dialer{Timeout: c.config.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	_ = conn.SetDeadline(time.Now().Add(c.config.DialTimeout))

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	_ = conn.SetDeadline(time.Time{})
	return ssh.NewClient(sshConn, chans, reqs), nil
}

func (c *Client) address(host string) string {
	if _, _, err := net.SplitHostPort(host); err == nil {
		return host
	}
	return net.JoinHostPort(host, strconv.Itoa(c.config.Port))
}

func isAuthError(err error) bool {
	return strings.Contains(err.Error(), "unable to authenticate")
}

// ExpandHome replaces a leading "~/" with the user's home directory.
func ExpandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}

// ReadPrivateKey reads a private key file, expanding "~/".
func ReadPrivateKey(path string) ([]byte, error) {
	// #nosec G304 - key path comes from inventory configuration
	data, err := os.ReadFile(ExpandHome(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read private key: %w", err)
	}
	return data, nil
}
