package transport

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/matbridge/matbridge/pkg/telemetry"
)

// AuthMethod represents the type of SSH authentication.
type AuthMethod string

const (
	// AuthMethodPassword uses password authentication
	AuthMethodPassword AuthMethod = "password"

	// AuthMethodKey uses private key authentication
	AuthMethodKey AuthMethod = "key"
)

// SSHConfig holds configuration for running the engine worker on a remote
// host over SSH.
type SSHConfig struct {
	// Host is the remote hostname or IP address
	Host string

	// Port is the SSH port (default: 22)
	Port int

	// User is the SSH username
	User string

	// AuthMethod specifies which authentication method to use
	AuthMethod AuthMethod

	// Password for password-based authentication
	Password string

	// PrivateKeyPath is the path to the private key file
	PrivateKeyPath string

	// PrivateKeyPassphrase is the passphrase for encrypted private keys
	PrivateKeyPassphrase string

	// KnownHostsPath is the path to the known_hosts file.
	// If empty, host key verification is disabled (not recommended)
	KnownHostsPath string

	// StrictHostKeyChecking enables strict host key verification
	StrictHostKeyChecking bool

	// ConnectionTimeout is the timeout for establishing a connection
	ConnectionTimeout time.Duration

	// WorkerPath is the local path of the worker to upload. Empty means
	// RemoteCommand already exists on the remote host.
	WorkerPath string

	// RemotePath is where the worker is uploaded on the remote host
	RemotePath string

	// RemoteCommand overrides the command used to start the worker.
	// Defaults to RemotePath.
	RemoteCommand string
}

// DefaultSSHConfig returns an SSHConfig with sensible defaults.
func DefaultSSHConfig(host, user string) *SSHConfig {
	return &SSHConfig{
		Host:                  host,
		Port:                  22,
		User:                  user,
		AuthMethod:            AuthMethodKey,
		KnownHostsPath:        filepath.Join(os.Getenv("HOME"), ".ssh", "known_hosts"),
		StrictHostKeyChecking: true,
		ConnectionTimeout:     30 * time.Second,
		RemotePath:            "/tmp/matbridge-worker",
	}
}

// Validate checks if the configuration is valid.
func (c *SSHConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("host is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.User == "" {
		return fmt.Errorf("user is required")
	}

	switch c.AuthMethod {
	case AuthMethodPassword:
		if c.Password == "" {
			return fmt.Errorf("password is required for password authentication")
		}
	case AuthMethodKey:
		if c.PrivateKeyPath == "" {
			homeDir := os.Getenv("HOME")
			defaultKeys := []string{
				filepath.Join(homeDir, ".ssh", "id_ed25519"),
				filepath.Join(homeDir, ".ssh", "id_rsa"),
				filepath.Join(homeDir, ".ssh", "id_ecdsa"),
			}
			for _, keyPath := range defaultKeys {
				if _, err := os.Stat(keyPath); err == nil {
					c.PrivateKeyPath = keyPath
					break
				}
			}
			if c.PrivateKeyPath == "" {
				return fmt.Errorf("private key path is required for key authentication and no default key found")
			}
		}
		if _, err := os.Stat(c.PrivateKeyPath); os.IsNotExist(err) {
			return fmt.Errorf("private key file not found: %s", c.PrivateKeyPath)
		}
	default:
		return fmt.Errorf("unsupported auth method: %s", c.AuthMethod)
	}

	if c.ConnectionTimeout <= 0 {
		return fmt.Errorf("connection timeout must be positive")
	}
	if c.WorkerPath == "" && c.RemoteCommand == "" {
		return fmt.Errorf("either worker path or remote command is required")
	}
	if c.WorkerPath != "" && c.RemotePath == "" {
		return fmt.Errorf("remote path is required when uploading a worker")
	}
	return nil
}

// BuildClientConfig creates an ssh.ClientConfig from the SSHConfig.
func (c *SSHConfig) BuildClientConfig() (*ssh.ClientConfig, error) {
	var authMethods []ssh.AuthMethod

	switch c.AuthMethod {
	case AuthMethodPassword:
		authMethods = append(authMethods, ssh.Password(c.Password))
		// Keyboard-interactive handles servers that prompt instead of
		// accepting plain password auth.
		authMethods = append(authMethods, ssh.KeyboardInteractive(
			func(user, instruction string, questions []string, echos []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for i := range answers {
					answers[i] = c.Password
				}
				return answers, nil
			},
		))

	case AuthMethodKey:
		keyBytes, err := os.ReadFile(c.PrivateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read private key: %w", err)
		}

		var signer ssh.Signer
		if c.PrivateKeyPassphrase != "" {
			signer, err = ssh.ParsePrivateKeyWithPassphrase(keyBytes, []byte(c.PrivateKeyPassphrase))
		} else {
			signer, err = ssh.ParsePrivateKey(keyBytes)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse private key: %w", err)
		}

		authMethods = append(authMethods, ssh.PublicKeys(signer))
	}

	var hostKeyCallback ssh.HostKeyCallback
	if c.KnownHostsPath != "" && c.StrictHostKeyChecking {
		var err error
		hostKeyCallback, err = knownhosts.New(c.KnownHostsPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load known_hosts: %w", err)
		}
	} else {
		hostKeyCallback = ssh.InsecureIgnoreHostKey()
	}

	return &ssh.ClientConfig{
		User:            c.User,
		Auth:            authMethods,
		HostKeyCallback: hostKeyCallback,
		Timeout:         c.ConnectionTimeout,
	}, nil
}

// Address returns the formatted SSH address (host:port).
func (c *SSHConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// SSH runs the engine worker on a remote host.
type SSH struct {
	config  *SSHConfig
	logger  *telemetry.Logger
	mu      sync.Mutex
	client  *ssh.Client
	session *ssh.Session
}

// NewSSH creates an SSH transport. logger may be nil.
func NewSSH(config *SSHConfig, logger *telemetry.Logger) (*SSH, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if logger == nil {
		logger = telemetry.Noop().Logger
	}
	return &SSH{
		config: config,
		logger: logger.WithField("transport", "ssh").WithField("host", config.Host),
	}, nil
}

// Start connects to the remote host, uploads the worker if configured, and
// runs it attached to a session's stdio.
func (t *SSH) Start(ctx context.Context) (io.WriteCloser, io.ReadCloser, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.session != nil {
		return nil, nil, &TransportError{Op: "start", Err: fmt.Errorf("worker already started")}
	}

	clientConfig, err := t.config.BuildClientConfig()
	if err != nil {
		return nil, nil, &TransportError{Op: "connect", Err: err}
	}

	client, err := t.dial(ctx, clientConfig)
	if err != nil {
		return nil, nil, err
	}
	t.client = client
	t.logger.Info("SSH connection established")

	if t.config.WorkerPath != "" {
		if err := t.upload(ctx); err != nil {
			_ = client.Close()
			t.client = nil
			return nil, nil, err
		}
	}

	session, err := client.NewSession()
	if err != nil {
		_ = client.Close()
		t.client = nil
		return nil, nil, &TransportError{
			Op:          "start",
			Err:         fmt.Errorf("failed to create session: %w", err),
			IsTemporary: true,
		}
	}

	stdin, err := session.StdinPipe()
	if err != nil {
		_ = session.Close()
		_ = client.Close()
		t.client = nil
		return nil, nil, &TransportError{Op: "start", Err: fmt.Errorf("failed to create stdin pipe: %w", err)}
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		_ = session.Close()
		_ = client.Close()
		t.client = nil
		return nil, nil, &TransportError{Op: "start", Err: fmt.Errorf("failed to create stdout pipe: %w", err)}
	}

	command := t.config.RemoteCommand
	if command == "" {
		command = t.config.RemotePath
	}
	if err := session.Start(command); err != nil {
		_ = session.Close()
		_ = client.Close()
		t.client = nil
		return nil, nil, &TransportError{
			Op:          "start",
			Err:         fmt.Errorf("failed to start worker: %w", err),
			IsTemporary: true,
		}
	}

	t.session = session
	t.logger.WithField("command", command).Info("remote engine worker started")

	return stdin, io.NopCloser(stdout), nil
}

// dial establishes the SSH connection, honoring ctx for cancellation.
func (t *SSH) dial(ctx context.Context, clientConfig *ssh.ClientConfig) (*ssh.Client, error) {
	address := t.config.Address()
	t.logger.WithField("address", address).Debug("establishing SSH connection")

	connChan := make(chan *ssh.Client, 1)
	errChan := make(chan error, 1)

	go func() {
		client, err := ssh.Dial("tcp", address, clientConfig)
		if err != nil {
			errChan <- err
			return
		}
		connChan <- client
	}()

	select {
	case <-ctx.Done():
		return nil, &TransportError{Op: "connect", Err: ctx.Err(), IsTemporary: true}
	case err := <-errChan:
		return nil, &TransportError{Op: "connect", Err: err, IsTemporary: true}
	case client := <-connChan:
		return client, nil
	}
}

// upload copies the worker to the remote host via SFTP and marks it
// executable.
func (t *SSH) upload(_ context.Context) error {
	sftpClient, err := sftp.NewClient(t.client)
	if err != nil {
		return &TransportError{Op: "upload", Err: fmt.Errorf("failed to create sftp client: %w", err), IsTemporary: true}
	}
	defer sftpClient.Close()

	src, err := os.Open(t.config.WorkerPath)
	if err != nil {
		return &TransportError{Op: "upload", Err: fmt.Errorf("failed to open worker: %w", err)}
	}
	defer src.Close()

	dst, err := sftpClient.Create(t.config.RemotePath)
	if err != nil {
		return &TransportError{Op: "upload", Err: fmt.Errorf("failed to create remote file: %w", err), IsTemporary: true}
	}

	n, err := io.Copy(dst, src)
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return &TransportError{Op: "upload", Err: fmt.Errorf("failed to copy worker: %w", err), IsTemporary: true}
	}

	if err := sftpClient.Chmod(t.config.RemotePath, 0o755); err != nil {
		return &TransportError{Op: "upload", Err: fmt.Errorf("failed to chmod worker: %w", err)}
	}

	t.logger.WithField("bytes", n).
		WithField("remote_path", t.config.RemotePath).
		Debug("worker uploaded")
	return nil
}

// Close terminates the remote worker session and the SSH connection.
func (t *SSH) Close(_ context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	var errs []error
	if t.session != nil {
		if err := t.session.Close(); err != nil && err != io.EOF {
			errs = append(errs, fmt.Errorf("failed to close session: %w", err))
		}
		t.session = nil
	}
	if t.client != nil {
		if err := t.client.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close connection: %w", err))
		}
		t.client = nil
	}
	if len(errs) > 0 {
		return &TransportError{Op: "close", Err: fmt.Errorf("%v", errs)}
	}
	return nil
}
