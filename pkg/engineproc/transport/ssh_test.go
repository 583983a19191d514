package transport

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTempKey(t *testing.T) string {
	t.Helper()
	// Content is never parsed by Validate, only stat'd.
	path := filepath.Join(t.TempDir(), "id_ed25519")
	if err := os.WriteFile(path, []byte("fake key"), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func validSSHConfig(t *testing.T) *SSHConfig {
	cfg := DefaultSSHConfig("matlab-host.example.com", "runner")
	cfg.PrivateKeyPath = writeTempKey(t)
	cfg.RemoteCommand = "/opt/matbridge/worker"
	return cfg
}

func TestSSHConfigValidate(t *testing.T) {
	if err := validSSHConfig(t).Validate(); err != nil {
		t.Errorf("valid config rejected: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*SSHConfig)
	}{
		{"missing host", func(c *SSHConfig) { c.Host = "" }},
		{"bad port", func(c *SSHConfig) { c.Port = 70000 }},
		{"missing user", func(c *SSHConfig) { c.User = "" }},
		{"unknown auth", func(c *SSHConfig) { c.AuthMethod = "kerberos" }},
		{"password auth without password", func(c *SSHConfig) {
			c.AuthMethod = AuthMethodPassword
			c.Password = ""
		}},
		{"missing key file", func(c *SSHConfig) { c.PrivateKeyPath = "/nonexistent/key" }},
		{"zero timeout", func(c *SSHConfig) { c.ConnectionTimeout = 0 }},
		{"no worker and no command", func(c *SSHConfig) {
			c.WorkerPath = ""
			c.RemoteCommand = ""
		}},
		{"worker without remote path", func(c *SSHConfig) {
			c.WorkerPath = "/bin/true"
			c.RemotePath = ""
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validSSHConfig(t)
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestSSHConfigDefaults(t *testing.T) {
	cfg := DefaultSSHConfig("h", "u")
	if cfg.Port != 22 {
		t.Errorf("expected port 22, got %d", cfg.Port)
	}
	if !cfg.StrictHostKeyChecking {
		t.Error("strict host key checking should default on")
	}
	if cfg.ConnectionTimeout != 30*time.Second {
		t.Errorf("unexpected timeout %v", cfg.ConnectionTimeout)
	}
	if cfg.Address() != "h:22" {
		t.Errorf("unexpected address %s", cfg.Address())
	}
}

func TestLocalConfigValidate(t *testing.T) {
	if err := (&LocalConfig{}).Validate(); err == nil {
		t.Error("missing command should be rejected")
	}
	if err := (&LocalConfig{Command: "matlab-worker"}).Validate(); err != nil {
		t.Errorf("valid config rejected: %v", err)
	}
}

func TestLocalStartMissingBinary(t *testing.T) {
	tr, err := NewLocal(LocalConfig{Command: filepath.Join(t.TempDir(), "missing")}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := tr.Start(t.Context()); err == nil {
		t.Error("starting a missing binary should fail")
	}
}

func TestLocalStartAndClose(t *testing.T) {
	tr, err := NewLocal(LocalConfig{Command: "cat", ShutdownGrace: time.Second}, nil)
	if err != nil {
		t.Fatal(err)
	}
	stdin, stdout, err := tr.Start(t.Context())
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}

	// cat echoes stdin back, which is enough to prove the pipes are wired.
	if _, err := stdin.Write([]byte("ping\n")); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	buf := make([]byte, 5)
	if _, err := stdout.Read(buf); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if string(buf) != "ping\n" {
		t.Errorf("unexpected echo %q", buf)
	}

	if _, _, err := tr.Start(t.Context()); err == nil {
		t.Error("double start should fail")
	}

	_ = stdin.Close()
	if err := tr.Close(t.Context()); err != nil {
		t.Errorf("close failed: %v", err)
	}
}
