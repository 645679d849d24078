package e2e_test

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sagarc03/mediareceiver/clientcli"
)

var (
	binaryPath     string
	binaryBuildErr error
	binaryOnce     sync.Once
	sharedTempDir  string
)

// TestMain sets up and tears down shared test resources.
func TestMain(m *testing.M) {
	// Create shared temp directory for the binary
	var err error
	sharedTempDir, err = os.MkdirTemp("", "mediareceiver-e2e-*")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create temp dir: %v\n", err)
		os.Exit(1)
	}

	code := m.Run()

	if testCleanup != nil {
		testCleanup()
	}
	_ = os.RemoveAll(sharedTempDir)

	os.Exit(code)
}

// ServerConfig holds configuration for starting the mediareceiver server.
type ServerConfig struct {
	Port          int
	AdminPort     int // 0 disables the status API
	DBType        string
	DBDSN         string
	StorageRoot   string
	MaxUploadSize int64
}

// instance is a running mediareceiver serve process.
type instance struct {
	cfg        ServerConfig
	configPath string
	uploadURL  string
	adminURL   string
	stop       func()
}

// buildBinary compiles the mediareceiver binary once per test run.
func buildBinary(t *testing.T) string {
	t.Helper()

	binaryOnce.Do(func() {
		binaryPath = filepath.Join(sharedTempDir, "mediareceiver")

		cmd := exec.Command("go", "build", "-o", binaryPath, "./cmd/mediareceiver")
		cmd.Dir = getProjectRoot(t)
		output, err := cmd.CombinedOutput()
		if err != nil {
			binaryBuildErr = fmt.Errorf("build binary: %w\nOutput: %s", err, output)
			return
		}
	})

	if binaryBuildErr != nil {
		t.Fatalf("failed to build binary: %v", binaryBuildErr)
	}

	return binaryPath
}

// getProjectRoot returns the directory holding go.mod.
func getProjectRoot(t *testing.T) string {
	t.Helper()

	dir, err := os.Getwd()
	require.NoError(t, err, "get working directory")

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatal("could not find project root (go.mod)")
		}
		dir = parent
	}
}

// createConfigFile writes a config file for cfg and returns its path.
func createConfigFile(t *testing.T, cfg ServerConfig) string {
	t.Helper()

	content := fmt.Sprintf(`server:
  host: 127.0.0.1
  port: %d
  max_upload_size: %d

storage:
  root: "%s"

database:
  type: %s
  dsn: "%s"

admin:
  enabled: %t
  port: %d

log:
  level: error
`,
		cfg.Port,
		cfg.MaxUploadSize,
		cfg.StorageRoot,
		cfg.DBType,
		cfg.DBDSN,
		cfg.AdminPort != 0,
		adminPortOrDefault(cfg.AdminPort),
	)

	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0o600), "write config file")

	return configPath
}

func adminPortOrDefault(port int) int {
	if port == 0 {
		return 8081
	}
	return port
}

// startServer starts "mediareceiver serve" and waits until it accepts
// connections. The process is stopped on test cleanup if stop was not called.
func startServer(t *testing.T, cfg ServerConfig) *instance {
	t.Helper()

	binary := buildBinary(t)
	configPath := createConfigFile(t, cfg)

	cmd := exec.Command(binary, "serve", "--config", configPath, "--no-qr")
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	require.NoError(t, cmd.Start(), "start server")

	inst := &instance{
		cfg:        cfg,
		configPath: configPath,
		uploadURL:  fmt.Sprintf("http://127.0.0.1:%d", cfg.Port),
	}
	if cfg.AdminPort != 0 {
		inst.adminURL = fmt.Sprintf("http://127.0.0.1:%d", cfg.AdminPort)
	}

	var once sync.Once
	inst.stop = func() {
		once.Do(func() {
			if cmd.Process != nil {
				_ = cmd.Process.Signal(syscall.SIGTERM)
				_ = cmd.Wait()
			}
		})
	}
	t.Cleanup(inst.stop)

	waitForServer(t, inst.uploadURL+"/", 10*time.Second)
	if inst.adminURL != "" {
		waitForServer(t, inst.adminURL+"/status", 10*time.Second)
	}

	return inst
}

// runCLI runs a mediareceiver subcommand against the instance's config.
func (i *instance) runCLI(t *testing.T, args ...string) string {
	t.Helper()

	full := append(args, "--config", i.configPath)
	cmd := exec.Command(buildBinary(t), full...)
	output, err := cmd.Output()
	require.NoError(t, err, "run %v", args)
	return string(output)
}

func (i *instance) uploadClient(t *testing.T) *clientcli.Client {
	t.Helper()
	c, err := clientcli.New(i.uploadURL)
	require.NoError(t, err)
	return c
}

func (i *instance) adminClient(t *testing.T) *clientcli.Client {
	t.Helper()
	require.NotEmpty(t, i.adminURL, "status API is not enabled")
	c, err := clientcli.New(i.adminURL)
	require.NoError(t, err)
	return c
}

// waitForServer polls url until it responds or times out.
func waitForServer(t *testing.T, url string, timeout time.Duration) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	client := &http.Client{Timeout: 1 * time.Second}

	for time.Now().Before(deadline) {
		req, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, url, http.NoBody)
		resp, err := client.Do(req)
		if err == nil {
			_ = resp.Body.Close()
			return
		}
		time.Sleep(100 * time.Millisecond)
	}

	t.Fatalf("server at %s failed to start within %v", url, timeout)
}

// getOpenPort finds an available TCP port.
func getOpenPort(t *testing.T) int {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err, "find open port")

	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close(), "close port")

	return port
}

// writeFiles creates files with the given contents under a new temp dir.
func writeFiles(t *testing.T, files map[string]string) string {
	t.Helper()

	dir := t.TempDir()
	for name, content := range files {
		p := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	return dir
}
