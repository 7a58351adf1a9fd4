// internal/launcher/launcher.go

// Package launcher resolves the packaged Compass build, starts it with a
// DevTools debugging port, and owns process shutdown. It is the only part of
// the harness that touches the application binary; everything above it talks
// to the running instance through the client facade.
package launcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/compass-pilot/internal/config"
	"github.com/xkilldash9x/compass-pilot/internal/wait"
)

// ErrExecutableNotFound means no packaged build exists under the dist
// directory. It fails before any automation starts.
var ErrExecutableNotFound = errors.New("compass executable not found")

// VersionInfo is the subset of the DevTools /json/version payload the
// harness cares about.
type VersionInfo struct {
	Browser              string `json:"Browser"`
	ProtocolVersion      string `json:"Protocol-Version"`
	WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
}

// Options configures a launch.
type Options struct {
	// DistDir is the packaging output directory the executable is resolved
	// under. Ignored when Executable is set.
	DistDir string
	// Executable overrides resolution with an explicit binary path.
	Executable string
	// DebugPort is the DevTools port to listen on; 0 picks a free one.
	DebugPort int
	// ProxyAddr, when set, routes all application traffic through the given
	// proxy (host:port).
	ProxyAddr string
	// LogDir receives app-stdout.log and app-stderr.log; empty discards both.
	LogDir string
	// Env entries are appended to the inherited environment.
	Env []string
	// StartupTimeout bounds the wait for the DevTools endpoint. Zero means
	// 30 seconds.
	StartupTimeout time.Duration
	// StopGrace is how long Stop waits after the polite signal before
	// killing. Zero means 10 seconds.
	StopGrace time.Duration
}

// App is a running Compass instance.
type App struct {
	logger *zap.Logger
	cmd    *exec.Cmd
	port   int
	info   VersionInfo
	grace  time.Duration
	logs   []io.Closer

	done chan struct{}

	mu      sync.Mutex
	waitErr error
}

// StartApplication launches the packaged build described by cfg. It is the
// standard suite-setup entry point; callers needing a proxy or extra
// environment use Start with explicit Options.
func StartApplication(ctx context.Context, cfg config.AppConfig, logger *zap.Logger) (*App, error) {
	return Start(ctx, Options{
		DistDir:        cfg.DistDir,
		Executable:     cfg.Executable,
		DebugPort:      cfg.DebugPort,
		LogDir:         cfg.LogDir,
		StartupTimeout: cfg.StartupTimeout,
		StopGrace:      cfg.StopGrace,
	}, logger)
}

// StopApplication shuts the instance down. Nil-safe so teardown can run
// unconditionally.
func StopApplication(ctx context.Context, app *App) error {
	if app == nil {
		return nil
	}
	return app.Stop(ctx)
}

// candidates lists where a packaged build puts its executable, relative to
// the dist directory, for the current platform.
func candidates(distDir string) []string {
	switch runtime.GOOS {
	case "darwin":
		return []string{
			filepath.Join(distDir, "MongoDB Compass-darwin-x64", "MongoDB Compass.app", "Contents", "MacOS", "MongoDB Compass"),
			filepath.Join(distDir, "MongoDB Compass-darwin-arm64", "MongoDB Compass.app", "Contents", "MacOS", "MongoDB Compass"),
		}
	case "windows":
		return []string{
			filepath.Join(distDir, "MongoDB Compass-win32-x64", "MongoDBCompass.exe"),
		}
	default:
		return []string{
			filepath.Join(distDir, "MongoDB Compass-linux-x64", "MongoDBCompass"),
			filepath.Join(distDir, "MongoDB Compass-linux-x64", "mongodb-compass"),
		}
	}
}

// Resolve locates the packaged executable under distDir. A missing build is
// a precondition failure: the error tells the caller to build the
// application before testing rather than letting a later connect time out.
func Resolve(distDir string) (string, error) {
	if distDir == "" {
		return "", fmt.Errorf("%w: no dist directory configured", ErrExecutableNotFound)
	}
	for _, path := range candidates(distDir) {
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			continue
		}
		return path, nil
	}
	return "", fmt.Errorf("%w under %q: build the application before testing", ErrExecutableNotFound, distDir)
}

// Start resolves, launches, and waits for the instance to expose its
// DevTools endpoint. On any failure after the process spawned, the process
// is killed before returning.
func Start(ctx context.Context, opts Options, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("launcher")

	exe := opts.Executable
	if exe == "" {
		var err error
		if exe, err = Resolve(opts.DistDir); err != nil {
			return nil, err
		}
	}

	port := opts.DebugPort
	if port == 0 {
		var err error
		if port, err = freePort(); err != nil {
			return nil, fmt.Errorf("picking a debug port: %w", err)
		}
	}

	args := []string{fmt.Sprintf("--remote-debugging-port=%d", port)}
	if opts.ProxyAddr != "" {
		args = append(args, "--proxy-server="+opts.ProxyAddr)
	}

	cmd := exec.Command(exe, args...)
	cmd.Env = append(os.Environ(), opts.Env...)
	logs, err := wireOutput(cmd, opts.LogDir)
	if err != nil {
		return nil, err
	}

	logger.Info("Starting application.",
		zap.String("executable", exe),
		zap.Int("debug_port", port),
		zap.String("proxy", opts.ProxyAddr))

	if err := cmd.Start(); err != nil {
		for _, c := range logs {
			c.Close()
		}
		return nil, fmt.Errorf("starting %s: %w", exe, err)
	}

	app := &App{
		logger: logger,
		cmd:    cmd,
		port:   port,
		grace:  opts.StopGrace,
		logs:   logs,
		done:   make(chan struct{}),
	}
	if app.grace == 0 {
		app.grace = 10 * time.Second
	}
	go app.reap()

	startupTimeout := opts.StartupTimeout
	if startupTimeout == 0 {
		startupTimeout = 30 * time.Second
	}
	info, err := waitForDevTools(ctx, app.BaseURL(), startupTimeout)
	if err != nil {
		stopCtx, cancel := context.WithTimeout(context.Background(), 2*app.grace)
		defer cancel()
		if stopErr := app.Stop(stopCtx); stopErr != nil {
			logger.Warn("Cleanup after failed startup also failed.", zap.Error(stopErr))
		}
		return nil, fmt.Errorf("application never exposed its DevTools endpoint: %w", err)
	}
	app.info = info

	logger.Info("Application ready.",
		zap.String("browser", info.Browser),
		zap.String("devtools_ws", info.WebSocketDebuggerURL))
	return app, nil
}

// reap collects the process exit exactly once and unblocks IsRunning/Stop.
func (a *App) reap() {
	err := a.cmd.Wait()
	a.mu.Lock()
	a.waitErr = err
	a.mu.Unlock()
	for _, c := range a.logs {
		c.Close()
	}
	close(a.done)
	if err != nil {
		a.logger.Debug("Application process exited.", zap.Error(err))
	}
}

// IsRunning reports whether the process is still alive.
func (a *App) IsRunning() bool {
	if a == nil || a.cmd == nil {
		return false
	}
	select {
	case <-a.done:
		return false
	default:
		return true
	}
}

// BaseURL is the HTTP root of the DevTools endpoint.
func (a *App) BaseURL() string {
	return fmt.Sprintf("http://127.0.0.1:%d", a.port)
}

// DebuggerPort returns the DevTools port in use.
func (a *App) DebuggerPort() int { return a.port }

// Version returns the DevTools version payload captured at startup.
func (a *App) Version() VersionInfo { return a.info }

// Stop shuts the instance down: a polite signal first, then a kill once the
// grace period runs out. Safe to call on an already-exited instance.
func (a *App) Stop(ctx context.Context) error {
	if !a.IsRunning() {
		return nil
	}

	// Windows has no Interrupt delivery; go straight to Kill there.
	if runtime.GOOS == "windows" {
		if err := a.cmd.Process.Kill(); err != nil {
			a.logger.Warn("Kill failed.", zap.Error(err))
		}
	} else if err := a.cmd.Process.Signal(os.Interrupt); err != nil {
		a.logger.Warn("Interrupt failed, killing instead.", zap.Error(err))
		if err := a.cmd.Process.Kill(); err != nil {
			a.logger.Warn("Kill failed.", zap.Error(err))
		}
	}

	select {
	case <-a.done:
	case <-time.After(a.grace):
		a.logger.Warn("Application ignored the polite shutdown, killing.",
			zap.Duration("grace", a.grace))
		if err := a.cmd.Process.Kill(); err != nil {
			a.logger.Warn("Kill failed.", zap.Error(err))
		}
		select {
		case <-a.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

// ExitError returns the error the process exited with, if it has exited.
func (a *App) ExitError() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.waitErr
}

// waitForDevTools polls the /json/version endpoint until it answers with a
// decodable payload, reusing the engine's timeout semantics.
func waitForDevTools(ctx context.Context, baseURL string, timeout time.Duration) (VersionInfo, error) {
	var info VersionInfo
	pred := func(ctx context.Context) (bool, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/json/version", nil)
		if err != nil {
			return false, err
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return false, err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return false, fmt.Errorf("devtools endpoint answered %s", resp.Status)
		}
		body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return false, err
		}
		if err := json.Unmarshal(body, &info); err != nil {
			return false, err
		}
		return true, nil
	}
	err := wait.Until(ctx, "devtools endpoint ready", pred, timeout, 500*time.Millisecond)
	return info, err
}

// wireOutput points the process output at log files under dir, or discards
// it when no dir is configured. The returned closers live until the process
// exits.
func wireOutput(cmd *exec.Cmd, dir string) ([]io.Closer, error) {
	if dir == "" {
		cmd.Stdout = io.Discard
		cmd.Stderr = io.Discard
		return nil, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating log dir: %w", err)
	}
	stdout, err := os.Create(filepath.Join(dir, "app-stdout.log"))
	if err != nil {
		return nil, err
	}
	stderr, err := os.Create(filepath.Join(dir, "app-stderr.log"))
	if err != nil {
		stdout.Close()
		return nil, err
	}
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	return []io.Closer{stdout, stderr}, nil
}

// freePort asks the kernel for an unused loopback port.
func freePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}
