// Package client provides a client for connecting to the pkgsized daemon.
// It wraps the gRPC connection with typed calls and maps daemon errors back
// to the analysis errors they started as.
package client

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/jamesainslie/pkgsize/pkg/daemon"
	"github.com/jamesainslie/pkgsize/pkg/pkgsize/analyzer"
	"github.com/jamesainslie/pkgsize/pkg/pkgsize/config"
	"github.com/jamesainslie/pkgsize/pkg/pkgsize/runner"
)

// ErrUnavailable is returned when the daemon cannot be reached.
var ErrUnavailable = errors.New("daemon unavailable")

// Client connects to the pkgsized daemon via gRPC.
type Client struct {
	conn *grpc.ClientConn
}

// DaemonPaths configures paths for daemon operations.
// Empty fields use defaults.
type DaemonPaths struct {
	Binary string // Path to pkgsized binary (auto-discovered if empty)
	Socket string // Unix socket path
	PID    string // PID file path
	Config string // Config file passed to the daemon
}

// PathsFromConfig returns the daemon paths cfg names.
func PathsFromConfig(cfg *config.Config) DaemonPaths {
	return DaemonPaths{
		Binary: cfg.Daemon.BinaryPath,
		Socket: cfg.SocketPath(),
		PID:    cfg.PIDPath(),
	}
}

// withDefaults returns a copy with empty fields filled with defaults.
func (p DaemonPaths) withDefaults() DaemonPaths {
	if p.Socket == "" {
		p.Socket = config.DefaultSocketPath()
	}
	if p.PID == "" {
		p.PID = config.DefaultPIDPath()
	}
	return p
}

// Connect establishes a connection to the pkgsized daemon.
// Uses a default timeout of 5 seconds.
func Connect(socketPath string) (*Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return ConnectWithContext(ctx, socketPath)
}

// ConnectWithContext establishes a connection to the pkgsized daemon with a custom context.
func ConnectWithContext(ctx context.Context, socketPath string) (*Client, error) {
	if _, err := os.Stat(socketPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: socket not found at %s", ErrUnavailable, socketPath)
	}

	//nolint:staticcheck // grpc.DialContext is deprecated but NewClient doesn't support blocking
	conn, err := grpc.DialContext(
		ctx,
		"unix://"+socketPath,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithBlock(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return &Client{conn: conn}, nil
}

// Close closes the connection to the daemon.
func (c *Client) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// invoke calls method with req and decodes the reply into resp.
func (c *Client) invoke(ctx context.Context, method string, req, resp any) error {
	in, err := daemon.ToStruct(req)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, method, in, out); err != nil {
		if st, ok := status.FromError(err); ok && st.Code() == codes.Unavailable && len(st.Details()) == 0 {
			return fmt.Errorf("%w: %s", ErrUnavailable, st.Message())
		}
		return daemon.FromStatus(err)
	}
	if err := daemon.FromStruct(out, resp); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// Analyze measures one package on the daemon.
func (c *Client) Analyze(ctx context.Context, req runner.Request) (*runner.StatsResult, error) {
	return c.AnalyzeWithProgress(ctx, req, nil)
}

// AnalyzeWithProgress is Analyze with the daemon's progress reports
// delivered to onProgress. Reports are best effort and may be dropped.
func (c *Client) AnalyzeWithProgress(ctx context.Context, req runner.Request, onProgress func(analyzer.Progress)) (*runner.StatsResult, error) {
	id, stop := c.watch(ctx, onProgress)
	defer stop()

	var resp daemon.AnalyzeResponse
	if err := c.invoke(ctx, daemon.MethodAnalyze, &daemon.AnalyzeRequest{Request: req, RequestID: id}, &resp); err != nil {
		return nil, err
	}
	return &resp.StatsResult, nil
}

// ExportSizes measures the exports of one package on the daemon and filters
// them there.
func (c *Client) ExportSizes(ctx context.Context, req runner.Request, f daemon.FilterOptions) (*daemon.ExportSizesResponse, error) {
	return c.ExportSizesWithProgress(ctx, req, f, nil)
}

// ExportSizesWithProgress is ExportSizes with progress reports.
func (c *Client) ExportSizesWithProgress(ctx context.Context, req runner.Request, f daemon.FilterOptions, onProgress func(analyzer.Progress)) (*daemon.ExportSizesResponse, error) {
	id, stop := c.watch(ctx, onProgress)
	defer stop()

	var resp daemon.ExportSizesResponse
	if err := c.invoke(ctx, daemon.MethodExportSizes, &daemon.ExportSizesRequest{Request: req, RequestID: id, Filter: f}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// watchDrain bounds how long stop waits for reports still in flight.
const watchDrain = 250 * time.Millisecond

// watch subscribes to the progress of a new request ID and forwards
// reports to onProgress until stop is called. It returns an empty ID when
// onProgress is nil or the subscription failed; the request then runs
// without progress.
func (c *Client) watch(ctx context.Context, onProgress func(analyzer.Progress)) (id string, stop func()) {
	noop := func() {}
	if onProgress == nil {
		return "", noop
	}

	id = uuid.NewString()
	ctx, cancel := context.WithCancel(ctx)

	stream, err := c.conn.NewStream(ctx, &daemon.WatchProgressStream, daemon.MethodWatchProgress)
	if err != nil {
		cancel()
		return "", noop
	}
	in, err := daemon.ToStruct(&daemon.WatchProgressRequest{RequestID: id})
	if err == nil {
		err = stream.SendMsg(in)
	}
	if err == nil {
		err = stream.CloseSend()
	}
	if err == nil {
		// The header arrives once the daemon holds the subscription.
		_, err = stream.Header()
	}
	if err != nil {
		cancel()
		return "", noop
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			out := new(structpb.Struct)
			if err := stream.RecvMsg(out); err != nil {
				return
			}
			var ev daemon.ProgressEvent
			if err := daemon.FromStruct(out, &ev); err == nil {
				onProgress(ev.Progress())
			}
		}
	}()

	return id, func() {
		select {
		case <-done:
		case <-time.After(watchDrain):
		}
		cancel()
		<-done
	}
}

// Status returns the current status of the daemon.
func (c *Client) Status(ctx context.Context) (*daemon.StatusResponse, error) {
	var resp daemon.StatusResponse
	if err := c.invoke(ctx, daemon.MethodStatus, &daemon.StatusRequest{}, &resp); err != nil {
		return nil, fmt.Errorf("status RPC failed: %w", err)
	}
	return &resp, nil
}

// Shutdown requests the daemon to shut down gracefully.
func (c *Client) Shutdown(ctx context.Context) error {
	var resp daemon.ShutdownResponse
	if err := c.invoke(ctx, daemon.MethodShutdown, &daemon.ShutdownRequest{}, &resp); err != nil {
		return fmt.Errorf("shutdown RPC failed: %w", err)
	}
	if !resp.Success {
		return errors.New("shutdown request was not successful")
	}
	return nil
}

// StartDaemon starts the pkgsized daemon in the background.
// Idempotent: returns nil if daemon is already running.
func StartDaemon(paths DaemonPaths) error {
	paths = paths.withDefaults()

	if IsDaemonRunning(paths.PID) {
		return nil
	}

	binary, err := resolveBinary(paths.Binary)
	if err != nil {
		return fmt.Errorf("find pkgsized: %w", err)
	}

	statusPath := daemon.StatusPath(paths.Socket)
	_ = os.Remove(statusPath)

	var args []string
	if paths.Config != "" {
		args = append(args, "--config", paths.Config)
	}

	// Use exec.Command (not CommandContext) intentionally: daemon must outlive caller
	cmd := exec.Command(binary, args...) //nolint:gosec // binary path is validated
	cmd.Stdout = nil
	cmd.Stderr = nil
	cmd.Stdin = nil

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}
	if cmd.Process != nil {
		_ = cmd.Process.Release()
	}

	return waitReady(paths.Socket, statusPath, 50, 100*time.Millisecond)
}

// waitReady polls for the socket or an explicit status file.
func waitReady(socketPath, statusPath string, attempts int, interval time.Duration) error {
	for range attempts {
		time.Sleep(interval)

		ready, err := daemon.CheckStartup(statusPath)
		if err != nil {
			return err
		}
		if ready {
			return nil
		}
		if _, err := os.Stat(socketPath); err == nil {
			return nil
		}
	}
	return errors.New("daemon did not become ready within timeout")
}

// StopDaemon stops the daemon gracefully via RPC.
// Idempotent: returns nil if daemon is not running.
func StopDaemon(paths DaemonPaths) error {
	paths = paths.withDefaults()

	if !IsDaemonRunning(paths.PID) {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := ConnectWithContext(ctx, paths.Socket)
	if err != nil {
		return fmt.Errorf("connect to daemon: %w", err)
	}
	defer client.Close()

	if err := client.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown daemon: %w", err)
	}

	for range 20 {
		time.Sleep(250 * time.Millisecond)
		if !IsDaemonRunning(paths.PID) {
			return nil
		}
	}
	return errors.New("daemon did not stop within timeout")
}

// RestartDaemon stops and starts the daemon.
func RestartDaemon(paths DaemonPaths) error {
	if err := StopDaemon(paths); err != nil {
		return fmt.Errorf("stop: %w", err)
	}
	if err := StartDaemon(paths); err != nil {
		return fmt.Errorf("start: %w", err)
	}
	return nil
}

const binaryName = "pkgsized"

// resolveBinary finds the pkgsized binary path.
// Priority: configured path > same directory as executable > GOBIN/GOPATH > PATH.
func resolveBinary(configured string) (string, error) {
	if configured != "" {
		if _, err := os.Stat(configured); err != nil {
			return "", fmt.Errorf("configured binary not found: %s", configured)
		}
		return configured, nil
	}

	if execPath, err := os.Executable(); err == nil {
		candidate := filepath.Join(filepath.Dir(execPath), binaryName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}

	for _, candidate := range goBinCandidates() {
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}

	if path, err := exec.LookPath(binaryName); err == nil {
		return path, nil
	}

	return "", errors.New(binaryName + " not found")
}

// goBinCandidates lists where go install puts binaries: GOBIN, then
// GOPATH/bin, then $HOME/go/bin.
func goBinCandidates() []string {
	var out []string
	if gobin := os.Getenv("GOBIN"); gobin != "" {
		out = append(out, filepath.Join(gobin, binaryName))
	}
	if gopath := os.Getenv("GOPATH"); gopath != "" {
		for _, p := range filepath.SplitList(gopath) {
			out = append(out, filepath.Join(p, "bin", binaryName))
		}
	}
	if home, err := os.UserHomeDir(); err == nil {
		out = append(out, filepath.Join(home, "go", "bin", binaryName))
	}
	return out
}

// IsDaemonRunning checks if the daemon is running based on the PID file.
func IsDaemonRunning(pidPath string) bool {
	return daemon.IsDaemonRunning(pidPath)
}
