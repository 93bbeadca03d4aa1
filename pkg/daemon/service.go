package daemon

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"sync/atomic"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/jamesainslie/pkgsize/pkg/daemon/broadcaster"
	"github.com/jamesainslie/pkgsize/pkg/pkgsize/analyzer"
	"github.com/jamesainslie/pkgsize/pkg/pkgsize/filter"
	"github.com/jamesainslie/pkgsize/pkg/pkgsize/logging"
	"github.com/jamesainslie/pkgsize/pkg/pkgsize/runner"
	"github.com/jamesainslie/pkgsize/pkg/pkgsize/types"
)

var logger = logging.Get("daemon")

var errMissingName = fmt.Errorf("%w: missing package name", types.ErrInvalidSpec)

// Service implements AnalyzerServer on top of a runner.
type Service struct {
	runner     *runner.Runner
	startTime  time.Time
	version    string
	configPath string
	shutdown   func()
	progress   *broadcaster.Broadcaster

	requests atomic.Int64
	failures atomic.Int64
	inFlight atomic.Int64
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithVersion sets the version Status reports.
func WithVersion(v string) ServiceOption {
	return func(s *Service) { s.version = v }
}

// WithConfigPath sets the config file path Status reports.
func WithConfigPath(p string) ServiceOption {
	return func(s *Service) { s.configPath = p }
}

// WithShutdown sets the function Shutdown calls. It runs in its own
// goroutine so the RPC can answer first.
func WithShutdown(fn func()) ServiceOption {
	return func(s *Service) { s.shutdown = fn }
}

// NewService creates a service that runs requests on r.
func NewService(r *runner.Runner, opts ...ServiceOption) *Service {
	s := &Service{
		runner:    r,
		startTime: time.Now(),
		progress:  broadcaster.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Runner returns the runner requests execute on.
func (s *Service) Runner() *runner.Runner {
	return s.runner
}

// Close ends all progress subscriptions.
func (s *Service) Close() {
	s.progress.Close()
}

// Watchers returns the number of open progress subscriptions.
func (s *Service) Watchers() int {
	return s.progress.SubscriberCount()
}

// StartTime returns when the service was created.
func (s *Service) StartTime() time.Time {
	return s.startTime
}

func (s *Service) begin() func(err error) {
	s.requests.Add(1)
	s.inFlight.Add(1)
	return func(err error) {
		s.inFlight.Add(-1)
		if err != nil {
			s.failures.Add(1)
		}
	}
}

// publish returns the progress callback for requestID, nil when no client
// asked to watch.
func (s *Service) publish(requestID string) func(analyzer.Progress) {
	if requestID == "" {
		return nil
	}
	return func(p analyzer.Progress) {
		s.progress.Notify(requestID, p)
	}
}

// fillDefaults completes a request with the daemon's configuration for the
// options a client left empty.
func (s *Service) fillDefaults(req *runner.Request) {
	cfg := s.runner.Config()
	if req.CDN == "" {
		req.CDN = cfg.CDN
	}
	if req.Minifier == "" {
		req.Minifier = cfg.Minifier
	}
}

// Analyze returns the stats of one package.
func (s *Service) Analyze(ctx context.Context, req *AnalyzeRequest) (_ *AnalyzeResponse, err error) {
	done := s.begin()
	defer func() { done(err) }()

	if req.Name == "" {
		return nil, errMissingName
	}
	s.fillDefaults(&req.Request)
	logger.Debug("analyze", "package", req.Spec(), "cdn", req.CDN)
	defer s.progress.Finish(req.RequestID)

	res, err := s.runner.Analyze(ctx, req.Request, s.publish(req.RequestID))
	if err != nil {
		logger.Debug("analyze failed", "package", req.Spec(), "error", err)
		return nil, err
	}
	return &AnalyzeResponse{StatsResult: *res}, nil
}

// Build converts the options to a filter.Filter. The CLI uses it for
// in-process runs so both paths filter the same way.
func (opts FilterOptions) Build() (*filter.Filter, error) {
	var fopts []filter.Option

	if opts.MinSize > 0 {
		fopts = append(fopts, filter.WithMinSize(opts.MinSize))
	}
	if opts.Limit > 0 {
		fopts = append(fopts, filter.WithLimit(opts.Limit))
	}
	if len(opts.Include) > 0 {
		fopts = append(fopts, filter.WithInclude(opts.Include...))
	}
	if len(opts.Exclude) > 0 {
		fopts = append(fopts, filter.WithExclude(opts.Exclude...))
	}

	field, err := filter.ParseSortField(opts.SortBy)
	if err != nil {
		return nil, err
	}
	fopts = append(fopts, filter.WithSortBy(field))
	if opts.SortDescending != nil {
		fopts = append(fopts, filter.WithSortDescending(*opts.SortDescending))
	}

	return filter.New(fopts...)
}

// ExportSizes returns the export sizes of one package after filtering.
func (s *Service) ExportSizes(ctx context.Context, req *ExportSizesRequest) (_ *ExportSizesResponse, err error) {
	done := s.begin()
	defer func() { done(err) }()

	if req.Name == "" {
		return nil, errMissingName
	}
	f, err := req.Filter.Build()
	if err != nil {
		return nil, err
	}
	s.fillDefaults(&req.Request)
	logger.Debug("export sizes", "package", req.Spec(), "cdn", req.CDN)
	defer s.progress.Finish(req.RequestID)

	res, err := s.runner.ExportSizes(ctx, req.Request, s.publish(req.RequestID))
	if err != nil {
		logger.Debug("export sizes failed", "package", req.Spec(), "error", err)
		return nil, err
	}

	// Filter a copy so the cached value is never touched.
	exports := *res.Exports
	total := len(exports.Assets)
	exports.Assets = f.Apply(exports.Assets)
	res.Exports = &exports

	return &ExportSizesResponse{ExportsResult: *res, Total: total}, nil
}

// Status returns daemon health information.
func (s *Service) Status(_ context.Context, _ *StatusRequest) (*StatusResponse, error) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	resp := &StatusResponse{
		Running:       true,
		PID:           os.Getpid(),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		MemoryBytes:   mem.Alloc,
		Requests:      s.requests.Load(),
		Failures:      s.failures.Load(),
		InFlight:      s.inFlight.Load(),
		CDN:           s.runner.Config().CDN,
		ConfigPath:    s.configPath,
	}
	if c := s.runner.Cache(); c != nil {
		if stats, err := c.Stats(); err == nil {
			resp.Cache = &stats
		} else {
			logger.Warn("failed to read cache stats", "error", err)
		}
	}
	if h := s.runner.History(); h != nil {
		resp.HistoryDir = h.Dir()
	}
	return resp, nil
}

// Shutdown stops the daemon after answering.
func (s *Service) Shutdown(_ context.Context, _ *ShutdownRequest) (*ShutdownResponse, error) {
	logger.Info("shutdown requested")
	if s.shutdown != nil {
		go s.shutdown()
	}
	return &ShutdownResponse{Success: true}, nil
}

// WatchProgress streams the progress of one request until it finishes or
// the client goes away.
func (s *Service) WatchProgress(req *WatchProgressRequest, stream ProgressStream) error {
	if req.RequestID == "" {
		return status.Error(codes.InvalidArgument, "missing request id")
	}

	sub := s.progress.Subscribe(req.RequestID)
	if sub == nil {
		return status.Error(codes.Unavailable, "daemon is shutting down")
	}
	defer s.progress.Unsubscribe(sub.ID)

	if err := stream.Ready(); err != nil {
		return err
	}

	for {
		select {
		case <-stream.Context().Done():
			return nil
		case p, ok := <-sub.Events:
			if !ok {
				return nil
			}
			if err := stream.Send(NewProgressEvent(p)); err != nil {
				return err
			}
		}
	}
}

var _ AnalyzerServer = (*Service)(nil)
