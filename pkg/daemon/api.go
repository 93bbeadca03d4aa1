package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/jamesainslie/pkgsize/pkg/pkgsize/analyzer"
	"github.com/jamesainslie/pkgsize/pkg/pkgsize/cache"
	"github.com/jamesainslie/pkgsize/pkg/pkgsize/filter"
	"github.com/jamesainslie/pkgsize/pkg/pkgsize/runner"
	"github.com/jamesainslie/pkgsize/pkg/pkgsize/types"
)

// ServiceName is the gRPC service pkgsized registers.
const ServiceName = "pkgsize.v1.Analyzer"

// Full method names.
const (
	MethodAnalyze     = "/" + ServiceName + "/Analyze"
	MethodExportSizes = "/" + ServiceName + "/ExportSizes"
	MethodStatus      = "/" + ServiceName + "/Status"
	MethodShutdown    = "/" + ServiceName + "/Shutdown"

	MethodWatchProgress = "/" + ServiceName + "/WatchProgress"
)

// AnalyzeRequest asks for the stats of one package. Progress is published
// under RequestID when it is set.
type AnalyzeRequest struct {
	runner.Request
	RequestID string `json:"requestId,omitempty"`
}

// AnalyzeResponse carries the stats and whether they came from the cache.
type AnalyzeResponse struct {
	runner.StatsResult
}

// FilterOptions select and order export sizes on the daemon side.
type FilterOptions struct {
	MinSize        int64    `json:"minSize,omitempty"`
	Include        []string `json:"include,omitempty"`
	Exclude        []string `json:"exclude,omitempty"`
	SortBy         string   `json:"sortBy,omitempty"`
	SortDescending *bool    `json:"sortDescending,omitempty"`
	Limit          int      `json:"limit,omitempty"`
}

// ExportSizesRequest asks for per-file export sizes.
type ExportSizesRequest struct {
	runner.Request
	RequestID string        `json:"requestId,omitempty"`
	Filter    FilterOptions `json:"filter"`
}

// ExportSizesResponse carries the filtered export sizes. Total is the asset
// count before filtering.
type ExportSizesResponse struct {
	runner.ExportsResult
	Total int `json:"total"`
}

// StatusRequest asks for daemon health.
type StatusRequest struct{}

// StatusResponse reports daemon health.
type StatusResponse struct {
	Running       bool         `json:"running"`
	PID           int          `json:"pid"`
	Version       string       `json:"version,omitempty"`
	UptimeSeconds int64        `json:"uptimeSeconds"`
	MemoryBytes   uint64       `json:"memoryBytes"`
	Requests      int64        `json:"requests"`
	Failures      int64        `json:"failures"`
	InFlight      int64        `json:"inFlight"`
	CDN           string       `json:"cdn"`
	ConfigPath    string       `json:"configPath,omitempty"`
	Cache         *cache.Stats `json:"cache,omitempty"`
	HistoryDir    string       `json:"historyDir,omitempty"`
}

// ShutdownRequest asks the daemon to stop.
type ShutdownRequest struct{}

// ShutdownResponse acknowledges a shutdown request.
type ShutdownResponse struct {
	Success bool `json:"success"`
}

// WatchProgressRequest subscribes to the progress of one request.
type WatchProgressRequest struct {
	RequestID string `json:"requestId"`
}

// ProgressEvent is one progress report on the wire.
type ProgressEvent struct {
	Package string         `json:"package"`
	Stage   analyzer.Stage `json:"stage"`
	Done    int            `json:"done,omitempty"`
	Total   int            `json:"total,omitempty"`
}

// NewProgressEvent converts an analyzer report.
func NewProgressEvent(p analyzer.Progress) *ProgressEvent {
	return &ProgressEvent{Package: p.Package, Stage: p.Stage, Done: p.Done, Total: p.Total}
}

// Progress converts the event back to an analyzer report.
func (e *ProgressEvent) Progress() analyzer.Progress {
	return analyzer.Progress{Package: e.Package, Stage: e.Stage, Done: e.Done, Total: e.Total}
}

// ProgressStream is the server side of WatchProgress.
type ProgressStream interface {
	Context() context.Context
	// Ready tells the client the subscription is in place.
	Ready() error
	Send(*ProgressEvent) error
}

// AnalyzerServer is the service pkgsized implements.
type AnalyzerServer interface {
	Analyze(context.Context, *AnalyzeRequest) (*AnalyzeResponse, error)
	ExportSizes(context.Context, *ExportSizesRequest) (*ExportSizesResponse, error)
	Status(context.Context, *StatusRequest) (*StatusResponse, error)
	Shutdown(context.Context, *ShutdownRequest) (*ShutdownResponse, error)
	WatchProgress(*WatchProgressRequest, ProgressStream) error
}

// WatchProgressStream describes the server-streaming progress method.
var WatchProgressStream = grpc.StreamDesc{
	StreamName:    "WatchProgress",
	Handler:       watchProgressHandler,
	ServerStreams: true,
}

// ServiceDesc describes the Analyzer service. Messages travel as
// google.protobuf.Struct holding the JSON form of the Go types above.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AnalyzerServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Analyze", Handler: unaryHandler(MethodAnalyze, AnalyzerServer.Analyze)},
		{MethodName: "ExportSizes", Handler: unaryHandler(MethodExportSizes, AnalyzerServer.ExportSizes)},
		{MethodName: "Status", Handler: unaryHandler(MethodStatus, AnalyzerServer.Status)},
		{MethodName: "Shutdown", Handler: unaryHandler(MethodShutdown, AnalyzerServer.Shutdown)},
	},
	Streams:  []grpc.StreamDesc{WatchProgressStream},
	Metadata: "pkgsize/v1/analyzer.proto",
}

// RegisterAnalyzerServer registers srv with s.
func RegisterAnalyzerServer(s grpc.ServiceRegistrar, srv AnalyzerServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func unaryHandler[Req, Resp any](
	fullMethod string,
	call func(AnalyzerServer, context.Context, *Req) (*Resp, error),
) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		handler := func(ctx context.Context, msg any) (any, error) {
			req := new(Req)
			if err := FromStruct(msg.(*structpb.Struct), req); err != nil {
				return nil, status.Errorf(codes.InvalidArgument, "decoding request: %v", err)
			}
			resp, err := call(srv.(AnalyzerServer), ctx, req)
			if err != nil {
				return nil, ToStatus(err)
			}
			return ToStruct(resp)
		}
		if interceptor == nil {
			return handler(ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		return interceptor(ctx, in, info, handler)
	}
}

func watchProgressHandler(srv any, stream grpc.ServerStream) error {
	in := new(structpb.Struct)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	req := new(WatchProgressRequest)
	if err := FromStruct(in, req); err != nil {
		return status.Errorf(codes.InvalidArgument, "decoding request: %v", err)
	}
	return ToStatus(srv.(AnalyzerServer).WatchProgress(req, &progressStream{stream}))
}

type progressStream struct {
	grpc.ServerStream
}

func (s *progressStream) Ready() error {
	return s.SendHeader(metadata.Pairs("pkgsize-watch", "ready"))
}

func (s *progressStream) Send(e *ProgressEvent) error {
	out, err := ToStruct(e)
	if err != nil {
		return err
	}
	return s.SendMsg(out)
}

// ToStruct converts v to a Struct through its JSON encoding.
func ToStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	s := new(structpb.Struct)
	if err := protojson.Unmarshal(data, s); err != nil {
		return nil, err
	}
	return s, nil
}

// FromStruct decodes s into v through its JSON encoding.
func FromStruct(s *structpb.Struct, v any) error {
	data, err := protojson.Marshal(s)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// errorKind pairs a sentinel error with its status code and the name that
// identifies it in status details.
type errorKind struct {
	name string
	code codes.Code
	err  error
}

var errorKinds = []errorKind{
	{"package_not_found", codes.NotFound, types.ErrPackageNotFound},
	{"entry_point_unresolved", codes.FailedPrecondition, types.ErrEntryPointUnresolved},
	{"sandbox_unsupported", codes.Unimplemented, types.ErrSandboxUnsupported},
	{"registry_unreachable", codes.Unavailable, types.ErrRegistryUnreachable},
	{"invalid_spec", codes.InvalidArgument, types.ErrInvalidSpec},
	{"invalid_pattern", codes.InvalidArgument, filter.ErrInvalidPattern},
	{"invalid_sort_field", codes.InvalidArgument, filter.ErrInvalidSortField},
}

const bundleKind = "bundle"

// ToStatus converts an analysis error to a gRPC status error. The error
// kind and the failing package travel as a Struct detail so that
// FromStatus can rebuild an error errors.Is and errors.As understand.
func ToStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	code := codes.Unknown
	detail := map[string]any{}

	var be *types.BundleError
	switch {
	case errors.Is(err, context.Canceled):
		code = codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		code = codes.DeadlineExceeded
	case errors.As(err, &be):
		code = codes.Aborted
		detail["kind"] = bundleKind
		messages := make([]any, len(be.Messages))
		for i, m := range be.Messages {
			messages[i] = m
		}
		detail["messages"] = messages
	default:
		for _, k := range errorKinds {
			if errors.Is(err, k.err) {
				code = k.code
				detail["kind"] = k.name
				break
			}
		}
	}

	var ae *types.AnalysisError
	if errors.As(err, &ae) {
		detail["name"] = ae.Name
		detail["version"] = ae.Version
		detail["cause"] = ae.Err.Error()
	}

	st := status.New(code, err.Error())
	if len(detail) == 0 {
		return st.Err()
	}
	s, serr := structpb.NewStruct(detail)
	if serr != nil {
		return st.Err()
	}
	if withDetail, derr := st.WithDetails(s); derr == nil {
		st = withDetail
	}
	return st.Err()
}

// remoteError is a sentinel error carried over the wire with its original
// message.
type remoteError struct {
	msg string
	err error
}

func (e *remoteError) Error() string { return e.msg }
func (e *remoteError) Unwrap() error { return e.err }

// FromStatus reverses ToStatus. Errors that are not gRPC statuses are
// returned unchanged.
func FromStatus(err error) error {
	st, ok := status.FromError(err)
	if !ok || err == nil {
		return err
	}

	var detail map[string]any
	for _, d := range st.Details() {
		if s, ok := d.(*structpb.Struct); ok {
			detail = s.AsMap()
			break
		}
	}

	cause, _ := detail["cause"].(string)
	if cause == "" {
		cause = st.Message()
	}

	var rebuilt error
	kind, _ := detail["kind"].(string)
	switch {
	case kind == bundleKind:
		be := &types.BundleError{}
		if msgs, ok := detail["messages"].([]any); ok {
			for _, m := range msgs {
				if s, ok := m.(string); ok {
					be.Messages = append(be.Messages, s)
				}
			}
		}
		rebuilt = be
	case kind != "":
		for _, k := range errorKinds {
			if k.name == kind {
				rebuilt = &remoteError{msg: cause, err: k.err}
				break
			}
		}
	case st.Code() == codes.Canceled:
		rebuilt = &remoteError{msg: cause, err: context.Canceled}
	case st.Code() == codes.DeadlineExceeded:
		rebuilt = &remoteError{msg: cause, err: context.DeadlineExceeded}
	}
	if rebuilt == nil {
		return fmt.Errorf("daemon: %s", st.Message())
	}

	if name, ok := detail["name"].(string); ok {
		version, _ := detail["version"].(string)
		return &types.AnalysisError{Name: name, Version: version, Err: rebuilt}
	}
	return rebuilt
}
