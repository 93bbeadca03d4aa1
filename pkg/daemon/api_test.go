package daemon_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/jamesainslie/pkgsize/pkg/daemon"
	"github.com/jamesainslie/pkgsize/pkg/pkgsize/filter"
	"github.com/jamesainslie/pkgsize/pkg/pkgsize/runner"
	"github.com/jamesainslie/pkgsize/pkg/pkgsize/types"
)

func TestStructRoundTrip(t *testing.T) {
	desc := true
	in := daemon.ExportSizesRequest{
		Request: runner.Request{Name: "@scope/pkg", Version: "1.2.3", CDN: "jsdelivr", CustomImports: []string{"a", "b"}},
		Filter:  daemon.FilterOptions{MinSize: 1 << 40, Include: []string{"lib/**"}, SortBy: "name", SortDescending: &desc, Limit: 5},
	}

	s, err := daemon.ToStruct(&in)
	if err != nil {
		t.Fatalf("ToStruct failed: %v", err)
	}
	if got := s.GetFields()["name"].GetStringValue(); got != "@scope/pkg" {
		t.Errorf("Expected embedded request fields at the top level, got name %q", got)
	}

	var out daemon.ExportSizesRequest
	if err := daemon.FromStruct(s, &out); err != nil {
		t.Fatalf("FromStruct failed: %v", err)
	}
	if out.Name != in.Name || out.Version != in.Version || out.CDN != in.CDN {
		t.Errorf("Request mismatch: %+v", out.Request)
	}
	if out.Filter.MinSize != in.Filter.MinSize {
		t.Errorf("Expected MinSize %d, got %d", in.Filter.MinSize, out.Filter.MinSize)
	}
	if out.Filter.SortDescending == nil || !*out.Filter.SortDescending {
		t.Error("Expected SortDescending to survive")
	}
	if len(out.CustomImports) != 2 {
		t.Errorf("Expected 2 custom imports, got %v", out.CustomImports)
	}
}

func TestStructRoundTripDuration(t *testing.T) {
	in := daemon.AnalyzeResponse{StatsResult: runner.StatsResult{
		Stats:    &types.PackageStats{Name: "react", Version: "18.2.0", Size: 6400, GzipSize: 2600},
		Cached:   true,
		Duration: 1500 * time.Millisecond,
	}}

	s, err := daemon.ToStruct(&in)
	if err != nil {
		t.Fatalf("ToStruct failed: %v", err)
	}
	var out daemon.AnalyzeResponse
	if err := daemon.FromStruct(s, &out); err != nil {
		t.Fatalf("FromStruct failed: %v", err)
	}

	if out.Duration != in.Duration {
		t.Errorf("Expected duration %v, got %v", in.Duration, out.Duration)
	}
	if !out.Cached || out.Stats.GzipSize != 2600 {
		t.Errorf("Unexpected result: %+v", out)
	}
}

func TestStatusMapping(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		code     codes.Code
		sentinel error
	}{
		{"not found", fmt.Errorf("%w: x@1.0.0", types.ErrPackageNotFound), codes.NotFound, types.ErrPackageNotFound},
		{"entry", types.ErrEntryPointUnresolved, codes.FailedPrecondition, types.ErrEntryPointUnresolved},
		{"sandbox", types.ErrSandboxUnsupported, codes.Unimplemented, types.ErrSandboxUnsupported},
		{"registry", fmt.Errorf("%w: 502", types.ErrRegistryUnreachable), codes.Unavailable, types.ErrRegistryUnreachable},
		{"spec", types.ErrInvalidSpec, codes.InvalidArgument, types.ErrInvalidSpec},
		{"pattern", fmt.Errorf("%w %q", filter.ErrInvalidPattern, "[a-"), codes.InvalidArgument, filter.ErrInvalidPattern},
		{"canceled", context.Canceled, codes.Canceled, context.Canceled},
		{"deadline", fmt.Errorf("fetch: %w", context.DeadlineExceeded), codes.DeadlineExceeded, context.DeadlineExceeded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wire := daemon.ToStatus(types.WrapAnalysis("pkg", "1.0.0", tt.err))
			if got := status.Code(wire); got != tt.code {
				t.Errorf("Expected code %v, got %v", tt.code, got)
			}

			back := daemon.FromStatus(wire)
			if !errors.Is(back, tt.sentinel) {
				t.Errorf("Expected errors.Is(%v, %v)", back, tt.sentinel)
			}
			var ae *types.AnalysisError
			if !errors.As(back, &ae) {
				t.Fatalf("Expected an AnalysisError, got %T", back)
			}
			if ae.Name != "pkg" || ae.Version != "1.0.0" {
				t.Errorf("Expected pkg@1.0.0, got %s@%s", ae.Name, ae.Version)
			}
			if back.Error() != types.WrapAnalysis("pkg", "1.0.0", tt.err).Error() {
				t.Errorf("Expected message %q, got %q", types.WrapAnalysis("pkg", "1.0.0", tt.err).Error(), back.Error())
			}
		})
	}
}

func TestStatusMappingBundleError(t *testing.T) {
	wire := daemon.ToStatus(&types.BundleError{Messages: []string{"Could not resolve \"fs\"", "syntax error"}})
	if status.Code(wire) != codes.Aborted {
		t.Errorf("Expected Aborted, got %v", status.Code(wire))
	}

	var be *types.BundleError
	if !errors.As(daemon.FromStatus(wire), &be) {
		t.Fatal("Expected a BundleError")
	}
	if len(be.Messages) != 2 || be.Messages[1] != "syntax error" {
		t.Errorf("Expected messages to survive, got %v", be.Messages)
	}
}

func TestStatusMappingPassThrough(t *testing.T) {
	if daemon.ToStatus(nil) != nil {
		t.Error("Expected nil for nil error")
	}

	already := status.Error(codes.PermissionDenied, "nope")
	if daemon.ToStatus(already) != already {
		t.Error("Expected status errors to pass through")
	}

	plain := errors.New("plain")
	if daemon.FromStatus(plain) != plain {
		t.Error("Expected non-status errors to pass through")
	}

	unknown := daemon.FromStatus(daemon.ToStatus(errors.New("boom")))
	if unknown == nil || unknown.Error() != "daemon: boom" {
		t.Errorf("Expected generic daemon error, got %v", unknown)
	}
}
