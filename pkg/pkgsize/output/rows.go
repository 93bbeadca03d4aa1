package output

import (
	"strconv"
	"time"

	"github.com/jamesainslie/pkgsize/pkg/pkgsize/types"
)

// table is the row view of a report shared by the tabular formatters.
type table struct {
	header []string
	rows   [][]string
}

// sizeFunc renders a byte count for one formatter.
type sizeFunc func(int64) string

func rawSize(n int64) string { return strconv.FormatInt(n, 10) }

// buildTable flattens a report. Stats produce one row, exports one row per
// asset, history one row per entry.
func buildTable(r *Report, size sizeFunc) table {
	switch {
	case r.Stats != nil:
		s := r.Stats
		return table{
			header: []string{"PACKAGE", "SIZE", "GZIP", "DEPENDENCIES", "MEASUREMENT"},
			rows: [][]string{{
				types.FormatSpec(s.Name, s.Version),
				size(s.Size),
				size(s.GzipSize),
				strconv.Itoa(s.DependencyCount),
				string(s.Measurement),
			}},
		}

	case r.Exports != nil:
		t := table{header: []string{"SIZE", "GZIP", "EXPORT", "PATH"}}
		for _, a := range r.Exports.Assets {
			t.rows = append(t.rows, []string{size(a.Size), size(a.GzipSize), a.ExportName, a.Path})
		}
		return t

	default:
		t := table{header: []string{"ID", "TIME", "KIND", "PACKAGE", "SIZE", "GZIP"}}
		for _, e := range r.History {
			t.rows = append(t.rows, []string{
				e.ID,
				e.Timestamp.Local().Format(time.DateTime),
				string(e.Kind),
				types.FormatSpec(e.Name, e.Version),
				size(e.Size),
				size(e.GzipSize),
			})
		}
		return t
	}
}
