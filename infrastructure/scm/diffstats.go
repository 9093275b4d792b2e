package scm

import (
	"strings"

	"github.com/waigani/diffparser"

	"github.com/ahrav/go-pairank/internal/ports"
)

// ParseDiffStats counts the files and lines touched by a unified diff.
// Input that does not parse as a diff yields zero stats.
func ParseDiffStats(diff string) ports.DiffStats {
	if strings.TrimSpace(diff) == "" {
		return ports.DiffStats{}
	}
	parsed, err := diffparser.Parse(diff)
	if err != nil || parsed == nil {
		return ports.DiffStats{}
	}

	var stats ports.DiffStats
	for _, f := range parsed.Files {
		stats.FilesChanged++
		for _, h := range f.Hunks {
			for _, l := range h.WholeRange.Lines {
				switch l.Mode {
				case diffparser.ADDED:
					stats.LinesAdded++
				case diffparser.REMOVED:
					stats.LinesRemoved++
				}
			}
		}
	}
	return stats
}
