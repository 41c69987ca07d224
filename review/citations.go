package review

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/CAICAIIs/Auto-Scholar/scholar"
)

// citeMarker matches the writer's inline citation form {cite:N}.
var citeMarker = regexp.MustCompile(`\{cite:(\d+)\}`)

// citationIndices returns the 1-based citation indices in content, in
// order of appearance, duplicates included.
func citationIndices(content string) []int {
	matches := citeMarker.FindAllStringSubmatch(content, -1)
	indices := make([]int, 0, len(matches))
	for _, m := range matches {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		indices = append(indices, n)
	}
	return indices
}

// NormalizeDraftCitations rewrites every {cite:N} marker to the reader
// form [N], drops markers whose index falls outside the paper list, and
// fills each section's CitedPaperIDs with the cited papers' ids. Called
// once, when a draft is final.
func NormalizeDraftCitations(draft *Draft, papers []scholar.Paper, logger *zap.Logger) *Draft {
	if draft == nil {
		return nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	out := &Draft{Title: draft.Title, Sections: make([]Section, len(draft.Sections))}
	for i, sec := range draft.Sections {
		seen := make(map[int]bool)
		content := citeMarker.ReplaceAllStringFunc(sec.Content, func(marker string) string {
			n, _ := strconv.Atoi(citeMarker.FindStringSubmatch(marker)[1])
			if n < 1 || n > len(papers) {
				logger.Warn("dropping out-of-range citation",
					zap.String("section", sec.Heading),
					zap.Int("index", n),
					zap.Int("papers", len(papers)))
				return ""
			}
			seen[n] = true
			return fmt.Sprintf("[%d]", n)
		})

		indices := make([]int, 0, len(seen))
		for n := range seen {
			indices = append(indices, n)
		}
		sort.Ints(indices)
		ids := make([]string, 0, len(indices))
		for _, n := range indices {
			ids = append(ids, papers[n-1].PaperID)
		}

		out.Sections[i] = Section{
			Heading:       sec.Heading,
			Content:       strings.TrimSpace(content),
			CitedPaperIDs: ids,
		}
	}
	return out
}
