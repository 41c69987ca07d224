package review

import (
	"fmt"
	"strings"

	"github.com/CAICAIIs/Auto-Scholar/scholar"
)

// RenderMarkdown renders a normalized draft as a markdown document with a
// numbered references list matching the [N] citations in the text.
func RenderMarkdown(draft *Draft, papers []scholar.Paper) string {
	if draft == nil {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n", draft.Title)
	for _, sec := range draft.Sections {
		fmt.Fprintf(&b, "\n## %s\n\n%s\n", sec.Heading, sec.Content)
	}

	if len(papers) > 0 {
		b.WriteString("\n## References\n\n")
		for i, p := range papers {
			fmt.Fprintf(&b, "[%d] %s", i+1, referenceLine(p))
			b.WriteString("\n")
		}
	}
	return b.String()
}

func referenceLine(p scholar.Paper) string {
	var parts []string
	if len(p.Authors) > 0 {
		parts = append(parts, authorList(p.Authors))
	}
	parts = append(parts, p.Title)
	if p.Year > 0 {
		parts = append(parts, fmt.Sprintf("%d", p.Year))
	}
	line := strings.Join(parts, ". ")
	if p.URL != "" {
		line += ". " + p.URL
	}
	return line + "."
}
