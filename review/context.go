package review

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
	"go.uber.org/zap"

	"github.com/CAICAIIs/Auto-Scholar/scholar"
)

var (
	tokenizerOnce sync.Once
	tokenizer     *tiktoken.Tiktoken
)

// countTokens counts BPE tokens when the encoding is available, falling
// back to a word-count heuristic. The tokenizer loads its vocabulary
// lazily; environments without it still get usable estimates.
func countTokens(text string) int {
	tokenizerOnce.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			tokenizer = enc
		}
	})
	if tokenizer != nil {
		return len(tokenizer.Encode(text, nil, nil))
	}
	return int(float64(len(strings.Fields(text))) * 1.3)
}

// estimatePaperTokens estimates one paper's share of the writer context.
func estimatePaperTokens(p scholar.Paper) int {
	parts := []string{p.Title, p.CoreContribution}
	if sc := p.StructuredContribution; sc != nil {
		for _, field := range []string{
			sc.Problem, sc.Method, sc.Novelty, sc.Dataset,
			sc.Baseline, sc.Results, sc.Limitations, sc.FutureWork,
		} {
			if field != "" {
				parts = append(parts, field)
			}
		}
	} else if p.Abstract != "" {
		parts = append(parts, truncate(p.Abstract, 200))
	}

	n := countTokens(strings.Join(parts, " "))
	if n < 20 {
		n = 20
	}
	return n
}

// prioritizeBySubQuestions reorders papers so the best title match for
// each sub-question, in priority order, comes first; unreserved papers
// follow in arrival order.
func prioritizeBySubQuestions(papers []scholar.Paper, plan *scholar.ResearchPlan) []scholar.Paper {
	if plan == nil || len(plan.SubQuestions) == 0 {
		return papers
	}

	sqs := make([]scholar.SubQuestion, len(plan.SubQuestions))
	copy(sqs, plan.SubQuestions)
	sort.SliceStable(sqs, func(i, j int) bool { return sqs[i].Priority < sqs[j].Priority })

	reserved := make([]scholar.Paper, 0, len(sqs))
	remaining := make([]scholar.Paper, len(papers))
	copy(remaining, papers)

	for _, sq := range sqs {
		idx := bestKeywordMatch(remaining, sq.Keywords)
		if idx < 0 {
			continue
		}
		reserved = append(reserved, remaining[idx])
		remaining = append(remaining[:idx], remaining[idx+1:]...)
	}
	return append(reserved, remaining...)
}

// bestKeywordMatch scores papers by distinct keyword hits in the title.
// Ties break by input order; a zero-score field falls back to the first
// paper. Returns -1 only when papers or keywords are empty.
func bestKeywordMatch(papers []scholar.Paper, keywords []string) int {
	if len(papers) == 0 || len(keywords) == 0 {
		return -1
	}
	bestIdx, bestScore := 0, 0
	for i, p := range papers {
		title := strings.ToLower(p.Title)
		score := 0
		for _, kw := range keywords {
			if strings.Contains(title, strings.ToLower(kw)) {
				score++
			}
		}
		if score > bestScore {
			bestIdx, bestScore = i, score
		}
	}
	return bestIdx
}

// buildPaperContext renders the numbered paper block fed to the writer,
// filling papers in order until the token budget is reached. At least one
// paper is always included. Input order is preserved: the [N] numbering
// must match the slice positions the critic and normalizer index into.
func buildPaperContext(papers []scholar.Paper, budget int, logger *zap.Logger) string {
	if len(papers) == 0 {
		return ""
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if budget <= 0 {
		budget = ContextTokenBudget
	}

	if len(papers) > ContextOverflowWarningThreshold {
		logger.Warn("paper count exceeds warning threshold",
			zap.Int("count", len(papers)),
			zap.Int("threshold", ContextOverflowWarningThreshold))
	}
	if len(papers) > ContextMaxPapers {
		logger.Warn("paper count exceeds hard limit, truncating",
			zap.Int("count", len(papers)),
			zap.Int("limit", ContextMaxPapers))
		papers = papers[:ContextMaxPapers]
	}

	var selected []scholar.Paper
	estimated := 0
	for _, p := range papers {
		tokens := estimatePaperTokens(p)
		if tokens == 0 {
			tokens = tokensPerPaperFallback
		}
		if estimated+tokens > budget && len(selected) > 0 {
			logger.Info("context budget reached",
				zap.Int("tokens", estimated),
				zap.Int("budget", budget),
				zap.Int("included", len(selected)),
				zap.Int("total", len(papers)))
			break
		}
		selected = append(selected, p)
		estimated += tokens
	}

	blocks := make([]string, 0, len(selected))
	for i, p := range selected {
		var b strings.Builder
		year := "N/A"
		if p.Year > 0 {
			year = fmt.Sprintf("%d", p.Year)
		}
		fmt.Fprintf(&b, "[%d] %s (Year: %s)\n", i+1, p.Title, year)
		fmt.Fprintf(&b, "    Authors: %s\n", authorList(p.Authors))
		fmt.Fprintf(&b, "    Contribution: %s", p.CoreContribution)

		if sc := p.StructuredContribution; sc != nil {
			appendAspect(&b, "Problem", sc.Problem)
			appendAspect(&b, "Method", sc.Method)
			appendAspect(&b, "Novelty", sc.Novelty)
			appendAspect(&b, "Dataset", sc.Dataset)
			appendAspect(&b, "Baseline", sc.Baseline)
			appendAspect(&b, "Results", sc.Results)
			appendAspect(&b, "Limitations", sc.Limitations)
			appendAspect(&b, "Future Work", sc.FutureWork)
		} else if p.Abstract != "" {
			appendAspect(&b, "Abstract", truncate(p.Abstract, 200))
		}
		blocks = append(blocks, b.String())
	}
	return strings.Join(blocks, "\n\n")
}

func appendAspect(b *strings.Builder, label, value string) {
	if value != "" {
		fmt.Fprintf(b, "\n    %s: %s", label, value)
	}
}

func authorList(authors []string) string {
	if len(authors) <= 3 {
		return strings.Join(authors, ", ")
	}
	return strings.Join(authors[:3], ", ") + "..."
}

// buildConversationContext renders the recent dialogue for continuation
// prompts, bounded to the last MaxConversationTurns user+assistant pairs.
func buildConversationContext(messages []ConversationMessage) string {
	if len(messages) == 0 {
		return ""
	}
	if max := MaxConversationTurns * 2; len(messages) > max {
		messages = messages[len(messages)-max:]
	}
	lines := make([]string, 0, len(messages))
	for _, m := range messages {
		label := "Assistant"
		if m.Role == RoleUser {
			label = "User"
		}
		lines = append(lines, label+": "+m.Content)
	}
	return strings.Join(lines, "\n")
}

// truncate shortens s to n runes, appending an ellipsis when cut.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
