package review

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/CAICAIIs/Auto-Scholar/graph"
	"github.com/CAICAIIs/Auto-Scholar/llm"
)

// Writer generates the review draft. Fresh runs build an outline and
// generate sections in parallel; retries and continuations regenerate the
// whole draft in a single call so the model sees all feedback at once.
// Single-call generation streams through the context token sink when one
// is attached.
func (a *Agents) Writer(ctx context.Context, s State) graph.NodeResult[State] {
	papers := writerPapers(s)
	if len(papers) == 0 {
		return graph.NodeResult[State]{Err: fmt.Errorf("writer: no papers to write from")}
	}

	paperContext := buildPaperContext(papers, ContextTokenBudget, a.logger)
	language := s.OutputLanguage
	if language == "" {
		language = "English"
	}

	isRetry := s.RetryCount > 0
	useSingleCall := isRetry || s.IsContinuation

	a.logger.Info("writer: generating draft",
		zap.Int("papers", len(papers)),
		zap.Bool("retry", isRetry),
		zap.Bool("continuation", s.IsContinuation),
		zap.Bool("single_call", useSingleCall))

	if useSingleCall {
		draft, err := a.generateSingleCall(ctx, s, paperContext, language, len(papers))
		if err != nil {
			return graph.NodeResult[State]{Err: err}
		}
		a.logStrayCitations(draft, len(papers))
		logMsg := fmt.Sprintf("Draft generated: %d sections (single call)", len(draft.Sections))
		return graph.NodeResult[State]{Delta: graph.Delta{
			"final_draft":    draft,
			"logs":           []string{logMsg},
			"current_agent":  NodeWriter,
			"agent_handoffs": []string{"extractor→writer"},
		}}
	}

	outline, err := structuredCall[Outline](ctx, a, llm.TaskWriting, s.ModelID, llm.Request{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: fmt.Sprintf(outlineGenerationSystem, language)},
			{Role: llm.RoleUser, Content: fmt.Sprintf(draftUserPrompt, s.UserQuery, paperContext)},
		},
	})
	if err != nil {
		return graph.NodeResult[State]{Err: err}
	}
	if len(outline.SectionTitles) == 0 {
		return graph.NodeResult[State]{Err: fmt.Errorf("writer: outline has no sections")}
	}

	sections := a.generateSections(ctx, s, outline, paperContext, language, len(papers))
	if err := ctx.Err(); err != nil {
		return graph.NodeResult[State]{Err: err}
	}

	draft := &Draft{Title: outline.Title, Sections: sections}
	a.logStrayCitations(draft, len(papers))
	logMsg := fmt.Sprintf("Draft generated: %d sections (outline + parallel)", len(sections))
	return graph.NodeResult[State]{Delta: graph.Delta{
		"final_draft":    draft,
		"draft_outline":  outline,
		"logs":           []string{logMsg},
		"current_agent":  NodeWriter,
		"agent_handoffs": []string{"extractor→writer"},
	}}
}

// generateSingleCall regenerates the whole draft in one structured call,
// with retry or revision guidance appended to the system prompt.
func (a *Agents) generateSingleCall(ctx context.Context, s State, paperContext, language string, numPapers int) (*Draft, error) {
	system := fmt.Sprintf(draftGenerationSystem, language, numPapers)

	switch {
	case s.RetryCount > 0 && s.Reflection != nil && len(s.Reflection.Entries) > 0:
		fixes := make([]string, 0, len(s.Reflection.Entries))
		for _, e := range s.Reflection.Entries {
			fixes = append(fixes, fmt.Sprintf("- [%s] %s", e.ErrorCategory, e.FixStrategy))
		}
		system += fmt.Sprintf(draftReflectionRetryAddendum, strings.Join(fixes, "\n"), numPapers)
	case s.RetryCount > 0:
		errs := s.QAErrors
		if len(errs) > 3 {
			errs = errs[:3]
		}
		system += fmt.Sprintf(draftRetryAddendum, len(s.QAErrors), "- "+strings.Join(errs, "\n- "), numPapers)
	case s.IsContinuation:
		var existing string
		if s.FinalDraft != nil {
			existing = fmt.Sprintf("\n\nThe existing review is titled %q with sections: %s.",
				s.FinalDraft.Title, strings.Join(sectionHeadings(s.FinalDraft), "; "))
		}
		system += fmt.Sprintf(draftRevisionAddendum, existing, s.UserQuery, buildConversationContext(s.Messages))
	}

	req := llm.Request{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: system},
			{Role: llm.RoleUser, Content: fmt.Sprintf(draftUserPrompt, s.UserQuery, paperContext)},
		},
		MaxTokens: draftTokenCeiling(numPapers),
	}
	if sink := tokenSink(ctx); sink != nil {
		req.OnToken = sink
	}
	return structuredCall[Draft](ctx, a, llm.TaskWriting, s.ModelID, req)
}

type sectionContent struct {
	Content string `json:"content"`
}

// generateSections generates every outline section concurrently. The
// fan-out is unbounded; the invoker's global permit pool is the only
// limit. A failed section gets a visible placeholder instead of failing
// the draft.
func (a *Agents) generateSections(ctx context.Context, s State, outline *Outline, paperContext, language string, numPapers int) []Section {
	total := len(outline.SectionTitles)
	fullOutline := strings.Join(outline.SectionTitles, "; ")
	sections := make([]Section, total)

	var wg sync.WaitGroup
	for i, heading := range outline.SectionTitles {
		wg.Add(1)
		go func(i int, heading string) {
			defer wg.Done()

			result, err := structuredCall[sectionContent](ctx, a, llm.TaskWriting, s.ModelID, llm.Request{
				Messages: []llm.Message{
					{Role: llm.RoleSystem, Content: fmt.Sprintf(sectionGenerationSystem, i+1, total, heading, language, fullOutline, numPapers)},
					{Role: llm.RoleUser, Content: fmt.Sprintf(draftUserPrompt, s.UserQuery, paperContext)},
				},
				MaxTokens: sectionTokenCeiling(numPapers),
			})
			if err != nil {
				a.logger.Warn("writer: section generation failed",
					zap.String("heading", heading),
					zap.Error(err))
				sections[i] = Section{Heading: heading, Content: fmt.Sprintf("[Generation failed: %v]", err)}
				return
			}
			sections[i] = Section{Heading: heading, Content: result.Content}
		}(i, heading)
	}
	wg.Wait()
	return sections
}

// logStrayCitations logs out-of-range citation markers. The critic
// rejects them; the writer only records that it produced them.
func (a *Agents) logStrayCitations(draft *Draft, numPapers int) {
	if draft == nil {
		return
	}
	for i, sec := range draft.Sections {
		for _, n := range citationIndices(sec.Content) {
			if n < 1 || n > numPapers {
				a.logger.Warn("writer: citation index out of range",
					zap.Int("section", i+1),
					zap.Int("index", n),
					zap.Int("papers", numPapers))
			}
		}
	}
}

func sectionHeadings(d *Draft) []string {
	headings := make([]string, 0, len(d.Sections))
	for _, sec := range d.Sections {
		headings = append(headings, sec.Heading)
	}
	return headings
}
