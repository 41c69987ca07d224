package review

// Prompt templates. All are fmt.Sprintf templates; the schema hint for
// structured responses is appended by the invocation layer.

const plannerCoTSystem = `You are a research planning assistant. Decompose the user's research query into 1-5 focused sub-questions.

Think step by step:
1. Identify the core topic and the distinct facets worth surveying.
2. For each facet, formulate a sub-question with 2-4 search keywords.
3. Pick the best source per sub-question: "semantic_scholar" for broad CS/ML coverage, "arxiv" for recent preprints, "pubmed" for biomedical work.
4. Assign each sub-question a priority (1 = most important) and an estimated paper count (3-8).

Record your reasoning, then the sub-questions.`

const keywordGenerationSystem = `You are a scholarly search assistant. Generate 3-5 precise search keywords for the user's research query. Prefer established technical terms over full sentences. Cover the core concept, the methodology, and the application area.`

const keywordcontinuationAddendum = `

The user is refining an earlier research session. Recent conversation:
%s

Generate keywords for the NEW request, reusing earlier context only where it is still relevant.`

const contributionExtractionSystem = `You are a research analyst. Given a paper's title and abstract, state its core contribution in 1-2 sentences. Be specific about what is new; do not restate the abstract.`

const contributionExtractionUser = `Title: %s
Year: %d
Abstract: %s`

const structuredExtractionSystem = `You are a research analyst. Extract the following aspects from the paper's abstract, each as one concise sentence. Leave an aspect empty when the abstract does not address it.

Aspects: problem, method, novelty, dataset, baseline, results, limitations, future_work.`

const outlineGenerationSystem = `You are an academic writer drafting a literature review in %s. Propose a review title and 4-7 section headings that organize the provided papers into a coherent narrative (for example: introduction, thematic groupings, comparison, open challenges, conclusion). Headings only; no content yet.`

const sectionGenerationSystem = `You are an academic writer drafting section %d of %d ("%s") of a literature review in %s. The full outline is: %s.

Write only this section. Ground every claim in the provided papers and cite them inline with {cite:N}, where N is the paper's number in the context (1-%d). Every section must cite at least one paper. Do not invent citations.`

const draftGenerationSystem = `You are an academic writer producing a complete literature review in %s. Structure the review into titled sections. Ground every claim in the provided papers and cite them inline with {cite:N}, where N is the paper's number in the context (1-%d). Cite every provided paper at least once. Do not invent citations.`

const draftUserPrompt = `Research query: %s

Papers:
%s`

const draftRevisionAddendum = `

You are REVISING an existing review based on the user's follow-up request.%s

Follow-up request: %s

Recent conversation:
%s

Keep what still holds; change only what the request requires.`

const draftRetryAddendum = `

Your previous draft failed quality checks with %d errors. The most important:
%s

Regenerate the full review fixing these errors. Citation indices must stay within 1-%d, every section must cite at least one paper, and every paper must be cited somewhere.`

const draftReflectionRetryAddendum = `

Your previous draft failed quality checks. Apply these fixes:
%s

Regenerate the full review. Citation indices must stay within 1-%d.`

const reflectionSystem = `You are a quality analyst for generated literature reviews. For each QA error, classify it (citation_out_of_bounds, missing_citation, uncited_paper, low_entailment, or structural), explain it briefly, and give a concrete fix strategy. Mark whether the writer alone can fix it or new retrieval is needed. Then decide: should_retry, and retry_target ("writer" or "retriever"). Finish with a one-paragraph summary.`

const reflectionUser = `The review cites %d approved papers. This is retry %d.

QA errors:
%s`

const claimExtractionSystem = `You extract factual claims from academic text. Return each claim as a standalone sentence, preserving its {cite:N} markers verbatim. Only include claims that carry at least one citation. Split compound sentences into atomic claims.`

const claimExtractionUser = `Section "%s":

%s`

const claimBatchExtractionSystem = `You extract factual claims from academic text. You receive several sections as JSON. For each section, return its claims as standalone sentences, preserving {cite:N} markers verbatim. Only include claims that carry at least one citation.`

const claimBatchExtractionUser = `Sections:
%s`

const claimVerificationSystem = `You verify whether a cited paper supports a claim. Label the pair:
- "entails": the paper's content supports the claim.
- "insufficient": the paper does not contain enough information to judge.
- "contradicts": the paper's content conflicts with the claim.

Also give a confidence in [0,1], the most relevant evidence snippet from the paper, and a one-sentence rationale.`

const claimVerificationUser = `Claim: %s
Cited as [%d]: %s

Paper content:
%s

Paper contribution: %s`
