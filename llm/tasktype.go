// Package llm provides the language model layer: a model registry with
// capability metadata, a task-aware router, an OpenAI-compatible client with
// structured output and streaming, and a cost ledger.
package llm

// TaskType classifies the kind of work a model invocation performs. The
// router uses it to match task requirements against model capabilities.
type TaskType string

const (
	TaskPlanning   TaskType = "planning"
	TaskExtraction TaskType = "extraction"
	TaskWriting    TaskType = "writing"
	TaskQA         TaskType = "qa"
	TaskReflection TaskType = "reflection"
)

// Requirements describe what a task type demands of a model.
// MaxCostRank caps the candidate pool by cost tier (1 cheapest, 4 most
// expensive); zero means any tier qualifies.
type Requirements struct {
	NeedsReasoning    bool
	NeedsStructured   bool
	NeedsLongContext  bool
	PrefersCreativity bool
	LatencySensitive  bool
	MaxCostRank       int
	Complexity        string // "low", "medium", "high"
}

var taskRequirements = map[TaskType]Requirements{
	TaskPlanning: {
		NeedsReasoning:  true,
		NeedsStructured: true,
		MaxCostRank:     4,
		Complexity:      "high",
	},
	TaskExtraction: {
		NeedsStructured:  true,
		LatencySensitive: true,
		MaxCostRank:      2,
		Complexity:       "medium",
	},
	TaskWriting: {
		NeedsLongContext:  true,
		PrefersCreativity: true,
		MaxCostRank:       4,
		Complexity:        "high",
	},
	TaskQA: {
		NeedsStructured:  true,
		LatencySensitive: true,
		MaxCostRank:      2,
		Complexity:       "low",
	},
	TaskReflection: {
		NeedsReasoning:  true,
		NeedsStructured: true,
		MaxCostRank:     3,
		Complexity:      "medium",
	},
}

// RequirementsFor returns the requirements profile for a task type.
// Unknown task types get a zero-value profile.
func RequirementsFor(task TaskType) Requirements {
	return taskRequirements[task]
}
