package llm

import (
	"sync"
	"time"
)

// Pricing holds USD costs per 1M tokens for one model.
type Pricing struct {
	InputPer1M  float64
	OutputPer1M float64
}

// defaultPricing covers the models the registry commonly autodetects.
var defaultPricing = map[string]Pricing{
	"gpt-4o":            {InputPer1M: 2.50, OutputPer1M: 10.00},
	"gpt-4o-mini":       {InputPer1M: 0.15, OutputPer1M: 0.60},
	"gpt-4.1":           {InputPer1M: 2.00, OutputPer1M: 8.00},
	"gpt-4.1-mini":      {InputPer1M: 0.40, OutputPer1M: 1.60},
	"o3-mini":           {InputPer1M: 1.10, OutputPer1M: 4.40},
	"deepseek-chat":     {InputPer1M: 0.27, OutputPer1M: 1.10},
	"deepseek-reasoner": {InputPer1M: 0.55, OutputPer1M: 2.19},
}

// fallbackPricing prices models missing from the table at the high tier,
// so an unlisted model never reads as free.
var fallbackPricing = Pricing{InputPer1M: 2.50, OutputPer1M: 10.00}

// UsageRecord is one model invocation's token usage and cost.
type UsageRecord struct {
	Model            string    `json:"model"`
	TaskType         TaskType  `json:"task_type"`
	PromptTokens     int       `json:"prompt_tokens"`
	CompletionTokens int       `json:"completion_tokens"`
	CostUSD          float64   `json:"cost_usd"`
	Timestamp        time.Time `json:"timestamp"`
}

// Ledger accumulates token usage and cost across model invocations.
// Thread-safe; one ledger typically spans one review task.
type Ledger struct {
	mu      sync.RWMutex
	pricing map[string]Pricing
	records []UsageRecord
	total   float64
}

// NewLedger creates a ledger with the default pricing table.
func NewLedger() *Ledger {
	return &Ledger{pricing: defaultPricing}
}

// SetPricing overrides pricing for one model.
func (l *Ledger) SetPricing(model string, p Pricing) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.pricing == nil {
		l.pricing = make(map[string]Pricing)
	} else {
		// Copy-on-write so the shared default table stays untouched.
		copied := make(map[string]Pricing, len(l.pricing))
		for k, v := range l.pricing {
			copied[k] = v
		}
		l.pricing = copied
	}
	l.pricing[model] = p
}

// Record logs one invocation and returns its cost in USD.
func (l *Ledger) Record(model string, task TaskType, promptTokens, completionTokens int) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	p, ok := l.pricing[model]
	if !ok {
		p = fallbackPricing
	}
	cost := (float64(promptTokens)/1_000_000)*p.InputPer1M +
		(float64(completionTokens)/1_000_000)*p.OutputPer1M

	l.records = append(l.records, UsageRecord{
		Model:            model,
		TaskType:         task,
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		CostUSD:          cost,
		Timestamp:        time.Now().UTC(),
	})
	l.total += cost
	return cost
}

// TotalCost returns the cumulative cost in USD.
func (l *Ledger) TotalCost() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.total
}

// Records returns a copy of all usage records in chronological order.
func (l *Ledger) Records() []UsageRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]UsageRecord, len(l.records))
	copy(out, l.records)
	return out
}

// TokenTotals returns cumulative prompt and completion token counts.
func (l *Ledger) TokenTotals() (prompt, completion int) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	for _, r := range l.records {
		prompt += r.PromptTokens
		completion += r.CompletionTokens
	}
	return prompt, completion
}

// Reset clears all records while keeping pricing configuration.
func (l *Ledger) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = nil
	l.total = 0
}
