package agentloop

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
	"go.uber.org/zap"

	"github.com/tandem-agent/tandem/llmstream"
)

// ContextManager keeps the assembled message list within a token budget
// before each model call.
type ContextManager interface {
	Trim(msgs []llmstream.Message) []llmstream.Message
	EstimateTokens(msgs []llmstream.Message) int
}

// TokenEstimator counts tokens with tiktoken, falling back to a chars/4
// approximation when the encoding cannot be initialized (first use may
// download encoding data).
type TokenEstimator struct {
	encoding string
	enc      *tiktoken.Tiktoken
	once     sync.Once
}

// NewTokenEstimator creates an estimator for the given tiktoken encoding.
// An empty encoding selects cl100k_base.
func NewTokenEstimator(encoding string) *TokenEstimator {
	if encoding == "" {
		encoding = "cl100k_base"
	}
	return &TokenEstimator{encoding: encoding}
}

func (e *TokenEstimator) init() {
	e.once.Do(func() {
		enc, err := tiktoken.GetEncoding(e.encoding)
		if err == nil {
			e.enc = enc
		}
	})
}

// Count estimates the token cost of a text.
func (e *TokenEstimator) Count(text string) int {
	e.init()
	if e.enc != nil {
		return len(e.enc.Encode(text, nil, nil))
	}
	return len(text)/4 + 1
}

// perMessageOverhead approximates the wire framing cost of one message.
const perMessageOverhead = 4

// BudgetContextManager is the default ContextManager. It always preserves
// the leading system message and the most recent messages, drops the
// oldest non-system messages first, and keeps an assistant tool call and
// its following tool result together: the pair is dropped or kept whole,
// never split across the cut. A single message that alone exceeds the
// budget is truncated head+tail in place.
type BudgetContextManager struct {
	budget    int
	estimator *TokenEstimator
	logger    *zap.Logger
}

// NewBudgetContextManager creates a manager for the given token budget.
func NewBudgetContextManager(budget int, estimator *TokenEstimator, logger *zap.Logger) *BudgetContextManager {
	if estimator == nil {
		estimator = NewTokenEstimator("")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BudgetContextManager{budget: budget, estimator: estimator, logger: logger}
}

// EstimateTokens sums the estimated cost of every message.
func (m *BudgetContextManager) EstimateTokens(msgs []llmstream.Message) int {
	total := 0
	for _, msg := range msgs {
		total += m.estimator.Count(msg.Content) + perMessageOverhead
	}
	return total
}

// Trim returns a message list at or under budget. The input slice is not
// modified.
func (m *BudgetContextManager) Trim(msgs []llmstream.Message) []llmstream.Message {
	if m.budget <= 0 || m.EstimateTokens(msgs) <= m.budget {
		return msgs
	}

	head := 0
	if len(msgs) > 0 && msgs[0].Role == llmstream.RoleSystem {
		head = 1
	}

	units := groupUnits(msgs[head:])

	// Drop oldest units until under budget, always keeping the newest.
	for len(units) > 1 && m.estimateUnits(msgs[:head], units) > m.budget {
		dropped := units[0]
		units = units[1:]
		m.logger.Debug("context trim: dropping oldest messages",
			zap.Int("messages", len(dropped)),
			zap.String("first_role", string(dropped[0].Role)))
	}

	out := make([]llmstream.Message, 0, len(msgs))
	out = append(out, msgs[:head]...)
	for _, u := range units {
		out = append(out, u...)
	}

	// Still over budget: truncate the longest remaining non-system
	// message in place until we fit (or nothing is left to shrink).
	for m.EstimateTokens(out) > m.budget {
		idx := longestMessage(out, head)
		if idx < 0 {
			break
		}
		overshoot := m.EstimateTokens(out) - m.budget
		target := m.estimator.Count(out[idx].Content) - overshoot
		truncated := truncateHeadTail(out[idx].Content, target)
		if truncated == out[idx].Content {
			break
		}
		m.logger.Debug("context trim: truncating oversized message",
			zap.Int("index", idx),
			zap.Int("from_chars", len(out[idx].Content)),
			zap.Int("to_chars", len(truncated)))
		out[idx].Content = truncated
	}
	return out
}

// estimateUnits estimates the cost of the kept prefix plus the units.
func (m *BudgetContextManager) estimateUnits(kept []llmstream.Message, units [][]llmstream.Message) int {
	total := m.EstimateTokens(kept)
	for _, u := range units {
		total += m.EstimateTokens(u)
	}
	return total
}

// groupUnits splits messages into droppable units. A tool-role message is
// attached to the preceding assistant message so a recorded tool call and
// its result travel together.
func groupUnits(msgs []llmstream.Message) [][]llmstream.Message {
	var units [][]llmstream.Message
	for _, msg := range msgs {
		if msg.Role == llmstream.RoleTool && len(units) > 0 {
			last := units[len(units)-1]
			if last[len(last)-1].Role == llmstream.RoleAssistant {
				units[len(units)-1] = append(last, msg)
				continue
			}
		}
		units = append(units, []llmstream.Message{msg})
	}
	return units
}

func longestMessage(msgs []llmstream.Message, head int) int {
	idx, best := -1, 0
	for i := head; i < len(msgs); i++ {
		if n := len(msgs[i].Content); n > best {
			idx, best = i, n
		}
	}
	return idx
}

// truncateHeadTail keeps the head and tail of a message, removing the
// middle. targetTokens is approximated as chars via the chars/4 rule.
func truncateHeadTail(content string, targetTokens int) string {
	if targetTokens < 16 {
		targetTokens = 16
	}
	maxChars := targetTokens * 4
	const marker = "\n[... truncated ...]\n"
	if len(content) <= maxChars || maxChars <= len(marker) {
		return content
	}
	half := (maxChars - len(marker)) / 2
	return content[:half] + marker + content[len(content)-half:]
}
