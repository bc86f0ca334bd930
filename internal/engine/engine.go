// Package engine runs the per-turn conversation state machine: ceiling
// checks, guardrail screening, model invocation with tool execution, and
// the mapping of the model's decision onto the session lifecycle.
package engine

import (
	"context"
	"encoding/json"
	"time"

	"github.com/voxloop/voxloop/internal/config"
	"github.com/voxloop/voxloop/internal/domain"
	"github.com/voxloop/voxloop/internal/guardrail"
	"github.com/voxloop/voxloop/internal/llm"
	"github.com/voxloop/voxloop/internal/logging"
	"github.com/voxloop/voxloop/internal/normalize"
	"github.com/voxloop/voxloop/internal/tools"
)

// toolRounds caps model round-trips within one turn. Voice latency leaves
// room for a single tool round before the budget runs out.
const toolRounds = 1

// Engine advances a session by exactly one turn per call.
type Engine struct {
	model    llm.Client
	filter   guardrail.Filter
	registry *tools.Registry
	cfg      *config.Config
	log      *logging.Logger

	now func() time.Time
}

// New creates a turn engine.
func New(model llm.Client, filter guardrail.Filter, registry *tools.Registry, cfg *config.Config, log *logging.Logger) *Engine {
	return &Engine{
		model:    model,
		filter:   filter,
		registry: registry,
		cfg:      cfg,
		log:      log.Sub("engine"),
		now:      time.Now,
	}
}

// RunTurn advances sess by one turn for the given normalized input. It
// mutates the session (state, history, counters) and returns the recorded
// turn. Failures never surface as errors; they are folded into the turn
// as apology or error utterances so the caller always hears something.
func (e *Engine) RunTurn(ctx context.Context, sess *domain.CallSession, input normalize.Input) domain.Turn {
	started := e.now()
	log := e.log.WithSession(sess.SessionID)

	// Terminal states are sticky. A late or duplicate invocation after
	// hangup gets a goodbye without touching history.
	if sess.State.Terminal() {
		return domain.Turn{
			Index:     sess.TurnCount,
			AgentText: e.cfg.Messages.Goodbye,
			Action:    domain.ActionEnd,
			Verdict:   domain.VerdictAllowed,
			Timestamp: started,
		}
	}

	turn := domain.Turn{
		CallerText: input.Text,
		Verdict:    domain.VerdictAllowed,
		Timestamp:  started,
	}

	// Conversation ceilings come before everything else, including input
	// content.
	if e.ceilingReached(sess, started) {
		turn.AgentText = e.cfg.Messages.Limit
		turn.Action = domain.ActionEnd
		sess.State = domain.StateEnded
		e.record(sess, &turn, started)
		log.Info().Int("turns", sess.TurnCount).Msg("conversation ceiling reached")
		return turn
	}

	switch input.Kind {
	case normalize.KindSilence:
		return e.silenceTurn(sess, turn, started, log)
	case normalize.KindGarbled:
		turn.AgentText = e.cfg.Messages.Reprompt
		turn.Action = domain.ActionContinue
		e.record(sess, &turn, started)
		return turn
	}

	if v, _ := e.filter.CheckInput(ctx, input.Text); !v.Allowed {
		turn.AgentText = e.cfg.Messages.Fallback
		turn.Action = domain.ActionContinue
		turn.Verdict = domain.VerdictBlockedInput
		e.record(sess, &turn, started)
		log.Info().Str("category", v.Category).Msg("input blocked by guardrail")
		return turn
	}

	result, err := e.generate(ctx, sess, input)
	if err != nil {
		return e.failureTurn(sess, turn, started, err, log)
	}
	sess.Failures = 0
	turn.ModelLatency = result.Duration

	text := result.Text
	action := mapAction(result.Action)

	if v, _ := e.filter.CheckOutput(ctx, text); !v.Allowed {
		// Safety overrides whatever the model decided, transfer included.
		text = e.cfg.Messages.Fallback
		action = domain.ActionContinue
		turn.Verdict = domain.VerdictBlockedOutput
		log.Info().Str("category", v.Category).Msg("output blocked by guardrail")
	}

	if text == "" {
		text = e.cfg.Messages.Apology
	}

	turn.AgentText = text
	turn.Action = action

	switch action {
	case domain.ActionTransfer:
		sess.State = domain.StateAwaitingTransfer
	case domain.ActionEnd:
		sess.State = domain.StateEnded
	}

	e.record(sess, &turn, started)
	return turn
}

func (e *Engine) ceilingReached(sess *domain.CallSession, now time.Time) bool {
	if e.cfg.Limits.MaxConversationTurns > 0 && sess.TurnCount >= e.cfg.Limits.MaxConversationTurns {
		return true
	}
	maxDur := time.Duration(e.cfg.Limits.MaxCallDurationSeconds) * time.Second
	return maxDur > 0 && sess.Elapsed(now) >= maxDur
}

// silenceTurn re-prompts a quiet caller and hangs up once the silence
// window is exhausted.
func (e *Engine) silenceTurn(sess *domain.CallSession, turn domain.Turn, started time.Time, log *logging.Logger) domain.Turn {
	window := time.Duration(e.cfg.Limits.SilenceTimeoutSeconds) * time.Second
	if window > 0 && sess.SinceActivity(started) >= window {
		turn.AgentText = e.cfg.Messages.Goodbye
		turn.Action = domain.ActionEnd
		sess.State = domain.StateEnded
		e.record(sess, &turn, started)
		log.Info().Msg("silence window exhausted, ending call")
		return turn
	}
	turn.AgentText = e.cfg.Messages.Reprompt
	turn.Action = domain.ActionContinue
	// A reprompt is not caller activity; keep the silence window running
	// so back-to-back quiet turns can still exhaust it.
	lastActivity := sess.LastActivityAt
	e.record(sess, &turn, started)
	sess.LastActivityAt = lastActivity
	return turn
}

// failureTurn applies the transient-vs-terminal failure policy: apologize
// and continue until consecutive failures hit the configured threshold,
// then end the session as errored.
func (e *Engine) failureTurn(sess *domain.CallSession, turn domain.Turn, started time.Time, cause error, log *logging.Logger) domain.Turn {
	sess.Failures++
	threshold := e.cfg.Limits.MaxConsecutiveFailures
	if threshold > 0 && sess.Failures >= threshold {
		turn.AgentText = e.cfg.Messages.Error
		turn.Action = domain.ActionError
		sess.State = domain.StateErrored
		e.record(sess, &turn, started)
		log.Error().Err(cause).Int("failures", sess.Failures).Msg("model failures exhausted, ending session")
		return turn
	}
	turn.AgentText = e.cfg.Messages.Apology
	turn.Action = domain.ActionContinue
	e.record(sess, &turn, started)
	log.Warn().Err(cause).Int("failures", sess.Failures).Msg("model call failed, continuing with apology")
	return turn
}

// generate runs the model call, executing at most one tool round. The
// model context gets only a slice of the remaining budget so the fallback
// path can still compose a response before the platform deadline.
func (e *Engine) generate(ctx context.Context, sess *domain.CallSession, input normalize.Input) (*llm.TurnResult, error) {
	mctx, cancel := e.modelContext(ctx)
	defer cancel()

	var defs []llm.ToolDefinition
	if e.registry != nil {
		defs = e.registry.Definitions()
	}

	req := llm.TurnRequest{
		System: BuildSystemPrompt(PromptConfig{
			Company:      e.cfg.Company,
			CallerNumber: sess.CallerNumber,
			Channel:      sess.Channel,
			Attributes:   sess.Attributes,
			PriorTurns:   sess.Evicted,
			Tools:        defs,
			ExtraPrompt:  e.cfg.Model.ExtraPrompt,
			Now:          e.now(),
		}),
		Messages:    append(historyMessages(sess), llm.Message{Role: llm.RoleUser, Content: input.Text}),
		Tools:       defs,
		MaxTokens:   e.cfg.Model.MaxTokens,
		Temperature: e.cfg.Model.Temperature,
	}

	result, err := e.model.Generate(mctx, req)
	if err != nil {
		return nil, err
	}

	for round := 0; round < toolRounds && len(result.ToolCalls) > 0; round++ {
		result, err = e.toolRound(mctx, req, result)
		if err != nil {
			return nil, err
		}
	}
	return result, nil
}

// toolRound executes the requested tools and feeds the results back for a
// final spoken answer. A transfer tool result overrides the model's
// spoken action.
func (e *Engine) toolRound(ctx context.Context, req llm.TurnRequest, prev *llm.TurnResult) (*llm.TurnResult, error) {
	transfer := false
	results := make(map[string]json.RawMessage, len(prev.ToolCalls))
	for _, call := range prev.ToolCalls {
		out := e.execTool(ctx, call)
		results[call.Name] = json.RawMessage(out)
		if tools.IsTransferResult(out) {
			transfer = true
		}
	}

	payload, err := json.Marshal(results)
	if err != nil {
		return nil, err
	}

	assistant := prev.Text
	if assistant == "" {
		assistant = "One moment while I look that up."
	}
	req.Messages = append(req.Messages,
		llm.Message{Role: llm.RoleAssistant, Content: assistant},
		llm.Message{Role: llm.RoleUser, Content: "Tool results: " + string(payload) + "\nAnswer the caller using these results."},
	)
	// No tools on the follow-up call; one round is all the budget allows.
	req.Tools = nil

	result, err := e.model.Generate(ctx, req)
	if err != nil {
		return nil, err
	}
	if transfer {
		result.Action = string(domain.ActionTransfer)
	}
	return result, nil
}

func (e *Engine) execTool(ctx context.Context, call llm.ToolCall) string {
	tool, ok := e.registry.Get(call.Name)
	if !ok {
		e.log.Warn().Str("tool", call.Name).Msg("model requested unknown tool")
		return `{"error":"unknown tool"}`
	}
	out, err := tool.Execute(ctx, call.Input)
	if err != nil {
		e.log.Warn().Err(err).Str("tool", call.Name).Msg("tool execution failed")
		return `{"error":"tool failed"}`
	}
	return out
}

// modelContext bounds a single model call to a fraction of the remaining
// turn budget.
func (e *Engine) modelContext(ctx context.Context) (context.Context, context.CancelFunc) {
	deadline, ok := ctx.Deadline()
	if !ok {
		return context.WithCancel(ctx)
	}
	pct := e.cfg.Limits.ModelBudgetPercent
	if pct <= 0 || pct > 100 {
		pct = 100
	}
	remaining := time.Until(deadline)
	return context.WithTimeout(ctx, remaining*time.Duration(pct)/100)
}

func (e *Engine) record(sess *domain.CallSession, turn *domain.Turn, started time.Time) {
	turn.Latency = e.now().Sub(started)
	sess.RecordTurn(*turn, e.cfg.Limits.MaxHistoryTurns)
	turn.Index = sess.TurnCount - 1
}

// historyMessages renders the bounded session history as alternating
// user and assistant messages.
func historyMessages(sess *domain.CallSession) []llm.Message {
	msgs := make([]llm.Message, 0, len(sess.History)*2)
	for _, t := range sess.History {
		if t.CallerText != "" {
			msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: t.CallerText})
		}
		if t.AgentText != "" {
			msgs = append(msgs, llm.Message{Role: llm.RoleAssistant, Content: t.AgentText})
		}
	}
	return msgs
}

func mapAction(s string) domain.Action {
	switch s {
	case string(domain.ActionTransfer):
		return domain.ActionTransfer
	case string(domain.ActionEnd):
		return domain.ActionEnd
	default:
		return domain.ActionContinue
	}
}
