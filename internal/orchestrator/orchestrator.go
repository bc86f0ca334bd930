// Package orchestrator is the entry point the telephony platform invokes
// once per dialogue turn. It owns the hard wall-clock budget: whatever
// happens inside a turn, the platform gets a speakable response back
// before its own invocation timeout fires.
package orchestrator

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/voxloop/voxloop/internal/config"
	"github.com/voxloop/voxloop/internal/domain"
	"github.com/voxloop/voxloop/internal/engine"
	"github.com/voxloop/voxloop/internal/logging"
	"github.com/voxloop/voxloop/internal/metrics"
	"github.com/voxloop/voxloop/internal/normalize"
	"github.com/voxloop/voxloop/internal/session"
)

// TurnEvent is published to monitoring clients after each handled turn.
type TurnEvent struct {
	SessionID string           `json:"sessionId"`
	TurnIndex int              `json:"turnIndex"`
	Action    domain.Action    `json:"action"`
	Verdict   domain.Verdict   `json:"verdict"`
	Latency   time.Duration    `json:"latency"`
	Event     domain.EventType `json:"event"`
}

// EventSink receives turn events. Implementations must not block; the
// gateway hub drops events for slow clients.
type EventSink interface {
	TurnCompleted(ev TurnEvent)
}

// SinkFunc adapts a function to the EventSink interface.
type SinkFunc func(TurnEvent)

func (f SinkFunc) TurnCompleted(ev TurnEvent) { f(ev) }

// Orchestrator wires the store, normalizer, engine and composer into the
// single externally invoked operation.
type Orchestrator struct {
	store      session.Store
	dir        session.Directory
	engine     *engine.Engine
	normalizer *normalize.Normalizer
	composer   *engine.Composer
	cfg        *config.Config
	pub        metrics.Publisher
	sink       EventSink
	log        *logging.Logger
}

// New creates an orchestrator. dir and sink may be nil; without a
// directory callers are greeted as strangers on every call.
func New(store session.Store, dir session.Directory, eng *engine.Engine, cfg *config.Config, pub metrics.Publisher, sink EventSink, log *logging.Logger) *Orchestrator {
	return &Orchestrator{
		store:      store,
		dir:        dir,
		engine:     eng,
		normalizer: normalize.New(cfg.Limits.MaxInputChars),
		composer:   engine.NewComposer(cfg.Limits.MaxSpokenChars),
		cfg:        cfg,
		pub:        pub,
		sink:       sink,
		log:        log.Sub("orchestrator"),
	}
}

// Handle processes one platform invocation. It never returns an error:
// every failure mode degrades to a speakable fallback response, because
// a failed invocation sends the caller to the platform's own error path.
func (o *Orchestrator) Handle(ctx context.Context, inv domain.Invocation) domain.PlatformResponse {
	started := time.Now()
	budget := time.Duration(o.cfg.Limits.TurnBudgetMillis) * time.Millisecond
	if budget <= 0 {
		budget = 7 * time.Second
	}
	tctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	done := make(chan domain.PlatformResponse, 1)
	go func() {
		done <- o.process(tctx, inv)
	}()

	var resp domain.PlatformResponse
	select {
	case resp = <-done:
	case <-tctx.Done():
		// The in-flight turn is abandoned, not awaited. The caller will
		// speak again and trigger a fresh invocation.
		o.log.Warn().Str("session", inv.SessionID).Dur("budget", budget).Msg("turn budget exceeded, returning fallback")
		o.pub.Count("BudgetExceeded", 1)
		resp = domain.PlatformResponse{
			ResponseText: o.cfg.Messages.Apology,
			Action:       domain.ActionContinue,
			SessionID:    inv.SessionID,
		}
	}

	o.pub.Latency("TotalLatency", time.Since(started))
	o.pub.Flush()
	return resp
}

func (o *Orchestrator) process(ctx context.Context, inv domain.Invocation) domain.PlatformResponse {
	log := o.log.WithSession(inv.SessionID)

	input, err := o.normalizer.Normalize(inv.Transcript, normalize.Meta{SessionID: inv.SessionID})
	if err != nil {
		log.Warn().Err(err).Msg("invalid invocation")
		o.pub.Count("ValidationErrors", 1)
		return domain.PlatformResponse{
			ResponseText: o.cfg.Messages.Error,
			Action:       domain.ActionError,
			SessionID:    inv.SessionID,
		}
	}

	sess, expected := o.checkout(ctx, inv, log)

	if len(inv.Attributes) > 0 {
		if sess.Attributes == nil {
			sess.Attributes = make(map[string]string, len(inv.Attributes))
		}
		for k, v := range inv.Attributes {
			sess.Attributes[k] = v
		}
	}

	returning := false
	if sess.TurnCount == 0 {
		returning = o.recallCaller(ctx, sess, log)
	}

	var turn domain.Turn
	switch inv.EventType {
	case domain.EventInit:
		// The greeting is fixed text; no model call, no turn recorded.
		greeting := o.cfg.Messages.Greeting
		if returning {
			greeting = o.cfg.Messages.GreetingReturning
		}
		sess.LastActivityAt = time.Now()
		turn = domain.Turn{
			AgentText: greeting,
			Action:    domain.ActionContinue,
			Verdict:   domain.VerdictAllowed,
			Timestamp: sess.LastActivityAt,
		}
	case domain.EventEnd:
		turn = domain.Turn{
			AgentText: o.cfg.Messages.Goodbye,
			Action:    domain.ActionEnd,
			Verdict:   domain.VerdictAllowed,
			Timestamp: time.Now(),
		}
		if !sess.State.Terminal() {
			sess.State = domain.StateEnded
			sess.RecordTurn(turn, o.cfg.Limits.MaxHistoryTurns)
		}
	default:
		turn = o.engine.RunTurn(ctx, sess, input)
		if turn.ModelLatency > 0 {
			o.pub.Latency("LLMLatency", turn.ModelLatency)
		}
		if turn.Verdict != domain.VerdictAllowed {
			o.pub.Count("GuardrailBlocked", 1)
		}
	}

	// Init greetings and sticky-terminal replies leave the history alone;
	// the conflict-retry path must not record them either.
	recorded := sess.TurnCount != expected

	o.checkin(ctx, sess, expected, turn, recorded, log)
	o.pub.Count("TurnsProcessed", 1)

	// Record the call once, on the turn that ended it. Sticky-terminal
	// repeats must not inflate the caller's call count.
	if recorded && sess.State.Terminal() {
		o.rememberCaller(ctx, sess, log)
	}

	if o.sink != nil {
		o.sink.TurnCompleted(TurnEvent{
			SessionID: sess.SessionID,
			TurnIndex: turn.Index,
			Action:    turn.Action,
			Verdict:   turn.Verdict,
			Latency:   turn.Latency,
			Event:     inv.EventType,
		})
	}

	return o.composer.Compose(sess, turn)
}

// recallCaller looks the caller up in the directory and surfaces what is
// known about them as session attributes, where the prompt builder picks
// them up. Returns whether the caller has called before.
func (o *Orchestrator) recallCaller(ctx context.Context, sess *domain.CallSession, log *logging.Logger) bool {
	if o.dir == nil || sess.CallerNumber == "" {
		return false
	}

	p, err := o.dir.Profile(ctx, sess.CallerNumber)
	if err != nil {
		if !errors.Is(err, session.ErrNotFound) {
			log.Warn().Err(err).Msg("caller lookup failed")
		}
		return false
	}

	if sess.Attributes == nil {
		sess.Attributes = make(map[string]string)
	}
	sess.Attributes["returning_caller"] = "true"
	sess.Attributes["previous_calls"] = strconv.Itoa(p.TotalCalls)
	if !p.LastSeenAt.IsZero() {
		sess.Attributes["last_call_at"] = p.LastSeenAt.UTC().Format(time.RFC3339)
	}
	for k, v := range p.Preferences {
		sess.Attributes["pref_"+k] = v
	}

	log.Debug().Int("previous_calls", p.TotalCalls).Msg("recognized returning caller")
	return true
}

// rememberCaller folds the finished call into the caller's profile.
// Best-effort; a directory outage never fails the turn.
func (o *Orchestrator) rememberCaller(ctx context.Context, sess *domain.CallSession, log *logging.Logger) {
	if o.dir == nil || sess.CallerNumber == "" {
		return
	}
	if err := o.dir.RecordCall(ctx, sess); err != nil {
		log.Warn().Err(err).Msg("failed to record call in caller directory")
	}
}

// checkout loads the session, or starts a fresh one when the store has
// nothing for the ID. The returned expected count guards the save.
func (o *Orchestrator) checkout(ctx context.Context, inv domain.Invocation, log *logging.Logger) (*domain.CallSession, int) {
	sess, err := o.store.Load(ctx, inv.SessionID)
	if err != nil {
		if !errors.Is(err, session.ErrNotFound) {
			// A resilient store already degraded; anything else still must
			// not fail the call.
			log.Error().Err(err).Msg("session load failed, starting fresh")
			o.pub.Count("StoreLoadErrors", 1)
		}
		sess = domain.NewCallSession(inv.SessionID, inv.CallerNumber, time.Now())
		sess.Channel = inv.Channel
		return sess, 0
	}
	return sess, sess.TurnCount
}

// checkin saves the mutated session. On a turn-count conflict it reloads
// and re-applies the computed turn once; a second conflict is dropped and
// the response is returned unpersisted, caller experience over strict
// consistency. recorded says whether the turn entered the history on the
// first attempt; unrecorded turns stay unrecorded on the retry.
func (o *Orchestrator) checkin(ctx context.Context, sess *domain.CallSession, expected int, turn domain.Turn, recorded bool, log *logging.Logger) {
	err := o.store.Save(ctx, sess, expected)
	if err == nil {
		return
	}

	var conflict *session.ConflictError
	if !errors.As(err, &conflict) {
		log.Error().Err(err).Msg("session save failed")
		o.pub.Count("StoreSaveErrors", 1)
		return
	}

	o.pub.Count("SaveConflicts", 1)
	fresh, loadErr := o.store.Load(ctx, sess.SessionID)
	if loadErr != nil {
		log.Warn().Err(loadErr).Msg("conflict reload failed, turn not persisted")
		return
	}

	reExpected := fresh.TurnCount
	if sess.State != domain.StateActive {
		fresh.State = sess.State
	}
	fresh.Failures = sess.Failures
	if recorded {
		fresh.RecordTurn(turn, o.cfg.Limits.MaxHistoryTurns)
	}

	if err := o.store.Save(ctx, fresh, reExpected); err != nil {
		log.Warn().Err(err).Msg("conflict retry failed, turn not persisted")
		o.pub.Count("SaveConflictsDropped", 1)
	}
}
