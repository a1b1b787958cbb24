package speculative

import (
	"context"
	"strings"
	"sync"
	"unicode"

	"github.com/rs/zerolog"

	"github.com/ChristmasSun/TreeHacks2026-sub000/internal/llm"
	"github.com/ChristmasSun/TreeHacks2026-sub000/internal/observability"
)

// FallbackResponse is spoken when the blocking completion path fails. It is
// the only user-visible failure output of the engine.
const FallbackResponse = "I'm sorry, I didn't quite catch that. Could you say it one more time?"

// minUsefulChars is the junk filter floor: completions with fewer
// non-whitespace characters are dropped without touching the cache.
const minUsefulChars = 5

// defaultHistoryWindow bounds how many prior turns each request carries.
const defaultHistoryWindow = 6

// cacheEntry is the single speculative result slot per engine.
type cacheEntry struct {
	source   string
	response string
	ready    bool
}

// task is one in-flight speculative computation.
type task struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Engine keeps at most one in-flight completion per session, restarted on
// every updated transcript fragment, so that when the user actually stops
// talking the response is usually already computed.
type Engine struct {
	completer     llm.Completer
	logger        zerolog.Logger
	metrics       *observability.Metrics
	historyWindow int

	mu       sync.Mutex
	cache    cacheEntry
	inflight *task
}

// NewEngine creates a speculative completion engine. metrics may be nil; a
// historyWindow of zero or less falls back to the default.
func NewEngine(completer llm.Completer, logger zerolog.Logger, metrics *observability.Metrics, historyWindow int) *Engine {
	if historyWindow <= 0 {
		historyWindow = defaultHistoryWindow
	}
	return &Engine{
		completer:     completer,
		logger:        logger,
		metrics:       metrics,
		historyWindow: historyWindow,
	}
}

// OnInterimTranscript cancels any in-flight computation and starts a new one
// for text. It never blocks the caller. The inspect/cancel/replace sequence
// is one atomic section; the replacement task additionally waits for the
// superseded task to fully unwind before issuing its own request.
func (e *Engine) OnInterimTranscript(text, system string, history []llm.Turn) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	t := &task{cancel: cancel, done: make(chan struct{})}

	e.mu.Lock()
	prev := e.inflight
	if prev != nil {
		prev.cancel()
	}
	e.inflight = t
	e.mu.Unlock()

	window := lastTurns(history, e.historyWindow)

	go func() {
		defer close(t.done)

		if prev != nil {
			<-prev.done
		}
		if ctx.Err() != nil {
			return
		}

		response, err := e.completer.Complete(ctx, system, window, text)

		e.mu.Lock()
		defer e.mu.Unlock()

		// A superseded or cancelled task must never write the cache.
		if e.inflight != t {
			return
		}
		e.inflight = nil
		if ctx.Err() != nil {
			return
		}

		if err != nil {
			observability.RecordCompletionRequest("speculative", false)
			e.logger.Debug().Err(err).Str("text", text).Msg("speculative completion failed")
			return
		}
		observability.RecordCompletionRequest("speculative", true)

		if !usable(response) {
			e.logger.Debug().Str("text", text).Str("response", response).Msg("speculative result rejected as junk")
			return
		}

		e.cache = cacheEntry{source: text, response: response, ready: true}
	}()
}

// GetResponse is the latency-critical blocking call made once speech-end is
// detected. It serves the cache when it can, waits out already-started work
// when it must, and only falls back to a fresh synchronous completion when
// the cache is genuinely stale. Errors on this path yield FallbackResponse.
func (e *Engine) GetResponse(ctx context.Context, finalText, system string, history []llm.Turn) string {
	finalText = strings.TrimSpace(finalText)

	// Fast path: the cache already holds exactly this transcript.
	e.mu.Lock()
	if e.cache.ready && e.cache.source == finalText {
		response := e.cache.response
		e.cache = cacheEntry{}
		e.mu.Unlock()
		e.recordOutcome("exact")
		return response
	}
	inflight := e.inflight
	e.mu.Unlock()

	// Bound the wait to work that has already started.
	if inflight != nil {
		select {
		case <-inflight.done:
		case <-ctx.Done():
		}
	}

	e.mu.Lock()
	if e.cache.ready && transcriptsMatch(e.cache.source, finalText) {
		response := e.cache.response
		e.cache = cacheEntry{}
		e.mu.Unlock()
		e.recordOutcome("fuzzy")
		return response
	}
	wasReady := e.cache.ready
	e.cache = cacheEntry{}
	e.mu.Unlock()

	if wasReady {
		e.recordOutcome("stale")
	} else {
		e.recordOutcome("empty")
	}

	response, err := e.completer.Complete(ctx, system, lastTurns(history, e.historyWindow), finalText)
	if err != nil {
		observability.RecordCompletionRequest("final", false)
		e.logger.Warn().Err(err).Str("text", finalText).Msg("blocking completion failed, using fallback")
		return FallbackResponse
	}
	observability.RecordCompletionRequest("final", true)
	return response
}

// Reset cancels any in-flight computation and clears the cache. Used on
// barge-in and at session teardown.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.inflight != nil {
		e.inflight.cancel()
		e.inflight = nil
	}
	e.cache = cacheEntry{}
}

// CacheReady reports whether a speculative result is waiting to be consumed.
func (e *Engine) CacheReady() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cache.ready
}

func (e *Engine) recordOutcome(outcome string) {
	if e.metrics != nil {
		e.metrics.RecordSpeculativeOutcome(outcome)
	}
}

// transcriptsMatch accepts the cached source when it equals the final text or
// either contains the other: the upstream transcription service may trim or
// append trailing words between the last interim and the final result.
func transcriptsMatch(source, final string) bool {
	source = strings.TrimSpace(source)
	final = strings.TrimSpace(final)
	if source == "" || final == "" {
		return false
	}
	if source == final {
		return true
	}
	return strings.Contains(source, final) || strings.Contains(final, source)
}

// usable rejects empty or junk completions: fewer than minUsefulChars
// non-whitespace characters, or nothing but punctuation and ellipses.
func usable(text string) bool {
	var chars, nonPunct int
	for _, r := range text {
		if unicode.IsSpace(r) {
			continue
		}
		chars++
		if !unicode.IsPunct(r) && !unicode.IsSymbol(r) {
			nonPunct++
		}
	}
	return chars >= minUsefulChars && nonPunct > 0
}

// lastTurns returns the trailing n turns of history, oldest first.
func lastTurns(history []llm.Turn, n int) []llm.Turn {
	if len(history) <= n {
		return history
	}
	return history[len(history)-n:]
}
