// Package orchestrator turns one inbound chat message into one reply.
//
// Pipeline per message, each stage may end the turn:
//
//	VALIDATE → SAFETY → GREETING → RATE → CACHE (text only) → DETECT →
//	LOOKUP → MEMORY_LOAD → PROMPT → LLM → POSTPROCESS → MEMORY_UPDATE →
//	CACHE_STORE
//
// Failures between DETECT and POSTPROCESS never reach the caller: the turn
// ends with a localized apology tagged "fallback". Only validation errors
// are returned.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bdobrica/OrthoBot/internal/orthobot/cache"
	"github.com/bdobrica/OrthoBot/internal/orthobot/detect"
	"github.com/bdobrica/OrthoBot/internal/orthobot/fault"
	"github.com/bdobrica/OrthoBot/internal/orthobot/history"
	"github.com/bdobrica/OrthoBot/internal/orthobot/knowledge"
	"github.com/bdobrica/OrthoBot/internal/orthobot/llm"
	"github.com/bdobrica/OrthoBot/internal/orthobot/memory"
	"github.com/bdobrica/OrthoBot/internal/orthobot/metrics"
	"github.com/bdobrica/OrthoBot/internal/orthobot/observability"
	"github.com/bdobrica/OrthoBot/internal/orthobot/ratelimit"
	"github.com/bdobrica/OrthoBot/internal/orthobot/safety"
)

// Channels.
const (
	ChannelText  = "text"
	ChannelVoice = "voice"
)

// Result sources.
const (
	SourceGreeting  = "greeting"
	SourceSafety    = "safety"
	SourceRateLimit = "rate_limit"
	SourceCache     = "cache"
	SourceLLM       = "llm"
	SourceFallback  = "fallback"
)

const (
	// DefaultLLMTimeout bounds one completion call.
	DefaultLLMTimeout = 20 * time.Second

	// AnonymousUser is used when a text message carries no userId.
	AnonymousUser = "anonymous"

	// MaxQueryLength is the longest accepted message, in characters.
	MaxQueryLength = 2000
)

var errEmptyReply = errors.New("empty reply")

// Knowledge resolves a query to prompt context. *knowledge.Router
// implements it.
type Knowledge interface {
	Lookup(ctx context.Context, query string) knowledge.Lookup
}

var _ Knowledge = (*knowledge.Router)(nil)

// Config wires the orchestrator's collaborators. LLM is required; nil
// Safety, Limiter and Tracker get defaults. Cache, Knowledge, Voice,
// History and Metrics are optional.
type Config struct {
	LLM        llm.Completer
	Safety     *safety.Interceptor
	Limiter    *ratelimit.Limiter
	Cache      cache.Cache
	Knowledge  Knowledge
	Tracker    *memory.Tracker
	Voice      *memory.VoiceService
	History    *history.Service
	Metrics    *metrics.Metrics
	LLMTimeout time.Duration
}

// Orchestrator handles chat messages for both channels. It is safe for
// concurrent use.
type Orchestrator struct {
	llm        llm.Completer
	safety     *safety.Interceptor
	limiter    *ratelimit.Limiter
	cache      cache.Cache
	knowledge  Knowledge
	tracker    *memory.Tracker
	voice      *memory.VoiceService
	history    *history.Service
	metrics    *metrics.Metrics
	llmTimeout time.Duration

	// locks serialises text-chat turns per user.
	locks memory.KeyedMutex
	now   func() time.Time
}

// New creates an Orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.LLM == nil {
		return nil, fmt.Errorf("orchestrator: LLM completer is required")
	}
	if cfg.Safety == nil {
		cfg.Safety = safety.New()
	}
	if cfg.Limiter == nil {
		cfg.Limiter = ratelimit.New(ratelimit.DefaultLimit, ratelimit.DefaultWindow)
	}
	if cfg.Tracker == nil {
		cfg.Tracker = memory.NewTracker(memory.TrackerConfig{})
	}
	if cfg.LLMTimeout <= 0 {
		cfg.LLMTimeout = DefaultLLMTimeout
	}
	return &Orchestrator{
		llm:        cfg.LLM,
		safety:     cfg.Safety,
		limiter:    cfg.Limiter,
		cache:      cfg.Cache,
		knowledge:  cfg.Knowledge,
		tracker:    cfg.Tracker,
		voice:      cfg.Voice,
		history:    cfg.History,
		metrics:    cfg.Metrics,
		llmTimeout: cfg.LLMTimeout,
		now:        time.Now,
	}, nil
}

// Tracker exposes the text-chat transcripts for the conversation endpoints.
func (o *Orchestrator) Tracker() *memory.Tracker { return o.tracker }

// Request is one inbound message.
type Request struct {
	Query     string `json:"query"`
	UserID    string `json:"userId,omitempty"`
	Channel   string `json:"source,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
	ChatID    string `json:"chatId,omitempty"`
}

// Result is the reply to one message.
type Result struct {
	Response         string          `json:"response"`
	DetectedLanguage detect.Language `json:"detectedLanguage"`
	DetectedEmotion  detect.Emotion  `json:"detectedEmotion"`
	ConversationID   string          `json:"conversationId"`
	Source           string          `json:"source"`
	HasKBContent     bool            `json:"hasKBContent"`

	SessionID      string          `json:"sessionId,omitempty"`
	SessionContext *memory.Summary `json:"sessionContext,omitempty"`
	SessionActive  bool            `json:"sessionActive,omitempty"`
	IsVoiceSession bool            `json:"isVoiceSession,omitempty"`

	ChatID string `json:"chatId,omitempty"`
}

// turn carries the normalised request through the pipeline.
type turn struct {
	Request
	// named is true when the caller supplied a userId.
	named    bool
	language detect.Language
	emotion  detect.Emotion
	log      *slog.Logger
}

// Handle runs the pipeline for req. The returned error is always a
// *fault.ValidationError; every other failure is folded into the Result.
func (o *Orchestrator) Handle(ctx context.Context, req Request) (*Result, error) {
	t, err := o.validate(req)
	if err != nil {
		return nil, err
	}
	t.log = observability.WithTrace(ctx).With("user_id", t.UserID, "channel", t.Channel)

	res := o.run(ctx, t)
	o.metrics.ChatRequest(t.Channel, res.Source)
	if t.Channel == ChannelText && recorded(res.Source) {
		o.recordHistory(ctx, t, res)
	}
	return res, nil
}

func (o *Orchestrator) validate(req Request) (*turn, error) {
	req.Query = strings.TrimSpace(req.Query)
	req.UserID = strings.TrimSpace(req.UserID)
	req.SessionID = strings.TrimSpace(req.SessionID)

	if req.Query == "" {
		return nil, fault.Invalid("query", "query is required")
	}
	if utf8.RuneCountInString(req.Query) > MaxQueryLength {
		return nil, fault.Invalid("query", fmt.Sprintf("query must be at most %d characters", MaxQueryLength))
	}
	switch req.Channel {
	case "":
		req.Channel = ChannelText
	case ChannelText, ChannelVoice:
	default:
		return nil, fault.Invalid("source", "source must be text or voice")
	}
	if req.Channel == ChannelVoice {
		if req.SessionID == "" && req.UserID == "" {
			return nil, fault.Invalid("sessionId", "sessionId or userId is required for voice messages")
		}
		if o.voice == nil {
			return nil, fault.Invalid("source", "voice sessions are not enabled")
		}
	}

	t := &turn{Request: req, named: req.UserID != ""}
	if !t.named {
		t.UserID = AnonymousUser
	}
	t.language = detect.DetectLanguage(req.Query)
	return t, nil
}

func (o *Orchestrator) run(ctx context.Context, t *turn) *Result {
	if refusal, blocked := o.safety.Check(t.Query, t.language); blocked {
		t.log.Info("orchestrator: harmful request refused")
		return o.short(t, refusal, SourceSafety)
	}
	if IsGreeting(t.Query) {
		return o.short(t, WelcomeText, SourceGreeting)
	}
	if key := o.rateKey(ctx, t); !o.limiter.Allow(key) {
		t.log.Info("orchestrator: rate limited", "rate_key", key)
		return o.short(t, RateLimitMessage(t.language), SourceRateLimit)
	}

	if t.Channel == ChannelVoice {
		return o.voiceTurn(ctx, t)
	}
	if res, ok := o.cached(ctx, t); ok {
		return res
	}
	res := o.textTurn(ctx, t)
	if res.Source == SourceLLM {
		o.store(ctx, t, res)
	}
	return res
}

// rateKey names the limiter bucket for the turn. A voice message that
// carries only a sessionId is charged to the session's owner; unknown
// sessions share the anonymous bucket.
func (o *Orchestrator) rateKey(ctx context.Context, t *turn) string {
	if t.Channel != ChannelVoice || t.named || t.SessionID == "" {
		return t.UserID
	}
	vs, err := o.voice.Session(ctx, t.SessionID)
	if err != nil || vs.UserID == "" {
		return t.UserID
	}
	return vs.UserID
}

// short answers without touching memory, cache or the model.
func (o *Orchestrator) short(t *turn, response, source string) *Result {
	res := o.base(t)
	res.Response = response
	res.Source = source
	return res
}

func (o *Orchestrator) base(t *turn) *Result {
	emotion := t.emotion
	if emotion == "" {
		emotion = detect.DetectEmotion(t.Query)
	}
	res := &Result{
		DetectedLanguage: t.language,
		DetectedEmotion:  emotion,
		ConversationID:   t.UserID,
	}
	if t.Channel == ChannelVoice {
		res.IsVoiceSession = true
		res.SessionID = t.SessionID
		if t.SessionID != "" {
			res.ConversationID = t.SessionID
		}
	}
	return res
}

func (o *Orchestrator) fallback(t *turn, err error) *Result {
	t.log.Warn("orchestrator: answering with fallback", "err", err)
	return o.short(t, Apology(t.language), SourceFallback)
}

func (o *Orchestrator) cached(ctx context.Context, t *turn) (*Result, bool) {
	if o.cache == nil {
		return nil, false
	}
	raw, ok, err := o.cache.Get(ctx, t.UserID, t.Query)
	if err != nil {
		t.log.Warn("orchestrator: cache read failed", "err", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	var res Result
	if err := json.Unmarshal(raw, &res); err != nil {
		t.log.Warn("orchestrator: cached result unreadable", "err", err)
		return nil, false
	}
	res.Source = SourceCache
	return &res, true
}

func (o *Orchestrator) store(ctx context.Context, t *turn, res *Result) {
	if o.cache == nil {
		return
	}
	raw, err := json.Marshal(res)
	if err != nil {
		t.log.Warn("orchestrator: encode result for cache", "err", err)
		return
	}
	if err := o.cache.Put(ctx, t.UserID, t.Query, raw); err != nil {
		t.log.Warn("orchestrator: cache write failed", "err", err)
	}
}

func (o *Orchestrator) lookup(ctx context.Context, t *turn) knowledge.Lookup {
	if o.knowledge == nil {
		return knowledge.Lookup{Kind: knowledge.KindNone}
	}
	l := o.knowledge.Lookup(ctx, t.Query)
	o.metrics.KnowledgeLookup(string(l.Kind))
	return l
}

func (o *Orchestrator) complete(ctx context.Context, req llm.Request) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, o.llmTimeout)
	defer cancel()

	start := time.Now()
	reply, err := o.llm.Complete(ctx, req)
	o.metrics.ObserveLLM(time.Since(start))
	if err != nil {
		return "", err
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return "", fault.Provider("llm", "complete", 0, errEmptyReply)
	}
	return reply, nil
}

func (o *Orchestrator) textTurn(ctx context.Context, t *turn) *Result {
	unlock := o.locks.Lock("text:" + t.UserID)
	defer unlock()

	t.emotion = detect.DetectEmotion(t.Query)
	look := o.lookup(ctx, t)
	system := textSystemPrompt(t.language, t.emotion, o.tracker.RecentContext(t.UserID), look.Context)

	reply, err := o.complete(ctx, llm.Request{
		System:      system,
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: t.Query}},
		MaxTokens:   textMaxTokens,
		Temperature: temperature,
	})
	if err != nil {
		return o.fallback(t, err)
	}
	reply = Finish(reply, t.language)

	now := o.now()
	o.tracker.Append(t.UserID, memory.Turn{
		Role: memory.RoleUser, Content: t.Query, Timestamp: now,
		Language: t.language, Emotion: t.emotion,
	})
	o.tracker.Append(t.UserID, memory.Turn{
		Role: memory.RoleAssistant, Content: reply, Timestamp: now,
		Language: t.language,
	})

	res := o.base(t)
	res.Response = reply
	res.Source = SourceLLM
	res.HasKBContent = look.HasContent()
	return res
}

// loadSession returns the caller's voice session, locked, or nil when the
// turn must run without memory.
func (o *Orchestrator) loadSession(ctx context.Context, t *turn) (*memory.VoiceSession, func()) {
	userID := ""
	if t.named {
		userID = t.UserID
	}
	vs, err := o.voice.Load(ctx, t.SessionID, userID)
	if err != nil {
		t.log.Warn("orchestrator: voice session unavailable, answering without memory",
			"session_id", t.SessionID, "err", err)
		return nil, func() {}
	}

	unlock := o.voice.SessionLock(vs.SessionID)
	// Re-read under the lock: the call may have ended while we waited.
	vs, err = o.voice.Session(ctx, vs.SessionID)
	if err != nil {
		unlock()
		t.log.Warn("orchestrator: voice session gone, answering without memory", "err", err)
		return nil, func() {}
	}
	return vs, unlock
}

func (o *Orchestrator) voiceTurn(ctx context.Context, t *turn) *Result {
	vs, unlock := o.loadSession(ctx, t)
	defer unlock()

	summary := memory.Summary{}
	prefs := memory.DefaultPreferences()
	var transcript []memory.Turn
	if vs != nil {
		t.SessionID = vs.SessionID
		summary = vs.Summary()
		prefs = vs.Preferences
		transcript = vs.Transcript
	}

	t.emotion = detect.DetectEmotion(t.Query)
	look := o.lookup(ctx, t)

	messages := make([]llm.Message, 0, len(transcript)+1)
	for _, prev := range transcript {
		messages = append(messages, llm.Message{Role: prev.Role, Content: prev.Content})
	}
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: t.Query})

	reply, err := o.complete(ctx, llm.Request{
		System:      voiceSystemPrompt(t.language, t.emotion, summary, prefs, look.Context),
		Messages:    messages,
		MaxTokens:   voiceMaxTokens,
		Temperature: temperature,
	})
	if err != nil {
		res := o.fallback(t, err)
		if vs != nil {
			res.SessionContext = &summary
			res.SessionActive = vs.IsActive
		}
		return res
	}
	reply = Finish(reply, t.language)

	if vs != nil {
		now := o.now()
		updated, err := o.voice.RecordExchange(ctx, vs.SessionID,
			memory.Turn{Role: memory.RoleUser, Content: t.Query, Timestamp: now, Language: t.language, Emotion: t.emotion},
			memory.Turn{Role: memory.RoleAssistant, Content: reply, Timestamp: now, Language: t.language},
		)
		if err != nil {
			t.log.Warn("orchestrator: voice memory update failed", "session_id", vs.SessionID, "err", err)
		} else {
			vs = updated
			summary = vs.Summary()
		}
	}

	res := o.base(t)
	res.Response = reply
	res.Source = SourceLLM
	res.HasKBContent = look.HasContent()
	if vs != nil {
		res.SessionContext = &summary
		res.SessionActive = vs.IsActive
	}
	return res
}

// recorded reports whether a reply from source belongs in chat history.
// Refusals, throttling notices and apologies are not kept.
func recorded(source string) bool {
	switch source {
	case SourceLLM, SourceCache, SourceGreeting:
		return true
	}
	return false
}

// recordHistory stores the exchange in the user's persisted chat. Failures
// are logged; the reply is delivered regardless.
func (o *Orchestrator) recordHistory(ctx context.Context, t *turn, res *Result) {
	if o.history == nil || !t.named {
		return
	}
	chatID := t.ChatID
	if chatID == "" {
		active, err := o.history.GetOrCreateActive(ctx, t.UserID)
		if err != nil {
			t.log.Warn("orchestrator: open active chat failed", "err", err)
			return
		}
		chatID = active.ChatID
	}
	added, err := o.history.AddMessage(ctx, chatID, memory.RoleUser, t.Query, t.UserID)
	if err != nil {
		t.log.Warn("orchestrator: record user message failed", "chat_id", chatID, "err", err)
		return
	}
	chatID = added.ChatID
	if _, err := o.history.AddMessage(ctx, chatID, memory.RoleAssistant, res.Response, t.UserID); err != nil {
		t.log.Warn("orchestrator: record reply failed", "chat_id", chatID, "err", err)
	}
	res.ChatID = chatID
}
