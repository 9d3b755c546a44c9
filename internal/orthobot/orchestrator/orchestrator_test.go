package orchestrator_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bdobrica/OrthoBot/internal/orthobot/cache"
	"github.com/bdobrica/OrthoBot/internal/orthobot/detect"
	"github.com/bdobrica/OrthoBot/internal/orthobot/fault"
	"github.com/bdobrica/OrthoBot/internal/orthobot/history"
	"github.com/bdobrica/OrthoBot/internal/orthobot/knowledge"
	"github.com/bdobrica/OrthoBot/internal/orthobot/llm"
	"github.com/bdobrica/OrthoBot/internal/orthobot/memory"
	"github.com/bdobrica/OrthoBot/internal/orthobot/orchestrator"
	"github.com/bdobrica/OrthoBot/internal/orthobot/ratelimit"
	"github.com/bdobrica/OrthoBot/internal/orthobot/store"
)

// fakeLLM echoes the last user message and records every request.
type fakeLLM struct {
	mu       sync.Mutex
	requests []llm.Request
	err      error
}

func (f *fakeLLM) Complete(_ context.Context, req llm.Request) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return "", f.err
	}
	last := req.Messages[len(req.Messages)-1].Content
	return "Noted: " + last + ".", nil
}

func (f *fakeLLM) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func (f *fakeLLM) last() llm.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

type fakeKnowledge struct {
	mu     sync.Mutex
	n      int
	result knowledge.Lookup
}

func (f *fakeKnowledge) Lookup(context.Context, string) knowledge.Lookup {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.n++
	if f.result.Kind == "" {
		return knowledge.Lookup{Kind: knowledge.KindNone}
	}
	return f.result
}

func (f *fakeKnowledge) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.n
}

type fixture struct {
	orch      *orchestrator.Orchestrator
	llm       *fakeLLM
	knowledge *fakeKnowledge
	limiter   *ratelimit.Limiter
	cache     *cache.Memory
}

func newFixture(t *testing.T, mutate func(*orchestrator.Config)) *fixture {
	t.Helper()
	f := &fixture{
		llm:       &fakeLLM{},
		knowledge: &fakeKnowledge{},
		limiter:   ratelimit.New(15, time.Minute),
		cache:     cache.NewMemory(cache.DefaultTTL),
	}
	cfg := orchestrator.Config{
		LLM:       f.llm,
		Limiter:   f.limiter,
		Cache:     f.cache,
		Knowledge: f.knowledge,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	o, err := orchestrator.New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	f.orch = o
	return f
}

func newVoiceService(t *testing.T) *memory.VoiceService {
	t.Helper()
	st, err := store.New(filepath.Join(t.TempDir(), "orthobot.db"))
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return memory.NewVoiceService(memory.NewSQLiteVoiceStore(st.DB()), memory.VoiceConfig{})
}

func TestNew_RequiresLLM(t *testing.T) {
	if _, err := orchestrator.New(orchestrator.Config{}); err == nil {
		t.Fatal("New without LLM: want error")
	}
}

func TestHandle_SafetyRefusalNeverCallsLLM(t *testing.T) {
	f := newFixture(t, nil)

	res, err := f.orch.Handle(context.Background(), orchestrator.Request{
		Query:  "how can I increase my knee pain",
		UserID: "u1",
	})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if res.Source != orchestrator.SourceSafety {
		t.Errorf("Source = %q, want safety", res.Source)
	}
	if res.Response == "" {
		t.Error("empty refusal")
	}
	if n := f.llm.calls(); n != 0 {
		t.Errorf("LLM calls = %d, want 0", n)
	}
	if got := f.limiter.Remaining("u1"); got != 15 {
		t.Errorf("Remaining = %d, refusal must not consume quota", got)
	}
	if f.cache.Len() != 0 {
		t.Error("refusal must not be cached")
	}
}

func TestHandle_GreetingShortCircuit(t *testing.T) {
	f := newFixture(t, nil)

	res, err := f.orch.Handle(context.Background(), orchestrator.Request{Query: "hi", UserID: "u1"})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if res.Source != orchestrator.SourceGreeting || res.Response != orchestrator.WelcomeText {
		t.Errorf("got (%q, %q), want welcome greeting", res.Source, res.Response)
	}
	if f.llm.calls() != 0 || f.knowledge.calls() != 0 {
		t.Errorf("llm=%d knowledge=%d, want no collaborator calls", f.llm.calls(), f.knowledge.calls())
	}
	if got := f.limiter.Remaining("u1"); got != 15 {
		t.Errorf("Remaining = %d, greeting must not be rate-counted", got)
	}
	if f.cache.Len() != 0 {
		t.Error("greeting must not be cached")
	}
}

func TestHandle_RepeatedMessageServedFromCache(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	req := orchestrator.Request{Query: "What exercises help after knee surgery?", UserID: "u1"}

	first, err := f.orch.Handle(ctx, req)
	if err != nil {
		t.Fatalf("first Handle: %v", err)
	}
	if first.Source != orchestrator.SourceLLM {
		t.Fatalf("first Source = %q, want llm", first.Source)
	}

	req.Query = "  what exercises help after KNEE surgery?  "
	second, err := f.orch.Handle(ctx, req)
	if err != nil {
		t.Fatalf("second Handle: %v", err)
	}
	if second.Source != orchestrator.SourceCache {
		t.Errorf("second Source = %q, want cache", second.Source)
	}
	if second.Response != first.Response {
		t.Errorf("cached response = %q, want %q", second.Response, first.Response)
	}
	if f.llm.calls() != 1 || f.knowledge.calls() != 1 {
		t.Errorf("llm=%d knowledge=%d, want exactly one of each", f.llm.calls(), f.knowledge.calls())
	}
}

func TestHandle_ProviderErrorFallsBackToApology(t *testing.T) {
	tests := []struct {
		query string
		lang  detect.Language
	}{
		{"My knee is swollen after surgery", detect.English},
		{"मेरे घुटने में दर्द है", detect.Hindi},
	}
	for _, tt := range tests {
		t.Run(string(tt.lang), func(t *testing.T) {
			f := newFixture(t, nil)
			f.llm.err = fault.Provider("llm", "complete", 503, errors.New("unavailable"))

			res, err := f.orch.Handle(context.Background(), orchestrator.Request{Query: tt.query, UserID: "u1"})
			if err != nil {
				t.Fatalf("Handle: %v", err)
			}
			if res.Source != orchestrator.SourceFallback {
				t.Errorf("Source = %q, want fallback", res.Source)
			}
			if res.Response != orchestrator.Apology(tt.lang) {
				t.Errorf("Response = %q, want %s apology", res.Response, tt.lang)
			}
			if h := f.orch.Tracker().History("u1"); len(h) != 0 {
				t.Errorf("transcript has %d turns after a failed turn, want 0", len(h))
			}
			if f.cache.Len() != 0 {
				t.Error("fallback must not be cached")
			}
		})
	}
}

func TestHandle_EmptyReplyFallsBack(t *testing.T) {
	o, err := orchestrator.New(orchestrator.Config{
		LLM: llm.CompleterFunc(func(context.Context, llm.Request) (string, error) { return "   ", nil }),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	res, err := o.Handle(context.Background(), orchestrator.Request{Query: "knee stiffness"})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if res.Source != orchestrator.SourceFallback {
		t.Errorf("Source = %q, want fallback", res.Source)
	}
}

func TestHandle_LLMTimeoutFallsBack(t *testing.T) {
	o, err := orchestrator.New(orchestrator.Config{
		LLM: llm.CompleterFunc(func(ctx context.Context, _ llm.Request) (string, error) {
			<-ctx.Done()
			return "", fault.Provider("llm", "complete", 0, ctx.Err())
		}),
		LLMTimeout: 20 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	res, err := o.Handle(context.Background(), orchestrator.Request{Query: "knee stiffness"})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if res.Source != orchestrator.SourceFallback {
		t.Errorf("Source = %q, want fallback", res.Source)
	}
}

func TestHandle_RateLimited(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	for i := 0; i < 15; i++ {
		res, err := f.orch.Handle(ctx, orchestrator.Request{Query: fmt.Sprintf("question %d about my knee", i), UserID: "u1"})
		if err != nil {
			t.Fatalf("Handle %d: %v", i, err)
		}
		if res.Source != orchestrator.SourceLLM {
			t.Fatalf("message %d Source = %q, want llm", i, res.Source)
		}
	}
	res, err := f.orch.Handle(ctx, orchestrator.Request{Query: "one more question", UserID: "u1"})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if res.Source != orchestrator.SourceRateLimit {
		t.Errorf("16th Source = %q, want rate_limit", res.Source)
	}
	if res.Response != orchestrator.RateLimitMessage(detect.English) {
		t.Errorf("Response = %q", res.Response)
	}
	if f.llm.calls() != 15 {
		t.Errorf("LLM calls = %d, want 15", f.llm.calls())
	}

	other, _ := f.orch.Handle(ctx, orchestrator.Request{Query: "one more question", UserID: "u2"})
	if other.Source != orchestrator.SourceLLM {
		t.Errorf("other user Source = %q, want llm", other.Source)
	}
}

func TestHandle_TextPromptCarriesMemoryAndSignals(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	if _, err := f.orch.Handle(ctx, orchestrator.Request{Query: "I had knee surgery last week", UserID: "u1"}); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	res, err := f.orch.Handle(ctx, orchestrator.Request{Query: "I am worried about the swelling", UserID: "u1"})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if res.DetectedEmotion != detect.Worried {
		t.Errorf("DetectedEmotion = %q, want worried", res.DetectedEmotion)
	}

	req := f.llm.last()
	for _, want := range []string{
		"Respond ONLY in english",
		"emotional state: worried",
		"Previous conversation context: user: I had knee surgery last week",
		"assistant: Noted: I had knee surgery last week.",
	} {
		if !strings.Contains(req.System, want) {
			t.Errorf("system prompt missing %q", want)
		}
	}
	if len(req.Messages) != 1 || req.Messages[0].Content != "I am worried about the swelling" {
		t.Errorf("Messages = %+v, want only the raw user message", req.Messages)
	}
	if req.MaxTokens != 150 {
		t.Errorf("MaxTokens = %d, want 150", req.MaxTokens)
	}
	if h := f.orch.Tracker().History("u1"); len(h) != 4 {
		t.Errorf("transcript turns = %d, want 4", len(h))
	}
}

func TestHandle_KnowledgeContextInPrompt(t *testing.T) {
	f := newFixture(t, nil)
	f.knowledge.result = knowledge.Lookup{Context: "Apply ice for 15 minutes.", Kind: knowledge.KindVector}

	res, err := f.orch.Handle(context.Background(), orchestrator.Request{Query: "how long should I ice my knee", UserID: "u1"})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if !res.HasKBContent {
		t.Error("HasKBContent = false, want true")
	}
	if !strings.Contains(f.llm.last().System, "Apply ice for 15 minutes.") {
		t.Error("knowledge context missing from system prompt")
	}
}

func TestHandle_Validation(t *testing.T) {
	f := newFixture(t, nil)
	tests := []struct {
		name  string
		req   orchestrator.Request
		field string
	}{
		{"empty query", orchestrator.Request{Query: "   "}, "query"},
		{"too long", orchestrator.Request{Query: strings.Repeat("a", orchestrator.MaxQueryLength+1)}, "query"},
		{"unknown channel", orchestrator.Request{Query: "knee", Channel: "fax"}, "source"},
		{"voice without ids", orchestrator.Request{Query: "knee", Channel: orchestrator.ChannelVoice}, "sessionId"},
		{"voice disabled", orchestrator.Request{Query: "knee", Channel: orchestrator.ChannelVoice, UserID: "u1"}, "source"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.orch.Handle(context.Background(), tt.req)
			v, ok := fault.AsValidation(err)
			if !ok {
				t.Fatalf("err = %v, want ValidationError", err)
			}
			if v.Field != tt.field {
				t.Errorf("Field = %q, want %q", v.Field, tt.field)
			}
		})
	}
	if f.llm.calls() != 0 {
		t.Errorf("LLM calls = %d, want 0", f.llm.calls())
	}
}

func TestHandle_AnonymousUser(t *testing.T) {
	f := newFixture(t, nil)
	res, err := f.orch.Handle(context.Background(), orchestrator.Request{Query: "knee stiffness in the morning"})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if res.ConversationID != orchestrator.AnonymousUser {
		t.Errorf("ConversationID = %q, want %q", res.ConversationID, orchestrator.AnonymousUser)
	}
}

func TestHandle_VoiceMemoryAcrossTurns(t *testing.T) {
	voice := newVoiceService(t)
	f := newFixture(t, func(c *orchestrator.Config) { c.Voice = voice })
	ctx := context.Background()

	started, err := voice.StartCall(ctx, "u1", "")
	if err != nil {
		t.Fatalf("StartCall: %v", err)
	}
	sid := started.SessionID

	first, err := f.orch.Handle(ctx, orchestrator.Request{
		Query: "My knee hurts after surgery", Channel: orchestrator.ChannelVoice, SessionID: sid,
	})
	if err != nil {
		t.Fatalf("first Handle: %v", err)
	}
	if !first.IsVoiceSession || first.SessionID != sid || !first.SessionActive {
		t.Errorf("first result = %+v, want active voice session %s", first, sid)
	}
	if first.SessionContext == nil || first.SessionContext.CurrentTopic != "knee recovery" {
		t.Errorf("SessionContext = %+v, want current topic knee recovery", first.SessionContext)
	}

	if _, err := f.orch.Handle(ctx, orchestrator.Request{
		Query: "What did I tell you earlier?", Channel: orchestrator.ChannelVoice, SessionID: sid,
	}); err != nil {
		t.Fatalf("second Handle: %v", err)
	}
	req := f.llm.last()
	if len(req.Messages) != 3 {
		t.Fatalf("Messages = %d, want full transcript plus the new message", len(req.Messages))
	}
	if req.Messages[0].Content != "My knee hurts after surgery" || req.Messages[1].Role != llm.RoleAssistant {
		t.Errorf("transcript order wrong: %+v", req.Messages)
	}
	if !strings.Contains(req.System, "Previous topics discussed: knee recovery") {
		t.Error("system prompt missing session topics")
	}
	if req.MaxTokens != 200 {
		t.Errorf("MaxTokens = %d, want 200", req.MaxTokens)
	}
	if f.cache.Len() != 0 {
		t.Error("voice turns must not be cached")
	}

	if _, ok, err := voice.EndCall(ctx, sid); err != nil || !ok {
		t.Fatalf("EndCall = %v, %v", ok, err)
	}
	after, err := f.orch.Handle(ctx, orchestrator.Request{
		Query: "Are you still there?", Channel: orchestrator.ChannelVoice, SessionID: sid,
	})
	if err != nil {
		t.Fatalf("Handle after end: %v", err)
	}
	if after.Source != orchestrator.SourceLLM || after.SessionContext != nil {
		t.Errorf("after end = %+v, want memory-less llm answer", after)
	}
	if n := len(f.llm.last().Messages); n != 1 {
		t.Errorf("Messages after end = %d, want 1", n)
	}
}

func TestHandle_VoiceWithUserOpensSession(t *testing.T) {
	voice := newVoiceService(t)
	f := newFixture(t, func(c *orchestrator.Config) { c.Voice = voice })
	ctx := context.Background()

	res, err := f.orch.Handle(ctx, orchestrator.Request{
		Query: "My back is stiff", Channel: orchestrator.ChannelVoice, UserID: "u9",
	})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if res.SessionID == "" || !res.SessionActive {
		t.Fatalf("result = %+v, want a fresh active session", res)
	}
	tr, err := voice.Transcript(ctx, res.SessionID)
	if err != nil {
		t.Fatalf("Transcript: %v", err)
	}
	if len(tr) != 2 {
		t.Errorf("transcript turns = %d, want 2", len(tr))
	}
}

func TestHandle_RecordsChatHistory(t *testing.T) {
	st, err := store.New(filepath.Join(t.TempDir(), "orthobot.db"))
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	hist := history.New(st.DB())
	f := newFixture(t, func(c *orchestrator.Config) { c.History = hist })
	ctx := context.Background()

	res, err := f.orch.Handle(ctx, orchestrator.Request{Query: "Knee exercises please", UserID: "u1"})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if res.ChatID == "" {
		t.Fatal("ChatID not set")
	}
	chat, err := hist.Get(ctx, res.ChatID, "u1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(chat.Messages) != 2 || chat.Messages[1].Content != res.Response {
		t.Errorf("messages = %+v, want user message and reply", chat.Messages)
	}

	anon, _ := f.orch.Handle(ctx, orchestrator.Request{Query: "Knee exercises please"})
	if anon.ChatID != "" {
		t.Errorf("anonymous ChatID = %q, want none", anon.ChatID)
	}
}

func TestHandle_HistoryKeepsOnlyAnswers(t *testing.T) {
	st, err := store.New(filepath.Join(t.TempDir(), "orthobot.db"))
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	hist := history.New(st.DB())
	f := newFixture(t, func(c *orchestrator.Config) {
		c.History = hist
		c.Limiter = ratelimit.New(1, time.Minute)
	})
	ctx := context.Background()

	refused, _ := f.orch.Handle(ctx, orchestrator.Request{Query: "how can I increase my knee pain", UserID: "u1"})
	if refused.Source != orchestrator.SourceSafety || refused.ChatID != "" {
		t.Fatalf("refusal = %+v, want unrecorded safety reply", refused)
	}
	if chats, _ := hist.ListByUser(ctx, "u1", 10, 0); len(chats) != 0 {
		t.Fatalf("refusal opened a chat: %+v", chats)
	}

	answered, _ := f.orch.Handle(ctx, orchestrator.Request{Query: "Knee exercises please", UserID: "u1"})
	if answered.Source != orchestrator.SourceLLM || answered.ChatID == "" {
		t.Fatalf("answer = %+v, want recorded llm reply", answered)
	}
	throttled, _ := f.orch.Handle(ctx, orchestrator.Request{Query: "And for the hip?", UserID: "u1"})
	if throttled.Source != orchestrator.SourceRateLimit || throttled.ChatID != "" {
		t.Errorf("throttled = %+v, want unrecorded rate_limit reply", throttled)
	}

	f.llm.err = fault.Provider("llm", "complete", 503, errors.New("unavailable"))
	sorry, _ := f.orch.Handle(ctx, orchestrator.Request{Query: "What about swelling?", UserID: "u2"})
	if sorry.Source != orchestrator.SourceFallback || sorry.ChatID != "" {
		t.Errorf("fallback = %+v, want unrecorded apology", sorry)
	}

	chat, err := hist.Get(ctx, answered.ChatID, "u1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(chat.Messages) != 2 {
		t.Errorf("messages = %d, want only the answered exchange", len(chat.Messages))
	}
}

func TestHandle_VoiceRateLimitPerSessionOwner(t *testing.T) {
	voice := newVoiceService(t)
	f := newFixture(t, func(c *orchestrator.Config) { c.Voice = voice })
	ctx := context.Background()

	sessions := make([]string, 16)
	for i := range sessions {
		started, err := voice.StartCall(ctx, fmt.Sprintf("user%d", i), "")
		if err != nil {
			t.Fatalf("StartCall %d: %v", i, err)
		}
		sessions[i] = started.SessionID
	}

	voiceMsg := func(sid, q string) *orchestrator.Result {
		t.Helper()
		res, err := f.orch.Handle(ctx, orchestrator.Request{Query: q, Channel: orchestrator.ChannelVoice, SessionID: sid})
		if err != nil {
			t.Fatalf("Handle: %v", err)
		}
		return res
	}

	for i, sid := range sessions {
		if res := voiceMsg(sid, "My knee hurts after surgery"); res.Source != orchestrator.SourceLLM {
			t.Errorf("caller %d Source = %q, want llm", i, res.Source)
		}
	}
	if got := f.limiter.Remaining("anonymous"); got != 15 {
		t.Errorf("anonymous bucket Remaining = %d, sessions must not share it", got)
	}

	for i := 1; i < 15; i++ {
		voiceMsg(sessions[0], fmt.Sprintf("question %d about my knee", i))
	}
	if res := voiceMsg(sessions[0], "one more question"); res.Source != orchestrator.SourceRateLimit {
		t.Errorf("16th message Source = %q, want rate_limit", res.Source)
	}
	text, _ := f.orch.Handle(ctx, orchestrator.Request{Query: "one more question", UserID: "user0"})
	if text.Source != orchestrator.SourceRateLimit {
		t.Errorf("owner's text Source = %q, want the same exhausted bucket", text.Source)
	}
	if res := voiceMsg(sessions[1], "one more question"); res.Source != orchestrator.SourceLLM {
		t.Errorf("other caller Source = %q, want llm", res.Source)
	}
}

func TestHandle_SerialisesTurnsPerUser(t *testing.T) {
	f := newFixture(t, func(c *orchestrator.Config) { c.Limiter = ratelimit.New(100, time.Minute) })
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			f.orch.Handle(ctx, orchestrator.Request{Query: fmt.Sprintf("question %d", i), UserID: "u1"})
		}(i)
	}
	wg.Wait()

	h := f.orch.Tracker().History("u1")
	if len(h) != memory.DefaultMaxTurns {
		t.Fatalf("transcript turns = %d, want %d", len(h), memory.DefaultMaxTurns)
	}
	for i := 0; i < len(h); i += 2 {
		if h[i].Role != memory.RoleUser || h[i+1].Content != "Noted: "+h[i].Content+"." {
			t.Errorf("turns %d/%d interleaved: %q / %q", i, i+1, h[i].Content, h[i+1].Content)
		}
	}
}

func TestIsGreeting(t *testing.T) {
	tests := []struct {
		msg  string
		want bool
	}{
		{"hi", true},
		{"Hello!", true},
		{"  HEY.  ", true},
		{"namaste", true},
		{"नमस्ते", true},
		{"good morning doctor", true},
		{"thanks, hey", true},
		{"hi, my knee hurts", false},
		{"hi my knee hurts after surgery, what should I do", false},
		{"please help me with my knee hello", false},
		{"good afternoon dear doctor", true},
		{"which exercise is safe", false},
		{"this is hip pain", false},
	}
	for _, tt := range tests {
		if got := orchestrator.IsGreeting(tt.msg); got != tt.want {
			t.Errorf("IsGreeting(%q) = %v, want %v", tt.msg, got, tt.want)
		}
	}
}

func TestIsIncomplete(t *testing.T) {
	tests := []struct {
		reply string
		want  bool
	}{
		{"", false},
		{"Rest and ice the knee.", false},
		{"How long has it hurt?", false},
		{"Take care!", false},
		{"Rest and ice the knee", true},
		{"Try gentle stretches and", true},
		{"Keep the leg raised, ", true},
		{"Avoid stairs;", true},
		{"Walk slowly with", true},
	}
	for _, tt := range tests {
		if got := orchestrator.IsIncomplete(tt.reply); got != tt.want {
			t.Errorf("IsIncomplete(%q) = %v, want %v", tt.reply, got, tt.want)
		}
	}
}

func TestFinish(t *testing.T) {
	complete := "Rest and ice the knee."
	if got := orchestrator.Finish(complete, detect.English); got != complete {
		t.Errorf("Finish changed a complete reply: %q", got)
	}
	got := orchestrator.Finish("Keep the leg raised, ", detect.English)
	want := "Keep the leg raised... Could you share a few more details so I can help you better?"
	if got != want {
		t.Errorf("Finish = %q, want %q", got, want)
	}
	if got := orchestrator.Finish("घुटने को आराम दें ", detect.Hindi); !strings.HasPrefix(got, "घुटने को आराम दें... ") {
		t.Errorf("Finish(hindi) = %q", got)
	}
}

func TestGreetingLocalized(t *testing.T) {
	if orchestrator.Greeting(detect.Hindi) == orchestrator.Greeting(detect.English) {
		t.Error("hindi greeting equals english")
	}
	if orchestrator.Greeting(detect.Language("klingon")) != orchestrator.Greeting(detect.English) {
		t.Error("unknown language must fall back to english")
	}
}
