package memory_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/bdobrica/OrthoBot/internal/orthobot/detect"
	"github.com/bdobrica/OrthoBot/internal/orthobot/memory"
	"github.com/bdobrica/OrthoBot/internal/orthobot/store"
)

func TestExtractContext(t *testing.T) {
	tests := []struct {
		name string
		msg  string
		want memory.Extraction
	}{
		{
			name: "knee wins over later topics",
			msg:  "My knee hurts after surgery, is this exercise ok?",
			want: memory.Extraction{Topic: "knee recovery"},
		},
		{
			name: "condition and stage",
			msg:  "I had a knee replacement 2 weeks ago, it is week 2 and the swelling worries me. I'm worried.",
			want: memory.Extraction{
				Topic:         "knee recovery",
				Condition:     "knee replacement recovery",
				RecoveryStage: "week 2 post-op",
				Concerns:      []string{"worried"},
				Symptoms:      []string{"swelling"},
			},
		},
		{
			name: "relative stage",
			msg:  "3 days after surgery the wound is fine",
			want: memory.Extraction{
				Topic:         "post-operative care",
				RecoveryStage: "day 3 post-op",
			},
		},
		{
			name: "symptoms in table order",
			msg:  "Stiffness and PAIN in the lower back",
			want: memory.Extraction{
				Topic:    "back pain relief",
				Symptoms: []string{"pain", "stiffness"},
			},
		},
		{
			name: "nothing to extract",
			msg:  "thank you doctor",
			want: memory.Extraction{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := memory.ExtractContext(tt.msg)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ExtractContext(%q)\n got %+v\nwant %+v", tt.msg, got, tt.want)
			}
		})
	}
}

func newVoiceService(t *testing.T) (*memory.VoiceService, *memory.SQLiteVoiceStore, *time.Time) {
	t.Helper()
	st, err := store.New(filepath.Join(t.TempDir(), "voice.db"))
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	vstore := memory.NewSQLiteVoiceStore(st.DB())
	svc := memory.NewVoiceService(vstore, memory.VoiceConfig{})
	now := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	svc.SetClock(func() time.Time { return now })
	return svc, vstore, &now
}

func TestVoiceService_StartCallIsIdempotent(t *testing.T) {
	svc, _, _ := newVoiceService(t)
	ctx := context.Background()

	first, err := svc.StartCall(ctx, "u1", "")
	if err != nil {
		t.Fatalf("StartCall: %v", err)
	}
	if !first.IsNewSession {
		t.Error("first StartCall should create a session")
	}
	if !strings.HasPrefix(first.SessionID, "voice_u1_") {
		t.Errorf("session id = %q", first.SessionID)
	}
	if first.Context.CallHistory.TotalCalls != 1 {
		t.Errorf("totalCalls = %d, want 1", first.Context.CallHistory.TotalCalls)
	}
	if first.Preferences.CommunicationStyle != "empathetic" || first.Preferences.ResponseLength != "brief" {
		t.Errorf("preferences = %+v", first.Preferences)
	}

	second, err := svc.StartCall(ctx, "u1", "")
	if err != nil {
		t.Fatalf("second StartCall: %v", err)
	}
	if second.IsNewSession || second.SessionID != first.SessionID {
		t.Errorf("second StartCall = %+v, want reuse of %s", second, first.SessionID)
	}
	if second.Context.CallHistory.TotalCalls != 1 {
		t.Errorf("totalCalls after repeat start = %d, want 1", second.Context.CallHistory.TotalCalls)
	}

	n, err := svc.ActiveSessions(ctx)
	if err != nil || n != 1 {
		t.Errorf("ActiveSessions = %d, %v; want 1", n, err)
	}
}

func TestVoiceService_TranscriptKeepsEveryTurnInOrder(t *testing.T) {
	svc, _, _ := newVoiceService(t)
	ctx := context.Background()

	vs, err := svc.EnsureActive(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 12; i++ {
		user := memory.Turn{Role: memory.RoleUser, Content: fmt.Sprintf("q%d", i), Language: detect.English}
		reply := memory.Turn{Role: memory.RoleAssistant, Content: fmt.Sprintf("a%d", i)}
		if _, err := svc.RecordExchange(ctx, vs.SessionID, user, reply); err != nil {
			t.Fatalf("RecordExchange %d: %v", i, err)
		}
	}

	turns, err := svc.Transcript(ctx, vs.SessionID)
	if err != nil {
		t.Fatal(err)
	}
	if len(turns) != 24 {
		t.Fatalf("transcript length = %d, want 24 (no mid-call truncation)", len(turns))
	}
	for i := 0; i < 12; i++ {
		if turns[2*i].Content != fmt.Sprintf("q%d", i) || turns[2*i+1].Content != fmt.Sprintf("a%d", i) {
			t.Fatalf("turn %d out of order: %q, %q", i, turns[2*i].Content, turns[2*i+1].Content)
		}
	}

	sum, err := svc.RecentContext(ctx, vs.SessionID)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(sum.RecentConversation, "user: q0\nassistant: a0") {
		t.Errorf("conversation starts with %q", sum.RecentConversation[:30])
	}
}

func TestVoiceService_DerivedContext(t *testing.T) {
	svc, _, _ := newVoiceService(t)
	ctx := context.Background()
	vs, err := svc.EnsureActive(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}

	if err := svc.UpdateDerivedContext(ctx, vs.SessionID, "I'm worried about knee pain", detect.English); err != nil {
		t.Fatal(err)
	}
	if err := svc.UpdateDerivedContext(ctx, vs.SessionID, "मेरे hip में swelling है, scared", detect.Hinglish); err != nil {
		t.Fatal(err)
	}

	info, err := svc.Info(ctx, vs.SessionID)
	if err != nil {
		t.Fatal(err)
	}
	c := info.Context
	if !reflect.DeepEqual(c.PrimaryTopics, []string{"knee recovery", "hip replacement care"}) {
		t.Errorf("primaryTopics = %v", c.PrimaryTopics)
	}
	if c.CurrentTopic != "hip replacement care" {
		t.Errorf("currentTopic = %q", c.CurrentTopic)
	}
	if !reflect.DeepEqual(c.RecentConcerns, []string{"worried", "scared"}) {
		t.Errorf("concerns = %v", c.RecentConcerns)
	}
	if !reflect.DeepEqual(c.LastSymptoms, []string{"swelling"}) {
		t.Errorf("symptoms = %v, want replaced by latest", c.LastSymptoms)
	}
	if info.Preferences.PreferredLanguage != detect.Hinglish {
		t.Errorf("preferredLanguage = %q", info.Preferences.PreferredLanguage)
	}
}

func TestVoiceService_ConcernsDeduplicated(t *testing.T) {
	svc, _, _ := newVoiceService(t)
	ctx := context.Background()
	vs, err := svc.EnsureActive(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	msgs := []string{
		"worried concerned afraid", "scared anxious problem", "issue, still worried",
	}
	for _, m := range msgs {
		if err := svc.UpdateDerivedContext(ctx, vs.SessionID, m, detect.English); err != nil {
			t.Fatal(err)
		}
	}
	got, err := svc.Session(ctx, vs.SessionID)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Context.Concerns) != 7 {
		t.Errorf("concerns = %v, want the 7 distinct keywords", got.Context.Concerns)
	}
}

func TestVoiceService_EndCallDeletesSession(t *testing.T) {
	svc, _, now := newVoiceService(t)
	ctx := context.Background()

	start, err := svc.StartCall(ctx, "u1", "")
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.AppendTurn(ctx, start.SessionID, memory.Turn{Role: memory.RoleUser, Content: "hello"}); err != nil {
		t.Fatal(err)
	}

	*now = now.Add(90 * time.Second)
	res, ok, err := svc.EndCall(ctx, start.SessionID)
	if err != nil || !ok {
		t.Fatalf("EndCall = %v, %v", ok, err)
	}
	if res.Duration != 90 || res.TotalCalls != 1 {
		t.Errorf("EndCall result = %+v, want duration 90 and 1 call", res)
	}

	if _, err := svc.Info(ctx, start.SessionID); !errors.Is(err, memory.ErrSessionNotFound) {
		t.Errorf("Info after EndCall err = %v, want ErrSessionNotFound", err)
	}
	if _, err := svc.Transcript(ctx, start.SessionID); !errors.Is(err, memory.ErrSessionNotFound) {
		t.Errorf("transcript must be gone after EndCall, err = %v", err)
	}

	res, ok, err = svc.EndCall(ctx, start.SessionID)
	if err != nil || ok || res != nil {
		t.Errorf("second EndCall = %v, %v, %v; want no-op", res, ok, err)
	}

	// A new call starts fresh.
	*now = now.Add(time.Minute)
	again, err := svc.StartCall(ctx, "u1", "")
	if err != nil {
		t.Fatal(err)
	}
	if !again.IsNewSession || again.Context.RecentConversation != "" {
		t.Errorf("new call carried memory: %+v", again)
	}
}

func TestVoiceService_CleanupExpired(t *testing.T) {
	svc, _, now := newVoiceService(t)
	ctx := context.Background()

	old, err := svc.EnsureActive(ctx, "old")
	if err != nil {
		t.Fatal(err)
	}
	*now = now.Add(50 * time.Minute)
	fresh, err := svc.EnsureActive(ctx, "fresh")
	if err != nil {
		t.Fatal(err)
	}

	*now = now.Add(15 * time.Minute)
	n, err := svc.CleanupExpired(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("CleanupExpired removed %d, want 1", n)
	}
	if _, err := svc.Info(ctx, old.SessionID); !errors.Is(err, memory.ErrSessionNotFound) {
		t.Errorf("old session still present: %v", err)
	}
	if _, err := svc.Info(ctx, fresh.SessionID); err != nil {
		t.Errorf("fresh session removed: %v", err)
	}
}

func TestVoiceService_LoadFallsBackToActiveSession(t *testing.T) {
	svc, _, _ := newVoiceService(t)
	ctx := context.Background()

	vs, err := svc.Load(ctx, "voice_missing_1", "u1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if vs.UserID != "u1" || !vs.IsActive {
		t.Errorf("Load created %+v", vs)
	}

	if _, err := svc.Load(ctx, "voice_missing_1", ""); !errors.Is(err, memory.ErrSessionNotFound) {
		t.Errorf("Load without user err = %v, want ErrSessionNotFound", err)
	}
}

func TestVoiceService_ListByUser(t *testing.T) {
	svc, vstore, now := newVoiceService(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		*now = now.Add(time.Minute)
		res, err := svc.StartCall(ctx, "u1", memory.SessionTypeConvAI)
		if err != nil {
			t.Fatal(err)
		}
		// Deactivate without deleting so the next start opens a new row.
		vs, err := vstore.Get(ctx, res.SessionID)
		if err != nil {
			t.Fatal(err)
		}
		vs.IsActive = false
		if err := vstore.Update(ctx, vs); err != nil {
			t.Fatal(err)
		}
	}

	list, err := svc.ListByUser(ctx, "u1", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 3 {
		t.Fatalf("ListByUser returned %d sessions, want 3", len(list))
	}
	for i := 1; i < len(list); i++ {
		if list[i].LastActiveAt.After(list[i-1].LastActiveAt) {
			t.Error("sessions not ordered by lastActiveAt desc")
		}
	}
	if list[0].SessionType != memory.SessionTypeConvAI {
		t.Errorf("sessionType = %q", list[0].SessionType)
	}

	limited, err := svc.ListByUser(ctx, "u1", 2)
	if err != nil || len(limited) != 2 {
		t.Errorf("limited list = %d, %v", len(limited), err)
	}
}

func TestSQLiteVoiceStore_OptimisticVersion(t *testing.T) {
	_, vstore, _ := newVoiceService(t)
	ctx := context.Background()
	now := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)

	vs := &memory.VoiceSession{
		SessionID: "voice_u1_1", UserID: "u1", SessionType: memory.SessionTypeVoiceCall,
		IsActive: true, CreatedAt: now, LastActiveAt: now,
	}
	if err := vstore.Create(ctx, vs); err != nil {
		t.Fatal(err)
	}
	if vs.Version != 1 {
		t.Fatalf("version after create = %d, want 1", vs.Version)
	}

	a, _ := vstore.Get(ctx, vs.SessionID)
	b, _ := vstore.Get(ctx, vs.SessionID)

	a.Stats.MessageCount = 1
	if err := vstore.Update(ctx, a); err != nil {
		t.Fatalf("first update: %v", err)
	}
	if a.Version != 2 {
		t.Errorf("version after update = %d, want 2", a.Version)
	}
	b.Stats.MessageCount = 5
	if err := vstore.Update(ctx, b); !errors.Is(err, memory.ErrVersionConflict) {
		t.Errorf("stale update err = %v, want ErrVersionConflict", err)
	}

	dup := &memory.VoiceSession{
		SessionID: "voice_u1_2", UserID: "u1", IsActive: true, CreatedAt: now, LastActiveAt: now,
	}
	if err := vstore.Create(ctx, dup); !errors.Is(err, memory.ErrActiveSessionExists) {
		t.Errorf("second active create err = %v, want ErrActiveSessionExists", err)
	}

	if err := vstore.Delete(ctx, vs.SessionID); err != nil {
		t.Fatal(err)
	}
	if err := vstore.Delete(ctx, vs.SessionID); err != nil {
		t.Errorf("repeat delete err = %v, want nil", err)
	}
	if err := vstore.Update(ctx, a); !errors.Is(err, memory.ErrSessionNotFound) {
		t.Errorf("update of deleted session err = %v, want ErrSessionNotFound", err)
	}
}
