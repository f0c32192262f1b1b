package budget

import (
	"errors"
	"strings"
	"testing"

	"github.com/neebs12/shell-chat/internal/accounting"
	"github.com/neebs12/shell-chat/internal/conversation"
	"github.com/neebs12/shell-chat/internal/prompt"
	"github.com/neebs12/shell-chat/internal/tokenizer"
)

// scriptedCounter counts words except for texts with a fixed override,
// which lets tests pin the system prompt cost exactly.
type scriptedCounter map[string]int

func (c scriptedCounter) Count(s string) int {
	if n, ok := c[s]; ok {
		return n
	}
	return tokenizer.Words.Count(s)
}

type staticFiles []prompt.TrackedFile

func (f staticFiles) Files() []prompt.TrackedFile { return f }

// words returns content costing n tokens under a word counter.
func words(n int) string {
	return strings.TrimSpace(strings.Repeat("w ", n))
}

// fixture builds a reconciler whose empty-file system prompt costs sp.
func fixture(t *testing.T, cfg Config, sp int, messages int, costEach int) (*Reconciler, *conversation.Store) {
	t.Helper()
	counter := scriptedCounter{prompt.ChatOnlyPrompt: sp}
	store := conversation.NewStore(counter)
	for i := range messages {
		role := conversation.RoleUser
		if i%2 == 1 {
			role = conversation.RoleAI
		}
		if _, err := store.Append(role, words(costEach-accounting.FramingOverhead)); err != nil {
			t.Fatal(err)
		}
	}
	r := NewReconciler(cfg, NewLimit(DefaultConversationLimit), counter, staticFiles(nil), store)
	return r, store
}

var scenarioConfig = Config{
	MaxTokens:                  1000,
	MaxCompletionTokens:        100,
	ReservedConversationTokens: 200,
	ErrorCorrectionTokens:      50,
}

func TestTruncatedHistory_FitsUnchanged(t *testing.T) {
	r, store := fixture(t, scenarioConfig, 0, 5, 150)

	if got := accounting.HistoryLength(store.History()); got != 750 {
		t.Fatalf("history cost = %d, want 750", got)
	}
	if got := r.ControllingLimit(); got != 850 {
		t.Fatalf("ControllingLimit = %d, want 850", got)
	}

	got := r.TruncatedHistory()
	if len(got) != 5 {
		t.Errorf("kept %d messages, want 5", len(got))
	}
}

func TestTruncatedHistory_DropsOldestAtBoundary(t *testing.T) {
	r, store := fixture(t, scenarioConfig, 0, 8, 150)

	full := store.History()
	tr := r.Truncate()
	if len(tr.History) != 5 {
		t.Fatalf("kept %d messages, want 5", len(tr.History))
	}
	if tr.Dropped != 3 {
		t.Errorf("Dropped = %d, want 3", tr.Dropped)
	}
	if tr.TokenLength != 750 {
		t.Errorf("TokenLength = %d, want 750", tr.TokenLength)
	}
	assertSuffix(t, full, tr.History)
}

func TestCheckInput_RejectsAboveRemaining(t *testing.T) {
	r, _ := fixture(t, scenarioConfig, 0, 0, 0)

	c := r.CheckInput(words(900))
	if !c.TooLarge {
		t.Errorf("900 tokens vs 850 remaining should be rejected: %+v", c)
	}
	if c.Remaining != 850 {
		t.Errorf("Remaining = %d, want 850", c.Remaining)
	}

	c = r.CheckInput(words(800))
	if c.TooLarge {
		t.Errorf("800 tokens should be admitted: %+v", c)
	}
	if c.ExceedsSoftLimit {
		t.Error("soft limit warning with default limit")
	}

	if err := r.SetConversationLimit(500); err != nil {
		t.Fatal(err)
	}
	c = r.CheckInput(words(800))
	if c.TooLarge || !c.ExceedsSoftLimit {
		t.Errorf("soft limit should warn without rejecting: %+v", c)
	}
	if r.IsInputTooLarge(words(800)) {
		t.Error("IsInputTooLarge disagrees with CheckInput")
	}
}

func TestCheckInput_NegativeRemaining(t *testing.T) {
	r, _ := fixture(t, scenarioConfig, 1200, 0, 0)

	c := r.CheckInput("hi")
	if c.Remaining >= 0 {
		t.Fatalf("Remaining = %d, want negative", c.Remaining)
	}
	if !c.TooLarge {
		t.Error("any input must be rejected when remaining is negative")
	}
}

func TestCheckFileSet(t *testing.T) {
	cfg := Config{
		MaxTokens:                  16000,
		MaxCompletionTokens:        300,
		ReservedConversationTokens: 2000,
		ErrorCorrectionTokens:      200,
	}
	r, _ := fixture(t, cfg, 9900, 0, 0)

	c := r.CheckFileSet()
	if c.TotalUsed != 12100 {
		t.Errorf("TotalUsed = %d, want 12100", c.TotalUsed)
	}
	if c.TooLarge || r.IsFileSetTooLarge() {
		t.Error("12100 <= 16000 should be admissible")
	}

	r, _ = fixture(t, cfg, 13801, 0, 0)
	c = r.CheckFileSet()
	if !c.TooLarge {
		t.Error("13801 + 2200 > 16000 should be rejected")
	}
	if c.Over() != 1 {
		t.Errorf("Over = %d, want 1", c.Over())
	}
}

func TestCheckFileSet_ExactCeiling(t *testing.T) {
	r, _ := fixture(t, scenarioConfig, 750, 0, 0)
	if r.IsFileSetTooLarge() {
		t.Error("totalUsed == maxTokens is admissible")
	}
}

func TestControllingLimit_UsesAbsoluteRemaining(t *testing.T) {
	// remaining = 1000 - (1200 + 50 + 100) = -350
	r, store := fixture(t, scenarioConfig, 1200, 5, 150)

	if got := r.ControllingLimit(); got != 350 {
		t.Fatalf("ControllingLimit = %d, want 350", got)
	}
	got := r.TruncatedHistory()
	if len(got) != 2 {
		t.Errorf("kept %d messages, want 2", len(got))
	}
	assertSuffix(t, store.History(), got)
}

func TestControllingLimit_UserLimitWins(t *testing.T) {
	r, _ := fixture(t, scenarioConfig, 0, 8, 150)
	if err := r.SetConversationLimit(300); err != nil {
		t.Fatal(err)
	}
	if got := r.ControllingLimit(); got != 300 {
		t.Fatalf("ControllingLimit = %d, want 300", got)
	}
	if got := len(r.TruncatedHistory()); got != 2 {
		t.Errorf("kept %d, want 2", got)
	}

	r.ResetConversationLimit()
	if got := len(r.TruncatedHistory()); got != 5 {
		t.Errorf("after reset kept %d, want 5", got)
	}
}

func TestTruncateToLimit_Properties(t *testing.T) {
	store := conversation.NewStore(tokenizer.Words)
	contents := []string{
		"a", "b c d e f g", "h i", "j k l m", "n", "o p q r s t u v", "w x", "y",
	}
	for i, c := range contents {
		role := conversation.RoleUser
		if i%2 == 1 {
			role = conversation.RoleAI
		}
		store.Append(role, c)
	}
	full := store.History()
	fullCost := accounting.HistoryLength(full)

	for limit := -5; limit <= fullCost+5; limit++ {
		tr := TruncateToLimit(full, limit)

		assertSuffix(t, full, tr.History)

		cost := accounting.HistoryLength(tr.History)
		if cost != tr.TokenLength {
			t.Errorf("limit %d: TokenLength = %d, recomputed %d", limit, tr.TokenLength, cost)
		}
		if cost > limit && len(tr.History) != 0 {
			t.Errorf("limit %d: cost %d exceeds limit with %d messages", limit, cost, len(tr.History))
		}
		if len(tr.History) < len(full) {
			// Keeping one more message would have exceeded the limit.
			withOneMore := full[len(full)-len(tr.History)-1:]
			if accounting.HistoryLength(withOneMore) <= limit {
				t.Errorf("limit %d: dropped more than necessary", limit)
			}
		}

		again := TruncateToLimit(tr.History, limit)
		if len(again.History) != len(tr.History) || again.Dropped != 0 {
			t.Errorf("limit %d: truncation not idempotent (%d -> %d)", limit, len(tr.History), len(again.History))
		}
	}
}

func TestTruncateToLimit_Empty(t *testing.T) {
	tr := TruncateToLimit(nil, 0)
	if tr.History == nil || len(tr.History) != 0 {
		t.Errorf("expected empty non-nil history, got %#v", tr.History)
	}
}

func TestTruncateToLimit_DoesNotAlias(t *testing.T) {
	store := conversation.NewStore(tokenizer.Words)
	store.AppendUser("one")
	store.AppendAI("two")
	full := store.History()

	tr := TruncateToLimit(full, 1000)
	tr.History[0].Content = "changed"
	if full[0].Content != "one" {
		t.Error("truncated history aliases input")
	}
}

func TestTruncatedHistory_IdempotentOnStore(t *testing.T) {
	r, store := fixture(t, scenarioConfig, 0, 9, 150)
	first := r.TruncatedHistory()
	if err := store.ReplaceAll(first); err != nil {
		t.Fatal(err)
	}
	second := r.TruncatedHistory()
	if len(first) != len(second) {
		t.Fatalf("second truncation changed length %d -> %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("message %d differs", i)
		}
	}
}

func TestTokenReport_Conservation(t *testing.T) {
	counter := tokenizer.Words
	files := staticFiles{
		{FileName: "big.go", AbsolutePath: "/big.go", Content: words(400)},
		{FileName: "small.go", AbsolutePath: "/small.go", Content: words(10)},
		{FileName: "mid.go", AbsolutePath: "/mid.go", Content: words(90)},
	}
	store := conversation.NewStore(counter)
	store.AppendUser(words(20))
	store.AppendAI(words(30))

	for _, cfg := range []Config{DefaultConfig(), scenarioConfig, {MaxTokens: 1}} {
		r := NewReconciler(cfg, nil, counter, files, store)
		rep := r.TokenReport()

		if rep.TokensUsed+rep.TotalTokensRemaining != rep.TokensBudgeted {
			t.Errorf("cfg %+v: %d + %d != %d", cfg, rep.TokensUsed, rep.TotalTokensRemaining, rep.TokensBudgeted)
		}
		if rep.TotalForFiles != 500 {
			t.Errorf("TotalForFiles = %d, want 500", rep.TotalForFiles)
		}
		if rep.UnaccountedConversationHistory != 50+2*accounting.FramingOverhead {
			t.Errorf("UnaccountedConversationHistory = %d", rep.UnaccountedConversationHistory)
		}
		wantUsed := rep.SystemPromptTotalTokens + cfg.ReservedConversationTokens + cfg.ErrorCorrectionTokens
		if rep.TokensUsed != wantUsed {
			t.Errorf("TokensUsed = %d, want %d", rep.TokensUsed, wantUsed)
		}
		if rep.ReservedInputTokens != cfg.ReservedInputTokens {
			t.Errorf("ReservedInputTokens = %d, want %d", rep.ReservedInputTokens, cfg.ReservedInputTokens)
		}
	}
}

func TestTokenReport_FilesByTokens(t *testing.T) {
	files := staticFiles{
		{FileName: "b.go", Content: words(5)},
		{FileName: "a.go", Content: words(5)},
		{FileName: "c.go", Content: words(50)},
	}
	r := NewReconciler(DefaultConfig(), nil, tokenizer.Words, files, conversation.NewStore(tokenizer.Words))
	rep := r.TokenReport()

	sorted := rep.FilesByTokens()
	order := []string{sorted[0].FileName, sorted[1].FileName, sorted[2].FileName}
	if strings.Join(order, ",") != "c.go,a.go,b.go" {
		t.Errorf("order = %v", order)
	}
	if rep.FileBreakdown[0].FileName != "b.go" {
		t.Error("FilesByTokens must not reorder the report's breakdown")
	}
}

func TestTokenReport_NoSideEffects(t *testing.T) {
	r, store := fixture(t, scenarioConfig, 0, 8, 150)
	before := store.Len()
	_ = r.TokenReport()
	if store.Len() != before {
		t.Error("TokenReport mutated history")
	}
}

func TestLimit(t *testing.T) {
	l := NewLimit(1000)
	if _, err := l.SetString("abc"); !errors.Is(err, ErrInvalidLimit) {
		t.Errorf("non-integer: err = %v", err)
	}
	if _, err := l.SetString("-1"); !errors.Is(err, ErrInvalidLimit) {
		t.Errorf("negative: err = %v", err)
	}
	if l.Get() != 1000 {
		t.Errorf("invalid input changed limit to %d", l.Get())
	}

	n, err := l.SetString(" 250 ")
	if err != nil || n != 250 || l.Get() != 250 {
		t.Errorf("SetString(250) = %d, %v; Get = %d", n, err, l.Get())
	}
	if got := l.Reset(); got != 1000 {
		t.Errorf("Reset = %d, want 1000", got)
	}
	if NewLimit(-3).Get() != DefaultConversationLimit {
		t.Error("negative initial limit should use default")
	}
}

func TestFromEnv(t *testing.T) {
	env := func(m map[string]string) func(string) (string, bool) {
		return func(k string) (string, bool) {
			v, ok := m[k]
			return v, ok
		}
	}

	cfg, err := FromEnv(env(nil), DefaultConfig())
	if err != nil {
		t.Fatalf("defaults: %v", err)
	}
	if cfg != DefaultConfig() {
		t.Errorf("cfg = %+v, want defaults", cfg)
	}

	cfg, err = FromEnv(env(map[string]string{
		EnvMaxTokens:             "16384",
		EnvMaxCompletionTokens:   " 512 ",
		EnvErrorCorrectionTokens: "",
	}), DefaultConfig())
	if err != nil {
		t.Fatalf("overrides: %v", err)
	}
	if cfg.MaxTokens != 16384 || cfg.MaxCompletionTokens != 512 {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.ErrorCorrectionTokens != DefaultErrorCorrectionTokens {
		t.Errorf("empty value should keep default, got %d", cfg.ErrorCorrectionTokens)
	}

	bad := []map[string]string{
		{EnvMaxTokens: "lots"},
		{EnvReservedConversationTokens: "-1"},
		{EnvMaxTokens: "0"},
		{EnvReservedInputTokens: "1.5"},
	}
	for _, m := range bad {
		_, err := FromEnv(env(m), DefaultConfig())
		var ce *ConfigError
		if !errors.As(err, &ce) {
			t.Errorf("%v: expected ConfigError, got %v", m, err)
		}
	}
}

func assertSuffix(t *testing.T, full, got []conversation.Message) {
	t.Helper()
	if len(got) > len(full) {
		t.Fatalf("truncated history longer than full: %d > %d", len(got), len(full))
	}
	offset := len(full) - len(got)
	for i := range got {
		if got[i] != full[offset+i] {
			t.Fatalf("message %d is not the matching suffix element", i)
		}
	}
}
