package accounting

import (
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/neebs12/shell-chat/internal/conversation"
	"github.com/neebs12/shell-chat/internal/prompt"
	"github.com/neebs12/shell-chat/internal/tokenizer"
)

func TestFiles_Empty(t *testing.T) {
	got := Files(tokenizer.Words, nil)
	if got.Total != 0 {
		t.Errorf("Total = %d, want 0", got.Total)
	}
	if len(got.PerFile) != 0 {
		t.Errorf("PerFile = %v, want empty", got.PerFile)
	}
}

func TestFiles_PerFileAndTotal(t *testing.T) {
	files := []prompt.TrackedFile{
		{FileName: "a.go", AbsolutePath: "/a.go", Content: "one two three"},
		{FileName: "b.go", AbsolutePath: "/b.go", Content: ""},
		{FileName: "c.go", AbsolutePath: "/c.go", Content: "four five"},
	}
	got := Files(tokenizer.Words, files)

	if got.Total != 5 {
		t.Errorf("Total = %d, want 5", got.Total)
	}
	want := []int{3, 0, 2}
	for i, ft := range got.PerFile {
		if ft.FileName != files[i].FileName {
			t.Errorf("PerFile[%d].FileName = %q, want %q", i, ft.FileName, files[i].FileName)
		}
		if ft.TokenLength != want[i] {
			t.Errorf("PerFile[%d].TokenLength = %d, want %d", i, ft.TokenLength, want[i])
		}
	}
}

func TestFiles_Idempotent(t *testing.T) {
	var files []prompt.TrackedFile
	for i := range 30 {
		files = append(files, prompt.TrackedFile{
			FileName: fmt.Sprintf("f%d.go", i),
			Content:  fmt.Sprintf("w %d x y", i),
		})
	}
	first := Files(tokenizer.Words, files)
	second := Files(tokenizer.Words, files)

	if first.Total != second.Total {
		t.Fatalf("totals differ: %d vs %d", first.Total, second.Total)
	}
	for i := range first.PerFile {
		if first.PerFile[i] != second.PerFile[i] {
			t.Errorf("PerFile[%d] differs: %+v vs %+v", i, first.PerFile[i], second.PerFile[i])
		}
	}
}

func TestFiles_CountsEachFileOnce(t *testing.T) {
	var calls atomic.Int32
	counter := tokenizer.Func(func(s string) int {
		calls.Add(1)
		return len(s)
	})
	files := make([]prompt.TrackedFile, 20)
	Files(counter, files)
	if calls.Load() != 20 {
		t.Errorf("counter called %d times, want 20", calls.Load())
	}
}

func TestSystemPrompt(t *testing.T) {
	c := prompt.Components{
		Prefix:    "a b",
		Injection: "c d e",
		Suffix:    "f",
		Complete:  "a b\n\nc d e\n\nf",
	}
	got := SystemPrompt(tokenizer.Words, c)
	want := PromptTotals{Prefix: 2, Injection: 3, Suffix: 1, Complete: 6}
	if got != want {
		t.Errorf("SystemPrompt = %+v, want %+v", got, want)
	}
}

func TestHistoryLength_FramingOverhead(t *testing.T) {
	s := conversation.NewStore(tokenizer.Words)
	m1 := s.AppendUser("how are you")
	m2 := s.AppendAI("fine thanks")

	got := HistoryLength([]conversation.Message{m1, m2})
	want := tokenizer.Words.Count(m1.Content) + tokenizer.Words.Count(m2.Content) + 2*FramingOverhead
	if got != want {
		t.Errorf("HistoryLength = %d, want %d", got, want)
	}
}

func TestHistory_Empty(t *testing.T) {
	got := History(nil)
	if got.TokenLength != 0 {
		t.Errorf("TokenLength = %d, want 0", got.TokenLength)
	}
}
