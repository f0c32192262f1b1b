// Package accounting measures the token cost of everything that goes into
// a model request: tracked files, the assembled system prompt, and the
// conversation history.
package accounting

import (
	"sync"

	"github.com/neebs12/shell-chat/internal/conversation"
	"github.com/neebs12/shell-chat/internal/prompt"
	"github.com/neebs12/shell-chat/internal/tokenizer"
)

// FramingOverhead is the number of tokens charged per message for role and
// delimiter framing that tokenizing the content alone does not capture.
const FramingOverhead = 3

// maxFileWorkers bounds the goroutines used to count file contents.
const maxFileWorkers = 8

// FileTokens is the token count of one tracked file's content.
type FileTokens struct {
	FileName     string
	AbsolutePath string
	TokenLength  int
}

// FileTotals is the per-file breakdown and sum for a file set.
type FileTotals struct {
	PerFile []FileTokens
	Total   int
}

// Files counts every file's content independently and sums the results.
// PerFile preserves the order of files. An empty set yields a zero total.
func Files(counter tokenizer.Counter, files []prompt.TrackedFile) FileTotals {
	per := make([]FileTokens, len(files))
	if len(files) == 0 {
		return FileTotals{PerFile: per}
	}

	sem := make(chan struct{}, maxFileWorkers)
	var wg sync.WaitGroup
	for i, f := range files {
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			per[i] = FileTokens{
				FileName:     f.FileName,
				AbsolutePath: f.AbsolutePath,
				TokenLength:  counter.Count(f.Content),
			}
		}()
	}
	wg.Wait()

	total := 0
	for _, ft := range per {
		total += ft.TokenLength
	}
	return FileTotals{PerFile: per, Total: total}
}

// PromptTotals holds token counts for each system prompt component.
type PromptTotals struct {
	Prefix    int
	Injection int
	Suffix    int
	Complete  int
}

// SystemPrompt counts each component of c. Complete is counted on its own
// rather than summed, since joining parts can merge tokens at boundaries.
func SystemPrompt(counter tokenizer.Counter, c prompt.Components) PromptTotals {
	return PromptTotals{
		Prefix:    counter.Count(c.Prefix),
		Injection: counter.Count(c.Injection),
		Suffix:    counter.Count(c.Suffix),
		Complete:  counter.Count(c.Complete),
	}
}

// HistoryTotals pairs a history with its accounted token length.
type HistoryTotals struct {
	History     []conversation.Message
	TokenLength int
}

// History accounts msgs using each message's stored TokenLength.
func History(msgs []conversation.Message) HistoryTotals {
	return HistoryTotals{History: msgs, TokenLength: HistoryLength(msgs)}
}

// HistoryLength is the accounted cost of msgs: the sum of every message's
// TokenLength plus FramingOverhead per message.
func HistoryLength(msgs []conversation.Message) int {
	total := 0
	for _, m := range msgs {
		total += MessageCost(m)
	}
	return total
}

// MessageCost is the accounted cost of a single message.
func MessageCost(m conversation.Message) int {
	return m.TokenLength + FramingOverhead
}
