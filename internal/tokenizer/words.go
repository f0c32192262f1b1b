package tokenizer

import "strings"

// Words counts whitespace-separated fields. It is a deterministic stand-in
// for a real encoder in tests and offline tooling.
var Words Counter = Func(func(text string) int {
	return len(strings.Fields(text))
})
