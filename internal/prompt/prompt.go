// Package prompt builds the system prompt sent with every model request:
// a fixed prefix, the injected contents of every tracked file, and a
// fixed suffix.
package prompt

import (
	"fmt"
	"strings"
)

// FileBoundary and ContentBoundary delimit injected files. They are long
// and tagged so a tracked source file is not expected to contain either
// line verbatim; if one does, the model's view of file boundaries for
// that file is ambiguous.
const (
	FileBoundary    = "<<<<<<<<<<<<<<<<<<<< SHELL-CHAT FILE BOUNDARY >>>>>>>>>>>>>>>>>>>>"
	ContentBoundary = "-------------------- SHELL-CHAT FILE CONTENT --------------------"
)

// ChatOnlyPrompt is used when no files are tracked.
const ChatOnlyPrompt = `You are a expert coding AI. You will answer queries provided to you in a short and concise manner. Do not show any warnings or information regarding your capabilities.

For clarity to the user, ONLY ANSWER IN MARKDOWN FORMAT.`

// BackgroundInstruction is appended to the newest user message of each
// request. It is never stored in the conversation history.
const BackgroundInstruction = "\n\n<|BACKGROUND INSTRUCTION: respond in standard markdown with italics & bolds but don't insert italics/bolds within codeblocks|>"

var prefixInstruction = `You are a expert coding AI. You will answer queries provided to you in a short and concise manner. You will receive a list of files and their contents and their paths. Your task is to give clear and concise answers to any queries provided by the human given the files you are provided with. The files will given to you in the following format:

Example format:
` + FileBoundary + `
FILE: <filename>
ABSOLUTE_PATH: <file absolute path>
CONTENT:
` + ContentBoundary + `
<file content>
` + ContentBoundary + `
` + FileBoundary + `

Okay, here are the files:
`

const suffixInstruction = `Further Comments: The files that I have given you above somehow interact with each other. Give clear, short and concise answers based on them`

// Components is the assembled system prompt and its parts. For an empty
// file set Prefix, Injection and Suffix are empty and Complete holds the
// chat-only prompt.
type Components struct {
	Prefix    string
	Injection string
	Suffix    string
	Complete  string
}

// Assemble renders the system prompt for files. It is a pure function of
// its input.
func Assemble(files []TrackedFile) Components {
	if len(files) == 0 {
		return Components{Complete: ChatOnlyPrompt}
	}

	injection := Inject(files)
	return Components{
		Prefix:    prefixInstruction,
		Injection: injection,
		Suffix:    suffixInstruction,
		Complete:  prefixInstruction + "\n\n" + injection + "\n\n" + suffixInstruction,
	}
}

// Inject renders files as delimited blocks in the order given.
func Inject(files []TrackedFile) string {
	if len(files) == 0 {
		return ""
	}
	units := make([]string, 0, len(files))
	for _, f := range files {
		var sb strings.Builder
		fmt.Fprintf(&sb, "\nFILE: %s", f.FileName)
		fmt.Fprintf(&sb, "\nABSOLUTE_PATH: %s", f.AbsolutePath)
		sb.WriteString("\nCONTENT:")
		sb.WriteString("\n" + ContentBoundary)
		sb.WriteString("\n" + f.Content)
		sb.WriteString("\n" + ContentBoundary)
		units = append(units, sb.String())
	}
	return "\n" + FileBoundary + strings.Join(units, "\n"+FileBoundary) + "\n" + FileBoundary
}

// collidesWithBoundary reports whether content contains a line equal to
// one of the delimiters.
func collidesWithBoundary(content string) bool {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimRight(line, "\r")
		if line == FileBoundary || line == ContentBoundary {
			return true
		}
	}
	return false
}
