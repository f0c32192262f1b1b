package chat

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/neebs12/shell-chat/internal/budget"
	"github.com/neebs12/shell-chat/internal/files"
	"github.com/neebs12/shell-chat/internal/prompt"
	"github.com/neebs12/shell-chat/internal/state"
	"github.com/neebs12/shell-chat/internal/tui"
)

const helpText = `Files
  /path-add, /pa <paths...>          Track files by path
  /find, /f <names...>               Search the working tree by name or glob
  /find-add, /fa, /add <names...>    Search and track every match
  /remove-file, /rf <paths...>       Untrack by path, name or glob
  /remove-file-all, /rfa             Untrack every file
  /list, /ls                         List tracked files
  /refresh                           Re-read tracked files that changed on disk

Conversation
  /reset-conversation, /rc           Clear the conversation history
  /reset-all, /ra                    Clear history and files, reset the limit
  /history                           Show the conversation history
  /limit [n|reset]                   Show or set the conversation token limit

Budget
  /token-report, /tr                 Show where the token budget goes
  /token-files, /tf                  Show tokens per tracked file

Save states
  /save, /s [name] [-o]              Save the session (-o overwrites another state)
  /load <name>                       Load a saved state
  /new <name>                        Start a new, empty named state
  /rename <name>                     Rename the current state
  /delete <name>                     Delete a saved state
  /delete-all                        Delete every saved state
  /saves                             List saved states
  /cache <name> [-o]                 Keep the cached unsaved session under a name

Other
  /cwd, /pwd                         Show the working directory
  /help                              Show this help
  /quit, /exit, /q                   Exit

Start a line with <<EOF to enter several lines; finish with a line containing EOF.`

// handleSlashCommand processes built-in commands.
// Returns (handled, shouldQuit).
func (c *Chat) handleSlashCommand(ctx context.Context, input string) (bool, bool) {
	fields := strings.Fields(input)
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "/quit", "/exit", "/q":
		c.IO.SystemMessage("Bye.")
		return true, true
	case "/help":
		c.IO.SystemMessage(helpText)
	case "/path-add", "/pa":
		c.handlePathAdd(args)
	case "/find", "/f":
		c.handleFind(ctx, args, false)
	case "/find-add", "/fa", "/add":
		c.handleFind(ctx, args, true)
	case "/remove-file", "/rf":
		c.handleRemoveFile(args)
	case "/remove-file-all", "/rfa":
		n := c.Files.Len()
		c.Files.RemoveAll()
		c.IO.SystemMessage(fmt.Sprintf("Removed %d file(s).", n))
	case "/list", "/ls":
		c.handleList()
	case "/refresh":
		c.handleRefresh()
	case "/reset-conversation", "/rc":
		c.History.Reset()
		c.IO.SystemMessage("Conversation reset.")
	case "/reset-all", "/ra":
		c.History.Reset()
		c.Files.RemoveAll()
		limit := c.Reconciler.ResetConversationLimit()
		c.IO.SystemMessage(fmt.Sprintf("Conversation and files reset. Conversation limit: %d.", limit))
	case "/history":
		c.IO.SystemMessage(c.formatHistory())
	case "/limit":
		c.handleLimit(args)
	case "/token-report", "/tr":
		c.IO.Markdown(tui.FormatTokenReport(c.Reconciler.TokenReport()))
	case "/token-files", "/tf":
		c.IO.Markdown(tui.FormatFileTokens(c.Reconciler.TokenReport()))
	case "/cwd", "/pwd":
		wd, err := os.Getwd()
		if err != nil {
			c.IO.Error("working directory: " + err.Error())
			break
		}
		c.IO.SystemMessage(wd)
	case "/save", "/s", "/load", "/new", "/rename", "/delete", "/delete-all", "/saves", "/cache":
		c.handleState(ctx, cmd, args)
	default:
		return false, false
	}
	return true, false
}

func (c *Chat) handlePathAdd(paths []string) {
	if len(paths) == 0 {
		c.IO.SystemMessage("Usage: /pa <paths...>")
		return
	}
	c.reportAdded(c.Files.Add(paths...))
}

func (c *Chat) reportAdded(statuses []prompt.AddStatus) {
	var added []string
	for _, st := range statuses {
		switch {
		case st.Err != nil:
			c.IO.Error(st.Err.Error())
		case st.AlreadyTracked:
			c.IO.SystemMessage(displayPath(st.AbsolutePath) + " is already tracked.")
		case st.Added:
			added = append(added, displayPath(st.AbsolutePath))
			if st.BoundaryCollision {
				c.IO.SystemMessage(fmt.Sprintf(
					"warning: %s contains a line equal to a file delimiter; the model may misread where it ends.",
					displayPath(st.AbsolutePath)))
			}
		}
	}
	if len(added) > 0 {
		c.IO.SystemMessage("Added:\n  " + strings.Join(added, "\n  "))
	}
	if fs := c.Reconciler.CheckFileSet(); fs.TooLarge {
		c.IO.Error(fmt.Sprintf(
			"Files exceed usage by %d tokens. Use /tr to see the token report and /rf to remove files.",
			fs.Over()))
	}
}

// handleFind searches by name, or by doublestar pattern when an argument
// contains glob syntax, and optionally tracks what it finds.
func (c *Chat) handleFind(ctx context.Context, args []string, add bool) {
	if len(args) == 0 {
		c.IO.SystemMessage("Usage: /f <names or patterns...>")
		return
	}
	if c.Finder == nil {
		c.IO.Error("file search is not available")
		return
	}

	var names, patterns []string
	for _, a := range args {
		if strings.ContainsAny(a, "*?[{!") {
			patterns = append(patterns, a)
		} else {
			names = append(names, a)
		}
	}

	var found []string
	if len(names) > 0 {
		results, err := c.Finder.FindByName(ctx, names...)
		if err != nil {
			c.IO.Error("find: " + err.Error())
			return
		}
		for _, r := range results {
			if len(r.Paths) == 0 {
				c.IO.SystemMessage(fmt.Sprintf("No files match %q.", r.Query))
			}
		}
		found = append(found, files.Unique(results)...)
	}
	if len(patterns) > 0 {
		matched, err := c.Finder.FindByPatterns(ctx, patterns...)
		if err != nil {
			c.IO.Error("find: " + err.Error())
			return
		}
		found = append(found, matched...)
	}
	found = dedupe(found)

	if len(found) == 0 {
		return
	}
	if add {
		c.reportAdded(c.Files.Add(found...))
		return
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d file(s):", len(found))
	for _, p := range found {
		mark := " "
		if c.Files.Has(p) {
			mark = "*"
		}
		fmt.Fprintf(&sb, "\n %s %s", mark, displayPath(p))
	}
	c.IO.SystemMessage(sb.String())
}

func (c *Chat) handleRemoveFile(args []string) {
	if len(args) == 0 {
		c.IO.SystemMessage("Usage: /rf <paths, names or patterns...>")
		return
	}
	for _, st := range c.Files.Remove(args...) {
		if len(st.Removed) == 0 {
			c.IO.Error(fmt.Sprintf("no tracked file matches %q", st.Arg))
			continue
		}
		for _, p := range st.Removed {
			c.IO.SystemMessage("Removed " + displayPath(p))
		}
	}
}

func (c *Chat) handleList() {
	paths := c.Files.Paths()
	if len(paths) == 0 {
		c.IO.SystemMessage("No tracked files.")
		return
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Tracked files (%d):", len(paths))
	for i, p := range paths {
		fmt.Fprintf(&sb, "\n  %d. %s", i+1, displayPath(p))
	}
	c.IO.SystemMessage(sb.String())
}

func (c *Chat) handleRefresh() {
	changed, err := c.Files.Refresh()
	if err != nil {
		c.IO.Error(err.Error())
	}
	if len(changed) == 0 {
		c.IO.SystemMessage("No tracked files changed.")
		return
	}
	for i, p := range changed {
		changed[i] = displayPath(p)
	}
	c.IO.SystemMessage("Refreshed:\n  " + strings.Join(changed, "\n  "))
}

func (c *Chat) handleLimit(args []string) {
	if len(args) == 0 {
		c.IO.SystemMessage(fmt.Sprintf("Conversation limit: %d tokens.", c.Reconciler.ConversationLimit()))
		return
	}
	if args[0] == "reset" {
		n := c.Reconciler.ResetConversationLimit()
		c.IO.SystemMessage(fmt.Sprintf("Conversation limit reset to %d tokens.", n))
		return
	}
	n, err := c.Reconciler.Limit().SetString(args[0])
	if errors.Is(err, budget.ErrInvalidLimit) {
		c.IO.Error(fmt.Sprintf("%v. Limit unchanged at %d.", err, n))
		return
	}
	c.IO.SystemMessage(fmt.Sprintf("Conversation limit set to %d tokens.", n))
}

func (c *Chat) formatHistory() string {
	history := c.History.History()
	if len(history) == 0 {
		return "No history."
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "=== History (%d messages) ===", len(history))
	for i, m := range history {
		fmt.Fprintf(&sb, "\n[%d] %s (%d tokens): %s", i, m.Role, m.TokenLength, truncate(m.Content, 100))
	}
	return sb.String()
}

// handleState dispatches the save-state commands.
func (c *Chat) handleState(ctx context.Context, cmd string, args []string) {
	if c.States == nil {
		c.IO.Error("save states are not available")
		return
	}
	name, overwrite := parseStateArgs(args)

	switch cmd {
	case "/save", "/s":
		saved, err := c.States.Save(ctx, name, overwrite, c.snapshot())
		if err != nil {
			c.stateError("save", err)
			return
		}
		c.IO.SystemMessage(fmt.Sprintf("Saved state %q.", saved))

	case "/load":
		if name == "" {
			c.IO.SystemMessage("Usage: /load <name>")
			return
		}
		rec, cached, err := c.States.Load(ctx, name, c.snapshot())
		if err != nil {
			c.stateError("load", err)
			return
		}
		c.announceCache(cached)
		c.apply(rec.Snapshot)
		c.IO.SystemMessage(fmt.Sprintf("Loaded state %q: %d message(s), %d file(s), limit %d.",
			rec.Name, c.History.Len(), c.Files.Len(), c.Reconciler.ConversationLimit()))

	case "/new":
		if name == "" {
			c.IO.SystemMessage("Usage: /new <name>")
			return
		}
		limit := c.Reconciler.Limit().Initial()
		cached, err := c.States.New(ctx, name, limit, c.snapshot())
		if err != nil {
			c.stateError("new", err)
			return
		}
		c.announceCache(cached)
		c.apply(state.Snapshot{Limit: limit})
		c.IO.SystemMessage(fmt.Sprintf("Started new state %q.", name))

	case "/rename":
		if name == "" {
			c.IO.SystemMessage("Usage: /rename <name>")
			return
		}
		from := c.States.Current()
		if err := c.States.Rename(ctx, name); err != nil {
			c.stateError("rename", err)
			return
		}
		c.IO.SystemMessage(fmt.Sprintf("Renamed %q to %q.", from, name))

	case "/delete":
		if name == "" {
			c.IO.SystemMessage("Usage: /delete <name>")
			return
		}
		if err := c.States.Delete(ctx, name); err != nil {
			c.stateError("delete", err)
			return
		}
		c.IO.SystemMessage(fmt.Sprintf("Deleted state %q.", name))

	case "/delete-all":
		n, err := c.States.DeleteAll(ctx)
		if err != nil {
			c.stateError("delete all", err)
			return
		}
		c.IO.SystemMessage(fmt.Sprintf("Deleted %d state(s). The session is now unsaved.", n))

	case "/saves":
		infos, err := c.States.List(ctx)
		if err != nil {
			c.stateError("list", err)
			return
		}
		c.IO.Markdown(formatStates(infos, c.States.Current()))

	case "/cache":
		if name == "" {
			c.IO.SystemMessage("Usage: /cache <name> [-o]")
			return
		}
		if err := c.States.MoveCache(ctx, name, overwrite); err != nil {
			c.stateError("cache", err)
			return
		}
		c.IO.SystemMessage(fmt.Sprintf("Cached session saved as %q.", name))
	}
}

// apply replaces the running session with snap. Files that can no longer
// be read are reported and skipped.
func (c *Chat) apply(snap state.Snapshot) {
	if err := c.History.ReplaceAll(snap.History); err != nil {
		c.IO.Error(err.Error())
		c.History.Reset()
	}
	c.Files.RemoveAll()
	for _, st := range c.Files.Add(snap.TrackedFiles...) {
		if st.Err != nil {
			c.IO.Error("skipped tracked file: " + st.Err.Error())
		}
	}
	if err := c.Reconciler.SetConversationLimit(snap.Limit); err != nil {
		c.Reconciler.ResetConversationLimit()
	}
}

func (c *Chat) announceCache(cached bool) {
	if cached {
		c.IO.SystemMessage("The unsaved session was kept in the cache. Use /cache <name> to save it.")
	}
}

func (c *Chat) stateError(op string, err error) {
	switch {
	case errors.Is(err, state.ErrNotFound):
		c.IO.Error(op + ": no such state")
	case errors.Is(err, state.ErrReserved):
		c.IO.Error(fmt.Sprintf("%s: %q is reserved", op, state.CacheName))
	case errors.Is(err, state.ErrNoName):
		c.IO.Error(op + ": the session has no name yet. Use /save <name>")
	default:
		c.IO.Error(op + ": " + err.Error())
	}
}

func parseStateArgs(args []string) (name string, overwrite bool) {
	for _, a := range args {
		switch a {
		case "-o", "--overwrite":
			overwrite = true
		default:
			if name == "" {
				name = a
			}
		}
	}
	return name, overwrite
}

func formatStates(infos []state.Info, current string) string {
	if len(infos) == 0 {
		return "No saved states."
	}
	var sb strings.Builder
	sb.WriteString("| | Name | Messages | Files | Limit | Updated |\n|---|---|---|---|---|---|\n")
	for _, info := range infos {
		mark := ""
		if info.Name == current {
			mark = "*"
		}
		fmt.Fprintf(&sb, "| %s | %s | %d | %d | %d | %s |\n",
			mark, info.Name, info.Messages, info.Files, info.Limit, info.UpdatedAt.Format("2006-01-02 15:04"))
	}
	return sb.String()
}

// displayPath shortens abs to a working-directory relative path when it
// lies below the working directory.
func displayPath(abs string) string {
	wd, err := os.Getwd()
	if err != nil {
		return abs
	}
	rel, err := filepath.Rel(wd, abs)
	if err != nil || strings.HasPrefix(rel, "..") {
		return abs
	}
	return rel
}

func dedupe(paths []string) []string {
	seen := make(map[string]bool, len(paths))
	out := paths[:0]
	for _, p := range paths {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	return out
}

func truncate(s string, maxLen int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

// Track adds the files named on the command line, reporting each outcome.
func (c *Chat) Track(paths ...string) {
	if len(paths) == 0 {
		return
	}
	c.reportAdded(c.Files.Add(paths...))
}
