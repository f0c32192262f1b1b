package prompt

import (
	"strings"
	"testing"
)

func sampleFiles() []TrackedFile {
	return []TrackedFile{
		{AbsolutePath: "/repo/main.go", FileName: "main.go", Content: "package main"},
		{AbsolutePath: "/repo/util.go", FileName: "util.go", Content: "package util\n\nfunc A() {}"},
	}
}

func TestAssemble_Empty(t *testing.T) {
	c := Assemble(nil)
	if c.Complete != ChatOnlyPrompt {
		t.Errorf("Complete = %q, want chat-only prompt", c.Complete)
	}
	if c.Prefix != "" || c.Injection != "" || c.Suffix != "" {
		t.Errorf("expected empty parts, got %+v", c)
	}
}

func TestAssemble_WithFiles(t *testing.T) {
	c := Assemble(sampleFiles())

	if c.Complete != c.Prefix+"\n\n"+c.Injection+"\n\n"+c.Suffix {
		t.Error("Complete is not prefix + injection + suffix")
	}
	for _, want := range []string{
		"FILE: main.go",
		"ABSOLUTE_PATH: /repo/main.go",
		"FILE: util.go",
		"func A() {}",
	} {
		if !strings.Contains(c.Injection, want) {
			t.Errorf("injection missing %q", want)
		}
	}
	if strings.Index(c.Injection, "main.go") > strings.Index(c.Injection, "util.go") {
		t.Error("files must be injected in insertion order")
	}
	if !strings.HasPrefix(c.Suffix, "Further Comments:") {
		t.Errorf("unexpected suffix %q", c.Suffix)
	}
}

func TestInject_DelimiterCount(t *testing.T) {
	files := sampleFiles()
	inj := Inject(files)

	if got := strings.Count(inj, FileBoundary); got != len(files)+1 {
		t.Errorf("file boundaries = %d, want %d", got, len(files)+1)
	}
	if got := strings.Count(inj, ContentBoundary); got != 2*len(files) {
		t.Errorf("content boundaries = %d, want %d", got, 2*len(files))
	}
}

func TestAssemble_Pure(t *testing.T) {
	files := sampleFiles()
	a := Assemble(files)
	b := Assemble(files)
	if a != b {
		t.Error("Assemble is not deterministic")
	}
}

func TestCollidesWithBoundary(t *testing.T) {
	if collidesWithBoundary("package main\n// ====\n") {
		t.Error("short rule should not collide")
	}
	if !collidesWithBoundary("x\n" + FileBoundary + "\r\ny") {
		t.Error("exact boundary line should collide")
	}
}
