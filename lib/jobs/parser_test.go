package jobs

import (
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestParseWrite(t *testing.T) {
	cmd := ParseLine("WRITE [(a,1)(b,2), (c, 3)]")
	if cmd.Type != CmdWrite {
		t.Fatalf("Expected write, got %s (%v)", cmd.Type, cmd.Err)
	}
	want := "[(a,1) (b,2) (c,3)]"
	if got := fmt.Sprint(cmd.Pairs); got != want {
		t.Errorf("Expected %s, got %s", want, got)
	}

	// empty values are allowed, the store validates keys
	if cmd := ParseLine("WRITE [(a,)]"); cmd.Type != CmdWrite || cmd.Pairs[0].Value != "" {
		t.Errorf("Expected a write with empty value, got %+v", cmd)
	}
}

func TestParseKeys(t *testing.T) {
	cmd := ParseLine("READ [a, b,c]")
	if cmd.Type != CmdRead || strings.Join(cmd.Keys, "|") != "a|b|c" {
		t.Errorf("Unexpected read %+v", cmd)
	}

	cmd = ParseLine("DELETE [x]")
	if cmd.Type != CmdDelete || len(cmd.Keys) != 1 || cmd.Keys[0] != "x" {
		t.Errorf("Unexpected delete %+v", cmd)
	}
}

func TestParseSimpleCommands(t *testing.T) {
	for line, want := range map[string]CommandType{
		"SHOW":          CmdShow,
		"BACKUP":        CmdBackup,
		"HELP":          CmdHelp,
		"  ":            CmdEmpty,
		"# comment":     CmdEmpty,
		"WAIT 150":      CmdWait,
		"SHOW now":      CmdInvalid,
		"WAIT":          CmdInvalid,
		"WAIT -1":       CmdInvalid,
		"FLUSH":         CmdInvalid,
		"write [(a,1)]": CmdInvalid,
	} {
		if got := ParseLine(line).Type; got != want {
			t.Errorf("ParseLine(%q): expected %s, got %s", line, want, got)
		}
	}

	if d := ParseLine("WAIT 150").Delay; d != 150*time.Millisecond {
		t.Errorf("Expected 150ms, got %s", d)
	}
}

func TestParseInvalidLists(t *testing.T) {
	for _, line := range []string{
		"WRITE []",
		"WRITE (a,1)",
		"WRITE [(a,1)",
		"WRITE [(a1)]",
		"WRITE [(a,1)x(b,2)]",
		"READ []",
		"READ a,b",
		"DELETE [,,]",
	} {
		cmd := ParseLine(line)
		if cmd.Type != CmdInvalid || cmd.Err == nil {
			t.Errorf("ParseLine(%q): expected invalid with reason, got %+v", line, cmd)
		}
	}
}

func TestParseMaxWriteSize(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("WRITE [")
	for i := 0; i < MaxWriteSize; i++ {
		sb.WriteString(fmt.Sprintf("(k%d,v)", i))
	}
	if cmd := ParseLine(sb.String() + "]"); cmd.Type != CmdWrite || len(cmd.Pairs) != MaxWriteSize {
		t.Errorf("Expected %d pairs to be accepted, got %s", MaxWriteSize, cmd.Type)
	}
	sb.WriteString("(one,more)]")
	if cmd := ParseLine(sb.String()); cmd.Type != CmdInvalid {
		t.Errorf("Expected more than %d pairs to be rejected", MaxWriteSize)
	}

	keys := make([]string, MaxWriteSize+1)
	for i := range keys {
		keys[i] = fmt.Sprintf("k%d", i)
	}
	if cmd := ParseLine("READ [" + strings.Join(keys, ",") + "]"); cmd.Type != CmdInvalid {
		t.Errorf("Expected more than %d keys to be rejected", MaxWriteSize)
	}
}

func TestParserLines(t *testing.T) {
	p := NewParser(strings.NewReader("SHOW\n\nBOGUS\nREAD [a]"))

	var types []CommandType
	var lines []int
	for {
		cmd := p.Next()
		types = append(types, cmd.Type)
		lines = append(lines, cmd.Line)
		if cmd.Type == CmdEOC {
			break
		}
	}

	want := []CommandType{CmdShow, CmdEmpty, CmdInvalid, CmdRead, CmdEOC}
	if fmt.Sprint(types) != fmt.Sprint(want) {
		t.Errorf("Expected %v, got %v", want, types)
	}
	if fmt.Sprint(lines[:4]) != "[1 2 3 4]" {
		t.Errorf("Unexpected line numbers %v", lines)
	}
}
