package jobs

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/ValentinKolb/kvs/lib/db"
)

// MaxWriteSize is the maximum number of pairs or keys of a single command
const MaxWriteSize = 256

// CommandType identifies a job command
type CommandType int

const (
	CmdInvalid CommandType = iota
	CmdEmpty
	CmdWrite
	CmdRead
	CmdDelete
	CmdShow
	CmdWait
	CmdBackup
	CmdHelp
	CmdEOC // end of commands
)

func (c CommandType) String() string {
	switch c {
	case CmdEmpty:
		return "empty"
	case CmdWrite:
		return "write"
	case CmdRead:
		return "read"
	case CmdDelete:
		return "delete"
	case CmdShow:
		return "show"
	case CmdWait:
		return "wait"
	case CmdBackup:
		return "backup"
	case CmdHelp:
		return "help"
	case CmdEOC:
		return "eoc"
	default:
		return "invalid"
	}
}

// HelpText is written to the output of a job for the HELP command
const HelpText = "Available commands:\n" +
	"  WRITE [(key,value)(key2,value2),...]\n" +
	"  READ [key,key2,...]\n" +
	"  DELETE [key,key2,...]\n" +
	"  SHOW\n" +
	"  WAIT <delay_ms>\n" +
	"  BACKUP\n" +
	"  HELP\n"

// Command is a parsed line of a job file
type Command struct {
	Type  CommandType
	Line  int
	Pairs []db.Pair     // WRITE
	Keys  []string      // READ and DELETE
	Delay time.Duration // WAIT
	Err   error         // reason for CmdInvalid
}

// Parser reads commands line by line from a job file
type Parser struct {
	scanner *bufio.Scanner
	line    int
}

// NewParser creates a parser reading from r
func NewParser(r io.Reader) *Parser {
	return &Parser{scanner: bufio.NewScanner(r)}
}

// Next returns the next command. At the end of the input it returns a CmdEOC
// command, whose Err is set if reading failed.
func (p *Parser) Next() Command {
	if !p.scanner.Scan() {
		return Command{Type: CmdEOC, Line: p.line, Err: p.scanner.Err()}
	}
	p.line++
	cmd := ParseLine(p.scanner.Text())
	cmd.Line = p.line
	return cmd
}

// ParseLine parses a single command line
func ParseLine(text string) Command {
	text = strings.TrimSpace(text)
	if text == "" || strings.HasPrefix(text, "#") {
		return Command{Type: CmdEmpty}
	}

	word, args, _ := strings.Cut(text, " ")
	args = strings.TrimSpace(args)

	var cmd Command
	var err error
	switch word {
	case "WRITE":
		cmd.Type = CmdWrite
		cmd.Pairs, err = parsePairList(args)
	case "READ":
		cmd.Type = CmdRead
		cmd.Keys, err = ParseKeyList(args)
	case "DELETE":
		cmd.Type = CmdDelete
		cmd.Keys, err = ParseKeyList(args)
	case "WAIT":
		cmd.Type = CmdWait
		cmd.Delay, err = ParseDelay(args)
	case "SHOW":
		cmd.Type = CmdShow
		err = noArgs(word, args)
	case "BACKUP":
		cmd.Type = CmdBackup
		err = noArgs(word, args)
	case "HELP":
		cmd.Type = CmdHelp
		err = noArgs(word, args)
	default:
		err = fmt.Errorf("unknown command %q", word)
	}

	if err != nil {
		return Command{Type: CmdInvalid, Err: err}
	}
	return cmd
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func noArgs(word, args string) error {
	if args != "" {
		return fmt.Errorf("%s takes no arguments", word)
	}
	return nil
}

func unbracket(args string) (string, error) {
	if len(args) < 2 || args[0] != '[' || args[len(args)-1] != ']' {
		return "", fmt.Errorf("expected [...], got %q", args)
	}
	return args[1 : len(args)-1], nil
}

// parsePairList parses "[(k,v)(k2,v2)]". Pairs may be separated by commas or blanks.
func parsePairList(args string) ([]db.Pair, error) {
	inner, err := unbracket(args)
	if err != nil {
		return nil, err
	}

	var pairs []db.Pair
	rest := inner
	for {
		rest = strings.TrimLeft(rest, " ,\t")
		if rest == "" {
			break
		}
		if rest[0] != '(' {
			return nil, fmt.Errorf("expected '(' at %q", rest)
		}
		end := strings.IndexByte(rest, ')')
		if end < 0 {
			return nil, fmt.Errorf("unterminated pair at %q", rest)
		}
		key, value, ok := strings.Cut(rest[1:end], ",")
		if !ok {
			return nil, fmt.Errorf("pair %q has no value", rest[:end+1])
		}
		pairs = append(pairs, db.Pair{Key: strings.TrimSpace(key), Value: strings.TrimSpace(value)})
		if len(pairs) > MaxWriteSize {
			return nil, fmt.Errorf("more than %d pairs", MaxWriteSize)
		}
		rest = rest[end+1:]
	}

	if len(pairs) == 0 {
		return nil, fmt.Errorf("no pairs")
	}
	return pairs, nil
}

// ParseKeyList parses a bracketed, comma separated key list "[k,k2]"
func ParseKeyList(args string) ([]string, error) {
	inner, err := unbracket(args)
	if err != nil {
		return nil, err
	}

	var keys []string
	for _, key := range strings.Split(inner, ",") {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		keys = append(keys, key)
	}

	if len(keys) == 0 {
		return nil, fmt.Errorf("no keys")
	}
	if len(keys) > MaxWriteSize {
		return nil, fmt.Errorf("more than %d keys", MaxWriteSize)
	}
	return keys, nil
}

// ParseDelay parses a delay in milliseconds
func ParseDelay(args string) (time.Duration, error) {
	ms, err := strconv.ParseUint(args, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid delay %q", args)
	}
	return time.Duration(ms) * time.Millisecond, nil
}
