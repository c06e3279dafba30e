package store

import (
	"bufio"
	"fmt"
	"github.com/ValentinKolb/kvs/lib/db"
	"io"
	"strings"
)

// --------------------------------------------------------------------------
// Result Rendering
// --------------------------------------------------------------------------

const (
	// MarkerError replaces the value of keys missing in a READ
	MarkerError = "KVSERROR"
	// MarkerMissing replaces the value of keys missing in a DELETE
	MarkerMissing = "KVSMISSING"
)

// pairSize is the rendered size of "(key,value)"
func pairSize(key, value string) int {
	return len(key) + len(value) + 3
}

// RenderRead renders READ results as "[(k1,v1)(k2,KVSERROR)]\n"
func RenderRead(results []ReadResult) string {
	size := 3
	for _, r := range results {
		if r.Found {
			size += pairSize(r.Key, r.Value)
		} else {
			size += pairSize(r.Key, MarkerError)
		}
	}

	var sb strings.Builder
	sb.Grow(size)
	sb.WriteByte('[')
	for _, r := range results {
		value := r.Value
		if !r.Found {
			value = MarkerError
		}
		writePair(&sb, r.Key, value)
	}
	sb.WriteString("]\n")
	return sb.String()
}

// RenderMissing renders the missing keys of a DELETE as "[(k,KVSMISSING)]\n".
// Returns an empty string if no key was missing.
func RenderMissing(missing []string) string {
	if len(missing) == 0 {
		return ""
	}

	size := 3
	for _, key := range missing {
		size += pairSize(key, MarkerMissing)
	}

	var sb strings.Builder
	sb.Grow(size)
	sb.WriteByte('[')
	for _, key := range missing {
		writePair(&sb, key, MarkerMissing)
	}
	sb.WriteString("]\n")
	return sb.String()
}

// RenderPairs renders pairs as one "(k,v)\n" line per pair (SHOW and BACKUP format)
func RenderPairs(pairs []db.Pair) string {
	size := 0
	for _, p := range pairs {
		size += pairSize(p.Key, p.Value) + 1
	}

	var sb strings.Builder
	sb.Grow(size)
	for _, p := range pairs {
		writePair(&sb, p.Key, p.Value)
		sb.WriteByte('\n')
	}
	return sb.String()
}

// WritePairs writes pairs in the SHOW and BACKUP format to w
func WritePairs(w io.Writer, pairs []db.Pair) error {
	bw := bufio.NewWriter(w)
	for _, p := range pairs {
		if _, err := fmt.Fprintf(bw, "(%s,%s)\n", p.Key, p.Value); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// ReadPairs parses the SHOW and BACKUP format. Blank lines are skipped.
func ReadPairs(r io.Reader) ([]db.Pair, error) {
	var pairs []db.Pair
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		p, ok := parsePair(text)
		if !ok {
			return nil, NewError(RetCInvalidArgument, fmt.Sprintf("line %d: expected (key,value), got %q", line, text))
		}
		pairs = append(pairs, p)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return pairs, nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func writePair(sb *strings.Builder, key, value string) {
	sb.WriteByte('(')
	sb.WriteString(key)
	sb.WriteByte(',')
	sb.WriteString(value)
	sb.WriteByte(')')
}

func parsePair(text string) (db.Pair, bool) {
	if len(text) < 3 || text[0] != '(' || text[len(text)-1] != ')' {
		return db.Pair{}, false
	}
	key, value, ok := strings.Cut(text[1:len(text)-1], ",")
	if !ok {
		return db.Pair{}, false
	}
	return db.Pair{Key: key, Value: value}, true
}
