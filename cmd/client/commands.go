package client

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/ValentinKolb/kvs/lib/db"
	"github.com/ValentinKolb/kvs/lib/jobs"
)

const helpText = "Available commands:\n" +
	"  SUBSCRIBE [k,k2]\n" +
	"  UNSUBSCRIBE [k,k2]\n" +
	"  DELAY <ms>\n" +
	"  DISCONNECT\n" +
	"  HELP\n"

type commandType int

const (
	cmdInvalid commandType = iota
	cmdEmpty
	cmdSubscribe
	cmdUnsubscribe
	cmdDelay
	cmdDisconnect
	cmdHelp
)

type command struct {
	typ   commandType
	keys  []string
	delay time.Duration
	err   error
}

// session is the part of client.Client used by the command loop
type session interface {
	Subscribe(key string) error
	Unsubscribe(key string) error
	Disconnect() error
	Notifications() <-chan db.Notification
}

func parseCommand(line string) command {
	text := strings.TrimSpace(line)
	if text == "" || strings.HasPrefix(text, "#") {
		return command{typ: cmdEmpty}
	}

	word, args, _ := strings.Cut(text, " ")
	args = strings.TrimSpace(args)

	var cmd command
	switch strings.ToUpper(word) {
	case "SUBSCRIBE":
		cmd.typ = cmdSubscribe
		cmd.keys, cmd.err = jobs.ParseKeyList(args)
	case "UNSUBSCRIBE":
		cmd.typ = cmdUnsubscribe
		cmd.keys, cmd.err = jobs.ParseKeyList(args)
	case "DELAY":
		cmd.typ = cmdDelay
		cmd.delay, cmd.err = jobs.ParseDelay(args)
	case "DISCONNECT":
		cmd.typ = cmdDisconnect
	case "HELP":
		cmd.typ = cmdHelp
	default:
		return command{typ: cmdInvalid, err: fmt.Errorf("unknown command %q", word)}
	}

	if cmd.err != nil {
		cmd.typ = cmdInvalid
	}
	return cmd
}

// runSession executes the commands read from in until DISCONNECT or the end of
// input, which both disconnect the session. Notifications are printed to out as
// "(key,value)" lines, command results and errors to msg.
func runSession(s session, in io.Reader, out, msg io.Writer) error {
	var mu sync.Mutex
	printf := func(w io.Writer, format string, args ...any) {
		mu.Lock()
		defer mu.Unlock()
		_, _ = fmt.Fprintf(w, format, args...)
	}

	printed := make(chan struct{})
	go func() {
		defer close(printed)
		for n := range s.Notifications() {
			printf(out, "%s\n", n)
		}
	}()

	scanner := bufio.NewScanner(in)
	disconnected := false
	for !disconnected && scanner.Scan() {
		cmd := parseCommand(scanner.Text())
		switch cmd.typ {
		case cmdEmpty:
		case cmdInvalid:
			printf(msg, "invalid command: %v\n", cmd.err)
		case cmdHelp:
			printf(msg, "%s", helpText)
		case cmdDelay:
			time.Sleep(cmd.delay)
		case cmdSubscribe:
			for _, key := range cmd.keys {
				if err := s.Subscribe(key); err != nil {
					printf(msg, "SUBSCRIBE %s failed: %v\n", key, err)
				}
			}
		case cmdUnsubscribe:
			for _, key := range cmd.keys {
				if err := s.Unsubscribe(key); err != nil {
					printf(msg, "UNSUBSCRIBE %s failed: %v\n", key, err)
				}
			}
		case cmdDisconnect:
			disconnected = true
		}
	}

	err := s.Disconnect()
	<-printed
	if scanErr := scanner.Err(); scanErr != nil {
		return scanErr
	}
	return err
}
