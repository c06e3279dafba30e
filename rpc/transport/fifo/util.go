package fifo

import (
	"errors"
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// pipePerms are the permissions of created pipes
const pipePerms = 0o640

// makeFIFO (re)creates a named pipe at path
func makeFIFO(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove %s: %v", path, err)
	}
	if err := unix.Mkfifo(path, pipePerms); err != nil {
		return fmt.Errorf("failed to create pipe %s: %v", path, err)
	}
	return nil
}

// openFIFO opens one end of a named pipe. Opening blocks until the other end is
// opened as well; after timeout the blocked open is released by briefly opening
// the other end non-blocking, and an error is returned.
func openFIFO(path string, flag int, timeout time.Duration) (*os.File, error) {
	type result struct {
		f   *os.File
		err error
	}
	ch := make(chan result, 1)
	go func() {
		f, err := os.OpenFile(path, flag, 0)
		ch <- result{f, err}
	}()

	select {
	case r := <-ch:
		return r.f, r.err
	case <-time.After(timeout):
	}

	peer := os.O_RDONLY
	if flag&os.O_WRONLY == 0 {
		peer = os.O_WRONLY
	}
	if p, err := os.OpenFile(path, peer|unix.O_NONBLOCK, 0); err == nil {
		_ = p.Close()
	}
	go func() {
		if r := <-ch; r.f != nil {
			_ = r.f.Close()
		}
	}()
	return nil, fmt.Errorf("timeout opening %s", path)
}
