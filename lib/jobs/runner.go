package jobs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/ValentinKolb/kvs/lib/store"
	"github.com/lni/dragonboat/v4/logger"
	gometrics "github.com/rcrowley/go-metrics"
	"golang.org/x/sync/errgroup"
)

var Logger = logger.GetLogger("jobs")

const (
	// JobExt is the extension of job files
	JobExt = ".job"
	// OutExt replaces JobExt for the output file of a job
	OutExt = ".out"
)

// Runner executes job files against a store.
//
// Thread-safety: A Runner may run any number of jobs concurrently. Consistency
// between jobs is provided by the store.
type Runner struct {
	store      store.IStore
	maxThreads int
}

// NewRunner creates a runner executing at most maxThreads jobs at the same time
func NewRunner(s store.IStore, maxThreads int) *Runner {
	if maxThreads < 1 {
		maxThreads = 1
	}
	return &Runner{store: s, maxThreads: maxThreads}
}

// Summary reports what a single job did
type Summary struct {
	Commands int
	Invalid  int
	Backups  uint64
	Elapsed  time.Duration
}

// IsJobFile reports whether name has the job extension and a non-empty base name
func IsJobFile(name string) bool {
	return len(name) > len(JobExt) && strings.HasSuffix(name, JobExt)
}

// ListJobs returns the regular job files in dir in lexical order
func ListJobs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var paths []string
	for _, e := range entries {
		if !e.Type().IsRegular() || !IsJobFile(e.Name()) {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}

// RunDir runs every job file of dir, at most maxThreads at a time, and waits for all of them.
// A failing job does not stop the others; the first error is returned.
func (r *Runner) RunDir(ctx context.Context, dir string) error {
	paths, err := ListJobs(dir)
	if err != nil {
		return fmt.Errorf("cannot list jobs: %w", err)
	}
	Logger.Infof("running %d jobs from %s with %d threads", len(paths), dir, r.maxThreads)

	g := new(errgroup.Group)
	g.SetLimit(r.maxThreads)
	for _, path := range paths {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			_, err := r.RunFile(ctx, path)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// RunFile runs the job at path and writes its output next to it ("<job>.out").
// Backups are named "<job>-<n>.bck" in the same directory.
func (r *Runner) RunFile(ctx context.Context, path string) (Summary, error) {
	in, err := os.Open(path)
	if err != nil {
		return Summary{}, fmt.Errorf("cannot open job %s: %w", path, err)
	}
	defer in.Close()

	base := strings.TrimSuffix(path, JobExt)
	out, err := os.Create(base + OutExt)
	if err != nil {
		return Summary{}, fmt.Errorf("cannot create output of %s: %w", path, err)
	}

	summary, runErr := r.Run(ctx, base, in, out)
	if err := out.Close(); err != nil && runErr == nil {
		runErr = err
	}
	if runErr != nil {
		return summary, fmt.Errorf("job %s: %w", path, runErr)
	}
	return summary, nil
}

// Run executes the commands read from in and writes the results to out.
// name is used for the backup files of the job, the n-th BACKUP writes "<name>-<n>.bck".
//
// Invalid commands and rejected pairs are logged and skipped. Run stops at the
// end of the input, when ctx is cancelled or when the output can not be written.
func (r *Runner) Run(ctx context.Context, name string, in io.Reader, out io.Writer) (Summary, error) {
	start := time.Now()
	registry := gometrics.NewRegistry()
	parser := NewParser(in)
	job := filepath.Base(name)

	var summary Summary
	for {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		cmd := parser.Next()
		if cmd.Type == CmdEOC {
			if cmd.Err != nil {
				return summary, fmt.Errorf("reading line %d: %w", cmd.Line+1, cmd.Err)
			}
			break
		}
		if cmd.Type == CmdEmpty {
			continue
		}
		summary.Commands++

		cmdStart := time.Now()
		if err := r.exec(ctx, job, name, cmd, out, &summary); err != nil {
			return summary, err
		}
		gometrics.GetOrRegisterTimer(cmd.Type.String(), registry).UpdateSince(cmdStart)
	}

	summary.Elapsed = time.Since(start)
	logSummary(job, summary, registry)
	return summary, nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

func (r *Runner) exec(ctx context.Context, job, name string, cmd Command, out io.Writer, summary *Summary) error {
	switch cmd.Type {
	case CmdWrite:
		pairErrs, err := r.store.Write(cmd.Pairs)
		if err != nil {
			return err
		}
		for i, pairErr := range pairErrs {
			if pairErr != nil {
				Logger.Warningf("%s:%d: failed to write pair %s: %v", job, cmd.Line, cmd.Pairs[i], pairErr)
			}
		}

	case CmdRead:
		results, err := r.store.Read(cmd.Keys)
		if err != nil {
			return err
		}
		return writeString(out, store.RenderRead(results))

	case CmdDelete:
		missing, err := r.store.Delete(cmd.Keys)
		if err != nil {
			return err
		}
		return writeString(out, store.RenderMissing(missing))

	case CmdShow:
		pairs, err := r.store.Show()
		if err != nil {
			return err
		}
		return store.WritePairs(out, pairs)

	case CmdWait:
		if cmd.Delay == 0 {
			return nil
		}
		if err := writeString(out, "Waiting...\n"); err != nil {
			return err
		}
		timer := time.NewTimer(cmd.Delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return ctx.Err()
		}

	case CmdBackup:
		summary.Backups++
		if err := r.store.Backup(name, summary.Backups); err != nil {
			// a failed backup is reported but does not stop the job
			Logger.Errorf("%s:%d: backup %d failed: %v", job, cmd.Line, summary.Backups, err)
			if errors.Is(err, store.ErrClosed) {
				return err
			}
		}

	case CmdHelp:
		return writeString(out, HelpText)

	default:
		summary.Invalid++
		Logger.Warningf("%s:%d: invalid command (%v). See HELP for usage", job, cmd.Line, cmd.Err)
	}
	return nil
}

func writeString(w io.Writer, s string) error {
	if s == "" {
		return nil
	}
	_, err := io.WriteString(w, s)
	return err
}

func logSummary(job string, summary Summary, registry gometrics.Registry) {
	var sb strings.Builder
	registry.Each(func(name string, i interface{}) {
		if t, ok := i.(gometrics.Timer); ok {
			sb.WriteString(fmt.Sprintf(" %s=%d(avg %s)", name, t.Count(), time.Duration(t.Mean())))
		}
	})
	Logger.Infof("job %s finished: %d commands, %d invalid, %d backups in %s;%s",
		job, summary.Commands, summary.Invalid, summary.Backups, summary.Elapsed, sb.String())
}
