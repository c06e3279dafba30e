package jobs

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/sync/errgroup"
)

// DefaultSettle is the time a job file must stay unchanged before it is run in watch mode
const DefaultSettle = 200 * time.Millisecond

// Watch runs every job file of dir and then every job file that is created or
// modified later, until ctx is cancelled. A file runs once no event was seen
// for it during settle. Errors of single jobs are logged and do not stop the watch.
func (r *Runner) Watch(ctx context.Context, dir string, settle time.Duration) error {
	if settle <= 0 {
		settle = DefaultSettle
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("cannot create watcher: %w", err)
	}
	defer watcher.Close()

	// watch before listing, so no file created in between is missed
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("cannot watch %s: %w", dir, err)
	}

	g := new(errgroup.Group)
	g.SetLimit(r.maxThreads)
	run := func(path string) {
		g.Go(func() error {
			if _, err := r.RunFile(ctx, path); err != nil && ctx.Err() == nil {
				Logger.Errorf("%v", err)
			}
			return nil
		})
	}

	paths, err := ListJobs(dir)
	if err != nil {
		return fmt.Errorf("cannot list jobs: %w", err)
	}
	Logger.Infof("watching %s (%d existing jobs)", dir, len(paths))
	for _, path := range paths {
		run(path)
	}

	// timers and the ready channel are only touched by this goroutine
	timers := make(map[string]*time.Timer)
	ready := make(chan string)

	defer func() {
		for _, t := range timers {
			t.Stop()
		}
		_ = g.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			Logger.Infof("stopped watching %s", dir)
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !IsJobFile(filepath.Base(ev.Name)) || !(ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write)) {
				continue
			}
			path := ev.Name
			if t, ok := timers[path]; ok {
				t.Reset(settle)
				continue
			}
			timers[path] = time.AfterFunc(settle, func() {
				select {
				case ready <- path:
				case <-ctx.Done():
				}
			})

		case path := <-ready:
			delete(timers, path)
			Logger.Debugf("new job %s", path)
			run(path)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			Logger.Warningf("watcher error: %v", err)
		}
	}
}
