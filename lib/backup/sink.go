package backup

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// FileName returns the name of backup number seq of the job or session name
func FileName(name string, seq uint64) string {
	return fmt.Sprintf("%s-%d.bck", name, seq)
}

// IOutput is an open backup target
type IOutput interface {
	io.Writer
	// Commit makes the written data visible under the final name
	Commit() error
	// Abort discards the written data
	Abort()
}

// ISink creates backup outputs
type ISink interface {
	Create(name string, seq uint64) (IOutput, error)
}

// --------------------------------------------------------------------------
// File Sink
// --------------------------------------------------------------------------

// FileSink writes backups to "<Dir>/<name>-<seq>.bck".
// Names containing a directory are used as is when Dir is empty.
// Files are written to a temporary file in the same directory and renamed on
// commit, so a backup file is either complete or absent.
type FileSink struct {
	Dir string
}

func (s FileSink) Create(name string, seq uint64) (IOutput, error) {
	path := FileName(name, seq)
	if s.Dir != "" {
		path = filepath.Join(s.Dir, path)
	}

	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return nil, err
	}
	return &fileOutput{File: f, path: path}, nil
}

type fileOutput struct {
	*os.File
	path string
}

func (o *fileOutput) Commit() error {
	if err := o.Sync(); err != nil {
		o.Abort()
		return err
	}
	if err := o.Close(); err != nil {
		_ = os.Remove(o.Name())
		return err
	}
	return os.Rename(o.Name(), o.path)
}

func (o *fileOutput) Abort() {
	_ = o.Close()
	_ = os.Remove(o.Name())
}
