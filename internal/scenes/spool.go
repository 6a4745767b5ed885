package scenes

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"go.uber.org/zap"
)

const (
	doneDir   = "done"
	failedDir = "failed"
)

// Spool is a directory that receives batch files. Processed files move to
// done/, files that cannot be decoded or processed move to failed/.
type Spool struct {
	dir    string
	logger *zap.SugaredLogger
}

// NewSpool creates dir and its done/ and failed/ subdirectories if needed.
func NewSpool(dir string, logger *zap.SugaredLogger) (*Spool, error) {
	for _, d := range []string{dir, filepath.Join(dir, doneDir), filepath.Join(dir, failedDir)} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, fmt.Errorf("error creating spool directory %s: %w", d, err)
		}
	}
	return &Spool{dir: dir, logger: logger}, nil
}

// Dir returns the spool directory.
func (s *Spool) Dir() string {
	return s.dir
}

// Pending lists the batch files waiting in the spool, oldest name first.
func (s *Spool) Pending() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("error reading spool directory: %w", err)
	}

	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if _, err := FormatOf(e.Name()); err != nil {
			continue
		}
		out = append(out, filepath.Join(s.dir, e.Name()))
	}
	sort.Strings(out)
	return out, nil
}

// ReadFile decodes the batch stored at path.
func ReadFile(path string) (*Batch, error) {
	f, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()

	b, err := Decode(fh, f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	b.Source = path
	return b, nil
}

// Drain hands every pending batch to fn in name order. A batch that fn
// accepts is moved to done/; one that fails to decode, or that fn rejects,
// is moved to failed/ and logged. Drain stops early when ctx is cancelled,
// leaving unread files in place. It returns the number of batches accepted.
func (s *Spool) Drain(ctx context.Context, fn func(context.Context, *Batch) error) (int, error) {
	pending, err := s.Pending()
	if err != nil {
		return 0, err
	}

	accepted := 0
	for _, path := range pending {
		if ctx.Err() != nil {
			return accepted, ctx.Err()
		}

		b, err := ReadFile(path)
		if err == nil {
			err = fn(ctx, b)
		}
		if err != nil {
			if ctx.Err() != nil {
				// Interrupted mid-batch; leave the file for the next pass.
				return accepted, ctx.Err()
			}
			s.logger.Errorf("batch %s failed: %v", filepath.Base(path), err)
			if mvErr := s.move(path, failedDir); mvErr != nil {
				return accepted, mvErr
			}
			continue
		}

		if err := s.move(path, doneDir); err != nil {
			return accepted, err
		}
		accepted++
	}
	return accepted, nil
}

func (s *Spool) move(path, sub string) error {
	dst := filepath.Join(s.dir, sub, filepath.Base(path))
	if err := os.Rename(path, dst); err != nil {
		return fmt.Errorf("error moving %s to %s: %w", filepath.Base(path), sub, err)
	}
	return nil
}
