package sitepatch

import (
	"context"
	"os"
	"runtime"

	"github.com/Jeffail/tunny"
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// FileResult is the outcome for one path. Skipped files did not exist.
type FileResult struct {
	Path    string
	Changed bool
	Skipped bool
	Err     error
}

// ApplyFiles rewrites each file in place with rules on a pool of workers.
// Missing files are skipped. Results are returned in the order of paths; the
// returned error is the first per-file error, if any.
func ApplyFiles(ctx context.Context, rules []Rule, paths []string, workers int) ([]FileResult, error) {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > len(paths) {
		workers = len(paths)
	}
	results := make([]FileResult, len(paths))
	if len(paths) == 0 {
		return results, nil
	}

	log := zap.S().With("module", "stdiorpc.sitepatch")

	pool := tunny.NewFunc(workers, func(payload interface{}) interface{} {
		return applyFile(payload.(string), rules)
	})
	defer pool.Close()

	done := make(chan struct{}, len(paths))
	for i, path := range paths {
		go func(i int, path string) {
			defer func() { done <- struct{}{} }()

			out, err := pool.ProcessCtx(ctx, path)
			if err != nil {
				results[i] = FileResult{Path: path, Err: errors.Wrapf(err, "process %s", path)}
				return
			}
			results[i] = out.(FileResult)
		}(i, path)
	}
	for range paths {
		<-done
	}

	var firstErr error
	for _, r := range results {
		switch {
		case r.Err != nil:
			log.Errorf("Failed %s: %v", r.Path, r.Err)
			if firstErr == nil {
				firstErr = r.Err
			}
		case r.Skipped:
			log.Warnf("Skipped %s: not found", r.Path)
		case r.Changed:
			log.Infof("Updated %s", r.Path)
		default:
			log.Debugf("Unchanged %s", r.Path)
		}
	}
	return results, firstErr
}

func applyFile(path string, rules []Rule) FileResult {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return FileResult{Path: path, Skipped: true}
	}
	if err != nil {
		return FileResult{Path: path, Err: errors.Wrapf(err, "stat %s", path)}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return FileResult{Path: path, Err: errors.Wrapf(err, "read %s", path)}
	}

	out, changed := Apply(string(data), rules)
	if !changed {
		return FileResult{Path: path}
	}

	if err := os.WriteFile(path, []byte(out), info.Mode().Perm()); err != nil {
		return FileResult{Path: path, Err: errors.Wrapf(err, "write %s", path)}
	}
	return FileResult{Path: path, Changed: true}
}
