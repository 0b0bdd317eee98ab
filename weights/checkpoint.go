package weights

import (
	"bufio"
	"os"
	"path/filepath"
	"strconv"

	"github.com/gofrs/flock"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/teatak/latseg/dictionary"
)

// Save writes the table as ordered "unit\tlogw[\tlogw...]" lines. Real
// weights are written as logs. The file is replaced atomically while
// holding path + ".lock".
func (t *Table) Save(path string) error {
	lockPath := path + ".lock"
	return execOnFileLock(lockPath, func() error {
		tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp*")
		if err != nil {
			return errors.Wrapf(err, "creating temporary file for %q", path)
		}
		defer os.Remove(tmp.Name())

		if err := t.write(tmp); err != nil {
			tmp.Close()
			return errors.WithMessagef(err, "writing %q", tmp.Name())
		}
		if err := tmp.Close(); err != nil {
			return errors.Wrapf(err, "closing %q", tmp.Name())
		}
		if err := os.Rename(tmp.Name(), path); err != nil {
			return errors.Wrapf(err, "renaming %q to %q", tmp.Name(), path)
		}
		klog.V(1).Infof("saved %d units x %d components to %s", t.dict.Len(), t.opts.Components, path)
		return nil
	})
}

func (t *Table) write(f *os.File) error {
	t.mu.RLock()
	defer t.mu.RUnlock()

	w := bufio.NewWriter(f)
	buf := make([]byte, 0, 64)
	for id := 0; id < t.dict.Len(); id++ {
		buf = append(buf[:0], t.dict.Unit(id)...)
		for k := 0; k < t.opts.Components; k++ {
			buf = append(buf, '\t')
			buf = strconv.AppendFloat(buf, t.logWeight(id, k), 'g', -1, 64)
		}
		buf = append(buf, '\n')
		if _, err := w.Write(buf); err != nil {
			return err
		}
	}
	return w.Flush()
}

// Load reads a checkpoint written by Save together with its vocabulary. A
// file without weights yields a uniform table.
func Load(path string, dopts dictionary.Options, opts Options) (*Table, error) {
	dict, rows, err := dictionary.Load(path, dopts)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		return New(dict, opts)
	}
	t, err := FromRows(dict, rows, opts)
	if err != nil {
		return nil, errors.WithMessagef(err, "checkpoint %q", path)
	}
	return t, nil
}

// execOnFileLock locks lockPath, blocking until it is free, and runs fn.
func execOnFileLock(lockPath string, fn func() error) (err error) {
	fileLock := flock.New(lockPath)
	if err := fileLock.Lock(); err != nil {
		return errors.Wrapf(err, "while trying to lock %q", lockPath)
	}
	defer func() {
		unlockErr := fileLock.Unlock()
		if unlockErr != nil {
			if err == nil {
				err = errors.Wrapf(unlockErr, "unlocking file %q", lockPath)
			} else {
				klog.Errorf("Error unlocking file %q: %v", lockPath, unlockErr)
			}
		}
	}()
	return fn()
}
