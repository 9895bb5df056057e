package logging

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// RotatingFile is an io.WriteCloser that moves the current file to path.1
// (shifting older backups up) once maxBytes would be exceeded.
type RotatingFile struct {
	mu         sync.Mutex
	path       string
	maxBytes   int64
	maxBackups int
	file       *os.File
	size       int64
}

func OpenRotatingFile(path string, maxBytes int64, maxBackups int) (*RotatingFile, error) {
	if path == "" {
		return nil, errors.New("log path is required")
	}
	if maxBytes <= 0 {
		return nil, errors.New("max log size must be positive")
	}
	if maxBackups < 0 {
		maxBackups = 0
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	rf := &RotatingFile{path: path, maxBytes: maxBytes, maxBackups: maxBackups}
	if err := rf.open(os.O_APPEND); err != nil {
		return nil, err
	}
	if rf.size > rf.maxBytes {
		if err := rf.rotate(); err != nil {
			return nil, err
		}
	}
	return rf, nil
}

func (rf *RotatingFile) Write(p []byte) (int, error) {
	rf.mu.Lock()
	defer rf.mu.Unlock()

	if rf.file == nil {
		return 0, os.ErrClosed
	}
	// a single record larger than maxBytes still lands in an empty file
	if rf.size > 0 && rf.size+int64(len(p)) > rf.maxBytes {
		if err := rf.rotate(); err != nil {
			return 0, err
		}
	}

	n, err := rf.file.Write(p)
	rf.size += int64(n)
	return n, err
}

func (rf *RotatingFile) Close() error {
	rf.mu.Lock()
	defer rf.mu.Unlock()

	if rf.file == nil {
		return nil
	}
	err := rf.file.Close()
	rf.file = nil
	return err
}

func (rf *RotatingFile) open(mode int) error {
	f, err := os.OpenFile(rf.path, os.O_CREATE|os.O_WRONLY|mode, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	rf.file = f
	rf.size = 0
	if mode == os.O_APPEND {
		if st, err := f.Stat(); err == nil {
			rf.size = st.Size()
		}
	}
	return nil
}

func (rf *RotatingFile) rotate() error {
	if rf.file != nil {
		if err := rf.file.Close(); err != nil {
			return err
		}
		rf.file = nil
	}

	if rf.maxBackups == 0 {
		if err := os.Remove(rf.path); err != nil && !os.IsNotExist(err) {
			return err
		}
	} else if err := rf.shift(); err != nil {
		return err
	}

	return rf.open(os.O_TRUNC)
}

func (rf *RotatingFile) shift() error {
	if err := removeIfExists(rf.backup(rf.maxBackups)); err != nil {
		return err
	}
	for i := rf.maxBackups - 1; i >= 1; i-- {
		if err := renameIfExists(rf.backup(i), rf.backup(i+1)); err != nil {
			return err
		}
	}
	return renameIfExists(rf.path, rf.backup(1))
}

func (rf *RotatingFile) backup(idx int) string {
	return fmt.Sprintf("%s.%d", rf.path, idx)
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func renameIfExists(src, dst string) error {
	if _, err := os.Stat(src); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if err := removeIfExists(dst); err != nil {
		return err
	}
	return os.Rename(src, dst)
}
