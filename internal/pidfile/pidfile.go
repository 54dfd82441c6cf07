// Package pidfile keeps a single botsweep process per PID file, so that two
// cleaners on one host do not sweep the same table at once.
package pidfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// ErrAlreadyRunning is returned by Acquire when the file names a live process.
var ErrAlreadyRunning = errors.New("another botsweep process is running")

// File is an acquired PID file. The file stays open and exclusively
// locked until Release.
type File struct {
	path string
	pid  int
	file *os.File
}

// Acquire locks path and writes the current PID to it. A file left behind
// by a process that no longer exists is taken over.
func Acquire(path string) (*File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create PID directory: %w", err)
	}

	for {
		file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
		if err != nil {
			return nil, fmt.Errorf("failed to open PID file: %w", err)
		}

		if err := syscall.Flock(int(file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
			file.Close()
			if errors.Is(err, syscall.EWOULDBLOCK) {
				return nil, runningError(path)
			}
			return nil, fmt.Errorf("failed to lock PID file: %w", err)
		}

		// the previous holder may have removed the file between our open and our lock
		if !samePath(file, path) {
			file.Close()
			continue
		}

		if pid, err := Read(path); err == nil && pid != os.Getpid() && IsRunning(pid) {
			file.Close()
			return nil, fmt.Errorf("%w (pid %d, %s)", ErrAlreadyRunning, pid, path)
		}

		pid := os.Getpid()
		if err := file.Truncate(0); err != nil {
			file.Close()
			return nil, fmt.Errorf("failed to write PID file: %w", err)
		}
		if _, err := file.WriteAt([]byte(strconv.Itoa(pid)+"\n"), 0); err != nil {
			file.Close()
			return nil, fmt.Errorf("failed to write PID file: %w", err)
		}

		return &File{path: path, pid: pid, file: file}, nil
	}
}

func runningError(path string) error {
	if pid, err := Read(path); err == nil {
		return fmt.Errorf("%w (pid %d, %s)", ErrAlreadyRunning, pid, path)
	}
	return fmt.Errorf("%w (%s)", ErrAlreadyRunning, path)
}

func samePath(file *os.File, path string) bool {
	opened, err := file.Stat()
	if err != nil {
		return false
	}
	current, err := os.Stat(path)
	if err != nil {
		return false
	}
	return os.SameFile(opened, current)
}

// Release removes the file if it still holds our PID and drops the lock.
func (f *File) Release() error {
	if f == nil || f.file == nil {
		return nil
	}
	defer func() {
		f.file.Close()
		f.file = nil
	}()

	if pid, err := Read(f.path); err != nil || pid != f.pid {
		return nil
	}
	// remove while still locked, so a waiting Acquire sees a fresh inode
	if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Path returns the file location.
func (f *File) Path() string {
	return f.path
}

// Read returns the PID stored in path.
func Read(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid PID file %s: %w", path, err)
	}

	return pid, nil
}

// IsRunning проверяет что процесс запущен
func IsRunning(pid int) bool {
	if pid <= 0 {
		return false
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	// Send signal 0 - проверяет существование процесса
	err = process.Signal(syscall.Signal(0))
	return err == nil || errors.Is(err, syscall.EPERM)
}
