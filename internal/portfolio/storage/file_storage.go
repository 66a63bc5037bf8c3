package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ducminhle1904/crypto-trading-core/internal/portfolio"
)

// staleLockAge is how old a lock file must be before another process may
// steal it.
const staleLockAge = 5 * time.Minute

// FileStorage implements portfolio.StateManager with atomic file writes.
type FileStorage struct {
	mu       sync.RWMutex
	filePath string
	lockFile string
	isLocked bool
}

// NewFileStorage creates a file-based state manager.
func NewFileStorage(filePath string) *FileStorage {
	if filePath == "" {
		filePath = "portfolio_state.json"
	}

	dir := filepath.Dir(filePath)
	if dir != "." {
		os.MkdirAll(dir, 0755)
	}

	return &FileStorage{
		filePath: filePath,
		lockFile: filePath + ".lock",
	}
}

// Save writes the portfolio state atomically: a temp file is written first
// and renamed over the target, so readers never observe a torn state.
func (f *FileStorage) Save(state *portfolio.State) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if state == nil {
		return fmt.Errorf("cannot save nil state")
	}

	state.LastUpdated = time.Now()

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal portfolio state: %w", err)
	}

	tempFile := f.filePath + ".tmp"
	if err := os.WriteFile(tempFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write temporary state file: %w", err)
	}

	if err := os.Rename(tempFile, f.filePath); err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to commit state file: %w", err)
	}

	return nil
}

// Load reads and validates the persisted portfolio state.
func (f *FileStorage) Load() (*portfolio.State, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if _, err := os.Stat(f.filePath); os.IsNotExist(err) {
		return nil, fmt.Errorf("portfolio state file does not exist: %s", f.filePath)
	}

	data, err := os.ReadFile(f.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read portfolio state file: %w", err)
	}

	var state portfolio.State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal portfolio state: %w", err)
	}

	if err := validateState(&state); err != nil {
		return nil, fmt.Errorf("invalid portfolio state: %w", err)
	}

	return &state, nil
}

// Lock creates a lock file to prevent concurrent access from another process.
func (f *FileStorage) Lock() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.isLocked {
		return fmt.Errorf("storage is already locked")
	}

	if _, err := os.Stat(f.lockFile); err == nil {
		if err := f.checkStaleLock(); err != nil {
			return err
		}
	}

	lockInfo := map[string]interface{}{
		"timestamp": time.Now().Format(time.RFC3339),
		"pid":       os.Getpid(),
		"hostname":  getHostname(),
	}

	lockData, err := json.Marshal(lockInfo)
	if err != nil {
		return fmt.Errorf("failed to create lock data: %w", err)
	}

	if err := os.WriteFile(f.lockFile, lockData, 0644); err != nil {
		return fmt.Errorf("failed to create lock file: %w", err)
	}

	f.isLocked = true
	return nil
}

// Unlock removes the lock file.
func (f *FileStorage) Unlock() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.isLocked {
		return nil
	}

	if err := os.Remove(f.lockFile); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove lock file: %w", err)
	}

	f.isLocked = false
	return nil
}

// Backup copies the current state file aside with a timestamp suffix.
func (f *FileStorage) Backup() (string, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if _, err := os.Stat(f.filePath); os.IsNotExist(err) {
		return "", fmt.Errorf("no state file to backup")
	}

	timestamp := time.Now().Format("20060102_150405")
	backupPath := fmt.Sprintf("%s.backup_%s", f.filePath, timestamp)

	data, err := os.ReadFile(f.filePath)
	if err != nil {
		return "", fmt.Errorf("failed to read state file for backup: %w", err)
	}

	if err := os.WriteFile(backupPath, data, 0644); err != nil {
		return "", fmt.Errorf("failed to create backup file: %w", err)
	}

	return backupPath, nil
}

func validateState(state *portfolio.State) error {
	if state.CashBalance < 0 {
		return fmt.Errorf("negative cash balance: %.2f", state.CashBalance)
	}

	seen := make(map[string]bool, len(state.Positions))
	for i := range state.Positions {
		pos := &state.Positions[i]
		if pos.Symbol == "" {
			return fmt.Errorf("position %d has no symbol", i)
		}
		if seen[pos.Symbol] {
			return fmt.Errorf("duplicate open position for %s", pos.Symbol)
		}
		seen[pos.Symbol] = true
		if pos.Amount <= 0 {
			return fmt.Errorf("open position %s has non-positive amount %.8f", pos.Symbol, pos.Amount)
		}
		if pos.EntryPrice <= 0 {
			return fmt.Errorf("open position %s has invalid entry price %.4f", pos.Symbol, pos.EntryPrice)
		}
	}

	return nil
}

func (f *FileStorage) checkStaleLock() error {
	lockData, err := os.ReadFile(f.lockFile)
	if err != nil {
		return fmt.Errorf("failed to read lock file: %w", err)
	}

	var lockInfo map[string]interface{}
	if err := json.Unmarshal(lockData, &lockInfo); err != nil {
		// Corrupt lock file, safe to remove.
		os.Remove(f.lockFile)
		return nil
	}

	if timestampStr, ok := lockInfo["timestamp"].(string); ok {
		if timestamp, err := time.Parse(time.RFC3339, timestampStr); err == nil {
			if time.Since(timestamp) > staleLockAge {
				os.Remove(f.lockFile)
				return nil
			}
		}
	}

	return fmt.Errorf("portfolio storage is locked by another process")
}

func getHostname() string {
	hostname, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return hostname
}
