package durable

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/roach88/fxledger/internal/ledger"
)

// Artifact file names inside the state directory.
const (
	AccountsFile = "accounts.json"
	RatesFile    = "rates.json"
	LogFile      = "log.json"
)

// Temp files are named ".<name>.tmp-<random>" next to their destination.
const tempSuffix = ".tmp-"

// FileBackend stores each artifact as a JSON file in one directory.
//
// Every file is replaced atomically: the new content is written to a temp
// file in the same directory, fsynced, then renamed over the destination.
// Artifacts are independent files, so a Save touching several of them is
// atomic per file, not across files.
type FileBackend struct {
	dir string
}

// OpenFile prepares dir (creating it if needed) and removes temp files left
// behind by an interrupted write.
func OpenFile(dir string) (*FileBackend, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	b := &FileBackend{dir: dir}
	if err := b.removeStaleTemps(); err != nil {
		return nil, err
	}
	return b, nil
}

// Dir returns the state directory.
func (b *FileBackend) Dir() string {
	return b.dir
}

// Load reads all three artifacts.
func (b *FileBackend) Load(ctx context.Context) (*ledger.Snapshot, error) {
	snap := &ledger.Snapshot{
		Accounts: []ledger.Account{},
		Rates:    ledger.RateTable{},
		Log:      []ledger.LogEntry{},
	}

	if data, ok, err := b.read(AccountsFile); err != nil {
		return nil, err
	} else if ok {
		if snap.Accounts, err = DecodeAccounts(data); err != nil {
			return nil, fmt.Errorf("load %s: %w", AccountsFile, err)
		}
	}

	if data, ok, err := b.read(RatesFile); err != nil {
		return nil, err
	} else if ok {
		if snap.Rates, err = DecodeRates(data); err != nil {
			return nil, fmt.Errorf("load %s: %w", RatesFile, err)
		}
	}

	if data, ok, err := b.read(LogFile); err != nil {
		return nil, err
	} else if ok {
		if snap.Log, err = DecodeLog(data); err != nil {
			return nil, fmt.Errorf("load %s: %w", LogFile, err)
		}
	}

	return snap, nil
}

// read returns (nil, false, nil) when the file does not exist.
func (b *FileBackend) read(name string) ([]byte, bool, error) {
	data, err := os.ReadFile(filepath.Join(b.dir, name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read %s: %w", name, err)
	}
	return data, true, nil
}

// Save writes the selected artifacts. Everything is encoded before the first
// file is touched, so an encoding error writes nothing.
func (b *FileBackend) Save(ctx context.Context, snap *ledger.Snapshot, which ledger.Artifact) error {
	type pending struct {
		name string
		data []byte
	}
	var writes []pending

	encoders := []struct {
		artifact ledger.Artifact
		name     string
		encode   func(*ledger.Snapshot) ([]byte, error)
	}{
		{ledger.ArtifactAccounts, AccountsFile, EncodeAccounts},
		{ledger.ArtifactRates, RatesFile, EncodeRates},
		{ledger.ArtifactLog, LogFile, EncodeLog},
	}
	for _, enc := range encoders {
		if !which.Has(enc.artifact) {
			continue
		}
		data, err := enc.encode(snap)
		if err != nil {
			return fmt.Errorf("encode %s: %w", enc.name, err)
		}
		writes = append(writes, pending{name: enc.name, data: data})
	}

	for _, w := range writes {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := WriteFileAtomic(filepath.Join(b.dir, w.name), w.data, 0o644); err != nil {
			return err
		}
	}
	return nil
}

// Close is a no-op; files are closed after every write.
func (b *FileBackend) Close() error {
	return nil
}

func (b *FileBackend) removeStaleTemps() error {
	matches, err := filepath.Glob(filepath.Join(b.dir, ".*"+tempSuffix+"*"))
	if err != nil {
		return fmt.Errorf("scan temp files: %w", err)
	}
	for _, m := range matches {
		if err := os.Remove(m); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("remove stale temp file: %w", err)
		}
	}
	return nil
}

// WriteFileAtomic replaces path with data. A crash at any point leaves
// either the old or the new content at path, never a partial file. On
// failure the temp file is removed.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) (err error) {
	dir, base := filepath.Split(path)
	if dir == "" {
		dir = "."
	}

	tmp, err := os.CreateTemp(dir, "."+base+tempSuffix+"*")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", base, err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmpName)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		return fmt.Errorf("write temp for %s: %w", base, err)
	}
	if err = tmp.Chmod(perm); err != nil {
		return fmt.Errorf("chmod temp for %s: %w", base, err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp for %s: %w", base, err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close temp for %s: %w", base, err)
	}
	if err = os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename temp over %s: %w", base, err)
	}

	return syncDir(dir)
}

// syncDir makes a completed rename durable.
func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("open dir for sync: %w", err)
	}
	defer d.Close()
	if err := d.Sync(); err != nil {
		return fmt.Errorf("sync dir: %w", err)
	}
	return nil
}
