package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/nugget/tether/internal/opstate"
)

// runStatus prints the journal written by a running (or the last)
// supervisor process.
func runStatus(w io.Writer, configPath, outputFmt string) error {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	dbPath := filepath.Join(cfg.DataDir, journalFile)
	if _, err := os.Stat(dbPath); errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("no state journal at %s (has tether run been started?)", dbPath)
	}

	store, err := opstate.NewStore(dbPath)
	if err != nil {
		return fmt.Errorf("open state journal: %w", err)
	}
	defer store.Close()

	snap, err := opstate.NewJournal(store, nil).Snapshot()
	if err != nil {
		return fmt.Errorf("read state journal: %w", err)
	}

	if outputFmt == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	}

	keys := make([]string, 0, len(snap))
	for k := range snap {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "%-13s %s\n", k+":", snap[k])
	}
	return nil
}
