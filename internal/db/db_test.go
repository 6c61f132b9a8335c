package db

import (
	"path/filepath"
	"testing"
)

func TestOpenCreatesSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "treeremote.db")

	d, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer d.Close()

	var name string
	err = d.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'command_ledger'`).Scan(&name)
	if err != nil {
		t.Fatalf("command_ledger table missing: %v", err)
	}

	// Reopening must not fail on the existing schema.
	d2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	d2.Close()
}
