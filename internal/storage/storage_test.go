// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFileKVRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")

	kv, err := NewFileKV(path)
	if err != nil {
		t.Fatalf("NewFileKV: %v", err)
	}
	if err := kv.Set(ConversationsKey, `[{"id":"conv_1"}]`); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := kv.Set(ActiveConversationKey, "conv_1"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	// A second open sees the persisted state.
	kv2, err := NewFileKV(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	v, ok, err := kv2.Get(ConversationsKey)
	if err != nil || !ok || v != `[{"id":"conv_1"}]` {
		t.Errorf("Get conversations = %q, %v, %v", v, ok, err)
	}
	v, ok, _ = kv2.Get(ActiveConversationKey)
	if !ok || v != "conv_1" {
		t.Errorf("Get active = %q, %v", v, ok)
	}
}

func TestFileKVMissingKey(t *testing.T) {
	kv, err := NewFileKV(filepath.Join(t.TempDir(), "state.json"))
	if err != nil {
		t.Fatalf("NewFileKV: %v", err)
	}
	_, ok, err := kv.Get(ConversationsKey)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Error("missing key reported as present")
	}
}

func TestFileKVCorruptedFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	if err := os.WriteFile(path, []byte("{not json"), 0600); err != nil {
		t.Fatal(err)
	}

	kv, err := NewFileKV(path)
	if err != nil {
		t.Fatalf("NewFileKV on corrupt file: %v", err)
	}
	_, ok, _ := kv.Get(ConversationsKey)
	if ok {
		t.Error("corrupt file should yield an empty store")
	}

	// And the store still accepts writes.
	if err := kv.Set(ActiveConversationKey, ""); err != nil {
		t.Errorf("Set after corrupt load: %v", err)
	}
}

func TestFileKVEmptyStringValue(t *testing.T) {
	kv, err := NewFileKV(filepath.Join(t.TempDir(), "state.json"))
	if err != nil {
		t.Fatalf("NewFileKV: %v", err)
	}

	// Empty string is the "no active conversation" sentinel and must be
	// distinguishable from a missing key.
	if err := kv.Set(ActiveConversationKey, ""); err != nil {
		t.Fatalf("Set: %v", err)
	}
	v, ok, _ := kv.Get(ActiveConversationKey)
	if !ok || v != "" {
		t.Errorf("Get = %q, %v; want empty string present", v, ok)
	}
}

func TestFileKVReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	kv, err := NewFileKV(path)
	if err != nil {
		t.Fatalf("NewFileKV: %v", err)
	}
	if err := kv.Set(ActiveConversationKey, "conv_a"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	// Simulate an external writer.
	if err := os.WriteFile(path, []byte(`{"active_conversation":"conv_b"}`), 0600); err != nil {
		t.Fatal(err)
	}
	if err := kv.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	v, ok, _ := kv.Get(ActiveConversationKey)
	if !ok || v != "conv_b" {
		t.Errorf("after reload, active = %q, %v", v, ok)
	}
}

func TestSQLiteKVRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")

	kv, err := NewSQLiteKV(path)
	if err != nil {
		t.Fatalf("NewSQLiteKV: %v", err)
	}
	defer kv.Close()

	if err := kv.Set(ConversationsKey, "[]"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	v, ok, err := kv.Get(ConversationsKey)
	if err != nil || !ok || v != "[]" {
		t.Errorf("Get = %q, %v, %v", v, ok, err)
	}

	// Overwrite.
	if err := kv.Set(ConversationsKey, `[{"id":"x"}]`); err != nil {
		t.Fatalf("Set overwrite: %v", err)
	}
	v, _, _ = kv.Get(ConversationsKey)
	if v != `[{"id":"x"}]` {
		t.Errorf("overwrite not applied: %q", v)
	}

	_, ok, err = kv.Get("nope")
	if err != nil || ok {
		t.Errorf("missing key = %v, %v", ok, err)
	}
}

func TestOpenBackendSelection(t *testing.T) {
	dir := t.TempDir()

	kv, err := Open(BackendFile, filepath.Join(dir, "s.json"))
	if err != nil {
		t.Fatalf("Open file: %v", err)
	}
	if _, ok := kv.(*FileKV); !ok {
		t.Errorf("Open(file) = %T", kv)
	}

	kv, err = Open(BackendSQLite, filepath.Join(dir, "s.db"))
	if err != nil {
		t.Fatalf("Open sqlite: %v", err)
	}
	if _, ok := kv.(*SQLiteKV); !ok {
		t.Errorf("Open(sqlite) = %T", kv)
	}
	kv.Close()

	if _, err := Open("bogus", ""); err != ErrUnknownBackend {
		t.Errorf("Open(bogus) err = %v", err)
	}
}
