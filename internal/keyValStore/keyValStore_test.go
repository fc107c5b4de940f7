package keyValStore

import (
	"errors"
	"io"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"
)

func newTestStore(t *testing.T) *KeyValStore {
	t.Helper()

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	kv, err := NewKeyValStore(StoreConfig{InMemory: true, Logger: logger})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() {
		if err := kv.Close(); err != nil {
			t.Errorf("failed to close store: %v", err)
		}
	})
	return kv
}

func TestWriteReadDelete(t *testing.T) {
	kv := newTestStore(t)

	if err := kv.Write([]byte("key"), []byte("value")); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	value, err := kv.Read([]byte("key"))
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if string(value) != "value" {
		t.Fatalf("unexpected value: %q", value)
	}

	if err := kv.Delete([]byte("key")); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, err := kv.Read([]byte("key")); !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("expected ErrKeyNotFound, got %v", err)
	}
}

func TestReadMissingKey(t *testing.T) {
	kv := newTestStore(t)

	if _, err := kv.Read([]byte("absent")); !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("expected ErrKeyNotFound, got %v", err)
	}
}

func TestReadPrefix(t *testing.T) {
	kv := newTestStore(t)

	entries := map[string]string{
		"capsule:p1:a": "1",
		"capsule:p1:b": "2",
		"capsule:p2:c": "3",
		"palace:p1":    "4",
	}
	for key, value := range entries {
		if err := kv.Write([]byte(key), []byte(value)); err != nil {
			t.Fatalf("write %q failed: %v", key, err)
		}
	}

	seen := make(map[string]string)
	err := kv.ReadPrefix([]byte("capsule:p1:"), func(key, value []byte) error {
		seen[string(key)] = string(value)
		return nil
	})
	if err != nil {
		t.Fatalf("prefix read failed: %v", err)
	}
	if len(seen) != 2 || seen["capsule:p1:a"] != "1" || seen["capsule:p1:b"] != "2" {
		t.Fatalf("unexpected prefix results: %v", seen)
	}
}

// A failing transaction must leave none of its writes behind.
func TestUpdateRollsBackOnError(t *testing.T) {
	kv := newTestStore(t)

	wantErr := errors.New("abort")
	err := kv.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte("a"), []byte("1")); err != nil {
			return err
		}
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected abort error, got %v", err)
	}

	if _, err := kv.Read([]byte("a")); !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("expected ErrKeyNotFound after rollback, got %v", err)
	}
}
