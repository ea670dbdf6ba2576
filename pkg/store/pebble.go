package store

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"ingestd/pkg/logger"
	"ingestd/pkg/telemetry"

	"github.com/cockroachdb/pebble"
)

var Client *pebble.DB
var StorePath string

// Open opens (or creates) the Pebble database at the given path and keeps
// a global handle for simple usage across packages.
func Open(path string) error {
	if Client != nil {
		return nil // already opened
	}
	var err error
	Client, err = pebble.Open(path, &pebble.Options{})
	if err != nil {
		logger.Error("pebble_open_failed", "path", path, "error", err)
		return err
	}
	StorePath = path
	logger.Info("pebble_opened", "path", path)
	return nil
}

// Close closes the opened pebble Client if present.
func Close() error {
	if Client == nil {
		return nil
	}
	if err := Client.Close(); err != nil {
		return err
	}
	Client = nil
	return nil
}

// Ready reports whether the store is opened and ready.
func Ready() bool {
	return Client != nil
}

// IsNotFound returns true if err is pebble.ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, pebble.ErrNotFound)
}

// ListKeys returns all keys (as strings) that start with the given prefix.
// If prefix is empty it returns all keys in the DB.
func ListKeys(prefix string) ([]string, error) {
	tr := telemetry.Track("db.list_keys")
	defer tr.Finish()

	if Client == nil {
		return nil, fmt.Errorf("pebble not opened; call store.Open first")
	}
	defer observe("list_keys", time.Now())
	var pfx []byte
	if prefix != "" {
		pfx = []byte(prefix)
	}
	iter, err := Client.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var out []string
	if pfx == nil {
		for iter.First(); iter.Valid(); iter.Next() {
			k := append([]byte(nil), iter.Key()...)
			out = append(out, string(k))
		}
	} else {
		for iter.SeekGE(pfx); iter.Valid(); iter.Next() {
			if !bytes.HasPrefix(iter.Key(), pfx) {
				break
			}
			k := append([]byte(nil), iter.Key()...)
			out = append(out, string(k))
		}
	}
	return out, iter.Error()
}

// GetKey returns the raw value for key as a string.
func GetKey(key string) (string, error) {
	tr := telemetry.Track("db.get_key")
	defer tr.Finish()

	if Client == nil {
		return "", fmt.Errorf("pebble not opened; call store.Open first")
	}
	defer observe("get", time.Now())
	v, closer, err := Client.Get([]byte(key))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			logger.Debug("get_key_missing", "key", key)
		} else {
			logger.Error("get_key_failed", "key", key, "error", err)
		}
		return "", err
	}
	if closer != nil {
		defer closer.Close()
	}
	return string(v), nil
}

// SaveKey stores a key/value pair with a durable (synced) write. Callers
// should choose a safe namespace (e.g. "led:", "job:", "sched:").
func SaveKey(key string, value []byte) error {
	return SaveKeyOpt(key, value, true)
}

// SaveKeyOpt stores a key/value pair; requestSync false skips the WAL
// fsync for high-rate writes whose loss is tolerable.
func SaveKeyOpt(key string, value []byte, requestSync bool) error {
	if Client == nil {
		return fmt.Errorf("pebble not opened; call store.Open first")
	}
	defer observe("set", time.Now())
	if err := Client.Set([]byte(key), value, WriteOpt(requestSync)); err != nil {
		logger.Error("save_key_failed", "key", key, "error", err)
		return err
	}
	return nil
}

// DeleteKey removes a key with a durable write.
func DeleteKey(key string) error {
	if Client == nil {
		return fmt.Errorf("pebble not opened; call store.Open first")
	}
	defer observe("delete", time.Now())
	if err := Client.Delete([]byte(key), WriteOpt(true)); err != nil {
		logger.Error("delete_key_failed", "key", key, "error", err)
		return err
	}
	logger.Debug("delete_key_ok", "key", key)
	return nil
}

// DeletePrefix removes every key under the given prefix in a single batch.
// Returns the number of keys deleted.
func DeletePrefix(prefix string) (int, error) {
	tr := telemetry.Track("db.delete_prefix")
	defer tr.Finish()

	if Client == nil {
		return 0, fmt.Errorf("pebble not opened; call store.Open first")
	}
	if prefix == "" {
		return 0, fmt.Errorf("refusing to delete with empty prefix")
	}
	defer observe("delete_prefix", time.Now())

	batch := Client.NewBatch()
	defer batch.Close()

	pfx := []byte(prefix)
	iter, err := Client.NewIter(&pebble.IterOptions{})
	if err != nil {
		return 0, err
	}
	defer iter.Close()

	n := 0
	for iter.SeekGE(pfx); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), pfx) {
			break
		}
		if err := batch.Delete(iter.Key(), nil); err != nil {
			return 0, err
		}
		n++
	}
	if err := iter.Error(); err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, nil
	}
	if err := batch.Commit(WriteOpt(true)); err != nil {
		logger.Error("delete_prefix_failed", "prefix", prefix, "error", err)
		return 0, err
	}
	return n, nil
}

// Iter returns a raw iterator; caller must close it.
func Iter() (*pebble.Iterator, error) {
	if Client == nil {
		return nil, fmt.Errorf("pebble not opened; call store.Open first")
	}
	return Client.NewIter(&pebble.IterOptions{})
}

// ApplyBatch applies a prepared batch with the requested durability.
func ApplyBatch(batch *pebble.Batch, sync bool) error {
	if Client == nil {
		return fmt.Errorf("pebble not opened; call store.Open first")
	}
	defer observe("apply_batch", time.Now())
	if err := Client.Apply(batch, WriteOpt(sync)); err != nil {
		logger.Error("pebble_apply_batch_failed", "error", err)
		return err
	}
	return nil
}

// WriteOpt maps a durability request onto pebble write options.
func WriteOpt(requestSync bool) *pebble.WriteOptions {
	if requestSync {
		return pebble.Sync
	}
	return pebble.NoSync
}
