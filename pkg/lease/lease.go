// Package lease provides a file-based mutual-exclusion lease with a TTL.
// The engine takes one per job so a manual run and a firing continuation
// can never process items concurrently; the retention sweep takes its own.
package lease

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"ingestd/pkg/logger"
)

// ErrNotOwner is returned by Renew/Release when the lease file names a
// different owner.
var ErrNotOwner = errors.New("not lease owner")

// Lease is a lock file holding the owner id and an expiry timestamp.
// Acquisition is atomic via link(2); an expired lease may be taken over.
type Lease struct {
	path string
	now  func() time.Time
}

type leaseFile struct {
	Owner   string `json:"owner"`
	Expires string `json:"expires"`
}

// New returns a lease backed by <dir>/<name>.lock.
func New(dir, name string) *Lease {
	return &Lease{path: filepath.Join(dir, name+".lock"), now: time.Now}
}

// Acquire attempts to take the lease for ttl. Returns false when another
// owner holds an unexpired lease.
func (l *Lease) Acquire(owner string, ttl time.Duration) (bool, error) {
	now := l.now().UTC()
	exp := now.Add(ttl)
	lf := leaseFile{Owner: owner, Expires: exp.Format(time.RFC3339)}
	b, _ := json.Marshal(lf)
	tmp := l.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		logger.Error("lease_tmp_write_failed", "path", tmp, "error", err)
		return false, err
	}
	// attempt to create lock atomically if not exists
	if err := os.Link(tmp, l.path); err == nil {
		os.Remove(tmp)
		logger.Debug("lease_acquired_via_link", "path", l.path, "owner", owner)
		return true, nil
	}
	// if exists, read and check expiry
	data, err := os.ReadFile(l.path)
	if err != nil {
		os.Remove(tmp)
		return false, err
	}
	var existing leaseFile
	if err := json.Unmarshal(data, &existing); err != nil {
		os.Remove(tmp)
		return false, err
	}
	expT, _ := time.Parse(time.RFC3339, existing.Expires)
	if expT.Before(now) {
		// expired, try to replace
		if err := os.Rename(tmp, l.path); err != nil {
			logger.Error("lease_replace_failed", "error", err)
			return false, err
		}
		logger.Info("lease_took_over_expired", "path", l.path, "owner", owner, "previous", existing.Owner)
		return true, nil
	}
	os.Remove(tmp)
	logger.Debug("lease_currently_held", "path", l.path, "owner", existing.Owner)
	return false, nil
}

// Renew extends the lease by ttl. The caller must be the current owner.
func (l *Lease) Renew(owner string, ttl time.Duration) error {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return err
	}
	var existing leaseFile
	if err := json.Unmarshal(data, &existing); err != nil {
		return err
	}
	if existing.Owner != owner {
		return ErrNotOwner
	}
	existing.Expires = l.now().UTC().Add(ttl).Format(time.RFC3339)
	b, _ := json.Marshal(existing)
	tmp := l.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		logger.Error("lease_renew_tmp_write_failed", "error", err)
		return err
	}
	if err := os.Rename(tmp, l.path); err != nil {
		logger.Error("lease_renew_rename_failed", "error", err)
		return err
	}
	return nil
}

// Release removes the lock file. The caller must be the current owner.
func (l *Lease) Release(owner string) error {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return err
	}
	var existing leaseFile
	if err := json.Unmarshal(data, &existing); err != nil {
		return err
	}
	if existing.Owner != owner {
		logger.Error("lease_release_not_owner", "owner", owner, "holder", existing.Owner)
		return ErrNotOwner
	}
	if err := os.Remove(l.path); err != nil {
		logger.Error("lease_release_remove_failed", "error", err)
		return err
	}
	logger.Debug("lease_released", "path", l.path, "owner", owner)
	return nil
}

// Holder reports the current owner and whether its lease is still live.
func (l *Lease) Holder() (string, bool, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, err
	}
	var existing leaseFile
	if err := json.Unmarshal(data, &existing); err != nil {
		return "", false, err
	}
	expT, err := time.Parse(time.RFC3339, existing.Expires)
	if err != nil {
		return existing.Owner, false, fmt.Errorf("bad lease expiry: %w", err)
	}
	return existing.Owner, expT.After(l.now().UTC()), nil
}

// Heartbeat renews every ttl/3 until ctx ends; after three consecutive
// renewal failures it calls abort so the holder stops before another
// process can take the lease over.
func (l *Lease) Heartbeat(ctx context.Context, owner string, ttl time.Duration, abort context.CancelFunc) {
	t := time.NewTicker(ttl / 3)
	defer t.Stop()
	var failCount int
	const maxConsecutiveRenewFails = 3
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := l.Renew(owner, ttl); err != nil {
				failCount++
				logger.Error("lease_renew_failed", "owner", owner, "error", err, "count", failCount)
				if failCount >= maxConsecutiveRenewFails {
					logger.Error("lease_renew_failed_fatal", "owner", owner)
					abort()
					return
				}
			} else {
				if failCount != 0 {
					logger.Info("lease_renew_recovered", "owner", owner, "recovered_count", failCount)
				}
				failCount = 0
			}
		}
	}
}
