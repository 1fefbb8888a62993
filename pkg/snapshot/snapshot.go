// Package snapshot collects running configurations, stores them and archives copies.
package snapshot

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"regexp"
	"strings"
	"time"

	dbmeta "github.com/supporttools/GoNetGuard/pkg/database/metadata"
	"github.com/supporttools/GoNetGuard/pkg/devices"
	"github.com/supporttools/GoNetGuard/pkg/metrics"
)

const keyTimeLayout = "20060102T150405Z"

var keyRe = regexp.MustCompile(`^(?:.*/)?by-device/([^/]+)/(\d{8}T\d{6}Z)-([0-9a-f]{8})\.cfg$`)

// Archive is a place archived snapshot copies are written to
type Archive interface {
	Name() string
	Put(ctx context.Context, key string, content []byte) error
	EnforceRetention(ctx context.Context, retentionDays int) (int, error)
}

// Collector resolves devices and fetches their running configuration
type Collector interface {
	Resolve(names []string) ([]devices.Host, []string, error)
	CollectRunningConfig(ctx context.Context, hosts []devices.Host, command string, timeout int) devices.Results
}

// Store persists snapshots
type Store interface {
	CreateSnapshots(snapshots []*dbmeta.ConfigSnapshot) error
	SetArchiveKey(id uint, key string) error
}

// Service saves running-config snapshots
type Service struct {
	collector     Collector
	store         Store
	archives      []Archive
	retentionDays int
}

// NewService creates a snapshot service. archives may be empty.
func NewService(collector Collector, store Store, retentionDays int, archives ...Archive) *Service {
	return &Service{
		collector:     collector,
		store:         store,
		archives:      archives,
		retentionDays: retentionDays,
	}
}

// ArchiveKey builds the storage key for a snapshot
func ArchiveKey(device string, collectedAt time.Time, sha string) string {
	short := sha
	if len(short) > 8 {
		short = short[:8]
	}
	return fmt.Sprintf("by-device/%s/%s-%s.cfg", safeName(device), collectedAt.UTC().Format(keyTimeLayout), short)
}

// ParseArchiveKey extracts the device name, collection time and short hash from a key.
// Any storage prefix before by-device/ is ignored.
func ParseArchiveKey(key string) (device string, collectedAt time.Time, shortSHA string, ok bool) {
	m := keyRe.FindStringSubmatch(key)
	if m == nil {
		return "", time.Time{}, "", false
	}
	at, err := time.Parse(keyTimeLayout, m[2])
	if err != nil {
		return "", time.Time{}, "", false
	}
	return m[1], at, m[3], true
}

func safeName(name string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', ' ':
			return '_'
		}
		return r
	}, strings.TrimLeft(name, "."))
}

// Checksum returns the hex SHA-256 of content
func Checksum(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

func failed(msg string) map[string]interface{} {
	metrics.SnapshotCount.WithLabelValues("failed").Inc()
	return map[string]interface{}{"status": "failed", "failed": true, "exception": msg}
}

// SaveRunningConfigs collects and stores the running configuration of the
// named devices. The result is keyed by device name. Unknown devices,
// collection errors and empty output fail per device.
func (s *Service) SaveRunningConfigs(ctx context.Context, names []string, command string, timeout int, createdBy string) (map[string]interface{}, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("devices cannot be empty")
	}

	hosts, missing, err := s.collector.Resolve(names)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve devices: %w", err)
	}

	results := make(map[string]interface{}, len(names))
	for _, name := range missing {
		results[name] = failed("device not found")
	}
	if len(hosts) == 0 {
		return results, nil
	}

	fetched := s.collector.CollectRunningConfig(ctx, hosts, command, timeout)

	var snapshots []*dbmeta.ConfigSnapshot
	for _, h := range hosts {
		r, ok := fetched[h.Name]
		if !ok || r.Failed {
			msg := "collection failed"
			if ok && r.Exception != "" {
				msg = r.Exception
			}
			results[h.Name] = failed(msg)
			continue
		}

		content, _ := r.Result.(string)
		if strings.TrimSpace(content) == "" {
			results[h.Name] = failed("empty running-config output")
			continue
		}

		snapshots = append(snapshots, &dbmeta.ConfigSnapshot{
			DeviceID:      h.DeviceID,
			DeviceName:    h.Name,
			ConfigType:    "running",
			Content:       content,
			ContentSHA256: Checksum(content),
			Bytes:         int64(len(content)),
			CreatedBy:     createdBy,
			CollectedAt:   time.Now().UTC(),
		})
	}

	if len(snapshots) == 0 {
		return results, nil
	}
	if err := s.store.CreateSnapshots(snapshots); err != nil {
		return nil, err
	}

	for _, snap := range snapshots {
		metrics.SnapshotCount.WithLabelValues("success").Inc()
		metrics.SnapshotSize.WithLabelValues(snap.DeviceName).Set(float64(snap.Bytes))
		metrics.LastSnapshotTimestamp.WithLabelValues(snap.DeviceName).Set(float64(snap.CollectedAt.Unix()))

		results[snap.DeviceName] = map[string]interface{}{
			"status":       "success",
			"failed":       false,
			"bytes":        snap.Bytes,
			"sha256":       snap.ContentSHA256,
			"snapshot_id":  snap.ID,
			"collected_at": snap.CollectedAt.Format(time.RFC3339),
		}

		s.archive(ctx, snap)
	}
	return results, nil
}

// archive writes the snapshot to every archive and records the key once one succeeds
func (s *Service) archive(ctx context.Context, snap *dbmeta.ConfigSnapshot) {
	if len(s.archives) == 0 {
		return
	}

	key := ArchiveKey(snap.DeviceName, snap.CollectedAt, snap.ContentSHA256)
	stored := false
	for _, a := range s.archives {
		if err := a.Put(ctx, key, []byte(snap.Content)); err != nil {
			log.Printf("Failed to archive snapshot %d to %s: %v", snap.ID, a.Name(), err)
			continue
		}
		stored = true
	}
	if !stored {
		return
	}

	if err := s.store.SetArchiveKey(snap.ID, key); err != nil {
		log.Printf("Failed to record archive key for snapshot %d: %v", snap.ID, err)
		return
	}
	snap.ArchiveKey = key
}

// EnforceRetention prunes archived copies older than the retention period
func (s *Service) EnforceRetention(ctx context.Context) {
	for _, a := range s.archives {
		removed, err := a.EnforceRetention(ctx, s.retentionDays)
		if err != nil {
			log.Printf("Error enforcing %s snapshot retention: %v", a.Name(), err)
			continue
		}
		if removed > 0 {
			log.Printf("Removed %d expired %s snapshots", removed, a.Name())
		}
	}
}
