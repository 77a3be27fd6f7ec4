// Package agent implements a backup agent over an S3-compatible object
// store: pairing of main archive objects with companion metadata objects
// under a configured prefix, TTL caches over bucket listings, and the
// public list/get/upload/delete/download operations.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/imedwei/b2-backup-agent/internal/metrics"
	"github.com/imedwei/b2-backup-agent/internal/storage"
	"github.com/imedwei/b2-backup-agent/internal/stream"
	"github.com/imedwei/b2-backup-agent/internal/utils"
)

// MaxBackupSize is the largest archive the agent will accept, matching
// B2's single-file cap.
const MaxBackupSize = 10 * 1024 * 1024 * 1024 * 1024 // 10 TB

// StreamOpener opens the application byte stream for an upload. The
// returned NextFunc yields the archive's chunks.
type StreamOpener func(ctx context.Context) (stream.NextFunc, error)

// Agent exposes backup operations over an object store. All methods are
// safe for concurrent use; the two listing caches are each guarded by
// their own lock.
type Agent struct {
	store  storage.ObjectStore
	prefix string
	logger *slog.Logger

	// now is replaceable in tests to drive cache expiry.
	now func() time.Time

	// allFiles caches the full bucket listing under the prefix; backupList
	// caches the reconstructed records. They expire independently, so
	// callers must not assume atomic consistency across both.
	allFiles   ttlCache[storage.StoredObject]
	backupList ttlCache[*Backup]

	listeners listenerSet
}

// New creates an agent over the given store. All of the agent's objects
// live under prefix, which lets multiple agents coexist in one bucket.
func New(store storage.ObjectStore, prefix string, logger *slog.Logger) *Agent {
	if logger == nil {
		logger = slog.Default()
	}
	return &Agent{
		store:  store,
		prefix: prefix,
		logger: logger,
		now:    time.Now,
	}
}

// ListBackups returns all backups under the agent's prefix. Results come
// from the backup-list cache while it is fresh; otherwise the cache is
// rebuilt by pairing every metadata object with its archive. Objects that
// fail to download, parse or pair are skipped with a warning so one corrupt
// backup cannot make all other backups invisible.
func (a *Agent) ListBackups(ctx context.Context) ([]*Backup, error) {
	start := time.Now()

	a.backupList.Lock()
	defer a.backupList.Unlock()

	if a.backupList.fresh(a.now()) {
		metrics.RecordCacheEvent("backup_list", "hit")
		metrics.RecordOperation("list", true)
		metrics.OperationDuration.WithLabelValues("list").Observe(time.Since(start).Seconds())
		return sortedBackups(a.backupList.entries), nil
	}
	metrics.RecordCacheEvent("backup_list", "miss")

	files, err := a.getAllFiles(ctx)
	if err != nil {
		metrics.RecordOperation("list", false)
		return nil, opError("list", err)
	}

	// Metadata objects are fetched one at a time. Fanning out here would
	// exhaust the SDK's connection pool as soon as a bucket holds more than
	// a handful of backups.
	backups := make(map[string]*Backup)
	for _, name := range sortedNames(files) {
		if !strings.HasSuffix(name, metadataSuffix) {
			continue
		}
		b, err := a.processMetadataFile(ctx, name, files)
		if err != nil {
			a.logger.Warn("Skipping unreadable metadata object",
				"file", name,
				"error", err,
			)
			continue
		}
		backups[b.BackupID] = b
	}

	a.backupList.set(backups, a.now())
	metrics.Backups.Set(float64(len(backups)))
	metrics.RecordOperation("list", true)
	metrics.OperationDuration.WithLabelValues("list").Observe(time.Since(start).Seconds())

	return sortedBackups(backups), nil
}

// GetBackup returns the backup with the given id, or ErrNotFound. A fresh
// backup-list cache is consulted first; otherwise the specific pair is
// located with a targeted scan and, if the cache is still fresh, the
// record is inserted into it without forcing a full rebuild.
func (a *Agent) GetBackup(ctx context.Context, backupID string) (*Backup, error) {
	a.backupList.Lock()
	if a.backupList.fresh(a.now()) {
		if b, ok := a.backupList.entries[backupID]; ok {
			metrics.RecordCacheEvent("backup_list", "hit")
			a.backupList.Unlock()
			return b, nil
		}
	}
	a.backupList.Unlock()
	metrics.RecordCacheEvent("backup_list", "miss")

	found, err := a.findBackupByID(ctx, backupID)
	if err != nil {
		metrics.RecordOperation("get", false)
		return nil, opError("get", err)
	}
	if found == nil {
		a.logger.Debug("Backup not found", "backup_id", backupID)
		metrics.RecordOperation("get", false)
		return nil, fmt.Errorf("%w: %s", ErrNotFound, backupID)
	}

	a.backupList.Lock()
	a.backupList.insert(a.now(), backupID, found.backup)
	a.backupList.Unlock()

	metrics.RecordOperation("get", true)
	return found.backup, nil
}

// DeleteBackup removes the archive and metadata objects of the given
// backup and surgically invalidates both caches for exactly those keys.
func (a *Agent) DeleteBackup(ctx context.Context, backupID string) error {
	found, err := a.findBackupByID(ctx, backupID)
	if err != nil {
		metrics.RecordOperation("delete", false)
		return opError("delete", err)
	}
	if found == nil {
		metrics.RecordOperation("delete", false)
		return fmt.Errorf("%w: %s", ErrNotFound, backupID)
	}

	if err := a.store.Delete(ctx, found.archive.Name); err != nil {
		metrics.RecordOperation("delete", false)
		return opError("delete", err)
	}

	if found.metadataName == "" {
		// The pairing contract guarantees a metadata object for every
		// located archive; reaching this means the bucket was mutated
		// behind our back.
		a.logger.Warn("Metadata object not found for deletion",
			"backup_id", backupID,
			"archive", found.archive.Name,
		)
	} else if err := a.store.Delete(ctx, found.metadataName); err != nil {
		metrics.RecordOperation("delete", false)
		return opError("delete", err)
	}

	a.allFiles.Lock()
	a.allFiles.remove(a.now(), found.archive.Name, found.metadataName)
	a.allFiles.Unlock()
	metrics.RecordCacheEvent("all_files", "invalidate")

	a.backupList.Lock()
	a.backupList.remove(a.now(), backupID)
	a.backupList.Unlock()
	metrics.RecordCacheEvent("backup_list", "invalidate")

	a.logger.Info("Deleted backup",
		"backup_id", backupID,
		"archive", found.archive.Name,
	)
	metrics.RecordOperation("delete", true)
	a.listeners.notify()
	return nil
}

// UploadBackup streams a new archive into the store, then writes its
// companion metadata object. Metadata is uploaded strictly after the
// archive succeeds; if the metadata upload fails, the now-orphaned archive
// is deleted as compensation and the original error propagates. On success
// both caches are force-expired, since the SDK does not return enough to
// update them surgically.
func (a *Agent) UploadBackup(ctx context.Context, open StreamOpener, backup *Backup) error {
	start := time.Now()

	if backup.Size > MaxBackupSize {
		metrics.RecordOperation("upload", false)
		return &Error{Op: "upload", Err: fmt.Errorf(
			"backup size %s exceeds maximum allowed size %s",
			utils.FormatBytes(backup.Size), utils.FormatBytes(MaxBackupSize))}
	}

	tarName, metadataName := SuggestedFilenames(backup)
	tarKey := a.prefix + tarName
	metadataKey := a.prefix + metadataName

	attributes := map[string]string{
		"backup-id":        backup.BackupID,
		"metadata-version": MetadataVersion,
	}

	if err := a.uploadArchive(ctx, tarKey, open, attributes); err != nil {
		a.cleanupFailedUpload(ctx, tarKey)
		metrics.RecordOperation("upload", false)
		return opError("upload", err)
	}

	data, err := json.Marshal(map[string]any{
		"metadata_version": MetadataVersion,
		"backup_id":        backup.BackupID,
		"backup_metadata":  backup.AsMap(),
	})
	if err != nil {
		a.cleanupFailedUpload(ctx, tarKey)
		metrics.RecordOperation("upload", false)
		return opError("upload", err)
	}

	if err := a.store.UploadBytes(ctx, metadataKey, data, metadataContentType, attributes); err != nil {
		a.cleanupFailedUpload(ctx, tarKey)
		metrics.RecordOperation("upload", false)
		return opError("upload", err)
	}

	a.allFiles.Lock()
	a.allFiles.expire()
	a.allFiles.Unlock()
	metrics.RecordCacheEvent("all_files", "expire")

	a.backupList.Lock()
	a.backupList.expire()
	a.backupList.Unlock()
	metrics.RecordCacheEvent("backup_list", "expire")

	a.logger.Info("Uploaded backup",
		"backup_id", backup.BackupID,
		"archive", tarKey,
		"size", backup.Size,
		"duration", time.Since(start),
	)
	metrics.UploadBytes.Set(float64(backup.Size))
	metrics.LastUploadTimestamp.Set(float64(time.Now().Unix()))
	metrics.RecordOperation("upload", true)
	metrics.OperationDuration.WithLabelValues("upload").Observe(time.Since(start).Seconds())
	a.listeners.notify()
	return nil
}

// DownloadBackup locates the backup's archive and returns a chunk iterator
// over its contents. Chunks are pumped from the store's blocking stream on
// a separate goroutine; cancelling ctx aborts the transfer.
func (a *Agent) DownloadBackup(ctx context.Context, backupID string) (stream.NextFunc, error) {
	found, err := a.findBackupByID(ctx, backupID)
	if err != nil {
		metrics.RecordOperation("download", false)
		return nil, opError("download", err)
	}
	if found == nil {
		metrics.RecordOperation("download", false)
		return nil, fmt.Errorf("%w: %s", ErrNotFound, backupID)
	}

	body, err := a.store.Download(ctx, found.archive.Name)
	if err != nil {
		metrics.RecordOperation("download", false)
		return nil, opError("download", err)
	}

	w := stream.NewWriter()
	stop := context.AfterFunc(ctx, w.Abort)

	go func() {
		defer stop()
		defer func() {
			if err := body.Close(); err != nil {
				a.logger.Warn("Failed to close download body", "error", err)
			}
		}()

		buf := utils.DefaultBufferPool.Get()
		defer utils.DefaultBufferPool.Put(buf)

		progress := utils.NewProgressWriter(w, func(bytesWritten int64, elapsed time.Duration) {
			a.logger.Debug("Download progress",
				"backup_id", backupID,
				"bytes", utils.FormatBytes(bytesWritten),
				"rate", utils.FormatRate(float64(bytesWritten)/elapsed.Seconds()),
			)
		})

		if _, err := io.CopyBuffer(progress, body, buf); err != nil {
			if !errors.Is(err, stream.ErrAborted) {
				a.logger.Warn("Download stream ended with error",
					"backup_id", backupID,
					"error", err,
				)
			}
			w.Abort()
			return
		}
		if err := w.CloseWrite(); err != nil {
			a.logger.Warn("Failed to close download stream", "error", err)
		}
	}()

	metrics.RecordOperation("download", true)
	return w.Next, nil
}

// uploadArchive drains the application stream through the blocking reader
// bridge into the store's stream upload.
func (a *Agent) uploadArchive(ctx context.Context, name string, open StreamOpener, attributes map[string]string) error {
	next, err := open(ctx)
	if err != nil {
		return fmt.Errorf("failed to open backup stream: %w", err)
	}

	reader := stream.NewReader(ctx, next)
	defer func() {
		if err := reader.Close(); err != nil {
			a.logger.Warn("Failed to close upload reader", "error", err)
		}
	}()

	progress := utils.NewProgressReader(reader, func(bytesRead int64, elapsed time.Duration) {
		a.logger.Debug("Upload progress",
			"file", name,
			"bytes", utils.FormatBytes(bytesRead),
			"rate", utils.FormatRate(float64(bytesRead)/elapsed.Seconds()),
		)
	})

	if err := a.store.UploadStream(ctx, name, progress, archiveContentType, attributes); err != nil {
		return err
	}

	a.logger.Debug("Archive upload complete",
		"file", name,
		"bytes_written", progress.BytesRead(),
	)
	return nil
}

// cleanupFailedUpload deletes an archive left behind by a failed upload so
// it cannot orphan storage. Failures here are logged, not raised; the
// original upload error is what the caller sees.
func (a *Agent) cleanupFailedUpload(ctx context.Context, name string) {
	obj, err := a.store.GetByName(ctx, name)
	if err != nil {
		a.logger.Error("Failed to clean up after failed upload. Manual intervention may be required",
			"file", name,
			"error", err,
		)
		return
	}
	if err := a.store.Delete(ctx, obj.Name); err != nil {
		a.logger.Error("Failed to clean up after failed upload. Manual intervention may be required",
			"file", name,
			"error", err,
		)
		return
	}
	a.logger.Info("Removed orphaned archive after failed upload", "file", name)
}

// foundBackup is the result of a targeted scan for one backup id.
type foundBackup struct {
	backup       *Backup
	archive      storage.StoredObject
	metadataName string
}

// findBackupByID scans the (possibly cached) listing for the metadata
// object carrying the given backup id and pairs it with its archive.
// Returns nil when the id cannot be resolved. Unreadable metadata objects
// are skipped, the same as during a full listing.
func (a *Agent) findBackupByID(ctx context.Context, backupID string) (*foundBackup, error) {
	files, err := a.getAllFiles(ctx)
	if err != nil {
		return nil, err
	}

	for _, name := range sortedNames(files) {
		if !strings.HasSuffix(name, metadataSuffix) {
			continue
		}

		raw, err := a.downloadAll(ctx, name)
		if err != nil {
			a.logger.Warn("Failed to download metadata file", "file", name, "error", err)
			continue
		}
		doc, err := ParseMetadata(raw)
		if err != nil {
			a.logger.Warn("Failed to parse metadata file", "file", name, "error", err)
			continue
		}
		if documentBackupID(doc) != backupID {
			a.logger.Debug("Metadata file does not match target backup ID", "file", name)
			continue
		}

		archive, ok := findArchiveForMetadata(name, files, a.prefix)
		if !ok {
			a.logger.Warn("Metadata file found but no corresponding backup file",
				"file", name,
				"backup_id", backupID,
			)
			continue
		}

		b, err := backupFromDocument(doc, archive)
		if err != nil {
			a.logger.Warn("Failed to build backup record", "file", name, "error", err)
			continue
		}
		return &foundBackup{backup: b, archive: archive, metadataName: name}, nil
	}

	return nil, nil
}

// processMetadataFile downloads, parses and pairs one metadata object
// during a full listing.
func (a *Agent) processMetadataFile(ctx context.Context, name string, files map[string]storage.StoredObject) (*Backup, error) {
	raw, err := a.downloadAll(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to download metadata file: %w", err)
	}

	doc, err := ParseMetadata(raw)
	if err != nil {
		return nil, err
	}

	archive, ok := findArchiveForMetadata(name, files, a.prefix)
	if !ok {
		return nil, fmt.Errorf("no corresponding backup file for %s", name)
	}

	return backupFromDocument(doc, archive)
}

// getAllFiles returns a snapshot of all objects under the agent's prefix,
// rebuilding the all-files cache when it is stale. The cache's lock covers
// the whole check-rebuild-read sequence.
func (a *Agent) getAllFiles(ctx context.Context) (map[string]storage.StoredObject, error) {
	a.allFiles.Lock()
	defer a.allFiles.Unlock()

	if a.allFiles.fresh(a.now()) {
		metrics.RecordCacheEvent("all_files", "hit")
		return a.allFiles.snapshot(), nil
	}
	metrics.RecordCacheEvent("all_files", "miss")

	objects, err := a.store.List(ctx, a.prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list bucket: %w", err)
	}

	entries := make(map[string]storage.StoredObject, len(objects))
	for _, obj := range objects {
		entries[obj.Name] = obj
	}
	a.allFiles.set(entries, a.now())

	return a.allFiles.snapshot(), nil
}

// downloadAll fetches a whole object into memory. Only used for the small
// metadata documents.
func (a *Agent) downloadAll(ctx context.Context, name string) ([]byte, error) {
	body, err := a.store.Download(ctx, name)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := body.Close(); err != nil {
			a.logger.Warn("Failed to close metadata body", "file", name, "error", err)
		}
	}()
	return io.ReadAll(body)
}

func documentBackupID(doc *MetadataDocument) string {
	if doc.BackupID != "" {
		return doc.BackupID
	}
	id, _ := doc.Payload["backup_id"].(string)
	return id
}

func sortedNames(files map[string]storage.StoredObject) []string {
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func sortedBackups(backups map[string]*Backup) []*Backup {
	out := make([]*Backup, 0, len(backups))
	for _, b := range backups {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].BackupID < out[j].BackupID
	})
	return out
}
