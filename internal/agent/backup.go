package agent

import (
	"fmt"
	"strings"
	"time"
)

// Backup is the reconstructed, user-facing backup record. The stored
// backup_metadata payload is kept as an opaque map; backup_id, name and
// date are lifted into fields, and Size always reflects the paired archive
// object rather than whatever was recorded at creation time.
type Backup struct {
	BackupID string
	Name     string
	Date     time.Time
	Size     int64

	// Metadata is the full backup_metadata payload as stored. Opaque to
	// this subsystem beyond the lifted fields.
	Metadata map[string]any
}

// BackupFromMap reconstructs a record from a backup_metadata payload.
func BackupFromMap(payload map[string]any) (*Backup, error) {
	id, _ := payload["backup_id"].(string)
	if id == "" {
		return nil, fmt.Errorf("backup_metadata has no backup_id")
	}

	b := &Backup{
		BackupID: id,
		Metadata: payload,
	}

	if name, ok := payload["name"].(string); ok {
		b.Name = name
	}
	if date, ok := payload["date"].(string); ok {
		if t, err := time.Parse(time.RFC3339, date); err == nil {
			b.Date = t
		}
	}
	if size, ok := payload["size"].(float64); ok {
		b.Size = int64(size)
	}

	return b, nil
}

// AsMap serializes the record back into a backup_metadata payload.
func (b *Backup) AsMap() map[string]any {
	payload := make(map[string]any, len(b.Metadata)+4)
	for k, v := range b.Metadata {
		payload[k] = v
	}
	payload["backup_id"] = b.BackupID
	payload["size"] = b.Size
	if b.Name != "" {
		payload["name"] = b.Name
	}
	if !b.Date.IsZero() {
		payload["date"] = b.Date.UTC().Format(time.RFC3339)
	}
	return payload
}

// SuggestedFilename derives the canonical main-archive object name for a
// record: <name>_<date>_<short id>.tar.
func SuggestedFilename(b *Backup) string {
	return suggestedStem(b) + tarSuffix
}

// SuggestedFilenames derives the canonical main-archive and metadata object
// names for a record. Callers naming new uploads must use this pair so the
// name-convention contract holds.
func SuggestedFilenames(b *Backup) (string, string) {
	stem := suggestedStem(b)
	return stem + tarSuffix, stem + metadataSuffix
}

func suggestedStem(b *Backup) string {
	name := slugify(b.Name)
	if name == "" {
		name = "backup"
	}
	return fmt.Sprintf("%s_%s_%s",
		name,
		b.Date.UTC().Format("2006-01-02_15.04"),
		shortID(b.BackupID),
	)
}

// slugify keeps object names portable across S3-compatible services.
func slugify(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_' || r == '.':
			return r
		default:
			return '_'
		}
	}, s)
}

func shortID(id string) string {
	const n = 8
	if len(id) >= n {
		return id[:n]
	}
	return id + strings.Repeat("0", n-len(id))
}
