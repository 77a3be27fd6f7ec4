package agent

import (
	"errors"
	"testing"

	"github.com/imedwei/b2-backup-agent/internal/storage"
)

func TestParseMetadata(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr error
		wantID  string
	}{
		{
			name:   "valid document",
			raw:    `{"metadata_version":"1","backup_id":"abc","backup_metadata":{"backup_id":"abc","name":"nightly"}}`,
			wantID: "abc",
		},
		{
			name:   "payload only",
			raw:    `{"backup_metadata":{"backup_id":"xyz"}}`,
			wantID: "",
		},
		{
			name:    "not json",
			raw:     `{"backup_id": `,
			wantErr: ErrMalformedMetadata,
		},
		{
			name:    "empty bytes",
			raw:     ``,
			wantErr: ErrMalformedMetadata,
		},
		{
			name:    "top level array",
			raw:     `[1, 2, 3]`,
			wantErr: ErrUnexpectedMetadataShape,
		},
		{
			name:    "top level string",
			raw:     `"just a string"`,
			wantErr: ErrUnexpectedMetadataShape,
		},
		{
			name:    "backup_metadata is not an object",
			raw:     `{"backup_id":"abc","backup_metadata":[1]}`,
			wantErr: ErrUnexpectedMetadataShape,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := ParseMetadata([]byte(tt.raw))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("ParseMetadata() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseMetadata() error = %v", err)
			}
			if doc.BackupID != tt.wantID {
				t.Errorf("BackupID = %q, want %q", doc.BackupID, tt.wantID)
			}
		})
	}
}

func TestFindArchiveForMetadata(t *testing.T) {
	objects := func(names ...string) map[string]storage.StoredObject {
		out := make(map[string]storage.StoredObject, len(names))
		for _, n := range names {
			out[n] = storage.StoredObject{Name: n}
		}
		return out
	}

	tests := []struct {
		name         string
		metadataName string
		prefix       string
		objects      map[string]storage.StoredObject
		wantName     string
		wantOK       bool
	}{
		{
			name:         "exact pair",
			metadataName: "pre/db_2025-01-01_00.00_deadbeef.metadata.json",
			prefix:       "pre/",
			objects: objects(
				"pre/db_2025-01-01_00.00_deadbeef.metadata.json",
				"pre/db_2025-01-01_00.00_deadbeef.tar",
			),
			wantName: "pre/db_2025-01-01_00.00_deadbeef.tar",
			wantOK:   true,
		},
		{
			name:         "no archive",
			metadataName: "pre/orphan.metadata.json",
			prefix:       "pre/",
			objects:      objects("pre/orphan.metadata.json"),
			wantOK:       false,
		},
		{
			name:         "metadata object itself never matches",
			metadataName: "pre/x.metadata.json",
			prefix:       "pre/",
			objects: objects(
				"pre/x.metadata.json",
				"pre/unrelated.tar",
			),
			wantOK: false,
		},
		{
			name:         "ambiguous stems pick lexicographically first",
			metadataName: "pre/db.metadata.json",
			prefix:       "pre/",
			objects: objects(
				"pre/db.metadata.json",
				"pre/db.extra.tar",
				"pre/db.tar",
			),
			wantName: "pre/db.extra.tar",
			wantOK:   true,
		},
		{
			name:         "other prefixes ignored",
			metadataName: "a/db.metadata.json",
			prefix:       "a/",
			objects: objects(
				"a/db.metadata.json",
				"b/db.tar",
			),
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := findArchiveForMetadata(tt.metadataName, tt.objects, tt.prefix)
			if ok != tt.wantOK {
				t.Fatalf("findArchiveForMetadata() ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && got.Name != tt.wantName {
				t.Errorf("archive = %q, want %q", got.Name, tt.wantName)
			}
		})
	}
}

func TestBackupFromDocument(t *testing.T) {
	archive := storage.StoredObject{Name: "pre/db.tar", Size: 4096}

	t.Run("archive size is authoritative", func(t *testing.T) {
		doc := &MetadataDocument{
			BackupID: "abc",
			Payload:  map[string]any{"backup_id": "abc", "size": float64(12)},
		}
		b, err := backupFromDocument(doc, archive)
		if err != nil {
			t.Fatalf("backupFromDocument() error = %v", err)
		}
		if b.Size != 4096 {
			t.Errorf("Size = %d, want 4096", b.Size)
		}
	})

	t.Run("top level backup_id wins", func(t *testing.T) {
		doc := &MetadataDocument{
			BackupID: "outer",
			Payload:  map[string]any{"backup_id": "inner"},
		}
		b, err := backupFromDocument(doc, archive)
		if err != nil {
			t.Fatalf("backupFromDocument() error = %v", err)
		}
		if b.BackupID != "outer" {
			t.Errorf("BackupID = %q, want %q", b.BackupID, "outer")
		}
	})

	t.Run("missing backup_id fails", func(t *testing.T) {
		doc := &MetadataDocument{Payload: map[string]any{"name": "nameless"}}
		if _, err := backupFromDocument(doc, archive); err == nil {
			t.Error("backupFromDocument() expected error for missing backup_id")
		}
	})
}
