package agent

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/imedwei/b2-backup-agent/internal/storage"
)

const (
	// MetadataVersion is the version written into every metadata object.
	MetadataVersion = "1"

	tarSuffix      = ".tar"
	metadataSuffix = ".metadata.json"

	archiveContentType  = "application/x-tar"
	metadataContentType = "application/json"
)

// MetadataDocument is the parsed payload of a *.metadata.json object.
type MetadataDocument struct {
	Version  string
	BackupID string
	Payload  map[string]any
}

// ParseMetadata parses the raw bytes of a metadata object. It fails with
// ErrMalformedMetadata when the bytes are not valid JSON and with
// ErrUnexpectedMetadataShape when the top-level value is not an object, so
// callers can tell "corrupt" apart from "wrong shape".
func ParseMetadata(raw []byte) (*MetadataDocument, error) {
	var parsed any
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMetadata, err)
	}

	obj, ok := parsed.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: got %T", ErrUnexpectedMetadataShape, parsed)
	}

	doc := &MetadataDocument{}
	doc.Version, _ = obj["metadata_version"].(string)
	doc.BackupID, _ = obj["backup_id"].(string)

	if raw, present := obj["backup_metadata"]; present {
		payload, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: backup_metadata is %T", ErrUnexpectedMetadataShape, raw)
		}
		doc.Payload = payload
	}

	return doc, nil
}

// findArchiveForMetadata pairs a metadata object with its main archive by
// name convention: strip the prefix and metadata suffix to get the stem,
// then match any other object under prefix+stem ending in the archive
// suffix. Ties are broken by taking the lexicographically first name.
func findArchiveForMetadata(metadataName string, allObjects map[string]storage.StoredObject, prefix string) (storage.StoredObject, bool) {
	stem := strings.TrimSuffix(strings.TrimPrefix(metadataName, prefix), metadataSuffix)
	want := prefix + stem

	names := make([]string, 0, len(allObjects))
	for name := range allObjects {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if name == metadataName {
			continue
		}
		if strings.HasPrefix(name, want) && strings.HasSuffix(name, tarSuffix) {
			return allObjects[name], true
		}
	}

	return storage.StoredObject{}, false
}

// backupFromDocument merges a parsed metadata document with its paired
// archive object. The archive's size is authoritative; the size embedded
// in the metadata payload at creation time is not trusted as current truth.
func backupFromDocument(doc *MetadataDocument, archive storage.StoredObject) (*Backup, error) {
	payload := doc.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	if doc.BackupID != "" {
		// The top-level backup_id wins over whatever the payload carries.
		merged := make(map[string]any, len(payload)+1)
		for k, v := range payload {
			merged[k] = v
		}
		merged["backup_id"] = doc.BackupID
		payload = merged
	}

	b, err := BackupFromMap(payload)
	if err != nil {
		return nil, err
	}
	b.Size = archive.Size
	return b, nil
}
