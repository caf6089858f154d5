package models

import (
	"encoding/json"
	"time"
)

// StatusActive is the status of every entry the pipeline writes.
const StatusActive = "active"

// Subject identifies the resident a letter is issued for.
type Subject struct {
	Name    string
	NIK     string // optional national identity number
	Address string // optional full address line
}

// Signer is the official whose name and position appear on the letter.
type Signer struct {
	ID       *int64
	Name     string
	NIP      string
	Position string
}

// ArchiveEntry is the permanent record of one produced document in document_archives.
// It is written once, after its object upload succeeded, and never updated by the pipeline.
type ArchiveEntry struct {
	ID            int64
	Number        string
	DocumentType  string
	Date          time.Time
	SubjectMatter string
	Subject       Subject
	// Detail is document-type specific data, stored as an opaque JSON blob.
	Detail      map[string]any
	Signer      Signer
	UnitID      *int64
	CreatedBy   *int64
	ObjectID    string
	ObjectURL   string
	FileName    string
	FileSize    int64
	ContentType string
	Status      string
}

// DetailJSON serializes Detail for the data_detail column. A nil map is stored as "{}".
func (e *ArchiveEntry) DetailJSON() ([]byte, error) {
	if e.Detail == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(e.Detail)
}

// OrgUnit is a kelurahan row used to fill letterhead fields.
type OrgUnit struct {
	ID      int64
	Name    string
	Address string
}
