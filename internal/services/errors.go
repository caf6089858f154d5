package services

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownDocumentType is returned for a document type key that is not in the catalog.
var ErrUnknownDocumentType = errors.New("unknown document type")

// Stage names a step of a document chain.
type Stage string

const (
	StageValidating Stage = "validating"
	StageRendering  Stage = "rendering"
	StageConverting Stage = "converting"
	StagePublishing Stage = "publishing"
	StageRecording  Stage = "recording"
	StageCompleted  Stage = "completed"
)

// ValidationError lists required fields missing from the form.
type ValidationError struct {
	Message string
	Fields  []string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return e.Message
	}
	return e.Message + ": " + strings.Join(e.Fields, ", ")
}

// StageError is the terminal failed(stage, reason) state of a chain.
type StageError struct {
	Stage  Stage
	Output string
	Err    error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s failed while %s: %v", e.Output, e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }
