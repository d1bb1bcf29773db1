package core

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ID represents a domain identifier
type ID string

// NewID creates a new unique identifier using UUID v7 for time-ordered generation
func NewID() ID {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return ID(id.String())
}

// String returns the string representation
func (id ID) String() string {
	return string(id)
}

// IsEmpty checks if the ID is empty
func (id ID) IsEmpty() bool {
	return id == ""
}

// Domain-specific ID types
type (
	WizardID  ID
	RunID     ID
	SegmentID ID
)

// String conversions for domain IDs
func (id WizardID) String() string  { return ID(id).String() }
func (id RunID) String() string     { return ID(id).String() }
func (id SegmentID) String() string { return ID(id).String() }

// NewWizardID returns a fresh wizard instance identifier.
func NewWizardID() WizardID { return WizardID(NewID()) }

// NewRunID returns a fresh run identifier.
func NewRunID() RunID { return RunID(NewID()) }

// ParseWizardID parses a string into WizardID
func ParseWizardID(s string) (WizardID, error) {
	if strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("wizard ID cannot be empty")
	}
	return WizardID(s), nil
}

// ParseRunID parses a string into RunID
func ParseRunID(s string) (RunID, error) {
	if strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("run ID cannot be empty")
	}
	return RunID(s), nil
}
