package segmentation

import "strings"

// VariableType is the coarse classification supplied by the variable metadata collaborator
type VariableType string

const (
	TypeNumeric     VariableType = "numeric"
	TypeCategorical VariableType = "categorical"
	TypeText        VariableType = "text"
	TypeDate        VariableType = "date"
)

// Variable is one candidate input of a segmentation.
type Variable struct {
	Name    string       `json:"name"`
	Label   string       `json:"label,omitempty"`
	Type    VariableType `json:"type"`
	Subtype string       `json:"subtype,omitempty"` // e.g. "likert", "scale", "nominal"
}

// numericSubtypes are subtype tags that make a variable numeric-compatible
// regardless of its coarse type.
var numericSubtypes = map[string]bool{
	"numeric":    true,
	"likert":     true,
	"scale":      true,
	"rating":     true,
	"integer":    true,
	"continuous": true,
	"interval":   true,
	"ratio":      true,
}

// Clusterable reports whether v may be submitted for clustering.
func (v Variable) Clusterable() bool {
	if numericSubtypes[strings.ToLower(strings.TrimSpace(v.Subtype))] {
		return true
	}
	return VariableType(strings.ToLower(string(v.Type))) == TypeNumeric && !isCategoricalSubtype(v.Subtype)
}

func isCategoricalSubtype(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "nominal", "categorical", "binary", "multi_choice", "single_choice":
		return true
	}
	return false
}

// DisplayName prefers the label over the raw name.
func (v Variable) DisplayName() string {
	if v.Label != "" {
		return v.Label
	}
	return v.Name
}
