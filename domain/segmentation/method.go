package segmentation

import (
	"encoding/json"
	"fmt"
	"strings"
)

// MethodKind discriminates the clustering method variants
type MethodKind string

const (
	MethodKMeans       MethodKind = "kmeans"
	MethodHierarchical MethodKind = "hierarchical"
)

// Linkage is the agglomeration criterion of hierarchical clustering
type Linkage string

const (
	LinkageWard     Linkage = "ward"
	LinkageAverage  Linkage = "average"
	LinkageComplete Linkage = "complete"
	LinkageSingle   Linkage = "single"
)

// DefaultLinkage is used when a hierarchical method is chosen without a linkage.
const DefaultLinkage = LinkageWard

// Linkages lists the supported linkage criteria in display order.
func Linkages() []Linkage {
	return []Linkage{LinkageWard, LinkageAverage, LinkageComplete, LinkageSingle}
}

// Valid reports whether l is a supported linkage
func (l Linkage) Valid() bool {
	switch l {
	case LinkageWard, LinkageAverage, LinkageComplete, LinkageSingle:
		return true
	}
	return false
}

// Method is a clustering method selection. It is a closed set of variants:
// KMeans or Hierarchical. Only the hierarchical variant carries a linkage.
type Method interface {
	Kind() MethodKind
	sealed()
}

// KMeans selects partitioning by k-means.
type KMeans struct{}

// Hierarchical selects agglomerative clustering with the given linkage.
type Hierarchical struct {
	Linkage Linkage
}

func (KMeans) Kind() MethodKind       { return MethodKMeans }
func (Hierarchical) Kind() MethodKind { return MethodHierarchical }
func (KMeans) sealed()                {}
func (Hierarchical) sealed()          {}

// DefaultMethod is the method a fresh wizard starts with.
func DefaultMethod() Method { return KMeans{} }

// ParseMethod builds a Method from its wire form. A linkage is only accepted
// for the hierarchical variant.
func ParseMethod(kind, linkage string) (Method, error) {
	kind = strings.ToLower(strings.TrimSpace(kind))
	linkage = strings.ToLower(strings.TrimSpace(linkage))

	switch MethodKind(kind) {
	case MethodKMeans, "":
		if linkage != "" {
			return nil, fmt.Errorf("linkage %q is not applicable to k-means", linkage)
		}
		return KMeans{}, nil
	case MethodHierarchical:
		if linkage == "" {
			return Hierarchical{Linkage: DefaultLinkage}, nil
		}
		l := Linkage(linkage)
		if !l.Valid() {
			return nil, fmt.Errorf("unknown linkage %q", linkage)
		}
		return Hierarchical{Linkage: l}, nil
	default:
		return nil, fmt.Errorf("unknown clustering method %q", kind)
	}
}

// LinkageOf returns the linkage of a hierarchical method.
func LinkageOf(m Method) (Linkage, bool) {
	h, ok := m.(Hierarchical)
	if !ok {
		return "", false
	}
	if h.Linkage == "" {
		return DefaultLinkage, true
	}
	return h.Linkage, true
}

// methodWire is the flattened JSON form of a Method.
type methodWire struct {
	Method  MethodKind `json:"method"`
	Linkage Linkage    `json:"linkage,omitempty"`
}

// MethodSpec wraps a Method so it can be embedded in JSON payloads.
type MethodSpec struct {
	Method
}

func (s MethodSpec) MarshalJSON() ([]byte, error) {
	m := s.Method
	if m == nil {
		m = DefaultMethod()
	}
	w := methodWire{Method: m.Kind()}
	if l, ok := LinkageOf(m); ok {
		w.Linkage = l
	}
	return json.Marshal(w)
}

func (s *MethodSpec) UnmarshalJSON(data []byte) error {
	var w methodWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	m, err := ParseMethod(string(w.Method), string(w.Linkage))
	if err != nil {
		return err
	}
	s.Method = m
	return nil
}
