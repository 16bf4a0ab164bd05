package tagparser

import (
	"strings"
)

// Number of underscore-delimited segments in a well-formed ad name:
// {UniqueCode}_{Type}_{Person}_{Style}_{Product}_{Hook}_{Theme}
const segmentCount = 7

const delimiter = "_"

type Tags struct {
	UniqueCode string `json:"unique_code"`
	AdType     string `json:"ad_type"`
	Person     string `json:"person"`
	Style      string `json:"style"`
	Product    string `json:"product"`
	Hook       string `json:"hook"`
	Theme      string `json:"theme"`
}

// Empty reports whether no classification field is set. UniqueCode is not a
// classification field.
func (t Tags) Empty() bool {
	return t.AdType == "" && t.Person == "" && t.Style == "" &&
		t.Product == "" && t.Hook == "" && t.Theme == ""
}

// SameFields compares the six classification fields.
func (t Tags) SameFields(o Tags) bool {
	return t.AdType == o.AdType && t.Person == o.Person && t.Style == o.Style &&
		t.Product == o.Product && t.Hook == o.Hook && t.Theme == o.Theme
}

// Parse derives tags from an ad name. ok is false when the name does not follow
// the naming convention; that is an expected outcome, not an error.
func Parse(adName string) (Tags, bool) {
	parts := strings.Split(strings.TrimSpace(adName), delimiter)
	if len(parts) < segmentCount {
		return Tags{}, false
	}

	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}

	if parts[0] == "" {
		return Tags{}, false
	}

	// Anything past the seventh segment belongs to the theme.
	theme := strings.Join(parts[segmentCount-1:], delimiter)

	return Tags{
		UniqueCode: parts[0],
		AdType:     parts[1],
		Person:     parts[2],
		Style:      parts[3],
		Product:    parts[4],
		Hook:       parts[5],
		Theme:      theme,
	}, true
}

// ExtractCode returns the leading segment of an ad name, which by convention is
// the unique code, even when the rest of the name is malformed.
func ExtractCode(adName string) string {
	name := strings.TrimSpace(adName)
	if name == "" {
		return ""
	}
	code, _, _ := strings.Cut(name, delimiter)
	return strings.TrimSpace(code)
}

// MappingTable maps a unique code to the tags uploaded for it.
type MappingTable map[string]Tags

func ApplyMapping(code string, table MappingTable) (Tags, bool) {
	if code == "" || table == nil {
		return Tags{}, false
	}
	tags, ok := table[code]
	if !ok {
		return Tags{}, false
	}
	tags.UniqueCode = code
	return tags, true
}
