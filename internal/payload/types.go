// Package payload defines the typed design structure received from the
// authoring tool and decodes it from JSON or YAML.
//
// Decoding validates types against an embedded CUE schema before the typed
// decode, so structural problems surface as a *DecodeError at the boundary.
// Business rules (required identifiers, version numbering, quantities) are
// left to the reconciliation engine.
package payload

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DesignStructure is the root of one ingestion payload.
type DesignStructure struct {
	UUID         string          `json:"uuid"`
	Name         string          `json:"name,omitempty"`
	CreationDate Timestamp       `json:"creation_date"`
	CreatedBy    *ActorRef       `json:"created_by,omitempty"`
	Versions     []DesignVersion `json:"versions,omitempty"`
}

// DesignVersion is one numbered revision of the design.
type DesignVersion struct {
	UUID              string                  `json:"uuid"`
	VersionNumber     VersionNumber           `json:"version_number"`
	RevisionDate      Timestamp               `json:"revision_date"`
	ModifiedBy        *ActorRef               `json:"modified_by,omitempty"`
	ComponentVersions []ComponentVersionEntry `json:"component_versions,omitempty"`
}

// ComponentVersionEntry wraps one component revision, mirroring the shape
// the authoring tool exports.
type ComponentVersionEntry struct {
	FusionComponentVersion *ComponentVersion `json:"fusion_component_version,omitempty"`
}

// ComponentVersion carries both the component identity and one of its
// revisions.
type ComponentVersion struct {
	UUID          string        `json:"uuid"`
	Name          string        `json:"name,omitempty"`
	CreationDate  Timestamp     `json:"creation_date"`
	CreatedBy     *ActorRef     `json:"created_by,omitempty"`
	VersionNumber VersionNumber `json:"version_number"`
	RevisionDate  Timestamp     `json:"revision_date"`
	ModifiedBy    *ActorRef     `json:"modified_by,omitempty"`

	// ExternalDesignVersionID is the uuid of the design revision an
	// externally referenced component originates from.
	ExternalDesignVersionID string `json:"external_design_version_id,omitempty"`

	AssemblyLines []AssemblyLine `json:"assembly_lines,omitempty"`
}

// AssemblyLine references a child component revision that must already be
// synced, either earlier in the same payload or by a previous call.
type AssemblyLine struct {
	// ChildComponentVersionID is the child component's uuid.
	ChildComponentVersionID string `json:"child_component_version_id"`

	// ChildVersionNumber selects the child revision. Unset means the
	// highest existing revision.
	ChildVersionNumber VersionNumber `json:"child_version_number"`

	Quantity *int `json:"quantity,omitempty"`
	Sequence *int `json:"sequence,omitempty"`
}

// ActorRef identifies a user by uuid and email.
type ActorRef struct {
	UUID  string `json:"uuid"`
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
	Role  string `json:"role,omitempty"`
}

// ErrVersionNumber is wrapped by every VersionNumber.Int failure.
var ErrVersionNumber = errors.New("invalid version number")

// VersionNumber holds a version_number exactly as received. Integers and
// numeric strings are accepted by Int; anything else is rejected there, not
// at decode time.
type VersionNumber struct {
	raw json.RawMessage
}

// Number returns an integer VersionNumber.
func Number(n int) VersionNumber {
	return VersionNumber{raw: json.RawMessage(strconv.Itoa(n))}
}

// NumberString returns a VersionNumber given as a JSON string.
func NumberString(s string) VersionNumber {
	b, _ := json.Marshal(s)
	return VersionNumber{raw: b}
}

// IsSet reports whether a non-null value was received.
func (v VersionNumber) IsSet() bool {
	return len(v.raw) > 0 && !bytes.Equal(v.raw, []byte("null"))
}

// Int returns the version number as a positive integer.
func (v VersionNumber) Int() (int, error) {
	if !v.IsSet() {
		return 0, fmt.Errorf("%w: missing", ErrVersionNumber)
	}

	text := string(v.raw)
	if v.raw[0] == '"' {
		var s string
		if err := json.Unmarshal(v.raw, &s); err != nil {
			return 0, fmt.Errorf("%w: %s", ErrVersionNumber, text)
		}
		text = strings.TrimSpace(s)
	}

	n, err := strconv.Atoi(text)
	if err != nil {
		return 0, fmt.Errorf("%w: %s", ErrVersionNumber, string(v.raw))
	}
	if n < 1 {
		return 0, fmt.Errorf("%w: %d is below 1", ErrVersionNumber, n)
	}
	return n, nil
}

// String returns the raw value for messages.
func (v VersionNumber) String() string {
	if !v.IsSet() {
		return "<missing>"
	}
	return string(v.raw)
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *VersionNumber) UnmarshalJSON(data []byte) error {
	v.raw = append(v.raw[:0], data...)
	return nil
}

// MarshalJSON implements json.Marshaler.
func (v VersionNumber) MarshalJSON() ([]byte, error) {
	if !v.IsSet() {
		return []byte("null"), nil
	}
	return v.raw, nil
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Timestamp accepts RFC 3339, naive "YYYY-MM-DD[ HH:MM:SS]" values (read as
// UTC) and integer Unix seconds. Null or empty means unset.
type Timestamp struct {
	time.Time
}

// At returns a Timestamp for t.
func At(t time.Time) Timestamp {
	return Timestamp{Time: t.UTC()}
}

// UnmarshalJSON implements json.Unmarshaler.
func (ts *Timestamp) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		ts.Time = time.Time{}
		return nil
	}

	if data[0] != '"' {
		secs, err := strconv.ParseInt(string(data), 10, 64)
		if err != nil {
			return fmt.Errorf("timestamp %s: not a string or integer", string(data))
		}
		ts.Time = time.Unix(secs, 0).UTC()
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	s = strings.TrimSpace(s)
	if s == "" {
		ts.Time = time.Time{}
		return nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			ts.Time = t.UTC()
			return nil
		}
	}
	return fmt.Errorf("timestamp %q: unrecognized format", s)
}

// MarshalJSON implements json.Marshaler.
func (ts Timestamp) MarshalJSON() ([]byte, error) {
	if ts.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(ts.UTC().Format(time.RFC3339Nano))
}
