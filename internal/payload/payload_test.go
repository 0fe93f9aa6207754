package payload

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const designJSON = `{
  "uuid": "design-1",
  "name": "Gearbox",
  "creation_date": "2024-03-01T09:00:00Z",
  "created_by": {"uuid": "user-1", "email": "ada@example.com", "name": "Ada"},
  "versions": [
    {
      "uuid": "design-1-v1",
      "version_number": 1,
      "revision_date": "2024-03-02 10:30:00",
      "modified_by": {"uuid": "user-1", "email": "ada@example.com"},
      "component_versions": [
        {"fusion_component_version": {
          "uuid": "bolt",
          "name": "Bolt M6",
          "version_number": "2",
          "assembly_lines": []
        }},
        {"fusion_component_version": {
          "uuid": "housing",
          "name": "Housing",
          "version_number": 1,
          "external_design_version_id": null,
          "assembly_lines": [
            {"child_component_version_id": "bolt", "quantity": 4, "sequence": 20}
          ]
        }}
      ]
    }
  ]
}`

const designYAML = `
uuid: design-1
name: Gearbox
creation_date: 2024-03-01T09:00:00Z
created_by:
  uuid: user-1
  email: ada@example.com
  name: Ada
versions:
  - uuid: design-1-v1
    version_number: 1
    revision_date: "2024-03-02 10:30:00"
    modified_by:
      uuid: user-1
      email: ada@example.com
    component_versions:
      - fusion_component_version:
          uuid: bolt
          name: Bolt M6
          version_number: "2"
          assembly_lines: []
      - fusion_component_version:
          uuid: housing
          name: Housing
          version_number: 1
          assembly_lines:
            - child_component_version_id: bolt
              quantity: 4
              sequence: 20
`

func TestDecodeJSON(t *testing.T) {
	ds, err := Decode([]byte(designJSON), FormatJSON)
	require.NoError(t, err)

	assert.Equal(t, "design-1", ds.UUID)
	assert.Equal(t, "Gearbox", ds.Name)
	assert.Equal(t, time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC), ds.CreationDate.Time)
	require.NotNil(t, ds.CreatedBy)
	assert.Equal(t, "ada@example.com", ds.CreatedBy.Email)

	require.Len(t, ds.Versions, 1)
	v := ds.Versions[0]
	n, err := v.VersionNumber.Int()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, time.Date(2024, 3, 2, 10, 30, 0, 0, time.UTC), v.RevisionDate.Time)

	require.Len(t, v.ComponentVersions, 2)
	bolt := v.ComponentVersions[0].FusionComponentVersion
	require.NotNil(t, bolt)
	n, err = bolt.VersionNumber.Int()
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	housing := v.ComponentVersions[1].FusionComponentVersion
	require.Len(t, housing.AssemblyLines, 1)
	line := housing.AssemblyLines[0]
	assert.Equal(t, "bolt", line.ChildComponentVersionID)
	assert.False(t, line.ChildVersionNumber.IsSet())
	require.NotNil(t, line.Quantity)
	assert.Equal(t, 4, *line.Quantity)
	require.NotNil(t, line.Sequence)
	assert.Equal(t, 20, *line.Sequence)
	assert.Empty(t, housing.ExternalDesignVersionID)
}

func TestDecodeYAMLMatchesJSON(t *testing.T) {
	fromJSON, err := Decode([]byte(designJSON), FormatJSON)
	require.NoError(t, err)
	fromYAML, err := Decode([]byte(designYAML), FormatYAML)
	require.NoError(t, err)

	jsonDigest, err := Digest(fromJSON)
	require.NoError(t, err)
	yamlDigest, err := Digest(fromYAML)
	require.NoError(t, err)

	assert.Equal(t, jsonDigest, yamlDigest)
	assert.Equal(t, fromJSON.Versions[0].RevisionDate, fromYAML.Versions[0].RevisionDate)
}

func TestDecodeMalformed(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		format Format
		path   string
	}{
		{"invalid json", `{"uuid": `, FormatJSON, ""},
		{"trailing data", `{"uuid": "a"} {}`, FormatJSON, ""},
		{"not an object", `["a"]`, FormatJSON, ""},
		{"uuid wrong type", `{"uuid": 12}`, FormatJSON, "uuid"},
		{"versions not a list", `{"uuid": "a", "versions": {"a": 1}}`, FormatJSON, "versions"},
		{"quantity is a float", `{"uuid": "a", "versions": [{"uuid": "v", "version_number": 1,
			"component_versions": [{"fusion_component_version": {"uuid": "c", "version_number": 1,
			"assembly_lines": [{"child_component_version_id": "x", "quantity": 1.5}]}}]}]}`, FormatJSON, ""},
		{"bad timestamp", `{"uuid": "a", "creation_date": "yesterday"}`, FormatJSON, ""},
		{"invalid yaml", "uuid: [", FormatYAML, ""},
		{"unknown format", `{}`, Format("toml"), ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.input), tt.format)
			require.Error(t, err)

			var de *DecodeError
			require.True(t, errors.As(err, &de), "expected *DecodeError, got %T", err)
			if tt.path != "" {
				assert.Contains(t, err.Error(), tt.path)
			}
			assert.Contains(t, err.Error(), "malformed payload")
		})
	}
}

func TestDecodeAllowsUnknownFieldsAndNulls(t *testing.T) {
	input := `{
	  "uuid": "d",
	  "extra": {"anything": [1, 2.5]},
	  "created_by": null,
	  "versions": [{"uuid": "v", "version_number": "3", "modified_by": null, "component_versions": null}]
	}`

	ds, err := Decode([]byte(input), FormatJSON)
	require.NoError(t, err)
	assert.Nil(t, ds.CreatedBy)
	require.Len(t, ds.Versions, 1)
	assert.Nil(t, ds.Versions[0].ModifiedBy)
	assert.Empty(t, ds.Versions[0].ComponentVersions)
}

func TestDecodeDefersVersionNumberChecks(t *testing.T) {
	// Booleans and floats pass decoding; the engine rejects them with its
	// own error code.
	ds, err := Decode([]byte(`{"uuid": "d", "versions": [{"uuid": "v", "version_number": true}]}`), FormatJSON)
	require.NoError(t, err)

	_, err = ds.Versions[0].VersionNumber.Int()
	assert.ErrorIs(t, err, ErrVersionNumber)
}

func TestVersionNumberInt(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    int
		wantErr bool
	}{
		{"integer", `3`, 3, false},
		{"numeric string", `"12"`, 12, false},
		{"padded string", `" 7 "`, 7, false},
		{"zero", `0`, 0, true},
		{"negative", `-1`, 0, true},
		{"negative string", `"-4"`, 0, true},
		{"float", `1.5`, 0, true},
		{"float string", `"1.0"`, 0, true},
		{"word", `"abc"`, 0, true},
		{"empty string", `""`, 0, true},
		{"bool", `true`, 0, true},
		{"null", `null`, 0, true},
		{"object", `{}`, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var v VersionNumber
			require.NoError(t, v.UnmarshalJSON([]byte(tt.raw)))

			got, err := v.Int()
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrVersionNumber)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestVersionNumberMissing(t *testing.T) {
	var v VersionNumber
	assert.False(t, v.IsSet())
	_, err := v.Int()
	assert.ErrorIs(t, err, ErrVersionNumber)
	assert.Equal(t, "<missing>", v.String())

	n, err := Number(5).Int()
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	n, err = NumberString("6").Int()
	require.NoError(t, err)
	assert.Equal(t, 6, n)
}

func TestTimestampFormats(t *testing.T) {
	want := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	tests := []struct {
		name string
		raw  string
		want time.Time
	}{
		{"rfc3339", `"2024-01-02T03:04:05Z"`, want},
		{"rfc3339 offset", `"2024-01-02T05:04:05+02:00"`, want},
		{"naive T", `"2024-01-02T03:04:05"`, want},
		{"naive space", `"2024-01-02 03:04:05"`, want},
		{"date", `"2024-01-02"`, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)},
		{"unix seconds", `1704164645`, want},
		{"null", `null`, time.Time{}},
		{"empty", `""`, time.Time{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ts Timestamp
			require.NoError(t, ts.UnmarshalJSON([]byte(tt.raw)))
			assert.True(t, tt.want.Equal(ts.Time), "got %s", ts.Time)
		})
	}

	var ts Timestamp
	assert.Error(t, ts.UnmarshalJSON([]byte(`"next tuesday"`)))
	assert.Error(t, ts.UnmarshalJSON([]byte(`1.5`)))
}

func TestFormatFromPath(t *testing.T) {
	assert.Equal(t, FormatYAML, FormatFromPath("design.yaml"))
	assert.Equal(t, FormatYAML, FormatFromPath("DESIGN.YML"))
	assert.Equal(t, FormatJSON, FormatFromPath("design.json"))
	assert.Equal(t, FormatJSON, FormatFromPath("design"))
}
