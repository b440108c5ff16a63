package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordRoundTrip(t *testing.T) {
	a := NewAsset(TypeDevice, SubtypeEPDU)
	a.Name = "epdu-00000042"
	a.Status = StatusActive
	a.Priority = 2
	a.Parent = "rack-1"
	a.AssetTag = "TAG-42"
	a.SecondaryID = "42"
	a.Links = []Link{{Source: "ups-1", SourcePort: "out1", DestPort: "in1", Type: 1}}
	a.SetExt(ExtUUID, "b0d5d7a2-1c0c-4b53-9b61-6a9d3c1f6a11", true)
	a.SetExt("location", "lab", false)

	b, err := json.Marshal(ExportRecord(a))
	require.NoError(t, err)

	r := &Record{}
	require.NoError(t, json.Unmarshal(b, r))

	got := ImportRecord(r)
	assert.Equal(t, a, got)
}

func TestRecordJSONFields(t *testing.T) {
	a := NewAsset(TypeRack, "")
	a.Name = "rack-1"

	b, err := json.Marshal(ExportRecord(a))
	require.NoError(t, err)

	fields := map[string]any{}
	require.NoError(t, json.Unmarshal(b, &fields))

	for _, key := range []string{"id", "status", "type", "subtype", "priority", "parent", "linked", "tag", "id_secondary", "ext"} {
		assert.Contains(t, fields, key)
	}
}
