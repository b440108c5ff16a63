package asset

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metal-toolbox/assetkeeper/internal/model"
)

func withoutTimestamps(records []model.Record) []model.Record {
	for i := range records {
		delete(records[i].Ext, model.ExtCreateTS)
		delete(records[i].Ext, model.ExtUpdateTS)
	}

	return records
}

func TestExport(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, newRepo(t))

	newInventory(t, e)

	records, err := e.Export(ctx)
	require.NoError(t, err)

	got := []string{}
	for _, r := range records {
		got = append(got, r.ID)
	}

	want := []string{"dc-1", "room-1", "room-2", "rack-1", "server-1", "epdu-1", "ups-1"}
	assert.Equal(t, want, got)
}

func TestExportImport(t *testing.T) {
	ctx := context.Background()
	src := newTestEngine(t, newRepo(t))

	newInventory(t, src)

	pdu, err := src.Load(ctx, "epdu-1", true)
	require.NoError(t, err)
	require.NoError(t, src.LinkTo(ctx, pdu, "ups-1", "1", "A", 1))

	records, err := src.Export(ctx)
	require.NoError(t, err)

	cases := []struct {
		name      string
		withLinks bool
		wantLinks []model.Link
	}{
		{
			"without links",
			false,
			[]model.Link{},
		},
		{
			"with links",
			true,
			[]model.Link{{Source: "ups-1", SourcePort: "1", DestPort: "A", Type: 1}},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dst := newTestEngine(t, newRepo(t))

			require.NoError(t, dst.Import(ctx, append([]model.Record{}, records...), tc.withLinks))

			stored, err := dst.Load(ctx, "epdu-1", true)
			require.NoError(t, err)
			assert.ElementsMatch(t, tc.wantLinks, stored.Links)

			if !tc.withLinks {
				return
			}

			exported, err := dst.Export(ctx)
			require.NoError(t, err)
			assert.Equal(t, withoutTimestamps(records), withoutTimestamps(exported))
		})
	}
}

func TestImportCollectsFailures(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, newRepo(t))

	newSite(t, e)

	records := []model.Record{
		model.ExportRecord(newAsset("dc-1", model.TypeDatacenter, model.SubtypeNA, "")),
		model.ExportRecord(newAsset("dc-2", model.TypeDatacenter, model.SubtypeNA, "")),
	}

	err := e.Import(ctx, records, false)
	assert.ErrorIs(t, err, model.ErrAlreadyExists)
	assert.Contains(t, err.Error(), "dc-1")

	_, err = e.Load(ctx, "dc-2", false)
	assert.NoError(t, err)
}
