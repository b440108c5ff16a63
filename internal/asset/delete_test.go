package asset

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slices"

	"github.com/metal-toolbox/assetkeeper/internal/model"
)

// newSite creates dc-1 > room-1 > rack-1 and dc-1 > room-2.
func newSite(t *testing.T, e *Engine) {
	t.Helper()

	createAll(t, e,
		newAsset("dc-1", model.TypeDatacenter, model.SubtypeNA, ""),
		newAsset("room-1", model.TypeRoom, model.SubtypeNA, "dc-1"),
		newAsset("room-2", model.TypeRoom, model.SubtypeNA, "dc-1"),
		newAsset("rack-1", model.TypeRack, model.SubtypeNA, "room-1"),
	)
}

func TestDeleteListRecursive(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, newRepo(t))

	newSite(t, e)

	// room-1 is also reached from dc-1, it is removed once
	report := e.DeleteList(ctx, []string{"dc-1", "room-1"}, true, true)

	assert.Equal(t, []string{"rack-1", "room-1", "room-2", "dc-1"}, report.Names())
	assert.Empty(t, report.Failed())

	names, err := e.List(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestDeleteListLastDatacenter(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, newRepo(t))

	newSite(t, e)

	report := e.DeleteList(ctx, []string{"dc-1"}, true, false)
	require.Len(t, report, 4)

	failed := report.Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, "dc-1", failed[0].Asset.Name)
	assert.True(t, strings.HasPrefix(failed[0].Status, removalFailedPrefix), failed[0].Status)

	_, err := e.Load(ctx, "dc-1", false)
	assert.NoError(t, err)
}

func TestDeleteListNotRecursive(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, newRepo(t))

	newSite(t, e)

	// unknown names are skipped
	report := e.DeleteList(ctx, []string{"room-1", "room-9"}, false, false)
	require.Len(t, report, 1)
	assert.False(t, report[0].OK())
	assert.Equal(t, "room-1", report[0].Asset.Name)
	assert.Contains(t, report[0].Status, model.ErrIntegrity.Error())

	report = e.DeleteList(ctx, []string{"room-1", "rack-1"}, false, false)
	assert.Equal(t, []string{"rack-1", "room-1"}, report.Names())
	assert.Empty(t, report.Failed())

	assert.Empty(t, e.DeleteList(ctx, []string{"room-9"}, true, false))
}

func TestDeleteListStripsLinks(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, newRepo(t))

	pdu := newAsset("epdu-1", model.TypeDevice, model.SubtypeEPDU, "")
	pdu.Links = []model.Link{{Source: "ups-1", SourcePort: "out", DestPort: "in", Type: 1}}

	createAll(t, e, newAsset("ups-1", model.TypeDevice, model.SubtypeUPS, ""), pdu)

	// a link source is removable within a batch
	report := e.DeleteList(ctx, []string{"ups-1"}, false, false)
	require.Len(t, report, 1)
	assert.True(t, report[0].OK(), report[0].Status)

	got, err := e.Load(ctx, "epdu-1", true)
	require.NoError(t, err)
	assert.Empty(t, got.Links)
}

func TestDeleteAll(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, newRepo(t))

	newSite(t, e)

	pdu := newAsset("epdu-1", model.TypeDevice, model.SubtypeEPDU, "")
	pdu.Links = []model.Link{{Source: "ups-1", Type: 1}}

	createAll(t, e,
		newAsset(model.RootController, model.TypeDevice, model.SubtypeRackController, ""),
		newAsset("ups-1", model.TypeDevice, model.SubtypeUPS, ""),
		pdu,
	)

	report, err := e.DeleteAll(ctx)
	require.NoError(t, err)

	assert.Equal(t,
		[]string{"rack-1", "room-1", "room-2", "dc-1", "epdu-1", model.RootController, "ups-1"},
		report.Names(),
	)

	failed := report.Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, model.RootController, failed[0].Asset.Name)

	names, err := e.List(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{model.RootController}, names)
}

func TestArenaCompare(t *testing.T) {
	a := newArena()
	a.chains = map[string][]string{
		"dc-1":   {"dc-1"},
		"dc-2":   {"dc-2"},
		"room-1": {"room-1", "dc-1"},
		"room-2": {"room-2", "dc-1"},
		"rack-1": {"rack-1", "room-1", "dc-1"},
		"rack-9": {"rack-9", "room-9", "dc-2"},
	}

	cases := []struct {
		name string
		l, r string
		want int
	}{
		{"same asset", "rack-1", "rack-1", 0},
		{"descendant first", "rack-1", "dc-1", -1},
		{"ancestor last", "room-1", "rack-1", 1},
		{"farther from the common ancestor first", "rack-1", "room-2", -1},
		{"siblings by name", "room-1", "room-2", -1},
		{"siblings by name reversed", "room-2", "room-1", 1},
		{"unrelated deeper first", "rack-9", "room-1", -1},
		{"unrelated roots by name", "dc-2", "dc-1", 1},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := a.compare(tc.l, tc.r)

			switch {
			case tc.want < 0:
				assert.Negative(t, got)
			case tc.want > 0:
				assert.Positive(t, got)
			default:
				assert.Zero(t, got)
			}
		})
	}
}

func TestArenaResolveChains(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, newRepo(t))

	newSite(t, e)

	a := newArena()

	// ghost-1 is not stored, its lookup fails first
	for _, name := range []string{"ghost-1", "dc-1", "rack-1", "room-1"} {
		a.add(newAsset(name, model.TypeRoom, model.SubtypeNA, ""))
	}

	err := a.resolveChains(ctx, e.repo)
	assert.ErrorIs(t, err, model.ErrNotFound)
	assert.Contains(t, err.Error(), "ghost-1")

	assert.Equal(t, []string{"ghost-1"}, a.chains["ghost-1"])
	assert.Equal(t, []string{"rack-1", "room-1", "dc-1"}, a.chains["rack-1"])
	assert.Equal(t, []string{"room-1", "dc-1"}, a.chains["room-1"])

	slices.SortStableFunc(a.order, a.compare)
	assert.Equal(t, []string{"rack-1", "room-1", "dc-1", "ghost-1"}, a.order)
}
