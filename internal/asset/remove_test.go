package asset

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/metal-toolbox/assetkeeper/internal/model"
)

func TestRemove(t *testing.T) {
	cases := []struct {
		name                string
		setup               []*model.Asset
		remove              string
		allowLastDatacenter bool
		wantErr             error
	}{
		{
			name: "protected root",
			setup: []*model.Asset{
				newAsset(model.RootController, model.TypeDevice, model.SubtypeRackController, ""),
			},
			remove:  model.RootController,
			wantErr: model.ErrIntegrity,
		},
		{
			name: "link source",
			setup: []*model.Asset{
				newAsset("ups-1", model.TypeDevice, model.SubtypeUPS, ""),
				func() *model.Asset {
					a := newAsset("epdu-1", model.TypeDevice, model.SubtypeEPDU, "")
					a.Links = []model.Link{{Source: "ups-1", Type: 1}}
					return a
				}(),
			},
			remove:  "ups-1",
			wantErr: model.ErrIntegrity,
		},
		{
			name: "link destination",
			setup: []*model.Asset{
				newAsset("ups-1", model.TypeDevice, model.SubtypeUPS, ""),
				func() *model.Asset {
					a := newAsset("epdu-1", model.TypeDevice, model.SubtypeEPDU, "")
					a.Links = []model.Link{{Source: "ups-1", Type: 1}}
					return a
				}(),
			},
			remove: "epdu-1",
		},
		{
			name: "has children",
			setup: []*model.Asset{
				newAsset("dc-1", model.TypeDatacenter, model.SubtypeNA, ""),
				newAsset("dc-2", model.TypeDatacenter, model.SubtypeNA, ""),
				newAsset("room-1", model.TypeRoom, model.SubtypeNA, "dc-1"),
			},
			remove:  "dc-1",
			wantErr: model.ErrIntegrity,
		},
		{
			name: "last datacenter refused",
			setup: []*model.Asset{
				newAsset("dc-1", model.TypeDatacenter, model.SubtypeNA, ""),
			},
			remove:  "dc-1",
			wantErr: model.ErrIntegrity,
		},
		{
			name: "last datacenter allowed",
			setup: []*model.Asset{
				newAsset("dc-1", model.TypeDatacenter, model.SubtypeNA, ""),
			},
			remove:              "dc-1",
			allowLastDatacenter: true,
		},
		{
			name: "rack is a datacenter class asset",
			setup: []*model.Asset{
				newAsset("rack-1", model.TypeRack, model.SubtypeNA, ""),
			},
			remove:  "rack-1",
			wantErr: model.ErrIntegrity,
		},
		{
			name: "other datacenter left",
			setup: []*model.Asset{
				newAsset("dc-1", model.TypeDatacenter, model.SubtypeNA, ""),
				newAsset("dc-2", model.TypeDatacenter, model.SubtypeNA, ""),
			},
			remove: "dc-2",
		},
		{
			name: "virtual machine",
			setup: []*model.Asset{
				newAsset("vm-1", model.TypeVirtualMachine, model.SubtypeVirtual, ""),
			},
			remove: "vm-1",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			e := newTestEngine(t, newRepo(t))

			createAll(t, e, tc.setup...)

			asset, err := e.Load(ctx, tc.remove, true)
			require.NoError(t, err)

			err = e.Remove(ctx, asset, tc.allowLastDatacenter)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, model.ErrRemoval)
				assert.ErrorIs(t, err, tc.wantErr)

				_, err = e.Load(ctx, tc.remove, false)
				assert.NoError(t, err, "asset is kept")

				return
			}

			require.NoError(t, err)

			_, err = e.Load(ctx, tc.remove, false)
			assert.ErrorIs(t, err, model.ErrNotFound)
		})
	}
}

func TestRemoveActiveDevice(t *testing.T) {
	ctx := context.Background()
	e, m := newAttachedEngine(t, newRepo(t))

	pdu := newAsset("epdu-1", model.TypeDevice, model.SubtypeEPDU, "")
	pdu.SetExt(model.ExtLogicalAsset, "sensor-1", false)
	createAll(t, e, pdu)

	m.On("IsActivable", mock.Anything, pdu).Return(true, nil).Once()
	m.On("Activate", mock.Anything, pdu).Return(nil).Once()
	require.NoError(t, e.Activate(ctx, pdu))

	m.On("Deactivate", mock.Anything, pdu).Return(nil).Once()
	require.NoError(t, e.Remove(ctx, pdu, false))

	_, err := e.Load(ctx, "epdu-1", false)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestRemoveDeactivationDenied(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	pdu := newAsset("epdu-1", model.TypeDevice, model.SubtypeEPDU, "")
	pdu.Status = model.StatusActive
	require.NoError(t, newTestEngine(t, repo).Restore(ctx, pdu, false))

	e, m := newAttachedEngine(t, repo)

	m.On("Deactivate", mock.Anything, pdu).Return(errors.Wrap(model.ErrActivationService, "unreachable")).Once()

	err := e.Remove(ctx, pdu, false)
	assert.ErrorIs(t, err, model.ErrRemoval)
	assert.ErrorIs(t, err, model.ErrActivationService)

	assert.Equal(t, model.StatusActive, storedStatus(t, e, "epdu-1"))
}

func TestRemoveReactivates(t *testing.T) {
	cases := []struct {
		name             string
		reactivateErr    error
		wantReactivation bool
		wantStatus       model.Status
	}{
		{
			"reactivated",
			nil,
			false,
			model.StatusActive,
		},
		{
			"reactivation fails",
			errors.Wrap(model.ErrActivationService, "unreachable"),
			true,
			model.StatusNonactive,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			repo := newRepo(t)

			pdu := newAsset("epdu-1", model.TypeDevice, model.SubtypeEPDU, "")
			pdu.Status = model.StatusActive
			require.NoError(t, newTestEngine(t, repo).Restore(ctx, pdu, false))

			e, m := newAttachedEngine(t, &faultyRepo{Repository: repo, failOn: "RemoveAsset"})

			m.On("Deactivate", mock.Anything, pdu).Return(nil).Once()
			m.On("IsActivable", mock.Anything, pdu).Return(true, nil).Once()
			m.On("Activate", mock.Anything, pdu).Return(tc.reactivateErr).Once()

			err := e.Remove(ctx, pdu, false)
			assert.ErrorIs(t, err, model.ErrRemoval)
			assert.ErrorIs(t, err, model.ErrStorage)
			assert.Equal(t, tc.wantReactivation, errors.Is(err, model.ErrReactivation))

			assert.Equal(t, tc.wantStatus, storedStatus(t, e, "epdu-1"))
		})
	}
}

func TestRemoveCascades(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, newRepo(t))

	group := newAsset("group-1", model.TypeGroup, model.SubtypeNA, "")
	group.SetExt("description", "feeds", false)

	createAll(t, e,
		newAsset("dc-1", model.TypeDatacenter, model.SubtypeNA, ""),
		group,
		newAsset("ups-1", model.TypeDevice, model.SubtypeUPS, "dc-1"),
		newAsset("ups-2", model.TypeDevice, model.SubtypeUPS, "dc-1"),
	)

	require.NoError(t, e.AddToGroup(ctx, "group-1", "ups-1"))
	require.NoError(t, e.AddToGroup(ctx, "group-1", "ups-2"))
	require.NoError(t, e.Relate(ctx, "ups-1", "dc-1"))

	// a removed device leaves its groups
	ups, err := e.Load(ctx, "ups-1", true)
	require.NoError(t, err)
	require.NoError(t, e.Remove(ctx, ups, false))

	members, err := e.repo.GroupMembers(ctx, "group-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"ups-2"}, members)

	// a removed group releases its members
	g, err := e.Load(ctx, "group-1", false)
	require.NoError(t, err)
	require.NoError(t, e.Remove(ctx, g, false))

	members, err = e.repo.GroupMembers(ctx, "group-1")
	require.NoError(t, err)
	assert.Empty(t, members)

	_, err = e.Load(ctx, "ups-2", false)
	assert.NoError(t, err)

	// extended attributes do not outlive their asset
	require.NoError(t, e.Restore(ctx, newAsset("group-1", model.TypeGroup, model.SubtypeNA, ""), false))

	g, err = e.Load(ctx, "group-1", false)
	require.NoError(t, err)

	_, exists := g.Ext["description"]
	assert.False(t, exists)
}

func TestRemoveLinkDestinationFreesSource(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, newRepo(t))

	server := newAsset("server-1", model.TypeServer, model.SubtypeNA, "")
	server.Links = []model.Link{{Source: "ups-1", SourcePort: "1", DestPort: "A", Type: 1}}

	createAll(t, e,
		newAsset("ups-1", model.TypeDevice, model.SubtypeUPS, ""),
		server,
	)

	loaded, err := e.Load(ctx, "server-1", true)
	require.NoError(t, err)
	require.Len(t, loaded.Links, 1)
	require.NoError(t, e.Remove(ctx, loaded, false))

	// the restored asset does not get the old link back
	require.NoError(t, e.Restore(ctx, newAsset("server-1", model.TypeServer, model.SubtypeNA, ""), false))

	restored, err := e.Load(ctx, "server-1", true)
	require.NoError(t, err)
	assert.Empty(t, restored.Links)

	ups, err := e.Load(ctx, "ups-1", false)
	require.NoError(t, err)
	assert.NoError(t, e.Remove(ctx, ups, false))

	_, err = e.Load(ctx, "ups-1", false)
	assert.ErrorIs(t, err, model.ErrNotFound)
}
