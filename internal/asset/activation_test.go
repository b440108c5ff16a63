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

func storedStatus(t *testing.T, e *Engine, name string) model.Status {
	t.Helper()

	a, err := e.Load(context.Background(), name, false)
	require.NoError(t, err)

	return a.Status
}

func TestActivateLocalAsset(t *testing.T) {
	ctx := context.Background()

	// the mock has no expectations, non devices never reach the activation service
	e, _ := newAttachedEngine(t, newRepo(t))

	dc := newAsset("dc-1", model.TypeDatacenter, model.SubtypeNA, "")
	createAll(t, e, dc)

	require.NoError(t, e.Activate(ctx, dc))
	assert.Equal(t, model.StatusActive, dc.Status)
	assert.Equal(t, model.StatusActive, storedStatus(t, e, "dc-1"))

	require.NoError(t, e.Deactivate(ctx, dc))
	assert.Equal(t, model.StatusNonactive, dc.Status)
	assert.Equal(t, model.StatusNonactive, storedStatus(t, e, "dc-1"))
}

func TestActivateDevice(t *testing.T) {
	cases := []struct {
		name       string
		activable  bool
		policyErr  error
		serviceErr error
		wantErr    error
		wantStatus model.Status
	}{
		{
			"activated",
			true,
			nil,
			nil,
			nil,
			model.StatusActive,
		},
		{
			"denied by the licensing policy",
			false,
			nil,
			nil,
			model.ErrActivationDenied,
			model.StatusNonactive,
		},
		{
			"licensing policy unavailable",
			false,
			errors.Wrap(model.ErrActivationService, "timeout"),
			nil,
			model.ErrActivationService,
			model.StatusNonactive,
		},
		{
			"activation service failure",
			true,
			nil,
			errors.Wrap(model.ErrActivationService, "broken"),
			model.ErrActivationService,
			model.StatusNonactive,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			e, m := newAttachedEngine(t, newRepo(t))

			pdu := newAsset("epdu-1", model.TypeDevice, model.SubtypeEPDU, "")
			createAll(t, e, pdu)

			m.On("IsActivable", mock.Anything, pdu).Return(tc.activable, tc.policyErr).Once()

			if tc.activable && tc.policyErr == nil {
				m.On("Activate", mock.Anything, pdu).Return(tc.serviceErr).Once()
			}

			err := e.Activate(ctx, pdu)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
			} else {
				assert.NoError(t, err)
			}

			assert.Equal(t, tc.wantStatus, pdu.Status)
			assert.Equal(t, tc.wantStatus, storedStatus(t, e, "epdu-1"))
		})
	}
}

func TestActivateNoop(t *testing.T) {
	ctx := context.Background()
	e, m := newAttachedEngine(t, newRepo(t))

	pdu := newAsset("epdu-1", model.TypeDevice, model.SubtypeEPDU, "")
	createAll(t, e, pdu)

	// deactivating a nonactive device makes no call
	require.NoError(t, e.Deactivate(ctx, pdu))

	m.On("IsActivable", mock.Anything, pdu).Return(true, nil).Once()
	m.On("Activate", mock.Anything, pdu).Return(nil).Once()

	require.NoError(t, e.Activate(ctx, pdu))

	// the second activation is a no-op, Once above fails on a repeated call
	require.NoError(t, e.Activate(ctx, pdu))
	assert.Equal(t, model.StatusActive, storedStatus(t, e, "epdu-1"))

	m.On("Deactivate", mock.Anything, pdu).Return(nil).Once()

	require.NoError(t, e.Deactivate(ctx, pdu))
	assert.Equal(t, model.StatusNonactive, storedStatus(t, e, "epdu-1"))
}

func TestActivateDetached(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, newRepo(t))

	pdu := newAsset("epdu-1", model.TypeDevice, model.SubtypeEPDU, "")
	createAll(t, e, pdu)

	activable, err := e.IsActivable(ctx, pdu)
	require.NoError(t, err)
	assert.True(t, activable)

	require.NoError(t, e.Activate(ctx, pdu))
	assert.Equal(t, model.StatusActive, storedStatus(t, e, "epdu-1"))

	count, err := e.ActivePowerDevices(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	require.NoError(t, e.Deactivate(ctx, pdu))
	assert.Equal(t, model.StatusNonactive, storedStatus(t, e, "epdu-1"))
}

func TestActivatePersistFailure(t *testing.T) {
	cases := []struct {
		name          string
		compensateErr error
		wantErrs      []error
	}{
		{
			"activation is compensated",
			nil,
			[]error{model.ErrStorage},
		},
		{
			"compensation fails",
			errors.Wrap(model.ErrActivationService, "unreachable"),
			[]error{model.ErrStorage, model.ErrActivationService},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			repo := newRepo(t)

			pdu := newAsset("epdu-1", model.TypeDevice, model.SubtypeEPDU, "")
			createAll(t, newTestEngine(t, repo), pdu)

			e, m := newAttachedEngine(t, &faultyRepo{Repository: repo, failOn: "Update"})

			m.On("IsActivable", mock.Anything, pdu).Return(true, nil).Once()
			m.On("Activate", mock.Anything, pdu).Return(nil).Once()
			m.On("Deactivate", mock.Anything, pdu).Return(tc.compensateErr).Once()

			err := e.Activate(ctx, pdu)
			for _, want := range tc.wantErrs {
				assert.ErrorIs(t, err, want)
			}

			assert.Equal(t, model.StatusNonactive, pdu.Status)
			assert.Equal(t, model.StatusNonactive, storedStatus(t, e, "epdu-1"))
		})
	}
}

func TestIsActivable(t *testing.T) {
	ctx := context.Background()
	e, m := newAttachedEngine(t, newRepo(t))

	rack := newAsset("rack-1", model.TypeRack, model.SubtypeNA, "")
	ups := newAsset("ups-1", model.TypeDevice, model.SubtypeUPS, "")

	activable, err := e.IsActivable(ctx, rack)
	require.NoError(t, err)
	assert.True(t, activable)

	m.On("IsActivable", mock.Anything, ups).Return(false, nil).Once()

	activable, err = e.IsActivable(ctx, ups)
	require.NoError(t, err)
	assert.False(t, activable)
}

func TestDescribeStatusStateMachine(t *testing.T) {
	e := newTestEngine(t, newRepo(t))

	b, err := e.DescribeStatusStateMachine()
	require.NoError(t, err)

	for _, want := range []string{"activate", "deactivate", "active", "nonactive", "unknown"} {
		assert.Contains(t, string(b), want)
	}
}
