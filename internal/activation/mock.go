package activation

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/metal-toolbox/assetkeeper/internal/model"
)

// MockActivator is a testify mock of the Activator interface.
type MockActivator struct {
	mock.Mock
}

// NewMockActivator returns a MockActivator whose expectations are asserted on test cleanup.
func NewMockActivator(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockActivator {
	m := &MockActivator{}
	m.Mock.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}

func (m *MockActivator) IsActivable(ctx context.Context, asset *model.Asset) (bool, error) {
	args := m.Called(ctx, asset)
	return args.Bool(0), args.Error(1)
}

func (m *MockActivator) Activate(ctx context.Context, asset *model.Asset) error {
	args := m.Called(ctx, asset)
	return args.Error(0)
}

func (m *MockActivator) Deactivate(ctx context.Context, asset *model.Asset) error {
	args := m.Called(ctx, asset)
	return args.Error(0)
}
