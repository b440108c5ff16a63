package activation

import (
	"context"

	"github.com/metal-toolbox/assetkeeper/internal/model"
)

// Activator is the external licensing/activation service.
//
// Only device assets are passed to the Activator, status changes of other
// asset types are local.
type Activator interface {
	// IsActivable returns true when the licensing policy allows the asset to be activated.
	IsActivable(ctx context.Context, asset *model.Asset) (bool, error)

	// Activate registers the asset as active with the activation service.
	//
	// An error wrapping model.ErrActivationDenied is returned when the service refuses the request,
	// transport and service failures wrap model.ErrActivationService.
	Activate(ctx context.Context, asset *model.Asset) error

	// Deactivate releases the asset activation.
	Deactivate(ctx context.Context, asset *model.Asset) error
}
