package asset

import (
	"context"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/metal-toolbox/assetkeeper/internal/model"
	"github.com/metal-toolbox/assetkeeper/internal/store"
)

// removeParams are passed to each removal step.
type removeParams struct {
	asset               *model.Asset
	allowLastDatacenter bool
}

type removeStep func(ctx context.Context, tx store.Tx, p *removeParams) error

// removeSteps lists the store changes run in a single transaction to remove an asset, per asset class.
var removeSteps = map[model.Class][]removeStep{
	model.ClassDatacenter: {
		refuseLastDatacenter,
		removeExtAttributes,
		removeFromGroups,
		removeFromRelations,
		removeRow,
	},
	model.ClassGroup: {
		clearGroup,
		removeExtAttributes,
		removeRow,
	},
	model.ClassDevice: {
		removeFromGroups,
		unlinkAll,
		removeFromRelations,
		removeExtAttributes,
		removeRow,
	},
	model.ClassOther: {
		removeExtAttributes,
		removeRow,
	},
}

func refuseLastDatacenter(ctx context.Context, tx store.Tx, p *removeParams) error {
	if p.allowLastDatacenter {
		return nil
	}

	last, err := tx.IsLastDatacenter(ctx, p.asset)
	if err != nil {
		return err
	}

	if last {
		return errors.Wrap(model.ErrIntegrity, "last datacenter cannot be removed: "+p.asset.Name)
	}

	return nil
}

func removeExtAttributes(ctx context.Context, tx store.Tx, p *removeParams) error {
	return tx.RemoveExtAttributes(ctx, p.asset)
}

func removeFromGroups(ctx context.Context, tx store.Tx, p *removeParams) error {
	return tx.RemoveFromGroups(ctx, p.asset)
}

func removeFromRelations(ctx context.Context, tx store.Tx, p *removeParams) error {
	return tx.RemoveFromRelations(ctx, p.asset)
}

func clearGroup(ctx context.Context, tx store.Tx, p *removeParams) error {
	return tx.ClearGroup(ctx, p.asset)
}

func unlinkAll(ctx context.Context, tx store.Tx, p *removeParams) error {
	return tx.UnlinkAll(ctx, p.asset)
}

func removeRow(ctx context.Context, tx store.Tx, p *removeParams) error {
	return tx.RemoveAsset(ctx, p.asset)
}

// checkRemovable returns an error wrapping model.ErrIntegrity when the asset
// is the protected root, the source of a link or has children.
func (e *Engine) checkRemovable(ctx context.Context, asset *model.Asset) error {
	if asset.Name == e.rootController {
		return errors.Wrap(model.ErrIntegrity, "protected asset cannot be removed: "+asset.Name)
	}

	linked, err := e.repo.HasLinkedAssets(ctx, asset.Name)
	if err != nil {
		return err
	}

	if linked {
		return errors.Wrap(model.ErrIntegrity, "asset is the source of a link: "+asset.Name)
	}

	children, err := e.repo.Children(ctx, asset.Name)
	if err != nil {
		return err
	}

	if len(children) > 0 {
		return errors.Wrapf(model.ErrIntegrity, "asset has %d children: %s", len(children), asset.Name)
	}

	return nil
}

// Remove deletes the asset from the store.
//
// An active asset is deactivated before any store change, and activated again when the removal fails.
// A failed reactivation is returned alongside the removal error and wraps model.ErrReactivation.
// The last datacenter class asset is only removed when allowLastDatacenter is set.
func (e *Engine) Remove(ctx context.Context, asset *model.Asset, allowLastDatacenter bool) (err error) {
	ctx, span := otel.Tracer(pkgName).Start(ctx, "Engine.Remove")
	defer span.End()

	span.SetAttributes(
		attribute.String("asset", asset.Name),
		attribute.String("class", asset.Type.Class().String()),
	)

	defer observe(string(model.OperationDelete), &err)()

	logger := e.logger.WithFields(logrus.Fields{
		"asset": asset.Name,
		"type":  asset.Type,
	})

	if err := e.checkRemovable(ctx, asset); err != nil {
		return model.WrapOp(model.ErrRemoval, err)
	}

	if asset.HasLogicalAsset() {
		logger.Debug("asset is referenced as a logical asset")
	}

	deactivated := false

	if asset.Status == model.StatusActive {
		if err := e.Deactivate(ctx, asset); err != nil {
			return model.WrapOp(model.ErrRemoval, errors.Wrap(err, "deactivate"))
		}

		deactivated = true
	}

	params := &removeParams{
		asset:               asset,
		allowLastDatacenter: allowLastDatacenter,
	}

	steps := removeSteps[asset.Type.Class()]

	txErr := e.withTx(ctx, func(tx store.Tx) error {
		for _, step := range steps {
			if err := step(ctx, tx, params); err != nil {
				return err
			}
		}

		return nil
	})
	if txErr == nil {
		logger.Info("asset removed")

		e.publish(ctx, model.OperationDelete, asset)

		return nil
	}

	err = model.WrapOp(model.ErrRemoval, txErr)

	if deactivated {
		if aerr := e.Activate(ctx, asset); aerr != nil {
			logger.WithField("err", aerr).Error("asset could not be reactivated after a failed removal")

			err = multierror.Append(err, errors.Wrap(model.ErrReactivation, aerr.Error()))
		}
	}

	return err
}
