package asset

import (
	"context"
	"strconv"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/metal-toolbox/assetkeeper/internal/model"
	"github.com/metal-toolbox/assetkeeper/internal/store"
)

// Load returns the asset with its extended attributes, and links when withLinks is set.
func (e *Engine) Load(ctx context.Context, name string, withLinks bool) (*model.Asset, error) {
	return load(ctx, e.repo, name, withLinks)
}

func load(ctx context.Context, r store.Reader, name string, withLinks bool) (*model.Asset, error) {
	asset, err := r.AssetByName(ctx, name)
	if err != nil {
		return nil, err
	}

	if err := r.LoadExtAttributes(ctx, asset); err != nil {
		return nil, err
	}

	if withLinks {
		if err := r.LoadLinks(ctx, asset); err != nil {
			return nil, err
		}
	}

	return asset, nil
}

// checkRoots refuses a datacenter that has a parent, datacenters are always hierarchy roots.
func checkRoots(asset *model.Asset) error {
	if asset.Type == model.TypeDatacenter && asset.Parent != "" {
		return errors.Wrap(model.ErrIntegrity, "datacenter cannot have a parent: "+asset.Name)
	}

	return nil
}

// Create persists a new asset.
//
// An internal name is generated when the asset has none or its name is taken,
// the create timestamp and uuid are stamped as read only extended attributes.
// The asset is left unchanged when an error is returned.
func (e *Engine) Create(ctx context.Context, asset *model.Asset) (err error) {
	ctx, span := otel.Tracer(pkgName).Start(ctx, "Engine.Create")
	defer span.End()

	defer observe(string(model.OperationCreate), &err)()

	orig := asset.Clone()

	err = e.withTx(ctx, func(tx store.Tx) error {
		if err := checkRoots(asset); err != nil {
			return err
		}

		if err := e.assignName(ctx, tx, asset); err != nil {
			return err
		}

		asset.SetExt(model.ExtCreateTS, e.timestamp(), true)
		asset.SetExt(
			model.ExtUUID,
			GenerateUUID(asset.Manufacturer(), asset.Model(), asset.Serial()).String(),
			true,
		)

		if err := tx.Insert(ctx, asset); err != nil {
			return err
		}

		if err := tx.SaveLinks(ctx, asset); err != nil {
			return err
		}

		return tx.SaveExtAttributes(ctx, asset)
	})
	if err != nil {
		*asset = *orig

		e.logger.WithFields(
			logrus.Fields{
				"asset": asset.Name,
				"type":  asset.Type,
				"err":   err,
			}).Debug("asset create failed")

		return model.WrapOp(model.ErrCreation, err)
	}

	span.SetAttributes(attribute.String("asset", asset.Name))

	e.logger.WithFields(
		logrus.Fields{
			"asset": asset.Name,
			"type":  asset.Type,
		}).Info("asset created")

	e.publish(ctx, model.OperationCreate, asset)

	return nil
}

// assignName keeps a free caller supplied name, otherwise a unique name is generated.
func (e *Engine) assignName(ctx context.Context, tx store.Tx, asset *model.Asset) error {
	if asset.Name != "" {
		id, err := tx.IDByName(ctx, asset.Name)
		if err != nil {
			return err
		}

		if id == 0 {
			return nil
		}

		e.logger.WithField("name", asset.Name).Debug("asset name exists, generating a new name")
	}

	name, err := e.uniqueName(ctx, tx, asset)
	if err != nil {
		return err
	}

	asset.Name = name

	return nil
}

// Update persists the asset attributes, links and extended attributes.
//
// The stored status is kept, status changes go through Activate and Deactivate.
// In detached mode an asset missing from the store is inserted.
func (e *Engine) Update(ctx context.Context, asset *model.Asset) (err error) {
	ctx, span := otel.Tracer(pkgName).Start(ctx, "Engine.Update")
	defer span.End()

	span.SetAttributes(attribute.String("asset", asset.Name))

	defer observe(string(model.OperationUpdate), &err)()

	err = e.withTx(ctx, func(tx store.Tx) error {
		if err := checkRoots(asset); err != nil {
			return err
		}

		if err := checkParentCycle(ctx, tx, asset); err != nil {
			return err
		}

		stored, err := tx.AssetByName(ctx, asset.Name)
		switch {
		case err == nil:
			asset.Status = stored.Status
			asset.ID = stored.ID
		case errors.Is(err, model.ErrNotFound) && e.detached:
			stored = nil
		default:
			return err
		}

		asset.SetExt(model.ExtUpdateTS, e.timestamp(), true)

		if stored == nil {
			err = tx.Insert(ctx, asset)
		} else {
			err = tx.Update(ctx, asset)
		}

		if err != nil {
			return err
		}

		// nil links were not loaded, the stored links are kept
		if asset.Links != nil {
			if err := tx.SaveLinks(ctx, asset); err != nil {
				return err
			}
		}

		return tx.SaveExtAttributes(ctx, asset)
	})
	if err != nil {
		return model.WrapOp(model.ErrUpdate, err)
	}

	e.logger.WithField("asset", asset.Name).Debug("asset updated")

	e.publish(ctx, model.OperationUpdate, asset)

	return nil
}

// Restore inserts an asset read from a backup record under its recorded name.
//
// Links are restored only when restoreLinks is set, a fresh create timestamp is stamped.
func (e *Engine) Restore(ctx context.Context, asset *model.Asset, restoreLinks bool) (err error) {
	ctx, span := otel.Tracer(pkgName).Start(ctx, "Engine.Restore")
	defer span.End()

	span.SetAttributes(attribute.String("asset", asset.Name))

	defer observe("restore", &err)()

	err = e.withTx(ctx, func(tx store.Tx) error {
		if err := checkRoots(asset); err != nil {
			return err
		}

		id, err := tx.IDByName(ctx, asset.Name)
		if err != nil {
			return err
		}

		if id != 0 {
			return errors.Wrap(model.ErrAlreadyExists, asset.Name)
		}

		asset.SetExt(model.ExtCreateTS, e.timestamp(), true)

		if err := tx.Insert(ctx, asset); err != nil {
			return err
		}

		if restoreLinks {
			if err := tx.SaveLinks(ctx, asset); err != nil {
				return err
			}
		}

		return tx.SaveExtAttributes(ctx, asset)
	})
	if err != nil {
		return model.WrapOp(model.ErrCreation, err)
	}

	e.logger.WithFields(
		logrus.Fields{
			"asset": asset.Name,
			"links": restoreLinks,
		}).Debug("asset restored")

	e.publish(ctx, model.OperationCreate, asset)

	return nil
}

// LinkTo links the source asset to the asset.
//
// A missing source is logged and ignored.
func (e *Engine) LinkTo(ctx context.Context, asset *model.Asset, src, srcPort, destPort string, linkType int) error {
	id, err := e.repo.IDByName(ctx, src)
	if err != nil {
		return err
	}

	if id == 0 {
		e.logger.WithFields(
			logrus.Fields{
				"asset":  asset.Name,
				"source": src,
			}).Warn("link source does not exist, link ignored")

		return nil
	}

	err = e.withTx(ctx, func(tx store.Tx) error {
		return tx.Link(ctx, src, srcPort, asset.Name, destPort, linkType)
	})
	if err != nil {
		return model.WrapOp(model.ErrUpdate, err)
	}

	link := model.Link{Source: src, SourcePort: srcPort, DestPort: destPort, Type: linkType}
	for _, l := range asset.Links {
		if l == link {
			return nil
		}
	}

	asset.Links = append(asset.Links, link)

	return nil
}

// UnlinkFrom removes the link from the source asset to the asset.
func (e *Engine) UnlinkFrom(ctx context.Context, asset *model.Asset, src, srcPort, destPort string, linkType int) error {
	err := e.withTx(ctx, func(tx store.Tx) error {
		return tx.Unlink(ctx, src, srcPort, asset.Name, destPort, linkType)
	})
	if err != nil {
		return model.WrapOp(model.ErrUpdate, err)
	}

	link := model.Link{Source: src, SourcePort: srcPort, DestPort: destPort, Type: linkType}

	links := asset.Links[:0]
	for _, l := range asset.Links {
		if l != link {
			links = append(links, l)
		}
	}

	asset.Links = links

	return nil
}

// AddToGroup adds the member asset to the group asset.
func (e *Engine) AddToGroup(ctx context.Context, group, member string) error {
	return e.withTx(ctx, func(tx store.Tx) error {
		return tx.AddToGroup(ctx, group, member)
	})
}

// Relate records a relation between two assets.
func (e *Engine) Relate(ctx context.Context, from, to string) error {
	return e.withTx(ctx, func(tx store.Tx) error {
		return tx.AddRelation(ctx, from, to)
	})
}

// List returns the names of the assets matching the filters.
//
// Unknown filter values are dropped with a warning, a category whose values
// were all dropped matches no asset.
func (e *Engine) List(ctx context.Context, filters model.Filters) ([]string, error) {
	ctx, span := otel.Tracer(pkgName).Start(ctx, "Engine.List")
	defer span.End()

	query, matchNone, err := e.query(ctx, filters)
	if err != nil {
		return nil, err
	}

	if matchNone {
		return []string{}, nil
	}

	if query.Empty() {
		return e.repo.ListAll(ctx)
	}

	return e.repo.List(ctx, query)
}

// nolint:gocyclo // filter normalization is a flat switch per category
func (e *Engine) query(ctx context.Context, filters model.Filters) (*model.Query, bool, error) {
	query := &model.Query{}

	for category, values := range filters {
		if len(values) == 0 {
			continue
		}

		if !knownFilter(category) {
			e.logger.WithField("filter", category).Warn("unknown filter category ignored")
			continue
		}

		accepted := 0

		for _, value := range values {
			ok := true

			switch category {
			case model.FilterStatus:
				status := model.ParseStatus(value)
				ok = status != model.StatusUnknown

				if ok {
					query.Statuses = append(query.Statuses, status)
				}
			case model.FilterType:
				t, err := model.ParseType(value)
				ok = err == nil

				if ok {
					query.Types = append(query.Types, t)
				}
			case model.FilterSubtype:
				ok = model.IsKnownSubtype(value)

				if ok {
					query.Subtypes = append(query.Subtypes, value)
				}
			case model.FilterPriority:
				p, err := strconv.Atoi(value)
				ok = err == nil

				if ok {
					query.Priorities = append(query.Priorities, p)
				}
			case model.FilterParent:
				id, err := e.repo.IDByName(ctx, value)
				if err != nil {
					return nil, false, err
				}

				ok = id != 0

				if ok {
					query.Parents = append(query.Parents, value)
				}
			}

			if !ok {
				e.logger.WithFields(
					logrus.Fields{
						"filter": category,
						"value":  value,
					}).Warn("unknown filter value ignored")

				continue
			}

			accepted++
		}

		if accepted == 0 {
			return nil, true, nil
		}
	}

	return query, false, nil
}

func knownFilter(category model.FilterCategory) bool {
	switch category {
	case model.FilterStatus, model.FilterType, model.FilterSubtype, model.FilterPriority, model.FilterParent:
		return true
	default:
		return false
	}
}

// NameByUUID returns the internal name of the asset with the uuid.
func (e *Engine) NameByUUID(ctx context.Context, uuid string) (string, error) {
	return e.repo.NameByUUID(ctx, uuid)
}

// ExternalName returns the user facing asset name, the internal name when none is set.
func (e *Engine) ExternalName(ctx context.Context, name string) (string, error) {
	asset, err := e.Load(ctx, name, false)
	if err != nil {
		return "", err
	}

	if ename, ok := asset.ExtValue(model.ExtName); ok && ename != "" {
		return ename, nil
	}

	return asset.Name, nil
}

// ActivePowerDevices returns the number of active power devices.
func (e *Engine) ActivePowerDevices(ctx context.Context) (int, error) {
	names, err := e.repo.List(ctx, &model.Query{
		Statuses: []model.Status{model.StatusActive},
		Types:    []model.Type{model.TypeDevice},
		Subtypes: model.PowerDeviceSubtypes(),
	})
	if err != nil {
		return 0, err
	}

	return len(names), nil
}
