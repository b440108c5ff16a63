package asset

import (
	"context"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/exp/slices"

	"github.com/metal-toolbox/assetkeeper/internal/model"
)

// Export returns a record for every asset with its links,
// ancestors are ordered before their descendants.
func (e *Engine) Export(ctx context.Context) ([]model.Record, error) {
	names, err := e.repo.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	type entry struct {
		record model.Record
		depth  int
	}

	entries := make([]entry, 0, len(names))

	for _, name := range names {
		a, err := e.Load(ctx, name, true)
		if err != nil {
			return nil, err
		}

		parents, err := e.ParentsList(ctx, name)
		if err != nil {
			return nil, err
		}

		entries = append(entries, entry{record: model.ExportRecord(a), depth: len(parents)})
	}

	slices.SortStableFunc(entries, func(l, r entry) int {
		return l.depth - r.depth
	})

	records := make([]model.Record, 0, len(entries))
	for _, en := range entries {
		records = append(records, en.record)
	}

	return records, nil
}

// Import restores the records in order, then links them when withLinks is set.
//
// A record that fails to restore does not stop the import, the returned error lists every failure.
func (e *Engine) Import(ctx context.Context, records []model.Record, withLinks bool) error {
	var merr *multierror.Error

	restored := make([]*model.Asset, 0, len(records))

	for i := range records {
		a := model.ImportRecord(&records[i])

		if err := e.Restore(ctx, a, false); err != nil {
			merr = multierror.Append(merr, errors.Wrap(err, records[i].ID))
			continue
		}

		restored = append(restored, a)
	}

	if withLinks {
		for _, a := range restored {
			links := a.Links
			a.Links = nil

			for _, l := range links {
				if err := e.LinkTo(ctx, a, l.Source, l.SourcePort, l.DestPort, l.Type); err != nil {
					merr = multierror.Append(merr, errors.Wrap(err, a.Name))
				}
			}
		}
	}

	e.logger.WithFields(
		logrus.Fields{
			"records":  len(records),
			"restored": len(restored),
			"links":    withLinks,
		}).Info("import complete")

	return merr.ErrorOrNil()
}
