package asset

import (
	"context"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/exp/slices"

	"github.com/metal-toolbox/assetkeeper/internal/metrics"
	"github.com/metal-toolbox/assetkeeper/internal/model"
	"github.com/metal-toolbox/assetkeeper/internal/store"
)

const removalFailedPrefix = "Asset could not be removed: "

// arena holds the candidates of a delete batch keyed by name, with their ancestor chains.
type arena struct {
	assets map[string]*model.Asset
	// chains holds each candidate followed by its ancestors, nearest first.
	chains map[string][]string
	order  []string
}

func newArena() *arena {
	return &arena{
		assets: map[string]*model.Asset{},
		chains: map[string][]string{},
	}
}

func (a *arena) add(asset *model.Asset) bool {
	if _, exists := a.assets[asset.Name]; exists {
		return false
	}

	a.assets[asset.Name] = asset
	a.order = append(a.order, asset.Name)

	return true
}

// resolveChains looks up the ancestor chain of every candidate.
//
// A candidate whose ancestors cannot be resolved keeps a chain holding only itself,
// the returned error lists every failed lookup.
func (a *arena) resolveChains(ctx context.Context, r store.Reader) error {
	var merr *multierror.Error

	for _, name := range a.order {
		parents, err := parentsList(ctx, r, name)
		if err != nil {
			merr = multierror.Append(merr, errors.Wrap(err, name))
			a.chains[name] = []string{name}

			continue
		}

		a.chains[name] = append([]string{name}, parents...)
	}

	return merr.ErrorOrNil()
}

// compare orders two candidates for removal, negative when l is removed first.
//
// The candidate farther from the lowest common ancestor goes first,
// without a common ancestor or at equal distance the deeper one goes first,
// then names in ascending order.
func (a *arena) compare(l, r string) int {
	if l == r {
		return 0
	}

	chainL, chainR := a.chains[l], a.chains[r]

	distL := make(map[string]int, len(chainL))
	for i, name := range chainL {
		distL[name] = i
	}

	for j, name := range chainR {
		i, common := distL[name]
		if !common {
			continue
		}

		if i != j {
			return j - i
		}

		break
	}

	if depthL, depthR := len(chainL), len(chainR); depthL != depthR {
		return depthR - depthL
	}

	return strings.Compare(l, r)
}

// DeleteList removes the named assets, and all their descendants when recursive is set.
//
// Names that cannot be loaded are logged and skipped. Links of every candidate are
// removed before any asset, the assets are then removed descendants first.
// The report holds one entry per candidate, a failed removal does not stop the batch.
func (e *Engine) DeleteList(ctx context.Context, names []string, recursive, allowLastDatacenter bool) model.DeleteReport {
	ctx, span := otel.Tracer(pkgName).Start(ctx, "Engine.DeleteList")
	defer span.End()

	span.SetAttributes(
		attribute.Int("names", len(names)),
		attribute.Bool("recursive", recursive),
	)

	candidates := e.loadCandidates(ctx, names, recursive)

	if err := candidates.resolveChains(ctx, e.repo); err != nil {
		var merr *multierror.Error
		if errors.As(err, &merr) {
			for _, cause := range merr.Errors {
				e.logger.WithField("err", cause).Warn("ancestor lookup failed, the asset is ordered as a root")
			}
		}
	}

	slices.SortStableFunc(candidates.order, candidates.compare)

	for _, name := range candidates.order {
		err := e.withTx(ctx, func(tx store.Tx) error {
			return tx.UnlinkAll(ctx, candidates.assets[name])
		})
		if err != nil {
			e.logger.WithFields(
				logrus.Fields{
					"asset": name,
					"err":   err,
				}).Warn("asset links could not be removed")
		}
	}

	report := make(model.DeleteReport, 0, len(candidates.order))

	for _, name := range candidates.order {
		result := e.deleteOne(ctx, candidates.assets[name], allowLastDatacenter)

		metrics.DeleteItemsCounter.With(map[string]string{"result": deleteResultLabel(result)}).Inc()

		report = append(report, result)
	}

	e.logger.WithFields(
		logrus.Fields{
			"candidates": len(report),
			"failed":     len(report.Failed()),
		}).Info("asset delete batch completed")

	return report
}

func deleteResultLabel(r model.DeleteResult) string {
	if r.OK() {
		return metrics.ResultSucceeded
	}

	return metrics.ResultFailed
}

// deleteOne reloads the candidate from the store and removes it.
func (e *Engine) deleteOne(ctx context.Context, candidate *model.Asset, allowLastDatacenter bool) model.DeleteResult {
	asset, err := e.Load(ctx, candidate.Name, true)
	if err != nil {
		return model.DeleteResult{Asset: candidate, Status: removalFailedPrefix + err.Error()}
	}

	if err := e.Remove(ctx, asset, allowLastDatacenter); err != nil {
		return model.DeleteResult{Asset: asset, Status: removalFailedPrefix + err.Error()}
	}

	return model.DeleteResult{Asset: asset, Status: model.DeleteStatusOK}
}

// loadCandidates loads the named assets, and their descendants when recursive is set.
func (e *Engine) loadCandidates(ctx context.Context, names []string, recursive bool) *arena {
	candidates := newArena()

	for _, name := range names {
		asset, err := e.Load(ctx, name, false)
		if err != nil {
			e.logger.WithFields(
				logrus.Fields{
					"asset": name,
					"err":   err,
				}).Warn("asset could not be loaded, skipped")

			continue
		}

		if !candidates.add(asset) || !recursive {
			continue
		}

		below, err := descendants(ctx, e.repo, name)
		if err != nil {
			e.logger.WithFields(
				logrus.Fields{
					"asset": name,
					"err":   err,
				}).Warn("asset descendants could not be listed")

			continue
		}

		for _, child := range below {
			asset, err := e.Load(ctx, child, false)
			if err != nil {
				e.logger.WithFields(
					logrus.Fields{
						"asset": child,
						"err":   err,
					}).Warn("asset could not be loaded, skipped")

				continue
			}

			candidates.add(asset)
		}
	}

	return candidates
}

// DeleteAll removes every asset, including the last datacenter.
func (e *Engine) DeleteAll(ctx context.Context) (model.DeleteReport, error) {
	names, err := e.repo.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	return e.DeleteList(ctx, names, false, true), nil
}
