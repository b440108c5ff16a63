package asset

import (
	"context"
	"strconv"

	"github.com/emicklei/dot"
	"github.com/pkg/errors"
	"golang.org/x/exp/slices"

	"github.com/metal-toolbox/assetkeeper/internal/model"
	"github.com/metal-toolbox/assetkeeper/internal/store"
)

// MaxParents is the maximum depth of the parents chain.
const MaxParents = 255

// ParentsList returns the names of the asset ancestors, the direct parent first.
func (e *Engine) ParentsList(ctx context.Context, name string) ([]string, error) {
	return parentsList(ctx, e.repo, name)
}

func parentsList(ctx context.Context, r store.Reader, name string) ([]string, error) {
	asset, err := r.AssetByName(ctx, name)
	if err != nil {
		return nil, err
	}

	parents := []string{}

	for parent := asset.Parent; parent != ""; {
		if len(parents) == MaxParents {
			return nil, errors.Wrapf(model.ErrIntegrity, "parents chain of %s exceeds %d levels", name, MaxParents)
		}

		parents = append(parents, parent)

		p, err := r.AssetByName(ctx, parent)
		if err != nil {
			return nil, err
		}

		parent = p.Parent
	}

	return parents, nil
}

// checkParentCycle refuses a parent that is the asset itself or one of its descendants.
func checkParentCycle(ctx context.Context, r store.Reader, asset *model.Asset) error {
	if asset.Parent == "" {
		return nil
	}

	if asset.Parent == asset.Name {
		return errors.Wrap(model.ErrIntegrity, "asset cannot be its own parent: "+asset.Name)
	}

	ancestors, err := parentsList(ctx, r, asset.Parent)
	if err != nil {
		return err
	}

	if slices.Contains(ancestors, asset.Name) {
		return errors.Wrapf(model.ErrIntegrity, "parent %s is a descendant of %s", asset.Parent, asset.Name)
	}

	return nil
}

// Children returns the names of the assets directly contained in the named asset.
func (e *Engine) Children(ctx context.Context, name string) ([]string, error) {
	return e.repo.Children(ctx, name)
}

// frame is a traversal stack entry, next is the index of the next child to visit.
type frame struct {
	name     string
	children []string
	next     int
}

// descendants returns the names of every asset below root, depth first, parents before children.
func descendants(ctx context.Context, r store.Reader, root string) ([]string, error) {
	children, err := r.Children(ctx, root)
	if err != nil {
		return nil, err
	}

	found := []string{}
	seen := map[string]bool{root: true}
	stack := []*frame{{name: root, children: children}}

	for len(stack) > 0 {
		top := stack[len(stack)-1]

		if top.next == len(top.children) {
			stack = stack[:len(stack)-1]
			continue
		}

		child := top.children[top.next]
		top.next++

		if seen[child] {
			continue
		}

		seen[child] = true
		found = append(found, child)

		grandChildren, err := r.Children(ctx, child)
		if err != nil {
			return nil, err
		}

		stack = append(stack, &frame{name: child, children: grandChildren})
	}

	return found, nil
}

// AssetsInContainer returns the names of the assets below the container,
// restricted to the given types and subtypes when those are not empty.
func (e *Engine) AssetsInContainer(ctx context.Context, container string, types []model.Type, subtypes []string) ([]string, error) {
	names, err := descendants(ctx, e.repo, container)
	if err != nil {
		return nil, err
	}

	query := &model.Query{Types: types, Subtypes: subtypes}
	if query.Empty() {
		return names, nil
	}

	matched := []string{}

	for _, name := range names {
		asset, err := e.repo.AssetByName(ctx, name)
		if err != nil {
			return nil, err
		}

		if query.Match(asset) {
			matched = append(matched, name)
		}
	}

	return matched, nil
}

// Graph returns the asset hierarchy as a directed graph,
// containment edges point from parent to child and links are dashed edges from source to destination.
func (e *Engine) Graph(ctx context.Context) (*dot.Graph, error) {
	names, err := e.repo.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	g := dot.NewGraph(dot.Directed)
	nodes := map[string]dot.Node{}

	node := func(name string) dot.Node {
		n, exists := nodes[name]
		if !exists {
			n = g.Node(name)
			nodes[name] = n
		}

		return n
	}

	for _, name := range names {
		asset, err := e.Load(ctx, name, true)
		if err != nil {
			return nil, err
		}

		n := node(name).Label(name + "\n" + asset.Type.String())

		if asset.Status == model.StatusActive {
			n.Attr("style", "bold")
		}

		if asset.Parent != "" {
			g.Edge(node(asset.Parent), n)
		}

		for _, link := range asset.Links {
			g.Edge(node(link.Source), n, link.SourcePort+" > "+link.DestPort).
				Attr("style", "dashed").
				Attr("link_type", strconv.Itoa(link.Type))
		}
	}

	return g, nil
}
