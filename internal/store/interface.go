package store

import (
	"context"

	"github.com/metal-toolbox/assetkeeper/internal/model"
)

// Reader defines the asset store queries.
type Reader interface {
	// AssetByName returns the asset row, without extended attributes or links.
	//
	// An error wrapping model.ErrNotFound is returned when the asset does not exist.
	AssetByName(ctx context.Context, name string) (*model.Asset, error)

	// LoadExtAttributes replaces the asset extended attributes with the stored values.
	LoadExtAttributes(ctx context.Context, asset *model.Asset) error

	// LoadLinks replaces the asset links with the stored links that have the asset as destination.
	LoadLinks(ctx context.Context, asset *model.Asset) error

	// Children returns the names of the assets whose parent is the named asset.
	Children(ctx context.Context, name string) ([]string, error)

	// HasLinkedAssets returns true when the asset is the source of a link.
	HasLinkedAssets(ctx context.Context, name string) (bool, error)

	// IsLastDatacenter returns true when no datacenter class asset other than the given one exists.
	IsLastDatacenter(ctx context.Context, asset *model.Asset) (bool, error)

	// IDByName returns the asset row identifier, zero when the asset does not exist.
	IDByName(ctx context.Context, name string) (int64, error)

	// NameByUUID returns the name of the asset with the given uuid extended attribute.
	NameByUUID(ctx context.Context, uuid string) (string, error)

	// ListAll returns all asset names.
	ListAll(ctx context.Context) ([]string, error)

	// List returns the names of the assets matching the query.
	List(ctx context.Context, query *model.Query) ([]string, error)

	// GroupMembers returns the names of the assets in the group.
	GroupMembers(ctx context.Context, group string) ([]string, error)
}

// Writer defines the asset store mutations, these are only available within a transaction.
type Writer interface {
	// Insert adds the asset row and sets the asset ID.
	Insert(ctx context.Context, asset *model.Asset) error
	// Update replaces the asset row.
	Update(ctx context.Context, asset *model.Asset) error
	RemoveAsset(ctx context.Context, asset *model.Asset) error

	// SaveExtAttributes upserts the asset extended attributes,
	// a stored read only attribute is only overwritten by a read only value.
	SaveExtAttributes(ctx context.Context, asset *model.Asset) error
	RemoveExtAttributes(ctx context.Context, asset *model.Asset) error

	// SaveLinks replaces the links that have the asset as destination.
	SaveLinks(ctx context.Context, asset *model.Asset) error
	Link(ctx context.Context, src, srcPort, dst, dstPort string, linkType int) error
	Unlink(ctx context.Context, src, srcPort, dst, dstPort string, linkType int) error
	// UnlinkAll removes every link the asset is the source or destination of.
	UnlinkAll(ctx context.Context, asset *model.Asset) error

	AddToGroup(ctx context.Context, group, member string) error
	RemoveFromGroups(ctx context.Context, asset *model.Asset) error
	// ClearGroup removes all members of the group asset.
	ClearGroup(ctx context.Context, asset *model.Asset) error

	AddRelation(ctx context.Context, from, to string) error
	// RemoveFromRelations removes the relations the asset is part of in either direction.
	RemoveFromRelations(ctx context.Context, asset *model.Asset) error
}

// Tx is an asset store transaction.
type Tx interface {
	Reader
	Writer

	Commit() error
	Rollback() error
}

// Repository is the asset store.
type Repository interface {
	Reader

	// Begin starts a transaction, the caller must invoke Commit or Rollback.
	Begin(ctx context.Context) (Tx, error)

	// Kind returns the store kind.
	Kind() model.StoreKind

	Close() error
}
