package store

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"

	"github.com/hashicorp/go-memdb"
	"github.com/pkg/errors"

	"github.com/metal-toolbox/assetkeeper/internal/model"
)

const (
	tableAsset    = "asset"
	tableExt      = "ext"
	tableLink     = "link"
	tableMember   = "member"
	tableRelation = "relation"

	indexID = "id"
)

var (
	ErrMemDBTxn = errors.New("memdb transaction error")
)

type assetRow struct {
	ID          int64
	Name        string
	Type        model.Type
	Subtype     string
	Status      model.Status
	Priority    int
	Parent      string
	SecondaryID string
	AssetTag    string
}

type extRow struct {
	ID       string
	Asset    string
	Key      string
	Value    string
	ReadOnly bool
}

type linkRow struct {
	ID         string
	Source     string
	SourcePort string
	Dest       string
	DestPort   string
	Type       int
	Seq        int64
}

type memberRow struct {
	ID     string
	Group  string
	Member string
}

type relationRow struct {
	ID   string
	From string
	To   string
}

func stringIndex(name, field string, unique, allowMissing bool) *memdb.IndexSchema {
	return &memdb.IndexSchema{
		Name:         name,
		Unique:       unique,
		AllowMissing: allowMissing,
		Indexer:      &memdb.StringFieldIndex{Field: field},
	}
}

func memDBSchema() *memdb.DBSchema {
	return &memdb.DBSchema{
		Tables: map[string]*memdb.TableSchema{
			tableAsset: {
				Name: tableAsset,
				Indexes: map[string]*memdb.IndexSchema{
					indexID:  stringIndex(indexID, "Name", true, false),
					"parent": stringIndex("parent", "Parent", false, true),
				},
			},
			tableExt: {
				Name: tableExt,
				Indexes: map[string]*memdb.IndexSchema{
					indexID: stringIndex(indexID, "ID", true, false),
					"asset": stringIndex("asset", "Asset", false, false),
					"key":   stringIndex("key", "Key", false, false),
				},
			},
			tableLink: {
				Name: tableLink,
				Indexes: map[string]*memdb.IndexSchema{
					indexID:  stringIndex(indexID, "ID", true, false),
					"source": stringIndex("source", "Source", false, false),
					"dest":   stringIndex("dest", "Dest", false, false),
				},
			},
			tableMember: {
				Name: tableMember,
				Indexes: map[string]*memdb.IndexSchema{
					indexID:  stringIndex(indexID, "ID", true, false),
					"group":  stringIndex("group", "Group", false, false),
					"member": stringIndex("member", "Member", false, false),
				},
			},
			tableRelation: {
				Name: tableRelation,
				Indexes: map[string]*memdb.IndexSchema{
					indexID: stringIndex(indexID, "ID", true, false),
					"from":  stringIndex("from", "From", false, false),
					"to":    stringIndex("to", "To", false, false),
				},
			},
		},
	}
}

// MemDB is an in-memory asset store.
//
// Write transactions are serialized, reads outside of a transaction see the last committed state.
type MemDB struct {
	db *memdb.MemDB
	// lastID is the last asset row identifier handed out.
	lastID *int64
	// linkSeq orders links in the order they were saved.
	linkSeq *int64
}

// NewMemDB returns an empty in-memory asset store.
func NewMemDB() (*MemDB, error) {
	db, err := memdb.NewMemDB(memDBSchema())
	if err != nil {
		return nil, errors.Wrap(model.ErrStorage, err.Error())
	}

	return &MemDB{db: db, lastID: new(int64), linkSeq: new(int64)}, nil
}

func (m *MemDB) Kind() model.StoreKind { return model.StoreKindMemory }

func (m *MemDB) Close() error { return nil }

// Begin starts a write transaction, it blocks while another write transaction is open.
func (m *MemDB) Begin(ctx context.Context) (Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(model.ErrStorage, err.Error())
	}

	return &memTx{memView: memView{txn: m.db.Txn(true)}, store: m}, nil
}

func (m *MemDB) read() *memView {
	return &memView{txn: m.db.Txn(false)}
}

func (m *MemDB) AssetByName(ctx context.Context, name string) (*model.Asset, error) {
	return m.read().AssetByName(ctx, name)
}

func (m *MemDB) LoadExtAttributes(ctx context.Context, asset *model.Asset) error {
	return m.read().LoadExtAttributes(ctx, asset)
}

func (m *MemDB) LoadLinks(ctx context.Context, asset *model.Asset) error {
	return m.read().LoadLinks(ctx, asset)
}

func (m *MemDB) Children(ctx context.Context, name string) ([]string, error) {
	return m.read().Children(ctx, name)
}

func (m *MemDB) HasLinkedAssets(ctx context.Context, name string) (bool, error) {
	return m.read().HasLinkedAssets(ctx, name)
}

func (m *MemDB) IsLastDatacenter(ctx context.Context, asset *model.Asset) (bool, error) {
	return m.read().IsLastDatacenter(ctx, asset)
}

func (m *MemDB) IDByName(ctx context.Context, name string) (int64, error) {
	return m.read().IDByName(ctx, name)
}

func (m *MemDB) NameByUUID(ctx context.Context, uuid string) (string, error) {
	return m.read().NameByUUID(ctx, uuid)
}

func (m *MemDB) ListAll(ctx context.Context) ([]string, error) {
	return m.read().ListAll(ctx)
}

func (m *MemDB) List(ctx context.Context, query *model.Query) ([]string, error) {
	return m.read().List(ctx, query)
}

func (m *MemDB) GroupMembers(ctx context.Context, group string) ([]string, error) {
	return m.read().GroupMembers(ctx, group)
}

// memView implements the Reader interface over a memdb transaction.
type memView struct {
	txn *memdb.Txn
}

func storageErr(err error) error {
	return errors.Wrap(model.ErrStorage, err.Error())
}

func (v *memView) assetRow(name string) (*assetRow, error) {
	obj, err := v.txn.First(tableAsset, indexID, name)
	if err != nil {
		return nil, storageErr(err)
	}

	if obj == nil {
		return nil, errors.Wrap(model.ErrNotFound, name)
	}

	return obj.(*assetRow), nil
}

func (v *memView) AssetByName(_ context.Context, name string) (*model.Asset, error) {
	row, err := v.assetRow(name)
	if err != nil {
		return nil, err
	}

	return &model.Asset{
		ID:          row.ID,
		Name:        row.Name,
		Type:        row.Type,
		Subtype:     row.Subtype,
		Status:      row.Status,
		Priority:    row.Priority,
		Parent:      row.Parent,
		SecondaryID: row.SecondaryID,
		AssetTag:    row.AssetTag,
		Ext:         model.ExtMap{},
	}, nil
}

func (v *memView) LoadExtAttributes(_ context.Context, asset *model.Asset) error {
	it, err := v.txn.Get(tableExt, "asset", asset.Name)
	if err != nil {
		return storageErr(err)
	}

	asset.Ext = model.ExtMap{}

	for obj := it.Next(); obj != nil; obj = it.Next() {
		row := obj.(*extRow)
		asset.Ext[row.Key] = model.ExtAttribute{Value: row.Value, ReadOnly: row.ReadOnly}
	}

	return nil
}

func (v *memView) LoadLinks(_ context.Context, asset *model.Asset) error {
	it, err := v.txn.Get(tableLink, "dest", asset.Name)
	if err != nil {
		return storageErr(err)
	}

	rows := []*linkRow{}
	for obj := it.Next(); obj != nil; obj = it.Next() {
		rows = append(rows, obj.(*linkRow))
	}

	sort.Slice(rows, func(i, j int) bool { return rows[i].Seq < rows[j].Seq })

	asset.Links = make([]model.Link, 0, len(rows))
	for _, row := range rows {
		asset.Links = append(asset.Links, model.Link{
			Source:     row.Source,
			SourcePort: row.SourcePort,
			DestPort:   row.DestPort,
			Type:       row.Type,
		})
	}

	return nil
}

func (v *memView) Children(_ context.Context, name string) ([]string, error) {
	it, err := v.txn.Get(tableAsset, "parent", name)
	if err != nil {
		return nil, storageErr(err)
	}

	children := []string{}
	for obj := it.Next(); obj != nil; obj = it.Next() {
		children = append(children, obj.(*assetRow).Name)
	}

	sort.Strings(children)

	return children, nil
}

func (v *memView) HasLinkedAssets(_ context.Context, name string) (bool, error) {
	obj, err := v.txn.First(tableLink, "source", name)
	if err != nil {
		return false, storageErr(err)
	}

	return obj != nil, nil
}

func (v *memView) IsLastDatacenter(_ context.Context, asset *model.Asset) (bool, error) {
	it, err := v.txn.Get(tableAsset, indexID)
	if err != nil {
		return false, storageErr(err)
	}

	for obj := it.Next(); obj != nil; obj = it.Next() {
		row := obj.(*assetRow)
		if row.Name != asset.Name && row.Type.Class() == model.ClassDatacenter {
			return false, nil
		}
	}

	return true, nil
}

func (v *memView) IDByName(_ context.Context, name string) (int64, error) {
	row, err := v.assetRow(name)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return 0, nil
		}

		return 0, err
	}

	return row.ID, nil
}

func (v *memView) NameByUUID(_ context.Context, uuid string) (string, error) {
	it, err := v.txn.Get(tableExt, "key", model.ExtUUID)
	if err != nil {
		return "", storageErr(err)
	}

	for obj := it.Next(); obj != nil; obj = it.Next() {
		if row := obj.(*extRow); row.Value == uuid {
			return row.Asset, nil
		}
	}

	return "", errors.Wrap(model.ErrNotFound, "uuid "+uuid)
}

func (v *memView) ListAll(ctx context.Context) ([]string, error) {
	return v.List(ctx, &model.Query{})
}

func (v *memView) List(_ context.Context, query *model.Query) ([]string, error) {
	it, err := v.txn.Get(tableAsset, indexID)
	if err != nil {
		return nil, storageErr(err)
	}

	names := []string{}

	for obj := it.Next(); obj != nil; obj = it.Next() {
		row := obj.(*assetRow)

		match := query.Match(&model.Asset{
			Status:   row.Status,
			Type:     row.Type,
			Subtype:  row.Subtype,
			Priority: row.Priority,
			Parent:   row.Parent,
		})

		if match {
			names = append(names, row.Name)
		}
	}

	return names, nil
}

func (v *memView) GroupMembers(_ context.Context, group string) ([]string, error) {
	it, err := v.txn.Get(tableMember, "group", group)
	if err != nil {
		return nil, storageErr(err)
	}

	members := []string{}
	for obj := it.Next(); obj != nil; obj = it.Next() {
		members = append(members, obj.(*memberRow).Member)
	}

	return members, nil
}

// memTx is a memdb write transaction.
type memTx struct {
	memView
	store *MemDB
	done  bool
}

func (t *memTx) Commit() error {
	if t.done {
		return errors.Wrap(ErrMemDBTxn, "transaction already closed")
	}

	t.done = true
	t.txn.Commit()

	return nil
}

// Rollback aborts the transaction, it is a no-op once the transaction is committed.
func (t *memTx) Rollback() error {
	if t.done {
		return nil
	}

	t.done = true
	t.txn.Abort()

	return nil
}

func (t *memTx) mustExist(name string) error {
	_, err := t.assetRow(name)
	return err
}

func (t *memTx) Insert(_ context.Context, asset *model.Asset) error {
	if asset.Name == "" {
		return errors.Wrap(model.ErrIntegrity, "asset name is empty")
	}

	existing, err := t.txn.First(tableAsset, indexID, asset.Name)
	if err != nil {
		return storageErr(err)
	}

	if existing != nil {
		return errors.Wrap(model.ErrAlreadyExists, asset.Name)
	}

	if asset.Parent != "" {
		if err := t.mustExist(asset.Parent); err != nil {
			return errors.Wrap(err, "parent")
		}
	}

	row := rowFromAsset(asset)
	row.ID = atomic.AddInt64(t.store.lastID, 1)

	if err := t.txn.Insert(tableAsset, row); err != nil {
		return storageErr(err)
	}

	asset.ID = row.ID

	return nil
}

func (t *memTx) Update(_ context.Context, asset *model.Asset) error {
	current, err := t.assetRow(asset.Name)
	if err != nil {
		return err
	}

	if asset.Parent != "" {
		if err := t.mustExist(asset.Parent); err != nil {
			return errors.Wrap(err, "parent")
		}
	}

	row := rowFromAsset(asset)
	row.ID = current.ID

	if err := t.txn.Insert(tableAsset, row); err != nil {
		return storageErr(err)
	}

	asset.ID = row.ID

	return nil
}

func (t *memTx) RemoveAsset(ctx context.Context, asset *model.Asset) error {
	row, err := t.assetRow(asset.Name)
	if err != nil {
		return err
	}

	children, err := t.Children(ctx, asset.Name)
	if err != nil {
		return err
	}

	if len(children) > 0 {
		return errors.Wrap(model.ErrIntegrity, "asset has children: "+asset.Name)
	}

	// links into the asset go with it
	if _, err := t.txn.DeleteAll(tableLink, "dest", asset.Name); err != nil {
		return storageErr(err)
	}

	if err := t.txn.Delete(tableAsset, row); err != nil {
		return storageErr(err)
	}

	return nil
}

func (t *memTx) SaveExtAttributes(_ context.Context, asset *model.Asset) error {
	if err := t.mustExist(asset.Name); err != nil {
		return err
	}

	for key, attr := range asset.Ext {
		id := rowID(asset.Name, key)

		existing, err := t.txn.First(tableExt, indexID, id)
		if err != nil {
			return storageErr(err)
		}

		if existing != nil && existing.(*extRow).ReadOnly && !attr.ReadOnly {
			continue
		}

		row := &extRow{ID: id, Asset: asset.Name, Key: key, Value: attr.Value, ReadOnly: attr.ReadOnly}
		if err := t.txn.Insert(tableExt, row); err != nil {
			return storageErr(err)
		}
	}

	return nil
}

func (t *memTx) RemoveExtAttributes(_ context.Context, asset *model.Asset) error {
	if _, err := t.txn.DeleteAll(tableExt, "asset", asset.Name); err != nil {
		return storageErr(err)
	}

	return nil
}

func (t *memTx) SaveLinks(ctx context.Context, asset *model.Asset) error {
	if _, err := t.txn.DeleteAll(tableLink, "dest", asset.Name); err != nil {
		return storageErr(err)
	}

	for _, link := range asset.Links {
		if err := t.Link(ctx, link.Source, link.SourcePort, asset.Name, link.DestPort, link.Type); err != nil {
			return err
		}
	}

	return nil
}

func (t *memTx) Link(_ context.Context, src, srcPort, dst, dstPort string, linkType int) error {
	if err := t.mustExist(src); err != nil {
		return errors.Wrap(err, "link source")
	}

	if err := t.mustExist(dst); err != nil {
		return errors.Wrap(err, "link destination")
	}

	row := &linkRow{
		ID:         rowID(src, srcPort, dst, dstPort, fmt.Sprint(linkType)),
		Source:     src,
		SourcePort: srcPort,
		Dest:       dst,
		DestPort:   dstPort,
		Type:       linkType,
		Seq:        atomic.AddInt64(t.store.linkSeq, 1),
	}

	if err := t.txn.Insert(tableLink, row); err != nil {
		return storageErr(err)
	}

	return nil
}

func (t *memTx) Unlink(_ context.Context, src, srcPort, dst, dstPort string, linkType int) error {
	id := rowID(src, srcPort, dst, dstPort, fmt.Sprint(linkType))

	obj, err := t.txn.First(tableLink, indexID, id)
	if err != nil {
		return storageErr(err)
	}

	if obj == nil {
		return errors.Wrap(model.ErrNotFound, "link "+src+" -> "+dst)
	}

	if err := t.txn.Delete(tableLink, obj); err != nil {
		return storageErr(err)
	}

	return nil
}

func (t *memTx) UnlinkAll(_ context.Context, asset *model.Asset) error {
	for _, index := range []string{"source", "dest"} {
		if _, err := t.txn.DeleteAll(tableLink, index, asset.Name); err != nil {
			return storageErr(err)
		}
	}

	return nil
}

func (t *memTx) AddToGroup(_ context.Context, group, member string) error {
	row, err := t.assetRow(group)
	if err != nil {
		return err
	}

	if row.Type != model.TypeGroup {
		return errors.Wrap(model.ErrIntegrity, "not a group: "+group)
	}

	if err := t.mustExist(member); err != nil {
		return err
	}

	if err := t.txn.Insert(tableMember, &memberRow{ID: rowID(group, member), Group: group, Member: member}); err != nil {
		return storageErr(err)
	}

	return nil
}

func (t *memTx) RemoveFromGroups(_ context.Context, asset *model.Asset) error {
	if _, err := t.txn.DeleteAll(tableMember, "member", asset.Name); err != nil {
		return storageErr(err)
	}

	return nil
}

func (t *memTx) ClearGroup(_ context.Context, asset *model.Asset) error {
	if _, err := t.txn.DeleteAll(tableMember, "group", asset.Name); err != nil {
		return storageErr(err)
	}

	return nil
}

func (t *memTx) AddRelation(_ context.Context, from, to string) error {
	if err := t.mustExist(from); err != nil {
		return err
	}

	if err := t.mustExist(to); err != nil {
		return err
	}

	if err := t.txn.Insert(tableRelation, &relationRow{ID: rowID(from, to), From: from, To: to}); err != nil {
		return storageErr(err)
	}

	return nil
}

func (t *memTx) RemoveFromRelations(_ context.Context, asset *model.Asset) error {
	for _, index := range []string{"from", "to"} {
		if _, err := t.txn.DeleteAll(tableRelation, index, asset.Name); err != nil {
			return storageErr(err)
		}
	}

	return nil
}

func rowFromAsset(a *model.Asset) *assetRow {
	return &assetRow{
		Name:        a.Name,
		Type:        a.Type,
		Subtype:     a.Subtype,
		Status:      a.Status,
		Priority:    a.Priority,
		Parent:      a.Parent,
		SecondaryID: a.SecondaryID,
		AssetTag:    a.AssetTag,
	}
}

// rowID joins the given values into a row key.
func rowID(parts ...string) string {
	id := ""
	for i, p := range parts {
		if i > 0 {
			id += "\x00"
		}

		id += p
	}

	return id
}
