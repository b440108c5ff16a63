package store

import (
	"context"
	"database/sql"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/metal-toolbox/assetkeeper/internal/metrics"
	"github.com/metal-toolbox/assetkeeper/internal/model"

	// register the pgx database/sql driver
	_ "github.com/jackc/pgx/v5/stdlib"
	// register the pure go sqlite driver
	_ "modernc.org/sqlite"
)

var (
	ErrSQLDialect = errors.New("unsupported SQL store kind")
)

// dialect holds the SQL differences between the supported databases.
type dialect struct {
	kind          model.StoreKind
	driver        string
	serialPK      string
	positionalArg bool
}

var dialects = map[model.StoreKind]dialect{
	model.StoreKindSQLite: {
		kind:     model.StoreKindSQLite,
		driver:   "sqlite",
		serialPK: "INTEGER PRIMARY KEY AUTOINCREMENT",
	},
	model.StoreKindPostgres: {
		kind:          model.StoreKindPostgres,
		driver:        "pgx",
		serialPK:      "BIGSERIAL PRIMARY KEY",
		positionalArg: true,
	},
}

// rebind rewrites ? placeholders into the $N form when the dialect requires it.
func (d dialect) rebind(query string) string {
	if !d.positionalArg {
		return query
	}

	var b strings.Builder

	n := 0

	for _, r := range query {
		if r == '?' {
			n++

			b.WriteString("$" + strconv.Itoa(n))

			continue
		}

		b.WriteRune(r)
	}

	return b.String()
}

func (d dialect) schema() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS assets (
			id ` + d.serialPK + `,
			name TEXT NOT NULL UNIQUE,
			type TEXT NOT NULL,
			subtype TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			priority INTEGER NOT NULL DEFAULT 5,
			parent TEXT NOT NULL DEFAULT '',
			secondary_id TEXT NOT NULL DEFAULT '',
			asset_tag TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS assets_parent_idx ON assets (parent)`,
		`CREATE TABLE IF NOT EXISTS ext_attributes (
			asset TEXT NOT NULL,
			attr_key TEXT NOT NULL,
			attr_value TEXT NOT NULL,
			read_only BOOLEAN NOT NULL DEFAULT FALSE,
			PRIMARY KEY (asset, attr_key)
		)`,
		`CREATE TABLE IF NOT EXISTS links (
			id ` + d.serialPK + `,
			source TEXT NOT NULL,
			source_port TEXT NOT NULL DEFAULT '',
			dest TEXT NOT NULL,
			dest_port TEXT NOT NULL DEFAULT '',
			link_type INTEGER NOT NULL DEFAULT 1,
			UNIQUE (source, source_port, dest, dest_port, link_type)
		)`,
		`CREATE INDEX IF NOT EXISTS links_source_idx ON links (source)`,
		`CREATE INDEX IF NOT EXISTS links_dest_idx ON links (dest)`,
		`CREATE TABLE IF NOT EXISTS group_members (
			group_name TEXT NOT NULL,
			member TEXT NOT NULL,
			PRIMARY KEY (group_name, member)
		)`,
		`CREATE TABLE IF NOT EXISTS relations (
			from_asset TEXT NOT NULL,
			to_asset TEXT NOT NULL,
			PRIMARY KEY (from_asset, to_asset)
		)`,
	}
}

// queryer is implemented by *sql.DB and *sql.Tx
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQL is an asset store backed by SQLite or Postgres.
type SQL struct {
	sqlView
	db     *sql.DB
	logger *logrus.Logger
}

// NewSQL opens the database for the given store kind and applies the schema.
func NewSQL(ctx context.Context, kind model.StoreKind, dsn string, logger *logrus.Logger) (*SQL, error) {
	d, ok := dialects[kind]
	if !ok {
		return nil, errors.Wrap(ErrSQLDialect, string(kind))
	}

	db, err := sql.Open(d.driver, dsn)
	if err != nil {
		return nil, errors.Wrap(model.ErrStorage, "open: "+err.Error())
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(model.ErrStorage, "ping: "+err.Error())
	}

	for _, stmt := range d.schema() {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, errors.Wrap(model.ErrStorage, "apply schema: "+err.Error())
		}
	}

	logger.WithFields(logrus.Fields{"storeKind": kind}).Debug("asset store schema applied")

	return &SQL{
		sqlView: sqlView{q: db, d: d},
		db:      db,
		logger:  logger,
	}, nil
}

func (s *SQL) Kind() model.StoreKind { return s.d.kind }

func (s *SQL) Close() error { return s.db.Close() }

func (s *SQL) Begin(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, s.storageErr(err)
	}

	return &sqlTx{sqlView: sqlView{q: tx, d: s.d}, tx: tx}, nil
}

// sqlView implements the Reader interface over a database handle or transaction.
type sqlView struct {
	q queryer
	d dialect
}

func (v *sqlView) storageErr(err error) error {
	metrics.StoreQueryErrorCount.With(map[string]string{"storeKind": string(v.d.kind)}).Inc()

	return errors.Wrap(model.ErrStorage, err.Error())
}

func (v *sqlView) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	res, err := v.q.ExecContext(ctx, v.d.rebind(query), args...)
	if err != nil {
		return nil, v.storageErr(err)
	}

	return res, nil
}

func (v *sqlView) names(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := v.q.QueryContext(ctx, v.d.rebind(query), args...)
	if err != nil {
		return nil, v.storageErr(err)
	}

	defer rows.Close()

	names := []string{}

	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, v.storageErr(err)
		}

		names = append(names, name)
	}

	if err := rows.Err(); err != nil {
		return nil, v.storageErr(err)
	}

	return names, nil
}

func (v *sqlView) AssetByName(ctx context.Context, name string) (*model.Asset, error) {
	var typ, status string

	a := &model.Asset{Ext: model.ExtMap{}}

	err := v.q.QueryRowContext(
		ctx,
		v.d.rebind(`SELECT id, name, type, subtype, status, priority, parent, secondary_id, asset_tag FROM assets WHERE name = ?`),
		name,
	).Scan(&a.ID, &a.Name, &typ, &a.Subtype, &status, &a.Priority, &a.Parent, &a.SecondaryID, &a.AssetTag)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.Wrap(model.ErrNotFound, name)
		}

		return nil, v.storageErr(err)
	}

	if err := a.Type.UnmarshalText([]byte(typ)); err != nil {
		return nil, errors.Wrap(model.ErrStorage, err.Error())
	}

	a.Status = model.ParseStatus(status)

	return a, nil
}

func (v *sqlView) LoadExtAttributes(ctx context.Context, asset *model.Asset) error {
	rows, err := v.q.QueryContext(ctx, v.d.rebind(`SELECT attr_key, attr_value, read_only FROM ext_attributes WHERE asset = ?`), asset.Name)
	if err != nil {
		return v.storageErr(err)
	}

	defer rows.Close()

	asset.Ext = model.ExtMap{}

	for rows.Next() {
		var key string

		var attr model.ExtAttribute

		if err := rows.Scan(&key, &attr.Value, &attr.ReadOnly); err != nil {
			return v.storageErr(err)
		}

		asset.Ext[key] = attr
	}

	if err := rows.Err(); err != nil {
		return v.storageErr(err)
	}

	return nil
}

func (v *sqlView) LoadLinks(ctx context.Context, asset *model.Asset) error {
	rows, err := v.q.QueryContext(
		ctx,
		v.d.rebind(`SELECT source, source_port, dest_port, link_type FROM links WHERE dest = ? ORDER BY id`),
		asset.Name,
	)
	if err != nil {
		return v.storageErr(err)
	}

	defer rows.Close()

	asset.Links = []model.Link{}

	for rows.Next() {
		var l model.Link
		if err := rows.Scan(&l.Source, &l.SourcePort, &l.DestPort, &l.Type); err != nil {
			return v.storageErr(err)
		}

		asset.Links = append(asset.Links, l)
	}

	if err := rows.Err(); err != nil {
		return v.storageErr(err)
	}

	return nil
}

func (v *sqlView) Children(ctx context.Context, name string) ([]string, error) {
	return v.names(ctx, `SELECT name FROM assets WHERE parent = ? ORDER BY name`, name)
}

func (v *sqlView) HasLinkedAssets(ctx context.Context, name string) (bool, error) {
	var count int
	if err := v.q.QueryRowContext(ctx, v.d.rebind(`SELECT COUNT(*) FROM links WHERE source = ?`), name).Scan(&count); err != nil {
		return false, v.storageErr(err)
	}

	return count > 0, nil
}

func (v *sqlView) IsLastDatacenter(ctx context.Context, asset *model.Asset) (bool, error) {
	types := model.DatacenterClassTypes()

	args := []any{asset.Name}
	for _, t := range types {
		args = append(args, t.String())
	}

	query := `SELECT COUNT(*) FROM assets WHERE name <> ? AND type IN (` + placeholders(len(types)) + `)`

	var count int
	if err := v.q.QueryRowContext(ctx, v.d.rebind(query), args...).Scan(&count); err != nil {
		return false, v.storageErr(err)
	}

	return count == 0, nil
}

func (v *sqlView) IDByName(ctx context.Context, name string) (int64, error) {
	var id int64

	err := v.q.QueryRowContext(ctx, v.d.rebind(`SELECT id FROM assets WHERE name = ?`), name).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}

		return 0, v.storageErr(err)
	}

	return id, nil
}

func (v *sqlView) NameByUUID(ctx context.Context, uuid string) (string, error) {
	names, err := v.names(ctx, `SELECT asset FROM ext_attributes WHERE attr_key = ? AND attr_value = ?`, model.ExtUUID, uuid)
	if err != nil {
		return "", err
	}

	if len(names) == 0 {
		return "", errors.Wrap(model.ErrNotFound, "uuid "+uuid)
	}

	return names[0], nil
}

func (v *sqlView) ListAll(ctx context.Context) ([]string, error) {
	return v.names(ctx, `SELECT name FROM assets ORDER BY name`)
}

func (v *sqlView) List(ctx context.Context, query *model.Query) ([]string, error) {
	clauses := []string{}
	args := []any{}

	add := func(column string, values []any) {
		if len(values) == 0 {
			return
		}

		clauses = append(clauses, column+" IN ("+placeholders(len(values))+")")
		args = append(args, values...)
	}

	add("status", toAny(query.Statuses, func(s model.Status) any { return s.String() }))
	add("type", toAny(query.Types, func(t model.Type) any { return t.String() }))
	add("subtype", toAny(query.Subtypes, func(s string) any { return s }))
	add("priority", toAny(query.Priorities, func(p int) any { return p }))
	add("parent", toAny(query.Parents, func(p string) any { return p }))

	stmt := `SELECT name FROM assets`
	if len(clauses) > 0 {
		stmt += ` WHERE ` + strings.Join(clauses, " AND ")
	}

	return v.names(ctx, stmt+` ORDER BY name`, args...)
}

func (v *sqlView) GroupMembers(ctx context.Context, group string) ([]string, error) {
	return v.names(ctx, `SELECT member FROM group_members WHERE group_name = ? ORDER BY member`, group)
}

// sqlTx is a SQL store transaction.
type sqlTx struct {
	sqlView
	tx   *sql.Tx
	done bool
}

func (t *sqlTx) Commit() error {
	t.done = true

	if err := t.tx.Commit(); err != nil {
		return t.storageErr(err)
	}

	return nil
}

// Rollback aborts the transaction, it is a no-op once the transaction is committed.
func (t *sqlTx) Rollback() error {
	if t.done {
		return nil
	}

	t.done = true

	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return t.storageErr(err)
	}

	return nil
}

func (t *sqlTx) mustExist(ctx context.Context, name string) error {
	id, err := t.IDByName(ctx, name)
	if err != nil {
		return err
	}

	if id == 0 {
		return errors.Wrap(model.ErrNotFound, name)
	}

	return nil
}

func (t *sqlTx) Insert(ctx context.Context, asset *model.Asset) error {
	if asset.Name == "" {
		return errors.Wrap(model.ErrIntegrity, "asset name is empty")
	}

	id, err := t.IDByName(ctx, asset.Name)
	if err != nil {
		return err
	}

	if id != 0 {
		return errors.Wrap(model.ErrAlreadyExists, asset.Name)
	}

	if asset.Parent != "" {
		if err := t.mustExist(ctx, asset.Parent); err != nil {
			return errors.Wrap(err, "parent")
		}
	}

	err = t.q.QueryRowContext(
		ctx,
		t.d.rebind(`INSERT INTO assets (name, type, subtype, status, priority, parent, secondary_id, asset_tag)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`),
		asset.Name, asset.Type.String(), asset.Subtype, asset.Status.String(), asset.Priority,
		asset.Parent, asset.SecondaryID, asset.AssetTag,
	).Scan(&asset.ID)
	if err != nil {
		return t.storageErr(err)
	}

	return nil
}

func (t *sqlTx) Update(ctx context.Context, asset *model.Asset) error {
	if asset.Parent != "" {
		if err := t.mustExist(ctx, asset.Parent); err != nil {
			return errors.Wrap(err, "parent")
		}
	}

	res, err := t.exec(
		ctx,
		`UPDATE assets SET type = ?, subtype = ?, status = ?, priority = ?, parent = ?, secondary_id = ?, asset_tag = ? WHERE name = ?`,
		asset.Type.String(), asset.Subtype, asset.Status.String(), asset.Priority,
		asset.Parent, asset.SecondaryID, asset.AssetTag, asset.Name,
	)
	if err != nil {
		return err
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.Wrap(model.ErrNotFound, asset.Name)
	}

	return nil
}

func (t *sqlTx) RemoveAsset(ctx context.Context, asset *model.Asset) error {
	children, err := t.Children(ctx, asset.Name)
	if err != nil {
		return err
	}

	if len(children) > 0 {
		return errors.Wrap(model.ErrIntegrity, "asset has children: "+asset.Name)
	}

	// links into the asset go with it
	if _, err := t.exec(ctx, `DELETE FROM links WHERE dest = ?`, asset.Name); err != nil {
		return err
	}

	res, err := t.exec(ctx, `DELETE FROM assets WHERE name = ?`, asset.Name)
	if err != nil {
		return err
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.Wrap(model.ErrNotFound, asset.Name)
	}

	return nil
}

func (t *sqlTx) SaveExtAttributes(ctx context.Context, asset *model.Asset) error {
	if err := t.mustExist(ctx, asset.Name); err != nil {
		return err
	}

	for key, attr := range asset.Ext {
		_, err := t.exec(
			ctx,
			`INSERT INTO ext_attributes (asset, attr_key, attr_value, read_only) VALUES (?, ?, ?, ?)
			ON CONFLICT (asset, attr_key) DO UPDATE SET attr_value = excluded.attr_value, read_only = excluded.read_only
			WHERE ext_attributes.read_only = FALSE OR excluded.read_only = TRUE`,
			asset.Name, key, attr.Value, attr.ReadOnly,
		)
		if err != nil {
			return err
		}
	}

	return nil
}

func (t *sqlTx) RemoveExtAttributes(ctx context.Context, asset *model.Asset) error {
	_, err := t.exec(ctx, `DELETE FROM ext_attributes WHERE asset = ?`, asset.Name)
	return err
}

func (t *sqlTx) SaveLinks(ctx context.Context, asset *model.Asset) error {
	if _, err := t.exec(ctx, `DELETE FROM links WHERE dest = ?`, asset.Name); err != nil {
		return err
	}

	for _, link := range asset.Links {
		if err := t.Link(ctx, link.Source, link.SourcePort, asset.Name, link.DestPort, link.Type); err != nil {
			return err
		}
	}

	return nil
}

func (t *sqlTx) Link(ctx context.Context, src, srcPort, dst, dstPort string, linkType int) error {
	if err := t.mustExist(ctx, src); err != nil {
		return errors.Wrap(err, "link source")
	}

	if err := t.mustExist(ctx, dst); err != nil {
		return errors.Wrap(err, "link destination")
	}

	_, err := t.exec(
		ctx,
		`INSERT INTO links (source, source_port, dest, dest_port, link_type) VALUES (?, ?, ?, ?, ?) ON CONFLICT DO NOTHING`,
		src, srcPort, dst, dstPort, linkType,
	)

	return err
}

func (t *sqlTx) Unlink(ctx context.Context, src, srcPort, dst, dstPort string, linkType int) error {
	res, err := t.exec(
		ctx,
		`DELETE FROM links WHERE source = ? AND source_port = ? AND dest = ? AND dest_port = ? AND link_type = ?`,
		src, srcPort, dst, dstPort, linkType,
	)
	if err != nil {
		return err
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.Wrap(model.ErrNotFound, "link "+src+" -> "+dst)
	}

	return nil
}

func (t *sqlTx) UnlinkAll(ctx context.Context, asset *model.Asset) error {
	_, err := t.exec(ctx, `DELETE FROM links WHERE source = ? OR dest = ?`, asset.Name, asset.Name)
	return err
}

func (t *sqlTx) AddToGroup(ctx context.Context, group, member string) error {
	g, err := t.AssetByName(ctx, group)
	if err != nil {
		return err
	}

	if g.Type != model.TypeGroup {
		return errors.Wrap(model.ErrIntegrity, "not a group: "+group)
	}

	if err := t.mustExist(ctx, member); err != nil {
		return err
	}

	_, err = t.exec(ctx, `INSERT INTO group_members (group_name, member) VALUES (?, ?) ON CONFLICT DO NOTHING`, group, member)

	return err
}

func (t *sqlTx) RemoveFromGroups(ctx context.Context, asset *model.Asset) error {
	_, err := t.exec(ctx, `DELETE FROM group_members WHERE member = ?`, asset.Name)
	return err
}

func (t *sqlTx) ClearGroup(ctx context.Context, asset *model.Asset) error {
	_, err := t.exec(ctx, `DELETE FROM group_members WHERE group_name = ?`, asset.Name)
	return err
}

func (t *sqlTx) AddRelation(ctx context.Context, from, to string) error {
	if err := t.mustExist(ctx, from); err != nil {
		return err
	}

	if err := t.mustExist(ctx, to); err != nil {
		return err
	}

	_, err := t.exec(ctx, `INSERT INTO relations (from_asset, to_asset) VALUES (?, ?) ON CONFLICT DO NOTHING`, from, to)

	return err
}

func (t *sqlTx) RemoveFromRelations(ctx context.Context, asset *model.Asset) error {
	_, err := t.exec(ctx, `DELETE FROM relations WHERE from_asset = ? OR to_asset = ?`, asset.Name, asset.Name)
	return err
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func toAny[T any](values []T, conv func(T) any) []any {
	out := make([]any, 0, len(values))
	for _, v := range values {
		out = append(out, conv(v))
	}

	return out
}
