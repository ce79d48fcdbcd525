// File: internal/introspect/introspect.go
package introspect

import (
	"context"
	"database/sql"

	"github.com/lib/pq"
	"github.com/pkg/errors"
)

// Kind is the introspection kind of a catalog object.
type Kind string

const (
	KindClass     Kind = "class"
	KindView      Kind = "view"
	KindProcedure Kind = "procedure"
)

// Object is the part of the catalog metadata shared by every kind.
type Object struct {
	Kind      Kind
	Name      string
	Namespace string
}

// Column describes a single attribute of a class or view.
type Column struct {
	Name       string
	Type       string
	NotNull    bool
	HasDefault bool
}

// Class describes a table-like or view relation.
type Class struct {
	Object
	Description string
	Columns     []Column
	PrimaryKey  []string
}

// Column returns the column with the given name.
func (c *Class) Column(name string) (Column, bool) {
	for _, col := range c.Columns {
		if col.Name == name {
			return col, true
		}
	}
	return Column{}, false
}

// Procedure describes a scalar function.
type Procedure struct {
	Object
	ArgNames   []string
	ArgTypes   []string
	ReturnType string
	Volatile   bool
}

// Catalog is everything read from one namespace.
type Catalog struct {
	Namespace  string
	Classes    []*Class
	Procedures []*Procedure
}

// Querier is satisfied by *sql.DB and *sql.Tx.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

const classesQuery = `SELECT c.oid, c.relname, c.relkind, COALESCE(d.description, '')
FROM pg_catalog.pg_class c
JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
LEFT JOIN pg_catalog.pg_description d ON d.objoid = c.oid AND d.objsubid = 0
WHERE n.nspname = $1 AND c.relkind IN ('r', 'p', 'f', 'v', 'm')
ORDER BY c.relname`

const columnsQuery = `SELECT a.attrelid, a.attname, t.typname, a.attnotnull, a.atthasdef
FROM pg_catalog.pg_attribute a
JOIN pg_catalog.pg_class c ON c.oid = a.attrelid
JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
JOIN pg_catalog.pg_type t ON t.oid = a.atttypid
WHERE n.nspname = $1 AND a.attnum > 0 AND NOT a.attisdropped
ORDER BY a.attrelid, a.attnum`

const primaryKeysQuery = `SELECT con.conrelid, a.attname
FROM pg_catalog.pg_constraint con
JOIN pg_catalog.pg_class c ON c.oid = con.conrelid
JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
JOIN pg_catalog.pg_attribute a ON a.attrelid = con.conrelid AND a.attnum = ANY(con.conkey)
WHERE n.nspname = $1 AND con.contype = 'p'
ORDER BY con.conrelid, a.attnum`

const proceduresQuery = `SELECT p.proname, p.provolatile, rt.typname,
	COALESCE(p.proargnames, '{}'::text[]),
	ARRAY(SELECT t.typname FROM unnest(p.proargtypes::oid[]) WITH ORDINALITY AS a(oid, ord)
		JOIN pg_catalog.pg_type t ON t.oid = a.oid ORDER BY a.ord)
FROM pg_catalog.pg_proc p
JOIN pg_catalog.pg_namespace n ON n.oid = p.pronamespace
JOIN pg_catalog.pg_type rt ON rt.oid = p.prorettype
WHERE n.nspname = $1 AND p.prokind = 'f' AND NOT p.proretset
	AND rt.typtype = 'b' AND p.proallargtypes IS NULL
ORDER BY p.proname`

// ClassKind maps a pg_class relkind to an introspection kind.
func ClassKind(relkind string) (Kind, bool) {
	switch relkind {
	case "r", "p", "f":
		return KindClass, true
	case "v", "m":
		return KindView, true
	default:
		return "", false
	}
}

// Load reads classes, columns, primary keys and scalar functions of a namespace.
func Load(ctx context.Context, db Querier, namespace string) (*Catalog, error) {
	cat := &Catalog{Namespace: namespace}
	byOID := map[int64]*Class{}

	rows, err := db.QueryContext(ctx, classesQuery, namespace)
	if err != nil {
		return nil, errors.Wrapf(err, "introspect classes in %s", namespace)
	}
	for rows.Next() {
		var (
			oid                    int64
			name, relkind, comment string
		)
		if err := rows.Scan(&oid, &name, &relkind, &comment); err != nil {
			rows.Close()
			return nil, errors.Wrap(err, "scan class")
		}
		kind, ok := ClassKind(relkind)
		if !ok {
			continue
		}
		cls := &Class{
			Object:      Object{Kind: kind, Name: name, Namespace: namespace},
			Description: comment,
		}
		byOID[oid] = cls
		cat.Classes = append(cat.Classes, cls)
	}
	if err := closeRows(rows); err != nil {
		return nil, errors.Wrap(err, "iterate classes")
	}

	rows, err = db.QueryContext(ctx, columnsQuery, namespace)
	if err != nil {
		return nil, errors.Wrapf(err, "introspect columns in %s", namespace)
	}
	for rows.Next() {
		var (
			oid int64
			col Column
		)
		if err := rows.Scan(&oid, &col.Name, &col.Type, &col.NotNull, &col.HasDefault); err != nil {
			rows.Close()
			return nil, errors.Wrap(err, "scan column")
		}
		if cls, ok := byOID[oid]; ok {
			cls.Columns = append(cls.Columns, col)
		}
	}
	if err := closeRows(rows); err != nil {
		return nil, errors.Wrap(err, "iterate columns")
	}

	rows, err = db.QueryContext(ctx, primaryKeysQuery, namespace)
	if err != nil {
		return nil, errors.Wrapf(err, "introspect primary keys in %s", namespace)
	}
	for rows.Next() {
		var (
			oid  int64
			name string
		)
		if err := rows.Scan(&oid, &name); err != nil {
			rows.Close()
			return nil, errors.Wrap(err, "scan primary key")
		}
		if cls, ok := byOID[oid]; ok {
			cls.PrimaryKey = append(cls.PrimaryKey, name)
		}
	}
	if err := closeRows(rows); err != nil {
		return nil, errors.Wrap(err, "iterate primary keys")
	}

	rows, err = db.QueryContext(ctx, proceduresQuery, namespace)
	if err != nil {
		return nil, errors.Wrapf(err, "introspect procedures in %s", namespace)
	}
	for rows.Next() {
		var (
			proc       = &Procedure{Object: Object{Kind: KindProcedure, Namespace: namespace}}
			volatility string
		)
		if err := rows.Scan(&proc.Name, &volatility, &proc.ReturnType,
			pq.Array(&proc.ArgNames), pq.Array(&proc.ArgTypes)); err != nil {
			rows.Close()
			return nil, errors.Wrap(err, "scan procedure")
		}
		// unnamed arguments cannot be exposed as named GraphQL arguments
		if len(proc.ArgNames) != len(proc.ArgTypes) {
			continue
		}
		proc.Volatile = volatility == "v"
		cat.Procedures = append(cat.Procedures, proc)
	}
	if err := closeRows(rows); err != nil {
		return nil, errors.Wrap(err, "iterate procedures")
	}

	return cat, nil
}

func closeRows(rows *sql.Rows) error {
	err := rows.Err()
	if cerr := rows.Close(); err == nil {
		err = cerr
	}
	return err
}
