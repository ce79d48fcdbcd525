// Package graph generates a GraphQL schema from an introspected Postgres
// namespace. Every root field is resolved through the operation hook
// registry once at build time, and its resolver runs the resulting chain
// around the SQL it executes.
package graph

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/graphql-go/graphql"
	"github.com/graphql-go/graphql/language/ast"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/TechXTT/pgraph/internal/auth"
	"github.com/TechXTT/pgraph/internal/core"
	"github.com/TechXTT/pgraph/internal/introspect"
	"github.com/TechXTT/pgraph/internal/plugin"
	"github.com/TechXTT/pgraph/internal/requestid"
	"github.com/TechXTT/pgraph/internal/typeconv"
)

// DefaultUserIDClaim is the JWT claim read as the caller id.
const DefaultUserIDClaim = "user_id"

// Config wires the generated schema to its collaborators.
type Config struct {
	DB          core.Querier
	Registry    *plugin.Registry
	Logger      *zap.Logger
	UserIDClaim string
}

type builder struct {
	cfg      Config
	query    graphql.Fields
	mutation graphql.Fields
	types    map[string]string
}

// execFunc performs the SQL behind a root field. input is the value that
// went through the before hooks.
type execFunc func(ctx context.Context, input interface{}, args map[string]interface{}) (interface{}, error)

// Build generates the schema for cat.
func Build(cat *introspect.Catalog, cfg Config) (graphql.Schema, error) {
	if cfg.Registry == nil {
		cfg.Registry = plugin.NewRegistry()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.UserIDClaim == "" {
		cfg.UserIDClaim = DefaultUserIDClaim
	}
	b := &builder{
		cfg:      cfg,
		query:    graphql.Fields{},
		mutation: graphql.Fields{},
		types:    map[string]string{},
	}

	for _, cls := range cat.Classes {
		if err := b.addClass(cls); err != nil {
			return graphql.Schema{}, err
		}
	}
	for _, proc := range cat.Procedures {
		if err := b.addProcedure(proc); err != nil {
			return graphql.Schema{}, err
		}
	}

	if len(b.query) == 0 {
		namespace := cat.Namespace
		b.query["schemaName"] = &graphql.Field{
			Type:        graphql.NewNonNull(graphql.String),
			Description: "The exposed Postgres schema. Present only while it has no relations.",
			Resolve: func(graphql.ResolveParams) (interface{}, error) {
				return namespace, nil
			},
		}
	}

	sc := graphql.SchemaConfig{
		Query: graphql.NewObject(graphql.ObjectConfig{Name: "Query", Fields: b.query}),
	}
	if len(b.mutation) > 0 {
		sc.Mutation = graphql.NewObject(graphql.ObjectConfig{Name: "Mutation", Fields: b.mutation})
	}
	schema, err := graphql.NewSchema(sc)
	if err != nil {
		return graphql.Schema{}, errors.Wrap(err, "build graphql schema")
	}
	b.cfg.Logger.Info("graphql schema built",
		zap.String("namespace", cat.Namespace),
		zap.Int("queries", len(b.query)),
		zap.Int("mutations", len(b.mutation)))
	return schema, nil
}

type column struct {
	introspect.Column
	field string
	typ   *graphql.Scalar
}

func exposedColumns(cls *introspect.Class, log *zap.Logger) []column {
	var cols []column
	seen := map[string]bool{}
	for _, c := range cls.Columns {
		field := lowerCamel(c.Name)
		if !isValidName(field) || seen[field] {
			log.Warn("column not exposed",
				zap.String("relation", cls.Name), zap.String("column", c.Name))
			continue
		}
		seen[field] = true
		cols = append(cols, column{Column: c, field: field, typ: typeconv.MapSQLTypeToGraphQL(c.Type)})
	}
	return cols
}

func (b *builder) addClass(cls *introspect.Class) error {
	names := namesFor(cls.Name)
	if !isValidName(names.Type) {
		b.cfg.Logger.Warn("relation not exposed: invalid name", zap.String("relation", cls.Name))
		return nil
	}
	if other, taken := b.types[names.Type]; taken {
		b.cfg.Logger.Warn("relation not exposed: type name taken",
			zap.String("relation", cls.Name), zap.String("type", names.Type), zap.String("by", other))
		return nil
	}
	cols := exposedColumns(cls, b.cfg.Logger)
	if len(cols) == 0 {
		return nil
	}
	b.types[names.Type] = cls.Name

	obj := graphql.NewObject(graphql.ObjectConfig{
		Name:        names.Type,
		Description: cls.Description,
		Fields:      objectFields(cols),
	})
	table := core.Table(cls.Namespace, cls.Name)
	object := &cls.Object

	var pk *column
	if len(cls.PrimaryKey) == 1 {
		for i := range cols {
			if cols[i].Name == cls.PrimaryKey[0] {
				pk = &cols[i]
			}
		}
	}

	if err := b.addField(b.query, plugin.Descriptor{
		FieldName:     "all" + names.Plural,
		Operation:     plugin.Query,
		Introspection: object,
	}, &graphql.Field{
		Type:        graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(obj))),
		Description: fmt.Sprintf("Reads %s rows.", cls.Name),
		Args: graphql.FieldConfigArgument{
			"first":  {Type: graphql.Int, Description: "Only read the first n rows."},
			"offset": {Type: graphql.Int, Description: "Skip the first n rows."},
		},
	}, "", b.listRows(table, cols, cls.PrimaryKey)); err != nil {
		return err
	}

	if err := b.addField(b.query, plugin.Descriptor{
		FieldName:     "count" + names.Plural,
		Operation:     plugin.Query,
		Introspection: object,
	}, &graphql.Field{
		Type:        graphql.NewNonNull(graphql.Int),
		Description: fmt.Sprintf("Counts %s rows.", cls.Name),
	}, "", b.countRows(table)); err != nil {
		return err
	}

	if pk != nil {
		if err := b.addField(b.query, plugin.Descriptor{
			FieldName:     lowerCamel(names.Type) + "By" + upperCamel(pk.field),
			Operation:     plugin.Query,
			Introspection: object,
		}, &graphql.Field{
			Type: obj,
			Args: graphql.FieldConfigArgument{
				pk.field: {Type: graphql.NewNonNull(pk.typ)},
			},
		}, "", b.rowByKey(table, cols, *pk)); err != nil {
			return err
		}
	}

	if cls.Kind != introspect.KindClass {
		return nil
	}

	writable := writableColumns(cols)
	if len(writable) > 0 {
		input := graphql.NewInputObject(graphql.InputObjectConfig{
			Name:   names.Input,
			Fields: inputFields(writable, true),
		})
		if err := b.addField(b.mutation, plugin.Descriptor{
			FieldName:               "create" + names.Type,
			Operation:               plugin.Mutation,
			IsPgCreateMutationField: true,
			Introspection:           object,
		}, &graphql.Field{
			Type:        obj,
			Description: fmt.Sprintf("Creates a single %s row.", cls.Name),
			Args: graphql.FieldConfigArgument{
				"input": {Type: graphql.NewNonNull(input)},
			},
		}, "input", b.createRow(table, writable)); err != nil {
			return err
		}
	}

	if pk == nil {
		return nil
	}
	byKey := "By" + upperCamel(pk.field)

	if len(writable) > 0 {
		patch := graphql.NewInputObject(graphql.InputObjectConfig{
			Name:   names.Patch,
			Fields: inputFields(writable, false),
		})
		if err := b.addField(b.mutation, plugin.Descriptor{
			FieldName:               "update" + names.Type + byKey,
			Operation:               plugin.Mutation,
			IsPgUpdateMutationField: true,
			Introspection:           object,
		}, &graphql.Field{
			Type: obj,
			Args: graphql.FieldConfigArgument{
				pk.field: {Type: graphql.NewNonNull(pk.typ)},
				"patch":  {Type: graphql.NewNonNull(patch)},
			},
		}, "patch", b.updateRow(table, *pk, writable)); err != nil {
			return err
		}
	}

	return b.addField(b.mutation, plugin.Descriptor{
		FieldName:               "delete" + names.Type + byKey,
		Operation:               plugin.Mutation,
		IsPgDeleteMutationField: true,
		Introspection:           object,
	}, &graphql.Field{
		Type: obj,
		Args: graphql.FieldConfigArgument{
			pk.field: {Type: graphql.NewNonNull(pk.typ)},
		},
	}, "", b.deleteRow(table, *pk))
}

func (b *builder) addProcedure(proc *introspect.Procedure) error {
	name := lowerCamel(proc.Name)
	if !isValidName(name) {
		b.cfg.Logger.Warn("function not exposed: invalid name", zap.String("function", proc.Name))
		return nil
	}
	args := graphql.FieldConfigArgument{}
	argFields := make([]string, len(proc.ArgNames))
	for i, an := range proc.ArgNames {
		f := lowerCamel(an)
		if !isValidName(f) {
			b.cfg.Logger.Warn("function not exposed: invalid argument name",
				zap.String("function", proc.Name), zap.String("argument", an))
			return nil
		}
		args[f] = &graphql.ArgumentConfig{Type: typeconv.MapSQLTypeToGraphQL(proc.ArgTypes[i])}
		argFields[i] = f
	}

	fields, op := b.query, plugin.Query
	if proc.Volatile {
		fields, op = b.mutation, plugin.Mutation
	}
	holders := make([]string, len(argFields))
	for i := range holders {
		holders[i] = fmt.Sprintf("$%d", i+1)
	}
	query := fmt.Sprintf("SELECT %s(%s) AS result",
		core.Table(proc.Namespace, proc.Name), strings.Join(holders, ", "))

	return b.addField(fields, plugin.Descriptor{
		FieldName:     name,
		Operation:     op,
		Introspection: &proc.Object,
	}, &graphql.Field{
		Type: typeconv.MapSQLTypeToGraphQL(proc.ReturnType),
		Args: args,
	}, "", func(ctx context.Context, input interface{}, _ map[string]interface{}) (interface{}, error) {
		values, _ := input.(map[string]interface{})
		vals := make([]interface{}, len(argFields))
		for i, f := range argFields {
			vals[i] = values[f]
		}
		rows, err := core.QueryRows(ctx, b.cfg.DB, query, vals...)
		if err != nil {
			return nil, errors.Wrapf(err, "call %s", proc.Name)
		}
		if len(rows) == 0 {
			return nil, nil
		}
		return rows[0]["result"], nil
	})
}

// addField resolves the hook chain for d and installs a resolver running it.
// inputArg names the argument passed through the hooks as input; when empty
// the whole argument map is.
func (b *builder) addField(fields graphql.Fields, d plugin.Descriptor, field *graphql.Field, inputArg string, exec execFunc) error {
	if _, taken := fields[d.FieldName]; taken {
		b.cfg.Logger.Warn("root field not exposed: name taken",
			zap.String("field", d.FieldName), zap.Stringer("operation", d.Operation))
		return nil
	}
	chain, err := b.cfg.Registry.Resolve(d)
	if err != nil {
		return errors.Wrapf(err, "resolve hooks for %s", d.FieldName)
	}

	claim := b.cfg.UserIDClaim
	field.Resolve = func(p graphql.ResolveParams) (interface{}, error) {
		ctx := p.Context
		if ctx == nil {
			ctx = context.Background()
		}
		inv := &plugin.Invocation{
			FieldName:     d.FieldName,
			OperationName: operationName(p.Info),
			RequestID:     requestid.From(ctx),
			Args:          p.Args,
			CallerID:      auth.CallerID(ctx, claim),
		}
		var input interface{} = p.Args
		if inputArg != "" {
			input = p.Args[inputArg]
		}
		return chain.Run(ctx, input, inv, func(ctx context.Context, in interface{}) (interface{}, error) {
			return exec(ctx, in, p.Args)
		})
	}
	fields[d.FieldName] = field
	return nil
}

func operationName(info graphql.ResolveInfo) string {
	if op, ok := info.Operation.(*ast.OperationDefinition); ok && op.Name != nil {
		return op.Name.Value
	}
	return ""
}

func objectFields(cols []column) graphql.Fields {
	fields := graphql.Fields{}
	for _, c := range cols {
		name := c.Name
		var typ graphql.Output = c.typ
		if c.NotNull {
			typ = graphql.NewNonNull(c.typ)
		}
		fields[c.field] = &graphql.Field{
			Type: typ,
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				row, _ := p.Source.(core.Row)
				return row[name], nil
			},
		}
	}
	return fields
}

// writableColumns drops array columns, which have no input coercion.
func writableColumns(cols []column) []column {
	var out []column
	for _, c := range cols {
		if typeconv.IsArray(c.Type) {
			continue
		}
		out = append(out, c)
	}
	return out
}

// inputFields builds input object fields; with required set, NOT NULL
// columns without a default are non-null.
func inputFields(cols []column, required bool) graphql.InputObjectConfigFieldMap {
	fields := graphql.InputObjectConfigFieldMap{}
	for _, c := range cols {
		var typ graphql.Input = c.typ
		if required && c.NotNull && !c.HasDefault {
			typ = graphql.NewNonNull(c.typ)
		}
		fields[c.field] = &graphql.InputObjectFieldConfig{Type: typ}
	}
	return fields
}

// columnNames lists the SQL names of the exposed columns, so hidden
// columns are never read.
func columnNames(cols []column) []string {
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}
	return names
}

func (b *builder) listRows(table string, cols []column, orderBy []string) execFunc {
	return func(ctx context.Context, input interface{}, _ map[string]interface{}) (interface{}, error) {
		args, _ := input.(map[string]interface{})
		qb := core.NewQueryBuilder(b.cfg.DB).From(table).Select(columnNames(cols)...).OrderBy(orderBy...)
		if first, ok := args["first"].(int); ok {
			if first < 0 {
				return nil, errors.New("first must not be negative")
			}
			if first == 0 {
				return []core.Row{}, nil
			}
			qb.Limit(first)
		}
		if offset, ok := args["offset"].(int); ok {
			if offset < 0 {
				return nil, errors.New("offset must not be negative")
			}
			qb.Offset(offset)
		}
		rows, err := qb.All(ctx)
		if err != nil {
			return nil, errors.Wrapf(err, "read %s", table)
		}
		if rows == nil {
			rows = []core.Row{}
		}
		return rows, nil
	}
}

func (b *builder) countRows(table string) execFunc {
	return func(ctx context.Context, _ interface{}, _ map[string]interface{}) (interface{}, error) {
		n, err := core.NewQueryBuilder(b.cfg.DB).From(table).Count(ctx)
		if err != nil {
			return nil, errors.Wrapf(err, "count %s", table)
		}
		return n, nil
	}
}

func (b *builder) rowByKey(table string, cols []column, pk column) execFunc {
	return func(ctx context.Context, input interface{}, _ map[string]interface{}) (interface{}, error) {
		args, _ := input.(map[string]interface{})
		row, err := core.NewQueryBuilder(b.cfg.DB).From(table).Select(columnNames(cols)...).
			WhereEq(pk.Name, args[pk.field]).One(ctx)
		return nullable(row, err, "read "+table)
	}
}

func (b *builder) createRow(table string, cols []column) execFunc {
	return func(ctx context.Context, input interface{}, _ map[string]interface{}) (interface{}, error) {
		values, _ := input.(map[string]interface{})
		ib := core.NewInsertBuilder(b.cfg.DB, table)
		for _, c := range cols {
			if v, ok := values[c.field]; ok {
				ib.Set(c.Name, v)
			}
		}
		row, err := ib.Exec(ctx)
		if err != nil {
			return nil, errors.Wrapf(err, "create in %s", table)
		}
		return row, nil
	}
}

func (b *builder) updateRow(table string, pk column, cols []column) execFunc {
	return func(ctx context.Context, input interface{}, args map[string]interface{}) (interface{}, error) {
		values, _ := input.(map[string]interface{})
		ub := core.NewUpdateBuilder(b.cfg.DB, table).WhereEq(pk.Name, args[pk.field])
		for _, c := range cols {
			if v, ok := values[c.field]; ok {
				ub.Set(c.Name, v)
			}
		}
		row, err := ub.Exec(ctx)
		return nullable(row, err, "update "+table)
	}
}

func (b *builder) deleteRow(table string, pk column) execFunc {
	return func(ctx context.Context, input interface{}, _ map[string]interface{}) (interface{}, error) {
		args, _ := input.(map[string]interface{})
		row, err := core.NewDeleteBuilder(b.cfg.DB, table).WhereEq(pk.Name, args[pk.field]).Exec(ctx)
		return nullable(row, err, "delete from "+table)
	}
}

// nullable maps a missing row to a GraphQL null.
func nullable(row core.Row, err error, what string) (interface{}, error) {
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, what)
	}
	return row, nil
}
