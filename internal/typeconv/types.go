package typeconv

import (
	"strings"

	"github.com/graphql-go/graphql"
)

// CanonicalType normalizes Postgres type names for comparison.
func CanonicalType(typ string) string {
	t := strings.ToUpper(strings.TrimPrefix(typ, "_"))
	switch t {
	case "INT2", "SMALLINT":
		return "SMALLINT"
	case "INT4", "INTEGER", "SERIAL":
		return "INTEGER"
	case "INT8", "BIGINT", "BIGSERIAL":
		return "BIGINT"
	case "BOOL", "BOOLEAN":
		return "BOOLEAN"
	case "TEXT", "VARCHAR", "BPCHAR", "NAME", "CITEXT":
		return "TEXT"
	case "REAL", "FLOAT4", "FLOAT8":
		return "REAL"
	case "NUMERIC", "DECIMAL":
		return "NUMERIC"
	case "TIMESTAMP", "TIMESTAMPTZ":
		return "TIMESTAMP"
	case "DATE":
		return "DATE"
	case "UUID":
		return "UUID"
	case "JSON", "JSONB":
		return "JSON"
	default:
		return t
	}
}

// MapSQLTypeToGraphQL returns the GraphQL scalar used to expose a column or
// function value of the given Postgres type. Values that do not fit a
// GraphQL scalar losslessly (bigint, numeric) are exposed as strings.
func MapSQLTypeToGraphQL(sqlType string) *graphql.Scalar {
	switch CanonicalType(sqlType) {
	case "SMALLINT", "INTEGER":
		return graphql.Int
	case "BOOLEAN":
		return graphql.Boolean
	case "REAL":
		return graphql.Float
	case "TIMESTAMP", "DATE":
		return graphql.DateTime
	default:
		return graphql.String
	}
}

// IsArray reports whether the Postgres type name denotes an array type.
func IsArray(sqlType string) bool {
	return strings.HasPrefix(sqlType, "_")
}
