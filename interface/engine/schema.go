package engine

import (
	"fmt"
	"reflect"
)

// MaxVarcharWidth bounds Column.Width of Varchar columns
const MaxVarcharWidth = 1<<16 - 1

// Validate checks a schema before an engine accepts it, errors wrap ErrSchemaRejected
func Validate(schema *Schema) error {
	if schema == nil || schema.Name == "" {
		return fmt.Errorf("%w: table name required", ErrSchemaRejected)
	}
	if len(schema.Columns) == 0 {
		return fmt.Errorf("%w: %s has no columns", ErrSchemaRejected, schema.Name)
	}
	seen := make(map[string]struct{}, len(schema.Columns))
	for _, col := range schema.Columns {
		if col.Name == "" {
			return fmt.Errorf("%w: %s has an unnamed column", ErrSchemaRejected, schema.Name)
		}
		if _, ok := seen[col.Name]; ok {
			return fmt.Errorf("%w: %s.%s declared twice", ErrSchemaRejected, schema.Name, col.Name)
		}
		seen[col.Name] = struct{}{}
		switch col.Type {
		case Varchar:
			if col.Width <= 0 || col.Width > MaxVarcharWidth {
				return fmt.Errorf("%w: %s.%s illegal width %d", ErrSchemaRejected, schema.Name, col.Name, col.Width)
			}
		case Blob, Int64, Float64:
		default:
			return fmt.Errorf("%w: %s.%s unknown type %d", ErrSchemaRejected, schema.Name, col.Name, col.Type)
		}
	}
	if len(schema.PrimaryKey) == 0 {
		return fmt.Errorf("%w: %s has no primary key", ErrSchemaRejected, schema.Name)
	}
	for _, name := range schema.PrimaryKey {
		i := schema.ColumnIndex(name)
		if i < 0 {
			return fmt.Errorf("%w: primary key column %s.%s missing", ErrSchemaRejected, schema.Name, name)
		}
		if !schema.Columns[i].NotNull {
			return fmt.Errorf("%w: primary key column %s.%s is nullable", ErrSchemaRejected, schema.Name, name)
		}
	}
	return nil
}

// SameSchema tells whether two schema definitions are identical
func SameSchema(a, b *Schema) bool {
	return reflect.DeepEqual(a, b)
}
