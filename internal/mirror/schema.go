package mirror

import (
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
)

func quoteIdent(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

// isSequenceDefault reports whether a column default looks like an auto-increment sequence.
func isSequenceDefault(def *string) bool {
	return def != nil && strings.HasPrefix(strings.ToLower(strings.TrimSpace(*def)), "nextval(")
}

// hasSequenceID reports whether the id column is filled from a sequence.
func hasSequenceID(columns []Column) bool {
	for _, c := range columns {
		if c.Name == "id" {
			return isSequenceDefault(c.Default)
		}
	}
	return false
}

// MapColumnType translates an information_schema data type into DDL.
func MapColumnType(c Column) string {
	switch strings.ToLower(c.DataType) {
	case "character varying":
		if c.CharMaxLength != nil && *c.CharMaxLength > 0 {
			return fmt.Sprintf("VARCHAR(%d)", *c.CharMaxLength)
		}
		return "VARCHAR"
	case "integer":
		return "INTEGER"
	case "bigint":
		return "BIGINT"
	case "boolean":
		return "BOOLEAN"
	case "timestamp without time zone":
		return "TIMESTAMP"
	case "timestamp with time zone":
		return "TIMESTAMPTZ"
	case "text":
		return "TEXT"
	case "numeric":
		if c.NumericPrecision != nil && *c.NumericPrecision > 0 {
			if c.NumericScale != nil {
				return fmt.Sprintf("NUMERIC(%d,%d)", *c.NumericPrecision, *c.NumericScale)
			}
			return fmt.Sprintf("NUMERIC(%d)", *c.NumericPrecision)
		}
		return "NUMERIC"
	default:
		return strings.ToUpper(c.DataType)
	}
}

func serialType(dataType string) string {
	switch strings.ToLower(dataType) {
	case "bigint":
		return "BIGSERIAL"
	case "smallint":
		return "SMALLSERIAL"
	default:
		return "SERIAL"
	}
}

// columnDefinition renders one column; primaryKey names the inferred key column, if any.
func columnDefinition(c Column, primaryKey string) string {
	var b strings.Builder
	b.WriteString(quoteIdent(c.Name))
	b.WriteByte(' ')

	if c.Name == primaryKey && isSequenceDefault(c.Default) {
		b.WriteString(serialType(c.DataType))
		b.WriteString(" PRIMARY KEY")
		return b.String()
	}

	b.WriteString(MapColumnType(c))
	if c.Name == primaryKey {
		b.WriteString(" PRIMARY KEY")
	} else if !c.Nullable {
		b.WriteString(" NOT NULL")
	}
	if c.Default != nil && strings.TrimSpace(*c.Default) != "" {
		b.WriteString(" DEFAULT ")
		b.WriteString(*c.Default)
	}
	return b.String()
}

// inferPrimaryKey picks the first sequence-backed column, falling back to a column named id.
func inferPrimaryKey(columns []Column) string {
	for _, c := range columns {
		if isSequenceDefault(c.Default) {
			return c.Name
		}
	}
	for _, c := range columns {
		if c.Name == "id" {
			return c.Name
		}
	}
	return ""
}

// CreateTableSQL synthesizes an idempotent CREATE TABLE statement from column metadata.
func CreateTableSQL(table string, columns []Column) (string, error) {
	if len(columns) == 0 {
		return "", fmt.Errorf("table %s has no columns", table)
	}
	pk := inferPrimaryKey(columns)

	defs := make([]string, 0, len(columns))
	for _, c := range columns {
		defs = append(defs, "    "+columnDefinition(c, pk))
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n%s\n)", quoteIdent(table), strings.Join(defs, ",\n")), nil
}

// UpsertSQL builds the single-row insert used by both sync tiers.
func UpsertSQL(table string, columns []string, mode ConflictMode) string {
	quoted := make([]string, len(columns))
	placeholders := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = quoteIdent(c)
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}

	stmt := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (id) ",
		quoteIdent(table), strings.Join(quoted, ", "), strings.Join(placeholders, ", "),
	)

	if mode == ConflictNothing {
		return stmt + "DO NOTHING"
	}

	sets := make([]string, 0, len(columns))
	for _, c := range quoted {
		sets = append(sets, fmt.Sprintf("%s = EXCLUDED.%s", c, c))
	}
	if len(sets) == 0 {
		return stmt + "DO NOTHING"
	}
	return stmt + "DO UPDATE SET " + strings.Join(sets, ", ")
}

// sharedColumns keeps the source column order, dropping columns the destination lacks.
func sharedColumns(source, dest []Column) (shared []string, dropped []string, err error) {
	destSet := make(map[string]bool, len(dest))
	for _, c := range dest {
		destSet[c.Name] = true
	}
	hasID := false
	for _, c := range source {
		if !destSet[c.Name] {
			dropped = append(dropped, c.Name)
			continue
		}
		if c.Name == "id" {
			hasID = true
		}
		shared = append(shared, c.Name)
	}
	if !hasID {
		return nil, dropped, fmt.Errorf("no shared id column")
	}
	return shared, dropped, nil
}
