// Package sqlutil guards the raw-SQL paths of the storage layer. Catalog and
// table names that get interpolated into statements (the publication service,
// sort columns) must pass identifier validation, and free-text values headed
// for raw statements are screened for injection patterns.
package sqlutil

import (
	"fmt"
	"regexp"

	"github.com/jackc/pgx/v5"
)

// Postgres identifiers are limited to 63 bytes.
const maxIdentifierLength = 63

var identifierPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ValidateIdentifier rejects anything that is not a plain unquoted SQL
// identifier. Names arriving from callers (catalog names, mapped sort
// columns) go through here before any interpolation.
func ValidateIdentifier(name string) error {
	if name == "" {
		return fmt.Errorf("identifier must not be empty")
	}
	if len(name) > maxIdentifierLength {
		return fmt.Errorf("identifier %q exceeds %d characters", name, maxIdentifierLength)
	}
	if !identifierPattern.MatchString(name) {
		return fmt.Errorf("invalid identifier %q", name)
	}
	return nil
}

// QualifiedTable returns a quoted schema-qualified table reference, validating
// both parts first.
func QualifiedTable(catalog, table string) (string, error) {
	if err := ValidateIdentifier(catalog); err != nil {
		return "", fmt.Errorf("bad catalog name: %w", err)
	}
	if err := ValidateIdentifier(table); err != nil {
		return "", fmt.Errorf("bad table name: %w", err)
	}
	return pgx.Identifier{catalog, table}.Sanitize(), nil
}

// QuoteColumn returns a quoted column reference, validating it first.
func QuoteColumn(column string) (string, error) {
	if err := ValidateIdentifier(column); err != nil {
		return "", fmt.Errorf("bad column name: %w", err)
	}
	return pgx.Identifier{column}.Sanitize(), nil
}
