// Package query renders parameterized SQL statements for record
// operations. Values always travel as bound parameters; the only text ever
// spliced into a statement is an identifier that has passed the whitelist.
package query

import (
	"fmt"
	"regexp"
	"strings"

	apperrors "github.com/fluxtable/fluxtable/internal/errors"
	"github.com/fluxtable/fluxtable/pkg/types"
)

// identifierPattern is the whitelist for any identifier embedded in
// statement text: column names in DDL and SET clauses, table names, and
// ORDER BY targets.
var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// sqlKeywords are rejected as identifiers even though they match the
// pattern. The list covers the keywords shared by the supported dialects.
var sqlKeywords = map[string]struct{}{
	"select": {}, "insert": {}, "update": {}, "delete": {}, "drop": {},
	"create": {}, "alter": {}, "table": {}, "from": {}, "where": {},
	"and": {}, "or": {}, "not": {}, "null": {}, "set": {}, "values": {},
	"into": {}, "order": {}, "by": {}, "group": {}, "having": {},
	"join": {}, "union": {}, "exec": {}, "execute": {}, "grant": {},
	"revoke": {}, "truncate": {}, "default": {}, "primary": {}, "key": {},
	"index": {}, "column": {}, "add": {}, "cast": {}, "case": {},
	"when": {}, "then": {}, "else": {}, "end": {}, "as": {}, "in": {},
	"like": {}, "between": {}, "is": {}, "exists": {}, "all": {}, "any": {},
	"distinct": {}, "limit": {}, "offset": {},
}

const maxIdentifierLength = 64

// ValidateIdentifier checks a name against the identifier whitelist.
// Returns a ValidationError when the name is empty, too long, contains a
// character outside [A-Za-z0-9_], starts with a digit, or is an SQL
// keyword.
func ValidateIdentifier(name string) error {
	if name == "" {
		return apperrors.NewValidationError(apperrors.CodeInvalidIdentifier, "identifier must not be empty")
	}
	if len(name) > maxIdentifierLength {
		return apperrors.NewValidationError(apperrors.CodeInvalidIdentifier,
			fmt.Sprintf("identifier %q exceeds %d characters", name, maxIdentifierLength))
	}
	if !identifierPattern.MatchString(name) {
		return apperrors.NewValidationError(apperrors.CodeInvalidIdentifier,
			fmt.Sprintf("identifier %q contains characters outside [A-Za-z0-9_]", name))
	}
	if _, ok := sqlKeywords[strings.ToLower(name)]; ok {
		return apperrors.NewValidationError(apperrors.CodeInvalidIdentifier,
			fmt.Sprintf("identifier %q is an SQL keyword", name))
	}
	return nil
}

// Builder renders statements for one record table. Quoting rules come from
// the active backend so the builder stays dialect-neutral.
type Builder struct {
	table string
	quote func(string) string
}

// NewBuilder creates a builder for the given table. The table name itself
// goes through the identifier whitelist once, here.
func NewBuilder(table string, quote func(string) string) (*Builder, error) {
	if err := ValidateIdentifier(table); err != nil {
		return nil, err
	}
	return &Builder{table: table, quote: quote}, nil
}

// Table returns the validated table name.
func (b *Builder) Table() string { return b.table }

// ValidateFields applies the whitelist to a whole payload. The store
// calls this before an operation is even submitted, so a bad field name
// is rejected before any statement — DML or DDL — is built.
func (b *Builder) ValidateFields(fields map[string]types.Value) error {
	_, err := b.validateFields(fields)
	return err
}

// validateFields applies the whitelist to every field name before any
// statement text is assembled. "id" is reserved for the store.
func (b *Builder) validateFields(fields map[string]types.Value) ([]string, error) {
	names := types.FieldNames(fields)
	for _, name := range names {
		if strings.EqualFold(name, "id") {
			return nil, apperrors.NewValidationError(apperrors.CodeInvalidPayload,
				"field \"id\" is assigned by the store and cannot be written")
		}
		if err := ValidateIdentifier(name); err != nil {
			return nil, err
		}
	}
	return names, nil
}

// args converts field values into bound parameters in the order of names.
func args(fields map[string]types.Value, names []string) ([]any, error) {
	out := make([]any, 0, len(names))
	for _, name := range names {
		a, err := fields[name].Arg()
		if err != nil {
			return nil, apperrors.NewValidationError(apperrors.CodeInvalidPayload, err.Error())
		}
		out = append(out, a)
	}
	return out, nil
}

// Insert renders an INSERT with an explicit column list equal to the
// record's present fields. When the backend pre-assigns ids from a
// sequence, id is non-nil and becomes the first column; otherwise the
// backend's autoincrement fills it in.
func (b *Builder) Insert(fields map[string]types.Value, id *int64) (string, []any, error) {
	names, err := b.validateFields(fields)
	if err != nil {
		return "", nil, err
	}

	cols := make([]string, 0, len(names)+1)
	params, err := args(fields, names)
	if err != nil {
		return "", nil, err
	}
	if id != nil {
		cols = append(cols, b.quote("id"))
		params = append([]any{*id}, params...)
	}
	for _, name := range names {
		cols = append(cols, b.quote(name))
	}

	if len(cols) == 0 {
		return fmt.Sprintf("INSERT INTO %s DEFAULT VALUES", b.quote(b.table)), nil, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		b.quote(b.table), strings.Join(cols, ", "), placeholders)
	return stmt, params, nil
}

// SelectOne renders a SELECT of all columns filtered by id.
func (b *Builder) SelectOne(id int64) (string, []any) {
	stmt := fmt.Sprintf("SELECT * FROM %s WHERE %s = ?", b.quote(b.table), b.quote("id"))
	return stmt, []any{id}
}

// SelectAll renders an unfiltered SELECT of all columns ordered by the
// given column.
func (b *Builder) SelectAll(orderBy string) (string, error) {
	if err := ValidateIdentifier(orderBy); err != nil {
		return "", err
	}
	return fmt.Sprintf("SELECT * FROM %s ORDER BY %s", b.quote(b.table), b.quote(orderBy)), nil
}

// Update renders an UPDATE whose SET clause lists only the payload's
// columns; every other column is left untouched.
func (b *Builder) Update(id int64, fields map[string]types.Value) (string, []any, error) {
	names, err := b.validateFields(fields)
	if err != nil {
		return "", nil, err
	}
	if len(names) == 0 {
		return "", nil, apperrors.NewValidationError(apperrors.CodeInvalidPayload,
			"update payload must contain at least one field")
	}

	assignments := make([]string, 0, len(names))
	for _, name := range names {
		assignments = append(assignments, fmt.Sprintf("%s = ?", b.quote(name)))
	}
	params, err := args(fields, names)
	if err != nil {
		return "", nil, err
	}
	params = append(params, id)

	stmt := fmt.Sprintf("UPDATE %s SET %s WHERE %s = ?",
		b.quote(b.table), strings.Join(assignments, ", "), b.quote("id"))
	return stmt, params, nil
}

// Delete renders a DELETE filtered by id.
func (b *Builder) Delete(id int64) (string, []any) {
	stmt := fmt.Sprintf("DELETE FROM %s WHERE %s = ?", b.quote(b.table), b.quote("id"))
	return stmt, []any{id}
}

// AddColumn renders the additive DDL for one new column. The column type
// string comes from the backend and is never user input.
func (b *Builder) AddColumn(name, columnType string) (string, error) {
	if err := ValidateIdentifier(name); err != nil {
		return "", err
	}
	return fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s",
		b.quote(b.table), b.quote(name), columnType), nil
}

// Probe renders the zero-row SELECT used to discover the current column
// set without reading data.
func (b *Builder) Probe() string {
	return fmt.Sprintf("SELECT * FROM %s LIMIT 0", b.quote(b.table))
}
