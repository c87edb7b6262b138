package query

import (
	"errors"
	"strings"
	"testing"

	apperrors "github.com/fluxtable/fluxtable/internal/errors"
	"github.com/fluxtable/fluxtable/pkg/types"
)

func quote(name string) string {
	return `"` + name + `"`
}

func newTestBuilder(t *testing.T) *Builder {
	t.Helper()
	b, err := NewBuilder("items", quote)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestValidateIdentifier(t *testing.T) {
	valid := []string{"name", "value_2", "_private", "CamelCase", "a"}
	for _, name := range valid {
		if err := ValidateIdentifier(name); err != nil {
			t.Errorf("%q should be valid: %v", name, err)
		}
	}

	invalid := []string{
		"",
		"1starts_with_digit",
		"has space",
		"semi;colon",
		"drop",
		"SELECT",
		"name--comment",
		`quo"te`,
		"dash-ed",
		strings.Repeat("x", 65),
	}
	for _, name := range invalid {
		err := ValidateIdentifier(name)
		if err == nil {
			t.Errorf("%q should be rejected", name)
			continue
		}
		if apperrors.GetCategory(err) != apperrors.CategoryValidation {
			t.Errorf("%q: got category %s, want VALIDATION", name, apperrors.GetCategory(err))
		}
	}
}

func TestInsert(t *testing.T) {
	b := newTestBuilder(t)
	fields := map[string]types.Value{
		"name":  types.Text("Widget"),
		"count": types.Int(2),
	}

	id := int64(7)
	stmt, params, err := b.Insert(fields, &id)
	if err != nil {
		t.Fatal(err)
	}
	want := `INSERT INTO "items" ("id", "count", "name") VALUES (?, ?, ?)`
	if stmt != want {
		t.Errorf("stmt: got %q, want %q", stmt, want)
	}
	if len(params) != 3 || params[0] != int64(7) || params[1] != int64(2) || params[2] != "Widget" {
		t.Errorf("params: got %v", params)
	}

	// Without a pre-assigned id the id column is omitted entirely.
	stmt, params, err = b.Insert(fields, nil)
	if err != nil {
		t.Fatal(err)
	}
	want = `INSERT INTO "items" ("count", "name") VALUES (?, ?)`
	if stmt != want {
		t.Errorf("stmt: got %q, want %q", stmt, want)
	}
	if len(params) != 2 {
		t.Errorf("params: got %v", params)
	}
}

func TestInsertEmptyRecord(t *testing.T) {
	b := newTestBuilder(t)
	stmt, params, err := b.Insert(nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if stmt != `INSERT INTO "items" DEFAULT VALUES` {
		t.Errorf("stmt: got %q", stmt)
	}
	if len(params) != 0 {
		t.Errorf("params: got %v", params)
	}
}

func TestInsertRejectsBadFieldBeforeBuilding(t *testing.T) {
	b := newTestBuilder(t)
	fields := map[string]types.Value{
		"name; DROP TABLE items": types.Text("x"),
	}
	stmt, _, err := b.Insert(fields, nil)
	if err == nil {
		t.Fatal("expected ValidationError")
	}
	if stmt != "" {
		t.Errorf("no statement should be built, got %q", stmt)
	}
	if apperrors.GetCategory(err) != apperrors.CategoryValidation {
		t.Errorf("got category %s, want VALIDATION", apperrors.GetCategory(err))
	}
}

func TestInsertRejectsReservedID(t *testing.T) {
	b := newTestBuilder(t)
	_, _, err := b.Insert(map[string]types.Value{"id": types.Int(9)}, nil)
	if err == nil {
		t.Fatal("expected error for explicit id field")
	}
	if !errors.Is(err, apperrors.NewValidationError(apperrors.CodeInvalidPayload, "")) {
		t.Errorf("got %v, want INVALID_PAYLOAD", err)
	}
}

func TestUpdateListsOnlyPayloadColumns(t *testing.T) {
	b := newTestBuilder(t)
	stmt, params, err := b.Update(3, map[string]types.Value{"b": types.Text("z")})
	if err != nil {
		t.Fatal(err)
	}
	want := `UPDATE "items" SET "b" = ? WHERE "id" = ?`
	if stmt != want {
		t.Errorf("stmt: got %q, want %q", stmt, want)
	}
	if len(params) != 2 || params[0] != "z" || params[1] != int64(3) {
		t.Errorf("params: got %v", params)
	}
}

func TestUpdateRejectsEmptyPayload(t *testing.T) {
	b := newTestBuilder(t)
	if _, _, err := b.Update(3, map[string]types.Value{}); err == nil {
		t.Error("expected error for empty update payload")
	}
}

func TestSelectAndDelete(t *testing.T) {
	b := newTestBuilder(t)

	stmt, params := b.SelectOne(5)
	if stmt != `SELECT * FROM "items" WHERE "id" = ?` || params[0] != int64(5) {
		t.Errorf("select-one: %q %v", stmt, params)
	}

	all, err := b.SelectAll("id")
	if err != nil {
		t.Fatal(err)
	}
	if all != `SELECT * FROM "items" ORDER BY "id"` {
		t.Errorf("select-all: %q", all)
	}

	if _, err := b.SelectAll("id; DROP TABLE items"); err == nil {
		t.Error("order-by must be whitelisted")
	}

	stmt, params = b.Delete(5)
	if stmt != `DELETE FROM "items" WHERE "id" = ?` || params[0] != int64(5) {
		t.Errorf("delete: %q %v", stmt, params)
	}
}

func TestAddColumn(t *testing.T) {
	b := newTestBuilder(t)
	stmt, err := b.AddColumn("color", "TEXT")
	if err != nil {
		t.Fatal(err)
	}
	if stmt != `ALTER TABLE "items" ADD COLUMN "color" TEXT` {
		t.Errorf("got %q", stmt)
	}

	if _, err := b.AddColumn("color;--", "TEXT"); err == nil {
		t.Error("expected rejection of invalid column name")
	}
}

func TestNewBuilderValidatesTable(t *testing.T) {
	if _, err := NewBuilder("items; DROP", quote); err == nil {
		t.Error("table name must be whitelisted")
	}
}
