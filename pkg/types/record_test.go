package types

import (
	"encoding/json"
	"testing"
)

func TestValueUnmarshalKinds(t *testing.T) {
	tests := []struct {
		in   string
		kind Kind
	}{
		{`null`, KindNull},
		{`true`, KindBool},
		{`42`, KindInt},
		{`-7`, KindInt},
		{`3.14`, KindFloat},
		{`"hello"`, KindText},
		{`[1, "two", true]`, KindArray},
	}
	for _, tt := range tests {
		var v Value
		if err := json.Unmarshal([]byte(tt.in), &v); err != nil {
			t.Fatalf("unmarshal %s: %v", tt.in, err)
		}
		if v.Kind != tt.kind {
			t.Errorf("%s: got kind %s, want %s", tt.in, v.Kind, tt.kind)
		}
	}
}

func TestValueUnmarshalRejectsObjects(t *testing.T) {
	var v Value
	if err := json.Unmarshal([]byte(`{"nested": 1}`), &v); err == nil {
		t.Error("expected error for nested object value")
	}
}

func TestValueIntegerShapeSurvives(t *testing.T) {
	var v Value
	if err := json.Unmarshal([]byte(`9007199254740993`), &v); err != nil {
		t.Fatal(err)
	}
	if v.Kind != KindInt || v.Int != 9007199254740993 {
		t.Errorf("large integer lost precision: %+v", v)
	}
}

func TestValueArg(t *testing.T) {
	arg, err := Array([]Value{Int(1), Text("a")}).Arg()
	if err != nil {
		t.Fatal(err)
	}
	if arg != `[1,"a"]` {
		t.Errorf("array arg: got %v", arg)
	}

	arg, err = Null().Arg()
	if err != nil {
		t.Fatal(err)
	}
	if arg != nil {
		t.Errorf("null arg: got %v, want nil", arg)
	}

	arg, err = Bool(true).Arg()
	if err != nil {
		t.Fatal(err)
	}
	if arg != true {
		t.Errorf("bool arg: got %v", arg)
	}
}

func TestRecordMarshalFlattens(t *testing.T) {
	r := Record{
		ID: 3,
		Fields: map[string]Value{
			"name":  Text("Widget"),
			"count": Int(2),
		},
	}
	b, err := json.Marshal(r)
	if err != nil {
		t.Fatal(err)
	}
	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatal(err)
	}
	if out["id"] != float64(3) {
		t.Errorf("id: got %v", out["id"])
	}
	if out["name"] != "Widget" {
		t.Errorf("name: got %v", out["name"])
	}
	if out["count"] != float64(2) {
		t.Errorf("count: got %v", out["count"])
	}
}

func TestDecodeFields(t *testing.T) {
	fields, id, err := DecodeFields([]byte(`{"name":"Widget","value":"42","active":true}`))
	if err != nil {
		t.Fatal(err)
	}
	if id != nil {
		t.Errorf("unexpected id %d", *id)
	}
	if fields["name"].Kind != KindText || fields["name"].Text != "Widget" {
		t.Errorf("name: %+v", fields["name"])
	}
	if fields["active"].Kind != KindBool || !fields["active"].Bool {
		t.Errorf("active: %+v", fields["active"])
	}

	_, id, err = DecodeFields([]byte(`{"id": 7, "name":"x"}`))
	if err != nil {
		t.Fatal(err)
	}
	if id == nil || *id != 7 {
		t.Errorf("id: got %v, want 7", id)
	}

	if _, _, err := DecodeFields([]byte(`"not an object"`)); err == nil {
		t.Error("expected error for non-object payload")
	}
}

func TestFromDriver(t *testing.T) {
	if v := FromDriver([]byte("bytes")); v.Kind != KindText || v.Text != "bytes" {
		t.Errorf("[]byte: %+v", v)
	}
	if v := FromDriver(nil); v.Kind != KindNull {
		t.Errorf("nil: %+v", v)
	}
	if v := FromDriver(int64(5)); v.Kind != KindInt || v.Int != 5 {
		t.Errorf("int64: %+v", v)
	}
}

func TestFieldNamesSorted(t *testing.T) {
	names := FieldNames(map[string]Value{"b": Null(), "a": Null(), "c": Null()})
	want := []string{"a", "b", "c"}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("got %v, want %v", names, want)
		}
	}
}
