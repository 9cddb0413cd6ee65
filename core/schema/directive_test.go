package schema

import (
	"errors"
	"testing"
)

func TestScanDirectives(t *testing.T) {
	meta := `
		Primary key of the user.
		@Api\Table("user")
		@Api\Column(name="uid", type="int", required = "true")
		@Api\Validate(regex="[0-9]+")
		@Api\Contextual()
	`

	ds, err := ScanDirectives(meta, "")
	if err != nil {
		t.Fatalf("ScanDirectives failed: %v", err)
	}
	if len(ds) != 4 {
		t.Fatalf("got %d directives, want 4", len(ds))
	}

	wantKinds := []DirectiveKind{DirectiveTable, DirectiveColumn, DirectiveValidate, DirectiveContextual}
	for i, k := range wantKinds {
		if ds[i].Kind != k {
			t.Errorf("directive %d kind = %s, want %s", i, ds[i].Kind, k)
		}
	}

	if v, ok := ds[0].Positional(); !ok || v != "user" {
		t.Errorf("Table positional = %q, %v", v, ok)
	}
	if v, _ := ds[1].Arg("type"); v != "int" {
		t.Errorf("Column type = %q, want int", v)
	}
	if v, _ := ds[1].Arg("required"); v != "true" {
		t.Errorf("Column required = %q, want true", v)
	}
	if v, _ := ds[2].Arg("regex"); v != "[0-9]+" {
		t.Errorf("Validate regex = %q", v)
	}
	if len(ds[3].Args) != 0 {
		t.Errorf("Contextual args = %v, want none", ds[3].Args)
	}
}

func TestScanDirectivesQuoting(t *testing.T) {
	tests := []struct {
		name string
		meta string
		want string
	}{
		{"double quotes", `@Api\Validate(regex="a,b)c")`, "a,b)c"},
		{"single quotes", `@Api\Validate(regex='x"y')`, `x"y`},
		{"escaped quote", `@Api\Validate(regex="[A-Za-z\'\- ]+")`, `[A-Za-z'\- ]+`},
		{"escaped backslash", `@Api\Validate(regex="a\\d")`, `a\d`},
		{"other backslash kept", `@Api\Validate(regex="\d+")`, `\d+`},
		{"bare value", `@Api\Validate(regex=abc)`, "abc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ds, err := ScanDirectives(tt.meta, "")
			if err != nil {
				t.Fatalf("ScanDirectives failed: %v", err)
			}
			if len(ds) != 1 {
				t.Fatalf("got %d directives, want 1", len(ds))
			}
			if got, _ := ds[0].Arg("regex"); got != tt.want {
				t.Errorf("regex = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestScanDirectivesErrors(t *testing.T) {
	tests := []struct {
		name string
		meta string
	}{
		{"unclosed paren", `@Api\Table("user"`},
		{"unclosed quote", `@Api\Table("user)`},
		{"no paren", `@Api\Contextual`},
		{"trailing comma", `@Api\Column(name="a",)`},
		{"missing separator", `@Api\Column(name="a" type="int")`},
		{"two positionals", `@Api\Table("a", "b")`},
		{"mixed positional", `@Api\Column("a", type="int")`},
		{"nested paren", `@Api\Table((user))`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ScanDirectives(tt.meta, "")
			if err == nil {
				t.Fatal("expected error")
			}
			var spe *SchemaParseError
			if !errors.As(err, &spe) {
				t.Fatalf("error %T is not a SchemaParseError", err)
			}
			if spe.Reason == "" {
				t.Error("Reason is empty")
			}
		})
	}
}

func TestScanDirectivesUnknownAndPrefix(t *testing.T) {
	ds, err := ScanDirectives(`@Api\Deprecated("soon") @Api\ plain text @Api\Table(user)`, "")
	if err != nil {
		t.Fatalf("ScanDirectives failed: %v", err)
	}
	if len(ds) != 2 {
		t.Fatalf("got %d directives, want 2", len(ds))
	}
	if ds[0].Kind != DirectiveUnknown || ds[0].Name != "Deprecated" {
		t.Errorf("first directive = %+v", ds[0])
	}
	if v, _ := ds[1].Positional(); v != "user" {
		t.Errorf("bare positional = %q, want user", v)
	}

	ds, err = ScanDirectives("See @Api\\Deprecated for details.\n@Api\\Table(\"user\")", "")
	if err != nil {
		t.Fatalf("unknown name without arguments: %v", err)
	}
	if len(ds) != 1 || ds[0].Kind != DirectiveTable {
		t.Errorf("prose mention directives = %+v", ds)
	}

	ds, err = ScanDirectives(`#table("t") @Api\Table("ignored")`, "#")
	if err != nil {
		t.Fatalf("ScanDirectives failed: %v", err)
	}
	if len(ds) != 1 || ds[0].Kind != DirectiveTable {
		t.Errorf("custom prefix directives = %+v", ds)
	}
}

func TestSchemaParseErrorMessage(t *testing.T) {
	err := &SchemaParseError{Entity: "user", Field: "mail", Directive: "Column", Offset: 3, Reason: "unbalanced parentheses"}
	want := `schema parse error: entity "user" field "mail" directive Column at offset 3: unbalanced parentheses`
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}
