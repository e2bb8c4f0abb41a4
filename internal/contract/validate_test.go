package contract

import (
	"encoding/json"
	"errors"
	"math"
	"reflect"
	"testing"

	"github.com/tjfontaine/actiongate/internal/core/domain"
	"github.com/tjfontaine/actiongate/internal/core/ports"
)

func reasonOf(t *testing.T, err error) *domain.ValidationError {
	t.Helper()
	var ve *domain.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("error = %v, want *domain.ValidationError", err)
	}
	return ve
}

func TestValidate_IntBoundaries(t *testing.T) {
	c := MustParse("int; min: 5; max: 128")

	tests := []struct {
		name       string
		value      any
		strict     bool
		want       any
		wantReason string
	}{
		{"below min", 4, false, nil, domain.ReasonMin},
		{"at min", 5, false, 5, ""},
		{"at max", 128, false, 128, ""},
		{"above max", 129, false, nil, domain.ReasonMax},
		{"string coerced", "5", false, 5, ""},
		{"string rejected in strict", "5", true, nil, domain.ReasonType},
		{"json number", float64(42), true, 42, ""},
		{"fraction", 5.5, false, nil, domain.ReasonType},
		{"garbage", "five", false, nil, domain.ReasonType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Validate(tt.value, c, tt.strict)
			if tt.wantReason != "" {
				if ve := reasonOf(t, err); ve.Reason != tt.wantReason {
					t.Errorf("Reason = %q, want %q", ve.Reason, tt.wantReason)
				}
				return
			}
			if err != nil {
				t.Fatalf("Validate() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Validate() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestValidate_Leaves(t *testing.T) {
	tests := []struct {
		name       string
		expr       string
		value      any
		want       any
		wantReason string
	}{
		{"float coerced", "float; max: 1.5", "1.25", 1.25, ""},
		{"float over max", "float; max: 1.5", 2.0, nil, domain.ReasonMax},
		{"string from number", "string", 12, "12", ""},
		{"string rune length", "string; maxLen: 3", "héé", "héé", ""},
		{"string too long", "string; maxLen: 3", "abcd", nil, domain.ReasonMaxLen},
		{"string too short", "string; minLen: 2", "a", nil, domain.ReasonMinLen},
		{"bool on", "bool", "on", true, ""},
		{"bool zero", "bool", "0", false, ""},
		{"bool garbage", "bool", "maybe", nil, domain.ReasonType},
		{"email", "email", " a@example.com ", "a@example.com", ""},
		{"email with name", "email", "Bob <a@example.com>", nil, domain.ReasonFormat},
		{"email bad", "email", "not-an-email", nil, domain.ReasonFormat},
		{"enum hit", "enum; values: member, admin", "admin", "admin", ""},
		{"enum miss", "enum; values: member, admin", "root", nil, domain.ReasonValues},
		{"color", "color", "#A0b", "#A0b", ""},
		{"color without hash", "color", "a0b1c2", "#a0b1c2", ""},
		{"color bad", "color", "#12", nil, domain.ReasonFormat},
		{"array count", "array; max: 2", []any{1, 2, 3}, nil, domain.ReasonMax},
		{"array ok", "array; min: 1", []string{"a"}, []any{"a"}, ""},
		{"array wrong type", "array", "a,b", nil, domain.ReasonType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Validate(tt.value, MustParse(tt.expr), false)
			if tt.wantReason != "" {
				if ve := reasonOf(t, err); ve.Reason != tt.wantReason {
					t.Errorf("Reason = %q, want %q", ve.Reason, tt.wantReason)
				}
				return
			}
			if err != nil {
				t.Fatalf("Validate() error = %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Validate() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestValidate_StrictRejectsCoercion(t *testing.T) {
	for _, expr := range []string{"float", "string", "bool", "enum; values: 1, 2"} {
		t.Run(expr, func(t *testing.T) {
			var value any = "1"
			if expr == "string" || expr == "enum; values: 1, 2" {
				value = 1
			}
			_, err := Validate(value, MustParse(expr), true)
			if ve := reasonOf(t, err); ve.Reason != domain.ReasonType {
				t.Errorf("Reason = %q, want type", ve.Reason)
			}
		})
	}
}

func TestValidate_Binary(t *testing.T) {
	png := ports.UploadedFile{Field: "avatar", Name: "a.png", MIME: "image/png", Size: 2048}

	tests := []struct {
		name       string
		expr       string
		value      any
		wantReason string
	}{
		{"prefix slash", "binary; mime: image/", png, ""},
		{"prefix star", "binary; mime: image/*", &png, ""},
		{"exact", "binary; mime: image/png", png, ""},
		{"exact mismatch", "binary; mime: image/jpeg", png, domain.ReasonMime},
		{"list", "binary; mime: application/pdf, image/png", png, ""},
		{"size limit", "binary; max: 1024", png, domain.ReasonMax},
		{"not a file", "binary", "a.png", domain.ReasonType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Validate(tt.value, MustParse(tt.expr), false)
			if tt.wantReason == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v", err)
				}
				return
			}
			if ve := reasonOf(t, err); ve.Reason != tt.wantReason {
				t.Errorf("Reason = %q, want %q", ve.Reason, tt.wantReason)
			}
		})
	}
}

func TestValidateMap(t *testing.T) {
	c, err := FromFields(map[string]string{
		"id":    "int; min: 1",
		"note?": "string",
		"page":  "int; default: 1",
	})
	if err != nil {
		t.Fatal(err)
	}

	t.Run("coerces and keeps unknown keys", func(t *testing.T) {
		in := map[string]any{"id": "7", "extra": "x"}
		out, err := ValidateMap(in, c, false)
		if err != nil {
			t.Fatalf("ValidateMap() error = %v", err)
		}
		want := map[string]any{"id": 7, "extra": "x", "page": 1}
		if !reflect.DeepEqual(out, want) {
			t.Errorf("ValidateMap() = %#v, want %#v", out, want)
		}
		if in["id"] != "7" {
			t.Errorf("input mutated: %#v", in)
		}
		if _, ok := in["page"]; ok {
			t.Error("default leaked into input")
		}
	})

	t.Run("min failure", func(t *testing.T) {
		_, err := ValidateMap(map[string]any{"id": "0"}, c, false)
		ve := reasonOf(t, err)
		if ve.Field != "id" || ve.Reason != domain.ReasonMin {
			t.Errorf("got field=%q reason=%q, want id/min", ve.Field, ve.Reason)
		}
	})

	t.Run("missing required", func(t *testing.T) {
		_, err := ValidateMap(map[string]any{}, c, false)
		if !domain.IsMissingField(err) {
			t.Fatalf("error = %v, want missing", err)
		}
		if ve := reasonOf(t, err); ve.Field != "id" {
			t.Errorf("Field = %q, want id", ve.Field)
		}
	})

	t.Run("requires assoc", func(t *testing.T) {
		if _, err := ValidateMap(map[string]any{}, MustParse("int"), false); err == nil {
			t.Error("expected error for non-assoc contract")
		}
	})
}

func TestValidate_NestedFieldPaths(t *testing.T) {
	c := MustParse(`{"type":"assoc","keys":{"user":{"type":"assoc","keys":{"email":"email"}},"items":{"type":"array","keys":{"id":"int; min: 1"}}}}`)

	_, err := Validate(map[string]any{
		"user":  map[string]any{"email": "a@example.com"},
		"items": []any{map[string]any{"id": 1}, map[string]any{"id": 2}, map[string]any{"id": 0}},
	}, c, false)
	if ve := reasonOf(t, err); ve.Field != "items[2].id" || ve.Reason != domain.ReasonMin {
		t.Errorf("got field=%q reason=%q, want items[2].id/min", ve.Field, ve.Reason)
	}

	_, err = Validate(map[string]any{
		"user":  map[string]any{"email": "bad"},
		"items": []any{},
	}, c, false)
	if ve := reasonOf(t, err); ve.Field != "user.email" || ve.Reason != domain.ReasonFormat {
		t.Errorf("got field=%q reason=%q, want user.email/format", ve.Field, ve.Reason)
	}
}

func TestValidate_Idempotent(t *testing.T) {
	c, _ := FromFields(map[string]string{"id": "int", "ok": "bool", "hue": "color", "at": "float"})
	in := map[string]any{"id": "3", "ok": "yes", "hue": "fff", "at": "0.5"}

	once, err := ValidateMap(in, c, false)
	if err != nil {
		t.Fatal(err)
	}
	twice, err := ValidateMap(once, c, false)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(once, twice) {
		t.Errorf("not idempotent: %#v vs %#v", once, twice)
	}
	strict, err := ValidateMap(once, c, true)
	if err != nil {
		t.Fatalf("coerced output should pass strict mode: %v", err)
	}
	if !reflect.DeepEqual(once, strict) {
		t.Errorf("strict pass changed values: %#v", strict)
	}
}

func TestValidate_RejectsUnrepresentableNumbers(t *testing.T) {
	intMax := MustParse("int; max: 128")
	floatRange := MustParse("float; min: 0; max: 10")

	tests := []struct {
		name  string
		value any
		c     *Contract
	}{
		{"float beyond int64", float64(1e20), intMax},
		{"float below int64", float64(-1e20), intMax},
		{"float at 2^63", float64(1 << 63), intMax},
		{"uint64 at 2^63", uint64(1 << 63), intMax},
		{"uint above MaxInt", uint(math.MaxInt) + 1, intMax},
		{"json number beyond int64", json.Number("100000000000000000000"), intMax},
		{"nan", math.NaN(), floatRange},
		{"positive infinity", math.Inf(1), floatRange},
		{"negative infinity", math.Inf(-1), floatRange},
		{"json number infinity", json.Number("1e400"), floatRange},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Validate(tt.value, tt.c, true)
			if err == nil {
				t.Fatalf("Validate(%v) = %v, want error", tt.value, got)
			}
			if ve := reasonOf(t, err); ve.Reason != domain.ReasonType {
				t.Errorf("Reason = %q, want %q", ve.Reason, domain.ReasonType)
			}
		})
	}

	t.Run("non strict strings", func(t *testing.T) {
		for _, in := range []string{"NaN", "Inf", "-Inf", "99999999999999999999"} {
			c := floatRange
			if in == "99999999999999999999" {
				c = intMax
			}
			if got, err := Validate(in, c, false); err == nil {
				t.Errorf("Validate(%q) = %v, want error", in, got)
			}
		}
	})

	t.Run("large values still in range", func(t *testing.T) {
		c := MustParse("int")
		got, err := Validate(float64(1<<53), c, true)
		if err != nil || got != 1<<53 {
			t.Errorf("Validate(2^53) = %v, %v", got, err)
		}
		got, err = Validate(uint64(math.MaxInt), c, true)
		if err != nil || got != math.MaxInt {
			t.Errorf("Validate(uint64 MaxInt) = %v, %v", got, err)
		}
	})
}
