package codebook

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_MatchesFeatureOrder(t *testing.T) {
	cb := Default()

	assert.Equal(t, 17, cb.Len())
	assert.Equal(t, FeatureOrder, cb.Order())
	assert.Len(t, cb.Continuous(), 8)
	assert.Len(t, cb.Categorical(), 9)

	names := make(map[string]bool)
	for _, f := range cb.Fields() {
		names[f.Name] = true
	}
	for _, name := range FeatureOrder {
		assert.True(t, names[name], "missing field %s", name)
	}
}

func TestDefault_ContinuousDefaultsAreMidpoints(t *testing.T) {
	for _, f := range Default().Continuous() {
		assert.Equal(t, f.Kind, Continuous)
		assert.InDelta(t, (f.Min+f.Max)/2, f.Default, 1e-9, f.Name)
	}
}

func TestOrder_ReturnsCopy(t *testing.T) {
	cb := Default()
	order := cb.Order()
	order[0] = "mutated"
	assert.Equal(t, "Alcohol", cb.Order()[0])
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	cb := Default()
	for _, f := range cb.Categorical() {
		for _, c := range f.Categories {
			code, err := cb.Encode(f.Name, c.Label)
			require.NoError(t, err)
			assert.Equal(t, c.Code, code)

			label, err := cb.Decode(f.Name, code)
			require.NoError(t, err)
			assert.Equal(t, c.Label, label)
		}
	}
}

func TestEncode_Errors(t *testing.T) {
	cb := Default()

	tests := []struct {
		name  string
		field string
		label string
		want  error
	}{
		{"unknown label", "gender", "Other", ErrInvalidLabel},
		{"case differs", "Alcohol", "yes", ErrInvalidLabel},
		{"empty label", "smoke", "", ErrInvalidLabel},
		{"unknown field", "Income", "High", ErrUnknownField},
		{"continuous field", "BMI", "27", ErrWrongKind},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, err := cb.Encode(tt.field, tt.label)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.Zero(t, code)

			var fe *FieldError
			require.True(t, errors.As(err, &fe))
			assert.Equal(t, tt.field, fe.Field)
		})
	}
}

func TestDecode_UnknownCode(t *testing.T) {
	_, err := Default().Decode("Education", 9)
	assert.ErrorIs(t, err, ErrInvalidCode)
}

func TestNew_ConfigMismatch(t *testing.T) {
	cont := []FieldSpec{{Name: "a", Min: 0, Max: 1}}
	cat := []FieldSpec{{Name: "b", Categories: []Category{{Code: 1, Label: "x"}, {Code: 2, Label: "y"}}}}

	tests := []struct {
		name  string
		cont  []FieldSpec
		cat   []FieldSpec
		order []string
	}{
		{"order missing a field", cont, cat, []string{"a"}},
		{"order has extra field", cont, cat, []string{"a", "b", "c"}},
		{"order has duplicate", cont, cat, []string{"a", "b", "a"}},
		{"empty order", cont, cat, nil},
		{"name in both groups", cont, []FieldSpec{{Name: "a", Categories: []Category{{Code: 1, Label: "x"}}}}, []string{"a"}},
		{"inverted range", []FieldSpec{{Name: "a", Min: 2, Max: 1}}, cat, []string{"a", "b"}},
		{"default outside range", []FieldSpec{{Name: "a", Min: 0, Max: 1, Default: 5, HasDefault: true}}, cat, []string{"a", "b"}},
		{"duplicate label", cont, []FieldSpec{{Name: "b", Categories: []Category{{Code: 1, Label: "x"}, {Code: 2, Label: "x"}}}}, []string{"a", "b"}},
		{"duplicate code", cont, []FieldSpec{{Name: "b", Categories: []Category{{Code: 1, Label: "x"}, {Code: 1, Label: "y"}}}}, []string{"a", "b"}},
		{"zero code", cont, []FieldSpec{{Name: "b", Categories: []Category{{Code: 0, Label: "x"}}}}, []string{"a", "b"}},
		{"no categories", cont, []FieldSpec{{Name: "b"}}, []string{"a", "b"}},
		{"empty label", cont, []FieldSpec{{Name: "b", Categories: []Category{{Code: 1}}}}, []string{"a", "b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cb, err := New(tt.cont, tt.cat, tt.order)
			assert.Nil(t, cb)
			assert.ErrorIs(t, err, ErrConfigMismatch)
		})
	}
}

func TestNew_DoesNotAliasInput(t *testing.T) {
	cats := []Category{{Code: 1, Label: "x"}, {Code: 2, Label: "y"}}
	cb, err := New(nil, []FieldSpec{{Name: "b", Categories: cats}}, []string{"b"})
	require.NoError(t, err)

	cats[0].Label = "changed"
	label, err := cb.Decode("b", 1)
	require.NoError(t, err)
	assert.Equal(t, "x", label)
}

func TestCheckColumns(t *testing.T) {
	cb := Default()
	assert.NoError(t, cb.CheckColumns(FeatureOrder))

	swapped := append([]string(nil), FeatureOrder...)
	swapped[0], swapped[1] = swapped[1], swapped[0]
	assert.ErrorIs(t, cb.CheckColumns(swapped), ErrConfigMismatch)
	assert.ErrorIs(t, cb.CheckColumns(FeatureOrder[:16]), ErrConfigMismatch)
}

const testCodebookYAML = `
featureOrder: [smoke, BMI]
continuous:
  - name: BMI
    min: 15
    max: 50
    unit: kg/m²
categorical:
  - name: smoke
    codes:
      - {code: 1, label: "Yes"}
      - {code: 2, label: "No"}
`

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "codebook.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testCodebookYAML), 0o600))

	cb, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"smoke", "BMI"}, cb.Order())

	bmi, ok := cb.Field("BMI")
	require.True(t, ok)
	assert.Equal(t, 32.5, bmi.Default)
	assert.Equal(t, "kg/m²", bmi.Unit)

	code, err := cb.Encode("smoke", "No")
	require.NoError(t, err)
	assert.Equal(t, 2, code)
}

func TestParse_Mismatch(t *testing.T) {
	doc := `
featureOrder: [smoke, BMI, Age]
continuous:
  - {name: BMI, min: 15, max: 50}
categorical:
  - name: smoke
    codes: [{code: 1, label: "Yes"}]
`
	_, err := Parse([]byte(doc))
	assert.ErrorIs(t, err, ErrConfigMismatch)
}

func TestLoadFile_Missing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestParse_ExplicitZeroDefault(t *testing.T) {
	doc := `
featureOrder: [Age, Triglycerides, smoke]
continuous:
  - {name: Age, min: 0, max: 100, default: 0}
  - {name: Triglycerides, min: 0, max: 5}
categorical:
  - name: smoke
    codes: [{code: 1, label: "Yes"}]
`
	cb, err := Parse([]byte(doc))
	require.NoError(t, err)

	age, _ := cb.Field("Age")
	assert.Equal(t, 0.0, age.Default, "configured zero is kept")
	assert.True(t, age.HasDefault)

	tg, _ := cb.Field("Triglycerides")
	assert.Equal(t, 2.5, tg.Default, "unset default is the midpoint")
}

func TestNew_ExplicitZeroDefault(t *testing.T) {
	cb, err := New([]FieldSpec{{Name: "a", Min: 0, Max: 10, HasDefault: true}}, nil, []string{"a"})
	require.NoError(t, err)
	a, _ := cb.Field("a")
	assert.Equal(t, 0.0, a.Default)
}
