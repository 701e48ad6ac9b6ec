package features

import (
	"encoding/json"
	"errors"
	"math"
	"net/url"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"riskform/internal/codebook"
)

func sampleInput() RawInput {
	return RawInput{
		"BMI":            Number(27.5),
		"Age":            Number(45),
		"sleep":          Number(7),
		"HEI2020":        Number(60),
		"PIR":            Number(2.0),
		"HDL_C":          Number(1.3),
		"Triglycerides":  Number(1.5),
		"Cholesterol":    Number(5.0),
		"Alcohol":        Label("No"),
		"Hypertension":   Label("No"),
		"PA":             Label("Yes"),
		"Chest_pain":     Label("No"),
		"smoke":          Label("No"),
		"gender":         Label("Female"),
		"Race/Ethnicity": Label("Non-Hispanic White"),
		"Education":      Label("College Graduate or above"),
		"Marital_Status": Label("Married"),
	}
}

func TestBuild_EndToEndRow(t *testing.T) {
	b := NewBuilder(codebook.Default())

	row, err := b.Build(sampleInput())
	require.NoError(t, err)

	want := []float64{2, 27.5, 2, 2, 3, 5, 1, 45, 7, 2, 60, 2.0, 1, 5.0, 2, 1.3, 1.5}
	if diff := cmp.Diff(want, row.Values()); diff != "" {
		t.Errorf("feature row mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, codebook.FeatureOrder, row.Names())
}

func TestBuild_ColumnsFollowFeatureOrder(t *testing.T) {
	cb := codebook.Default()
	row, err := NewBuilder(cb).Build(Defaults(cb))
	require.NoError(t, err)
	require.Equal(t, cb.Len(), row.Len())

	for i, name := range cb.Order() {
		got, _ := row.At(i)
		assert.Equal(t, name, got)
	}
}

func TestBuild_IndependentOfInsertionOrder(t *testing.T) {
	b := NewBuilder(codebook.Default())
	src := sampleInput()

	forward := make(RawInput)
	for _, name := range codebook.FeatureOrder {
		forward[name] = src[name]
	}
	backward := make(RawInput)
	for i := len(codebook.FeatureOrder) - 1; i >= 0; i-- {
		name := codebook.FeatureOrder[i]
		backward[name] = src[name]
	}

	r1, err := b.Build(forward)
	require.NoError(t, err)
	r2, err := b.Build(backward)
	require.NoError(t, err)
	assert.Equal(t, r1.Values(), r2.Values())
}

func TestBuild_MissingEachField(t *testing.T) {
	b := NewBuilder(codebook.Default())

	for _, name := range codebook.FeatureOrder {
		t.Run(name, func(t *testing.T) {
			raw := sampleInput()
			delete(raw, name)

			for attempt := 0; attempt < 2; attempt++ {
				_, err := b.Build(raw)
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrIncompleteInput)

				var verrs ValidationErrors
				require.True(t, errors.As(err, &verrs))
				require.Len(t, verrs, 1)
				assert.Equal(t, name, verrs[0].Field)
			}
		})
	}
}

func TestBuild_InclusiveBounds(t *testing.T) {
	cb := codebook.Default()
	b := NewBuilder(cb)

	for _, spec := range cb.Continuous() {
		t.Run(spec.Name, func(t *testing.T) {
			for _, v := range []float64{spec.Min, spec.Max} {
				raw := sampleInput()
				raw[spec.Name] = Number(v)
				row, err := b.Build(raw)
				require.NoError(t, err)
				got, _ := row.Get(spec.Name)
				assert.Equal(t, v, got)
			}

			for _, v := range []float64{spec.Min - 1, spec.Max + 1, math.NaN(), math.Inf(1)} {
				raw := sampleInput()
				raw[spec.Name] = Number(v)
				_, err := b.Build(raw)
				assert.ErrorIs(t, err, ErrOutOfRange, "value %v", v)
			}
		})
	}
}

func TestBuild_InvalidLabel(t *testing.T) {
	b := NewBuilder(codebook.Default())
	raw := sampleInput()
	raw["Education"] = Label("PhD")

	_, err := b.Build(raw)
	assert.ErrorIs(t, err, codebook.ErrInvalidLabel)
	assert.NotErrorIs(t, err, ErrOutOfRange)
}

func TestBuild_WrongKind(t *testing.T) {
	b := NewBuilder(codebook.Default())

	raw := sampleInput()
	raw["gender"] = Number(2)
	_, err := b.Build(raw)
	assert.ErrorIs(t, err, codebook.ErrWrongKind)

	raw = sampleInput()
	raw["BMI"] = Label("27.5")
	_, err = b.Build(raw)
	assert.ErrorIs(t, err, codebook.ErrWrongKind)
}

func TestBuild_UnknownField(t *testing.T) {
	b := NewBuilder(codebook.Default())
	raw := sampleInput()
	raw["Income"] = Number(3)

	_, err := b.Build(raw)
	assert.ErrorIs(t, err, codebook.ErrUnknownField)
}

func TestBuild_CollectsAllErrorsInOrder(t *testing.T) {
	b := NewBuilder(codebook.Default())
	raw := sampleInput()
	delete(raw, "Triglycerides")
	raw["Alcohol"] = Label("Sometimes")
	raw["Age"] = Number(140)

	_, err := b.Build(raw)
	var verrs ValidationErrors
	require.True(t, errors.As(err, &verrs))
	require.Len(t, verrs, 3)
	assert.Equal(t, "Alcohol", verrs[0].Field)
	assert.Equal(t, "Age", verrs[1].Field)
	assert.Equal(t, "Triglycerides", verrs[2].Field)

	byField := verrs.ByField()
	assert.Contains(t, byField["Age"], "out of range")
	assert.Contains(t, byField["Triglycerides"], "missing")
}

func TestParseForm(t *testing.T) {
	cb := codebook.Default()
	form := url.Values{}
	for name, v := range sampleInput() {
		form.Set(name, v.String())
	}

	raw, err := ParseForm(cb, form)
	require.NoError(t, err)

	row, err := NewBuilder(cb).Build(raw)
	require.NoError(t, err)
	bmi, _ := row.Get("BMI")
	assert.Equal(t, 27.5, bmi)

	form.Set("BMI", "heavy")
	form.Del("Age")
	raw, err = ParseForm(cb, form)
	assert.ErrorIs(t, err, ErrInvalidNumber)
	_, present := raw["Age"]
	assert.False(t, present)
}

func TestValue_JSON(t *testing.T) {
	var raw RawInput
	require.NoError(t, json.Unmarshal([]byte(`{"BMI": 27.5, "gender": "Female"}`), &raw))

	assert.False(t, raw["BMI"].IsLabel())
	assert.Equal(t, 27.5, raw["BMI"].Float())
	assert.True(t, raw["gender"].IsLabel())
	assert.Equal(t, "Female", raw["gender"].Text())

	var bad RawInput
	assert.Error(t, json.Unmarshal([]byte(`{"BMI": true}`), &bad))
	assert.Error(t, json.Unmarshal([]byte(`{"BMI": null}`), &bad), "null is not silently zero")
}

func TestDescribe_RestoresLabels(t *testing.T) {
	cb := codebook.Default()
	row, err := NewBuilder(cb).Build(sampleInput())
	require.NoError(t, err)

	desc := Describe(cb, row)
	assert.Equal(t, "Non-Hispanic White", desc["Race/Ethnicity"].Text())
	assert.Equal(t, 45.0, desc["Age"].Float())
}

func TestFeatureRow_Immutable(t *testing.T) {
	row, err := NewBuilder(codebook.Default()).Build(sampleInput())
	require.NoError(t, err)

	vals := row.Values()
	vals[0] = 99
	names := row.Names()
	names[0] = "x"

	name, v := row.At(0)
	assert.Equal(t, "Alcohol", name)
	assert.Equal(t, 2.0, v)
}

func TestFeatureRow_JSONRoundTripKeepsOrder(t *testing.T) {
	row, err := NewBuilder(codebook.Default()).Build(sampleInput())
	require.NoError(t, err)

	data, err := json.Marshal(row)
	require.NoError(t, err)

	var back FeatureRow
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, row.Names(), back.Names())
	assert.Equal(t, row.Values(), back.Values())
}
