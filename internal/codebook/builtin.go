package codebook

// FeatureOrder is the column order the CatBoost model was trained with.
var FeatureOrder = []string{
	"Alcohol", "BMI", "Hypertension", "gender", "Race/Ethnicity", "Education",
	"Marital_Status", "Age", "sleep", "smoke", "HEI2020", "PIR", "PA",
	"Cholesterol", "Chest_pain", "HDL_C", "Triglycerides",
}

// Lipid bounds are in mmol/L.
var continuousFields = []FieldSpec{
	{Name: "BMI", Min: 15, Max: 50, Step: 0.1, Unit: "kg/m²", Description: "Body mass index"},
	{Name: "Age", Min: 0, Max: 100, Step: 1, Unit: "years"},
	{Name: "sleep", Min: 0, Max: 20, Step: 0.5, Unit: "hours", Description: "Sleep duration per night"},
	{Name: "HEI2020", Min: 0, Max: 100, Step: 1, Description: "Healthy Eating Index 2020 score"},
	{Name: "PIR", Min: 0, Max: 5, Step: 0.01, Description: "Family income to poverty ratio"},
	{Name: "HDL_C", Min: 0.2, Max: 4.2, Step: 0.01, Unit: "mmol/L", Description: "HDL cholesterol"},
	{Name: "Triglycerides", Min: 0, Max: 5, Step: 0.01, Unit: "mmol/L"},
	{Name: "Cholesterol", Min: 0.2, Max: 16, Step: 0.01, Unit: "mmol/L", Description: "Total cholesterol"},
}

var yesNo = []Category{{Code: 1, Label: "Yes"}, {Code: 2, Label: "No"}}

var categoricalFields = []FieldSpec{
	{Name: "Alcohol", Categories: yesNo},
	{Name: "Hypertension", Categories: yesNo},
	{Name: "PA", Categories: yesNo, Description: "Physical activity"},
	{Name: "Chest_pain", Categories: yesNo},
	{Name: "smoke", Categories: yesNo},
	{Name: "gender", Categories: []Category{{Code: 1, Label: "Male"}, {Code: 2, Label: "Female"}}},
	{Name: "Race/Ethnicity", Categories: []Category{
		{Code: 1, Label: "Mexican American"},
		{Code: 2, Label: "Other Hispanic"},
		{Code: 3, Label: "Non-Hispanic White"},
		{Code: 4, Label: "Non-Hispanic Black"},
		{Code: 5, Label: "Other Race - Including Multi-Racial"},
	}},
	{Name: "Education", Categories: []Category{
		{Code: 1, Label: "Less Than 9th Grade"},
		{Code: 2, Label: "9-11th Grade (Includes 12th grade with no diploma)"},
		{Code: 3, Label: "High School Grad/GED or Equivalent"},
		{Code: 4, Label: "Some College or AA degree"},
		{Code: 5, Label: "College Graduate or above"},
	}},
	{Name: "Marital_Status", Categories: []Category{
		{Code: 1, Label: "Married"},
		{Code: 2, Label: "Widowed"},
		{Code: 3, Label: "Divorced"},
		{Code: 4, Label: "Separated"},
		{Code: 5, Label: "Never married"},
		{Code: 6, Label: "Living with partner"},
	}},
}

// Default builds the codebook of the bundled model. It panics if the built-in
// tables are inconsistent, which the package tests rule out.
func Default() *Codebook {
	cb, err := New(continuousFields, categoricalFields, FeatureOrder)
	if err != nil {
		panic(err)
	}
	return cb
}
