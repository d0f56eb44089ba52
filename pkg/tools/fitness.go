package tools

import (
	"context"
	"math"

	"github.com/harun/fitcoach/pkg/agent"
)

const bmiSchema = `{
  "type": "object",
  "additionalProperties": false,
  "properties": {
    "height_cm": {"type": "number", "minimum": 50, "maximum": 300, "description": "Height in centimetres"},
    "weight_kg": {"type": "number", "minimum": 1, "maximum": 700, "description": "Weight in kilograms"}
  },
  "required": ["height_cm", "weight_kg"]
}`

const caloriesSchema = `{
  "type": "object",
  "additionalProperties": false,
  "properties": {
    "sex": {"type": "string", "enum": ["male", "female"]},
    "age": {"type": "number", "minimum": 10, "maximum": 120},
    "height_cm": {"type": "number", "minimum": 50, "maximum": 300},
    "weight_kg": {"type": "number", "minimum": 1, "maximum": 700},
    "activity": {"type": "string", "enum": ["sedentary", "light", "moderate", "active", "very_active"]},
    "goal": {"type": "string", "enum": ["lose", "maintain", "gain"]}
  },
  "required": ["sex", "age", "height_cm", "weight_kg"]
}`

var activityFactors = map[string]float64{
	"sedentary":   1.2,
	"light":       1.375,
	"moderate":    1.55,
	"active":      1.725,
	"very_active": 1.9,
}

var goalAdjustments = map[string]float64{
	"lose":     -500,
	"maintain": 0,
	"gain":     300,
}

// BMIResult is the output of calculate_bmi.
type BMIResult struct {
	BMI      float64 `json:"bmi"`
	Category string  `json:"category"`
}

// CalorieResult is the output of estimate_daily_calories.
type CalorieResult struct {
	BMR    float64 `json:"bmr"`
	TDEE   float64 `json:"tdee"`
	Target float64 `json:"target"`
}

// BMI computes body-mass index rounded to one decimal.
func BMI(heightCm, weightKg float64) BMIResult {
	m := heightCm / 100
	bmi := round1(weightKg / (m * m))

	category := "obese"
	switch {
	case bmi < 18.5:
		category = "underweight"
	case bmi < 25:
		category = "normal"
	case bmi < 30:
		category = "overweight"
	}
	return BMIResult{BMI: bmi, Category: category}
}

// DailyCalories estimates energy needs with the Mifflin-St Jeor equation.
func DailyCalories(sex string, age, heightCm, weightKg float64, activity, goal string) CalorieResult {
	bmr := 10*weightKg + 6.25*heightCm - 5*age
	if sex == "female" {
		bmr -= 161
	} else {
		bmr += 5
	}

	factor, ok := activityFactors[activity]
	if !ok {
		factor = activityFactors["sedentary"]
	}
	tdee := bmr * factor

	return CalorieResult{
		BMR:    math.Round(bmr),
		TDEE:   math.Round(tdee),
		Target: math.Round(tdee + goalAdjustments[goal]),
	}
}

// CalculateBMI returns the calculate_bmi tool.
func CalculateBMI() agent.Tool {
	return mustSchemaTool("calculate_bmi",
		"Calculate body-mass index and its category from height (cm) and weight (kg).",
		bmiSchema,
		func(ctx context.Context, args map[string]interface{}) (string, error) {
			h, err := number(args, "height_cm")
			if err != nil {
				return "", err
			}
			w, err := number(args, "weight_kg")
			if err != nil {
				return "", err
			}
			return encode(BMI(h, w))
		})
}

// EstimateDailyCalories returns the estimate_daily_calories tool.
func EstimateDailyCalories() agent.Tool {
	return mustSchemaTool("estimate_daily_calories",
		"Estimate basal and daily calorie needs, and a target for the user's goal.",
		caloriesSchema,
		func(ctx context.Context, args map[string]interface{}) (string, error) {
			vals := make(map[string]float64, 3)
			for _, k := range []string{"age", "height_cm", "weight_kg"} {
				v, err := number(args, k)
				if err != nil {
					return "", err
				}
				vals[k] = v
			}
			return encode(DailyCalories(
				str(args, "sex", "male"),
				vals["age"], vals["height_cm"], vals["weight_kg"],
				str(args, "activity", "sedentary"),
				str(args, "goal", "maintain"),
			))
		})
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
