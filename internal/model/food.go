package model

import "time"

// MealType はフードの食事区分を表す。
type MealType string

const (
	MealTypeBreakfast MealType = "breakfast"
	MealTypeLunch     MealType = "lunch"
	MealTypeDinner    MealType = "dinner"
	MealTypeSnack     MealType = "snack"
)

// Valid は定義済みの食事区分であればtrueを返す。
func (m MealType) Valid() bool {
	switch m {
	case MealTypeBreakfast, MealTypeLunch, MealTypeDinner, MealTypeSnack:
		return true
	}
	return false
}

// Food は交換対象として出品されるフードを表す。
type Food struct {
	ID                  string    `json:"id"`
	Name                string    `json:"name"`
	Calories            int       `json:"calories"`
	Protein             int       `json:"protein"`
	Carbs               int       `json:"carbs"`
	Fat                 int       `json:"fat"`
	MealType            MealType  `json:"mealType"`
	AvailableDate       string    `json:"availableDate"`
	AvailableTime       string    `json:"availableTime"`
	AllergyWarnings     []string  `json:"allergyWarnings"`
	NutrientsImportance string    `json:"nutrientsImportance"`
	CreatedAt           time.Time `json:"createdAt"`
	UpdatedAt           time.Time `json:"updatedAt"`
}

// FoodPatch はフードの部分更新を表す。nilのフィールドは変更しない。
type FoodPatch struct {
	Name                *string   `json:"name"`
	Calories            *int      `json:"calories"`
	Protein             *int      `json:"protein"`
	Carbs               *int      `json:"carbs"`
	Fat                 *int      `json:"fat"`
	MealType            *MealType `json:"mealType"`
	AvailableDate       *string   `json:"availableDate"`
	AvailableTime       *string   `json:"availableTime"`
	AllergyWarnings     []string  `json:"allergyWarnings"`
	NutrientsImportance *string   `json:"nutrientsImportance"`
}

// ApplyTo はパッチの値をfoodに反映する。
func (p *FoodPatch) ApplyTo(food *Food) {
	if p.Name != nil {
		food.Name = *p.Name
	}
	if p.Calories != nil {
		food.Calories = *p.Calories
	}
	if p.Protein != nil {
		food.Protein = *p.Protein
	}
	if p.Carbs != nil {
		food.Carbs = *p.Carbs
	}
	if p.Fat != nil {
		food.Fat = *p.Fat
	}
	if p.MealType != nil {
		food.MealType = *p.MealType
	}
	if p.AvailableDate != nil {
		food.AvailableDate = *p.AvailableDate
	}
	if p.AvailableTime != nil {
		food.AvailableTime = *p.AvailableTime
	}
	if p.AllergyWarnings != nil {
		food.AllergyWarnings = p.AllergyWarnings
	}
	if p.NutrientsImportance != nil {
		food.NutrientsImportance = *p.NutrientsImportance
	}
}
