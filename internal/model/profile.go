package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Profile field names as they appear in the stored JSON document and in LLM output.
const (
	FieldAge              = "age"
	FieldAgeRange         = "age_range"
	FieldOccupation       = "occupation"
	FieldIncomePersonal   = "income_personal"
	FieldIncomeHousehold  = "income_household"
	FieldIncomeParents    = "income_parents"
	FieldCurrentRegion    = "current_region"
	FieldDesiredRegion    = "desired_region"
	FieldTransactionType  = "transaction_type"
	FieldFamilyType       = "family_type"
	FieldSpecialSituation = "special_situation"
	FieldBudgetDeposit    = "budget_deposit"
	FieldBudgetMonthly    = "budget_monthly"
)

// KeyProfileFields drive the derived confidence score and the missing-field list.
var KeyProfileFields = []string{
	FieldAge,
	FieldOccupation,
	FieldIncomeHousehold,
	FieldDesiredRegion,
	FieldTransactionType,
	FieldFamilyType,
	FieldBudgetDeposit,
	FieldBudgetMonthly,
}

// UserProfile is the accumulated, semi-structured knowledge about a user.
// Monetary fields are in KRW (원).
type UserProfile struct {
	Age              *int    `json:"age,omitempty"`
	AgeRange         *string `json:"age_range,omitempty"`
	Occupation       *string `json:"occupation,omitempty"`
	IncomePersonal   *int64  `json:"income_personal,omitempty"`
	IncomeHousehold  *int64  `json:"income_household,omitempty"`
	IncomeParents    *int64  `json:"income_parents,omitempty"`
	CurrentRegion    *string `json:"current_region,omitempty"`
	DesiredRegion    *string `json:"desired_region,omitempty"`
	TransactionType  *string `json:"transaction_type,omitempty"`
	FamilyType       *string `json:"family_type,omitempty"`
	SpecialSituation *string `json:"special_situation,omitempty"`
	BudgetDeposit    *int64  `json:"budget_deposit,omitempty"`
	BudgetMonthly    *int64  `json:"budget_monthly,omitempty"`

	// Loaded from the favorites relation; never written back with the profile.
	PropertyInterests []PropertyInterest `json:"property_interests,omitempty"`
}

// PropertyInterest is a listing the user marked as favorite.
type PropertyInterest struct {
	TransactionType string  `json:"transaction_type" db:"transaction_type"`
	Deposit         int64   `json:"deposit" db:"deposit"`
	MonthlyRent     int64   `json:"monthly_rent" db:"monthly_rent"`
	Area            float64 `json:"area" db:"area"`
	Address         string  `json:"address" db:"address"`
}

// Value implements driver.Valuer; property interests are stripped.
func (p UserProfile) Value() (driver.Value, error) {
	p.PropertyInterests = nil
	return json.Marshal(p)
}

// Scan implements sql.Scanner interface
func (p *UserProfile) Scan(value interface{}) error {
	if value == nil {
		*p = UserProfile{}
		return nil
	}
	return json.Unmarshal(jsonBytes(value), p)
}

// Merge returns a copy of p where every non-nil field of update overwrites p.
// Nil fields in update leave p unchanged.
func (p UserProfile) Merge(update UserProfile) UserProfile {
	merged := p
	if update.Age != nil {
		merged.Age = update.Age
	}
	if update.AgeRange != nil {
		merged.AgeRange = update.AgeRange
	}
	if update.Occupation != nil {
		merged.Occupation = update.Occupation
	}
	if update.IncomePersonal != nil {
		merged.IncomePersonal = update.IncomePersonal
	}
	if update.IncomeHousehold != nil {
		merged.IncomeHousehold = update.IncomeHousehold
	}
	if update.IncomeParents != nil {
		merged.IncomeParents = update.IncomeParents
	}
	if update.CurrentRegion != nil {
		merged.CurrentRegion = update.CurrentRegion
	}
	if update.DesiredRegion != nil {
		merged.DesiredRegion = update.DesiredRegion
	}
	if update.TransactionType != nil {
		merged.TransactionType = update.TransactionType
	}
	if update.FamilyType != nil {
		merged.FamilyType = update.FamilyType
	}
	if update.SpecialSituation != nil {
		merged.SpecialSituation = update.SpecialSituation
	}
	if update.BudgetDeposit != nil {
		merged.BudgetDeposit = update.BudgetDeposit
	}
	if update.BudgetMonthly != nil {
		merged.BudgetMonthly = update.BudgetMonthly
	}
	return merged
}

// Has reports whether the named field is set.
func (p UserProfile) Has(field string) bool {
	switch field {
	case FieldAge:
		return p.Age != nil
	case FieldAgeRange:
		return p.AgeRange != nil
	case FieldOccupation:
		return p.Occupation != nil
	case FieldIncomePersonal:
		return p.IncomePersonal != nil
	case FieldIncomeHousehold:
		return p.IncomeHousehold != nil
	case FieldIncomeParents:
		return p.IncomeParents != nil
	case FieldCurrentRegion:
		return p.CurrentRegion != nil
	case FieldDesiredRegion:
		return p.DesiredRegion != nil
	case FieldTransactionType:
		return p.TransactionType != nil
	case FieldFamilyType:
		return p.FamilyType != nil
	case FieldSpecialSituation:
		return p.SpecialSituation != nil
	case FieldBudgetDeposit:
		return p.BudgetDeposit != nil
	case FieldBudgetMonthly:
		return p.BudgetMonthly != nil
	}
	return false
}

// MissingFields lists the key fields that are not yet known.
func (p UserProfile) MissingFields() []string {
	missing := []string{}
	for _, f := range KeyProfileFields {
		if !p.Has(f) {
			missing = append(missing, f)
		}
	}
	return missing
}

// Completeness is the share of key fields that are known, in [0,1].
func (p UserProfile) Completeness() float64 {
	known := len(KeyProfileFields) - len(p.MissingFields())
	return math.Round(float64(known)/float64(len(KeyProfileFields))*100) / 100
}

// Income returns the best available income figure: household, then personal, then parents.
func (p UserProfile) Income() (int64, bool) {
	switch {
	case p.IncomeHousehold != nil:
		return *p.IncomeHousehold, true
	case p.IncomePersonal != nil:
		return *p.IncomePersonal, true
	case p.IncomeParents != nil:
		return *p.IncomeParents, true
	}
	return 0, false
}

// IsEmpty reports whether no profile field is set.
func (p UserProfile) IsEmpty() bool {
	for _, f := range allFields {
		if p.Has(f) {
			return false
		}
	}
	return true
}

var allFields = []string{
	FieldAge, FieldAgeRange, FieldOccupation, FieldIncomePersonal, FieldIncomeHousehold,
	FieldIncomeParents, FieldCurrentRegion, FieldDesiredRegion, FieldTransactionType,
	FieldFamilyType, FieldSpecialSituation, FieldBudgetDeposit, FieldBudgetMonthly,
}

// ProfileFromMap converts loosely typed extraction output into a profile update.
// Numbers may arrive as JSON numbers or numeric strings ("40,000,000"); nulls
// and unparseable values are skipped.
func ProfileFromMap(fields map[string]interface{}) UserProfile {
	var p UserProfile
	for key, raw := range fields {
		if raw == nil {
			continue
		}
		switch key {
		case FieldAge:
			if n, ok := toInt64(raw); ok {
				age := int(n)
				p.Age = &age
			}
		case FieldIncomePersonal:
			p.IncomePersonal = int64Ptr(raw)
		case FieldIncomeHousehold:
			p.IncomeHousehold = int64Ptr(raw)
		case FieldIncomeParents:
			p.IncomeParents = int64Ptr(raw)
		case FieldBudgetDeposit:
			p.BudgetDeposit = int64Ptr(raw)
		case FieldBudgetMonthly:
			p.BudgetMonthly = int64Ptr(raw)
		case FieldAgeRange:
			p.AgeRange = stringPtr(raw)
		case FieldOccupation:
			p.Occupation = stringPtr(raw)
		case FieldCurrentRegion:
			p.CurrentRegion = stringPtr(raw)
		case FieldDesiredRegion:
			p.DesiredRegion = stringPtr(raw)
		case FieldTransactionType:
			p.TransactionType = stringPtr(raw)
		case FieldFamilyType:
			p.FamilyType = stringPtr(raw)
		case FieldSpecialSituation:
			p.SpecialSituation = stringPtr(raw)
		}
	}
	return p
}

func int64Ptr(raw interface{}) *int64 {
	n, ok := toInt64(raw)
	if !ok {
		return nil
	}
	return &n
}

func stringPtr(raw interface{}) *string {
	s := strings.TrimSpace(fmt.Sprint(raw))
	if s == "" || strings.EqualFold(s, "null") {
		return nil
	}
	return &s
}

func toInt64(raw interface{}) (int64, bool) {
	switch v := raw.(type) {
	case float64:
		return int64(v), true
	case int:
		return int64(v), true
	case int64:
		return v, true
	case json.Number:
		f, err := v.Float64()
		return int64(f), err == nil
	case string:
		clean := strings.NewReplacer(",", "", " ", "", "원", "").Replace(v)
		f, err := strconv.ParseFloat(clean, 64)
		return int64(f), err == nil
	}
	return 0, false
}
