package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int       { return &v }
func i64Ptr(v int64) *int64   { return &v }
func strPtr(v string) *string { return &v }

func TestUserProfile_MergeOverwritesNonNil(t *testing.T) {
	stored := UserProfile{
		Age:             intPtr(24),
		Occupation:      strPtr("대학생"),
		IncomeHousehold: i64Ptr(30000000),
	}
	update := UserProfile{
		Age:           intPtr(25),
		DesiredRegion: strPtr("서울"),
	}

	merged := stored.Merge(update)

	require.NotNil(t, merged.Age)
	assert.Equal(t, 25, *merged.Age)
	assert.Equal(t, "대학생", *merged.Occupation)
	assert.Equal(t, int64(30000000), *merged.IncomeHousehold)
	assert.Equal(t, "서울", *merged.DesiredRegion)

	// stored copy is untouched
	assert.Equal(t, 24, *stored.Age)
	assert.Nil(t, stored.DesiredRegion)
}

func TestUserProfile_MergeIsIdempotent(t *testing.T) {
	stored := UserProfile{Occupation: strPtr("직장인")}
	update := UserProfile{Age: intPtr(29), BudgetDeposit: i64Ptr(50000000)}

	once := stored.Merge(update)
	twice := once.Merge(update)

	assert.Equal(t, once, twice)
}

func TestUserProfile_MergeEmptyUpdateKeepsStored(t *testing.T) {
	stored := UserProfile{Age: intPtr(31), FamilyType: strPtr("신혼부부")}
	assert.Equal(t, stored, stored.Merge(UserProfile{}))
}

func TestUserProfile_MissingFieldsAndCompleteness(t *testing.T) {
	var p UserProfile
	assert.Equal(t, KeyProfileFields, p.MissingFields())
	assert.Equal(t, 0.0, p.Completeness())

	p.Age = intPtr(25)
	p.IncomeHousehold = i64Ptr(40000000)
	assert.NotContains(t, p.MissingFields(), FieldAge)
	assert.NotContains(t, p.MissingFields(), FieldIncomeHousehold)
	assert.Equal(t, 0.25, p.Completeness())
}

func TestUserProfile_Income(t *testing.T) {
	p := UserProfile{IncomePersonal: i64Ptr(20000000)}
	income, ok := p.Income()
	assert.True(t, ok)
	assert.Equal(t, int64(20000000), income)

	p.IncomeHousehold = i64Ptr(40000000)
	income, _ = p.Income()
	assert.Equal(t, int64(40000000), income)

	_, ok = UserProfile{}.Income()
	assert.False(t, ok)
}

func TestProfileFromMap(t *testing.T) {
	var fields map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(`{
		"age": 25,
		"income_household": "40,000,000",
		"occupation": "대학생",
		"desired_region": null,
		"budget_deposit": "not a number",
		"unknown": "x"
	}`), &fields))

	p := ProfileFromMap(fields)

	require.NotNil(t, p.Age)
	assert.Equal(t, 25, *p.Age)
	require.NotNil(t, p.IncomeHousehold)
	assert.Equal(t, int64(40000000), *p.IncomeHousehold)
	assert.Equal(t, "대학생", *p.Occupation)
	assert.Nil(t, p.DesiredRegion)
	assert.Nil(t, p.BudgetDeposit)
}

func TestUserProfile_ValueStripsPropertyInterests(t *testing.T) {
	p := UserProfile{
		Age:               intPtr(22),
		PropertyInterests: []PropertyInterest{{Address: "서울 관악구", Deposit: 10000000}},
	}
	raw, err := p.Value()
	require.NoError(t, err)

	var back UserProfile
	require.NoError(t, back.Scan(raw))
	assert.Equal(t, 22, *back.Age)
	assert.Empty(t, back.PropertyInterests)
}
