// Package agent implements the stages of the policy consultation pipeline.
//
// Every stage takes immutable inputs and returns (output, error). When the
// error is non-nil the output is that stage's fallback value, so callers can
// record the error and keep going.
package agent

import (
	"context"
	"fmt"
	"strings"

	"policychat/internal/llm"
	"policychat/internal/model"
	"policychat/internal/utils"
)

// ProfileStore reads and merge-updates user profiles.
type ProfileStore interface {
	LoadProfile(ctx context.Context, userID int64) (model.UserProfile, error)
	MergeAndSaveProfile(ctx context.Context, userID int64, update model.UserProfile) (model.UserProfile, error)
	GetFavorites(ctx context.Context, userID int64, limit int) ([]model.PropertyInterest, error)
}

// askJSON sends prompt and decodes the answer into T.
func askJSON[T any](ctx context.Context, client llm.Completer, prompt string) (T, error) {
	var zero T
	raw, err := client.Complete(ctx, prompt)
	if err != nil {
		return zero, fmt.Errorf("llm call failed: %w", err)
	}
	res := utils.DecodeAIJSON[T](raw)
	if !res.OK {
		return zero, fmt.Errorf("malformed model output: %w", res.Err)
	}
	return res.Value, nil
}

var profileLabels = []struct {
	field string
	label string
}{
	{model.FieldAge, "나이"},
	{model.FieldAgeRange, "연령대"},
	{model.FieldOccupation, "직업"},
	{model.FieldIncomePersonal, "본인소득"},
	{model.FieldIncomeHousehold, "가구소득"},
	{model.FieldIncomeParents, "부모소득"},
	{model.FieldCurrentRegion, "현재지역"},
	{model.FieldDesiredRegion, "희망지역"},
	{model.FieldTransactionType, "거래유형"},
	{model.FieldFamilyType, "가구형태"},
	{model.FieldSpecialSituation, "특수상황"},
	{model.FieldBudgetDeposit, "보증금예산"},
	{model.FieldBudgetMonthly, "월세예산"},
}

func profileValue(p model.UserProfile, field string) string {
	won := func(v *int64) string { return utils.FormatWon(*v) }
	switch field {
	case model.FieldAge:
		return fmt.Sprintf("%d세", *p.Age)
	case model.FieldAgeRange:
		return *p.AgeRange
	case model.FieldOccupation:
		return *p.Occupation
	case model.FieldIncomePersonal:
		return won(p.IncomePersonal)
	case model.FieldIncomeHousehold:
		return won(p.IncomeHousehold)
	case model.FieldIncomeParents:
		return won(p.IncomeParents)
	case model.FieldCurrentRegion:
		return *p.CurrentRegion
	case model.FieldDesiredRegion:
		return *p.DesiredRegion
	case model.FieldTransactionType:
		return *p.TransactionType
	case model.FieldFamilyType:
		return *p.FamilyType
	case model.FieldSpecialSituation:
		return *p.SpecialSituation
	case model.FieldBudgetDeposit:
		return won(p.BudgetDeposit)
	case model.FieldBudgetMonthly:
		return won(p.BudgetMonthly)
	}
	return ""
}

// SummarizeProfile renders the known fields as "나이: 25세 | 직업: 대학생".
func SummarizeProfile(p model.UserProfile) string {
	var parts []string
	for _, l := range profileLabels {
		if p.Has(l.field) {
			parts = append(parts, l.label+": "+profileValue(p, l.field))
		}
	}
	if len(parts) == 0 {
		return "프로필 정보 없음"
	}
	return strings.Join(parts, " | ")
}

// formatProfileLines renders the profile one field per line for prompts.
func formatProfileLines(p model.UserProfile) string {
	var b strings.Builder
	for _, l := range profileLabels {
		val := "정보 없음"
		if p.Has(l.field) {
			val = profileValue(p, l.field)
		}
		fmt.Fprintf(&b, "- %s: %s\n", l.label, val)
	}
	return b.String()
}

// formatPolicies lists policies with 1-based indexes the model refers back to.
func formatPolicies(policies []model.PolicyRecord, contentLimit int) string {
	var b strings.Builder
	for i, p := range policies {
		fmt.Fprintf(&b, "[%d] %s\n", i+1, p.Title)
		if p.Organization != "" {
			fmt.Fprintf(&b, "    기관: %s\n", p.Organization)
		}
		if p.Category != "" {
			fmt.Fprintf(&b, "    분류: %s\n", p.Category)
		}
		if p.Target != "" {
			fmt.Fprintf(&b, "    대상: %s\n", p.Target)
		}
		if p.Region != "" {
			fmt.Fprintf(&b, "    지역: %s\n", p.Region)
		}
		if cond := p.Details.String("income_condition"); cond != "" {
			fmt.Fprintf(&b, "    소득조건: %s\n", cond)
		}
		if p.Content != "" {
			fmt.Fprintf(&b, "    내용: %s\n", model.ContentPrefix(p.Content, contentLimit))
		}
	}
	return b.String()
}

// PropertyContext renders favorited listings for the profiling and ranking prompts.
func PropertyContext(interests []model.PropertyInterest) string {
	if len(interests) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("사용자가 찜한 매물:\n")
	for i, it := range interests {
		fmt.Fprintf(&b, "%d. %s | %s | 보증금 %s", i+1, it.Address, it.TransactionType, utils.FormatWon(it.Deposit))
		if it.MonthlyRent > 0 {
			fmt.Fprintf(&b, " | 월세 %s", utils.FormatWon(it.MonthlyRent))
		}
		if it.Area > 0 {
			fmt.Fprintf(&b, " | %.1f㎡", it.Area)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// resolvePolicy maps a model reference (1-based index, then title) onto an
// input position, or -1.
func resolvePolicy(index int, title string, titles []string) int {
	if index >= 1 && index <= len(titles) {
		return index - 1
	}
	if title == "" {
		return -1
	}
	norm := utils.NormalizeTitle(title)
	for i, t := range titles {
		if utils.NormalizeTitle(t) == norm {
			return i
		}
	}
	for i, t := range titles {
		if nt := utils.NormalizeTitle(t); nt != "" && (strings.Contains(nt, norm) || strings.Contains(norm, nt)) {
			return i
		}
	}
	return -1
}
