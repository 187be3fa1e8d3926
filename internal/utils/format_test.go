package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatWon(t *testing.T) {
	tests := []struct {
		amount int64
		want   string
	}{
		{40000000, "4,000만원"},
		{10000000, "1,000만원"},
		{5000, "5,000원"},
		{12345678, "1,234만 5,678원"},
		{0, "0원"},
		{-2000000, "-200만원"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatWon(tt.amount))
	}
}

func TestTitleMatches(t *testing.T) {
	tests := []struct {
		title string
		key   string
		want  bool
	}{
		{"청년전세임대", "청년전세임대", true},
		{"2025년 청년 전세임대 (LH)", "청년전세임대", true},
		{"청년전세임대주택 1순위", "청년전세임대", true},
		{"청년 월세 특별지원", "청년월세", true},
		{"신혼부부 전세임대", "청년전세임대", false},
		{"신혼 전세임대 2차", "신혼부부전세임대", true},
		{"신혼부부 월세지원", "청년월세", false},
		{"청년전세자금대출", "청년전세임대", false},
		{"신혼부부전세자금대출", "신혼부부전세임대", false},
		{"행복주택", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			assert.Equal(t, tt.want, TitleMatches(tt.title, tt.key))
		})
	}
}
