package model

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// indexContentPrefix bounds how much free text goes into the retrieval copy.
const indexContentPrefix = 500

// PolicyRecord represents a government housing policy
type PolicyRecord struct {
	ID              int64   `json:"id" db:"id"`
	Title           string  `json:"title" db:"title"`
	Organization    string  `json:"organization" db:"organization"`
	Category        string  `json:"category" db:"category"`
	Target          string  `json:"target" db:"target"`
	Content         string  `json:"content" db:"content"`
	Region          string  `json:"region" db:"region"`
	Details         JSONMap `json:"details,omitempty" db:"details"`
	SimilarityScore float64 `json:"similarity_score,omitempty" db:"similarity_score"`
}

// IndexText is the denormalized text embedded for retrieval.
func (p PolicyRecord) IndexText() string {
	var b strings.Builder
	fmt.Fprintf(&b, "정책명: %s\n", p.Title)
	if p.Organization != "" {
		fmt.Fprintf(&b, "기관: %s\n", p.Organization)
	}
	if p.Category != "" {
		fmt.Fprintf(&b, "분류: %s\n", p.Category)
	}
	if p.Target != "" {
		fmt.Fprintf(&b, "대상: %s\n", p.Target)
	}
	if p.Region != "" {
		fmt.Fprintf(&b, "지역: %s\n", p.Region)
	}
	fmt.Fprintf(&b, "내용: %s", ContentPrefix(p.Content, indexContentPrefix))
	return b.String()
}

// IndexCopy returns the retrieval-only copy held by the index.
func (p PolicyRecord) IndexCopy() PolicyRecord {
	return PolicyRecord{
		ID:           p.ID,
		Title:        p.Title,
		Organization: p.Organization,
		Category:     p.Category,
		Target:       p.Target,
		Region:       p.Region,
		Content:      ContentPrefix(p.Content, indexContentPrefix),
		Details:      p.Details,
	}
}

// ContentPrefix truncates s to at most n runes.
func ContentPrefix(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
