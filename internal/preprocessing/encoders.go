package preprocessing

import (
	"fmt"
	"slices"
	"sort"
)

// LabelEncoder maps category names to their index in sorted order.
type LabelEncoder struct {
	Classes []string `json:"classes"`
}

// FitLabelEncoder learns the distinct values of values.
func FitLabelEncoder(values []string) *LabelEncoder {
	seen := make(map[string]struct{}, len(values))
	classes := make([]string, 0)
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		classes = append(classes, v)
	}
	sort.Strings(classes)
	return &LabelEncoder{Classes: classes}
}

// Transform returns the index of v.
func (e *LabelEncoder) Transform(v string) (int, error) {
	i, found := slices.BinarySearch(e.Classes, v)
	if !found {
		return 0, fmt.Errorf("unknown label %q", v)
	}
	return i, nil
}

// OneHotEncoder replaces the label-encoded column Column with one indicator
// per category, placed before the remaining columns.
type OneHotEncoder struct {
	Column     int `json:"column"`
	Categories int `json:"categories"`
}

// Transform expands row.
func (e *OneHotEncoder) Transform(row []float64) ([]float64, error) {
	if e.Column >= len(row) {
		return nil, fmt.Errorf("row has %d columns, encoder expects column %d", len(row), e.Column)
	}
	category := int(row[e.Column])
	if category < 0 || category >= e.Categories {
		return nil, fmt.Errorf("category %d out of range [0, %d)", category, e.Categories)
	}

	out := make([]float64, e.Categories, e.Categories+len(row)-1)
	out[category] = 1
	out = append(out, row[:e.Column]...)
	out = append(out, row[e.Column+1:]...)
	return out, nil
}

// MinMaxScaler scales every column to [0, 1] using the range seen during fitting.
// A constant column maps to 0.
type MinMaxScaler struct {
	Min []float64 `json:"min"`
	Max []float64 `json:"max"`
}

// FitMinMaxScaler learns per-column ranges of rows.
func FitMinMaxScaler(rows [][]float64) *MinMaxScaler {
	if len(rows) == 0 {
		return &MinMaxScaler{}
	}
	s := &MinMaxScaler{
		Min: slices.Clone(rows[0]),
		Max: slices.Clone(rows[0]),
	}
	for _, row := range rows[1:] {
		for j, v := range row {
			s.Min[j] = min(s.Min[j], v)
			s.Max[j] = max(s.Max[j], v)
		}
	}
	return s
}

// Transform scales row.
func (s *MinMaxScaler) Transform(row []float64) []float64 {
	out := make([]float64, len(row))
	for j, v := range row {
		span := s.Max[j] - s.Min[j]
		if span == 0 {
			continue
		}
		out[j] = (v - s.Min[j]) / span
	}
	return out
}

// Inverse maps a scaled row back to original units.
func (s *MinMaxScaler) Inverse(row []float64) []float64 {
	out := make([]float64, len(row))
	for j, v := range row {
		out[j] = s.Min[j] + v*(s.Max[j]-s.Min[j])
	}
	return out
}
