package extraction

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medassess/internal/domain"
)

func testRefs() ReferenceSet {
	return ReferenceSet{
		Types: []domain.DocumentType{
			{ID: 1, Code: "discharge", Name: "Выписной эпикриз"},
			{ID: 2, Code: "lab", Name: "Лабораторное исследование"},
		},
		Articles: []domain.Article{
			{ID: 10, Number: "68", Title: "Плоскостопие", Category: "Б", Active: true},
			{ID: 11, Number: "43", Title: "Гипертоническая болезнь", Category: "В", Active: true},
		},
	}
}

func TestNormalizeValidResponse(t *testing.T) {
	raw := `{
		"text": "Диагноз: продольное плоскостопие II степени.",
		"date": "15.03.2025",
		"type_code": "discharge",
		"suggested_title": "Выписка от 15.03.2025",
		"articles": [
			{"number": "68", "category": "Б", "confidence": 85,
			 "explanation": "Подтвержденное плоскостопие",
			 "recommendations": ["рентгенография стоп с нагрузкой"]},
			{"number": "43", "category": "В", "confidence": 20,
			 "explanation": "Единичное повышение давления",
			 "recommendations": []}
		]
	}`

	result := NewNormalizer(testRefs(), nil).Normalize(raw)

	require.Len(t, result.Links, 2)
	assert.Equal(t, int64(10), result.Links[0].ArticleID)
	assert.Equal(t, "68", result.Links[0].ArticleNumber)
	assert.Equal(t, 85, result.Links[0].Confidence)
	assert.Equal(t, "discharge", result.DocumentTypeCode)
	assert.Equal(t, "Выписка от 15.03.2025", result.SuggestedTitle)

	require.NotNil(t, result.DocumentDate)
	assert.Equal(t, time.Date(2025, time.March, 15, 0, 0, 0, 0, time.UTC), *result.DocumentDate)

	// Primary fields mirror the strongest link.
	assert.Equal(t, "68", result.PrimaryArticleNumber)
	assert.Equal(t, "Б", result.Category)
	assert.Equal(t, 85, result.Confidence)
}

func TestNormalizeNonJSONYieldsDefaultRecord(t *testing.T) {
	result := NewNormalizer(testRefs(), nil).Normalize("I could not read this document, sorry.")

	assert.Empty(t, result.Links)
	assert.Equal(t, 0, result.Confidence)
	assert.Empty(t, result.PrimaryArticleNumber)
	assert.NotEmpty(t, result.Explanation)
	require.NotEmpty(t, result.Recommendations)
	assert.Contains(t, result.Recommendations[0], "чёткую копию")
}

func TestNormalizeStripsMarkdownFences(t *testing.T) {
	raw := "```json\n{\"text\": \"анализ\", \"articles\": []}\n```"

	result := NewNormalizer(testRefs(), nil).Normalize(raw)

	assert.Equal(t, "анализ", result.ExtractedText)
	assert.Empty(t, result.Links)
}

func TestNormalizeRecoversEmbeddedObject(t *testing.T) {
	raw := `Here is my analysis of the document:
{"text": "справка", "articles": [{"number": "68", "confidence": 60}]}
Let me know if you need anything else.`

	result := NewNormalizer(testRefs(), nil).Normalize(raw)

	require.Len(t, result.Links, 1)
	assert.Equal(t, "68", result.Links[0].ArticleNumber)
	assert.Equal(t, 60, result.Links[0].Confidence)
}

func TestNormalizeDropsUnknownArticles(t *testing.T) {
	raw := `{"articles": [
		{"number": "999", "confidence": 90},
		{"number": "68", "confidence": 50}
	]}`

	result := NewNormalizer(testRefs(), nil).Normalize(raw)

	require.Len(t, result.Links, 1)
	assert.Equal(t, "68", result.Links[0].ArticleNumber)
}

func TestNormalizeDeduplicatesRepeatedArticles(t *testing.T) {
	raw := `{"articles": [
		{"number": "68", "confidence": 40, "explanation": "слабый признак",
		 "recommendations": ["сдать анализ"]},
		{"number": "68", "confidence": 85, "explanation": "подтвержденный диагноз",
		 "recommendations": ["рентгенография стоп"]},
		{"number": "43", "confidence": 20}
	]}`

	result := NewNormalizer(testRefs(), nil).Normalize(raw)

	require.Len(t, result.Links, 2)
	assert.Equal(t, "68", result.Links[0].ArticleNumber)
	assert.Equal(t, 85, result.Links[0].Confidence)
	assert.Equal(t, "подтвержденный диагноз", result.Links[0].Explanation)
	assert.Equal(t, "43", result.Links[1].ArticleNumber)

	// Strongest entry first: the order must not matter.
	swapped := `{"articles": [
		{"number": "68", "confidence": 85},
		{"number": "68", "confidence": 40}
	]}`
	result = NewNormalizer(testRefs(), nil).Normalize(swapped)
	require.Len(t, result.Links, 1)
	assert.Equal(t, 85, result.Links[0].Confidence)
}

func TestNormalizeUnknownTypeCodeLeftUnset(t *testing.T) {
	raw := `{"type_code": "parking-ticket", "articles": []}`

	result := NewNormalizer(testRefs(), nil).Normalize(raw)

	assert.Empty(t, result.DocumentTypeCode)
}

func TestNormalizeConfidenceCoercionAndClamping(t *testing.T) {
	tests := []struct {
		raw  string
		want int
	}{
		{`{"articles": [{"number": "68", "confidence": 85}]}`, 85},
		{`{"articles": [{"number": "68", "confidence": "85"}]}`, 85},
		{`{"articles": [{"number": "68", "confidence": 85.7}]}`, 85},
		{`{"articles": [{"number": "68", "confidence": 140}]}`, 100},
		{`{"articles": [{"number": "68", "confidence": -5}]}`, 0},
		{`{"articles": [{"number": "68", "confidence": null}]}`, 0},
		{`{"articles": [{"number": "68", "confidence": "high"}]}`, 0},
	}
	for _, tt := range tests {
		result := NewNormalizer(testRefs(), nil).Normalize(tt.raw)
		require.Len(t, result.Links, 1, "raw: %s", tt.raw)
		assert.Equal(t, tt.want, result.Links[0].Confidence, "raw: %s", tt.raw)
	}
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		value string
		want  *time.Time
	}{
		{"15.03.2025", datePtr(2025, time.March, 15)},
		{"15/03/2025", datePtr(2025, time.March, 15)},
		{"2025-03-15", datePtr(2025, time.March, 15)},
		{"March 15, 2025", nil},
		{"когда-то давно", nil},
		{"", nil},
	}
	for _, tt := range tests {
		got := parseDate(tt.value)
		if tt.want == nil {
			assert.Nil(t, got, "value: %s", tt.value)
		} else {
			require.NotNil(t, got, "value: %s", tt.value)
			assert.True(t, got.Equal(*tt.want), "value: %s", tt.value)
		}
	}
}

func datePtr(year int, month time.Month, day int) *time.Time {
	d := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	return &d
}

func TestNormalizeNilRecommendationsBecomeEmptySlice(t *testing.T) {
	raw := `{"articles": [{"number": "68", "confidence": 50}]}`

	result := NewNormalizer(testRefs(), nil).Normalize(raw)

	require.Len(t, result.Links, 1)
	assert.NotNil(t, result.Links[0].Recommendations)
	assert.Empty(t, result.Links[0].Recommendations)
}

func TestFirstBalancedObjectSkipsBracesInStrings(t *testing.T) {
	span, ok := firstBalancedObject(`noise {"text": "a } b { c", "articles": []} tail`)

	require.True(t, ok)
	assert.Equal(t, `{"text": "a } b { c", "articles": []}`, span)
}
