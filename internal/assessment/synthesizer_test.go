package assessment

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medassess/internal/domain"
)

func TestClassifyRecommendation(t *testing.T) {
	tests := []struct {
		text string
		want Bucket
	}{
		{"Сдать общий анализ крови", BucketLab},
		{"сдать ОАК и ОАМ", BucketLab},
		{"контроль глюкозы натощак", BucketLab},
		{"Пройти МРТ головного мозга", BucketImaging},
		{"выполнить КТ грудной клетки", BucketImaging},
		{"сделать УЗИ брюшной полости", BucketImaging},
		{"рентгенография стоп с нагрузкой", BucketImaging},
		{"Выполнить ЭКГ в покое", BucketCardiac},
		{"суточное мониторирование по Холтеру", BucketCardiac},
		{"Консультация невролога", BucketConsult},
		{"осмотр врача-офтальмолога", BucketConsult},
		{"показан осмотр ЛОР", BucketConsult},
		{"обследование в условиях стационара", BucketInpatient},
		{"плановая госпитализация", BucketInpatient},
		{"предоставить справку из диспансера", BucketDocs},
		{"приложить выписку из амбулаторной карты", BucketDocs},
		{"повторно пересдать через месяц", BucketRepeat},
		{"соблюдать питьевой режим", BucketOther},
		// Short tokens must not fire inside unrelated words.
		{"выполнить пункт 3 приказа", BucketOther},
		{"исключить контакт с хлором", BucketOther},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ClassifyRecommendation(tt.text), "text: %s", tt.text)
	}
}

func TestNearDuplicate(t *testing.T) {
	// Shares well over 30 runes of prefix.
	a := "пройти магнитно-резонансную томографию головного мозга"
	b := "пройти магнитно-резонансную томографию поясничного отдела"
	assert.True(t, nearDuplicate(a, b))

	// Only 24 shared runes: distinct entries.
	assert.False(t, nearDuplicate("сдать общий анализ крови", "сдать общий анализ крови и биохимию"))

	assert.True(t, nearDuplicate("экг", "экг"))
	assert.False(t, nearDuplicate("экг", "ээг"))
}

func TestMonthsBetween(t *testing.T) {
	tests := []struct {
		from, to string
		want     int
	}{
		{"2025-01-15", "2025-06-15", 5},
		{"2025-01-16", "2025-06-15", 4}, // day not yet reached
		{"2024-10-15", "2025-06-15", 8},
		{"2025-06-15", "2025-06-15", 0},
		{"2025-07-01", "2025-06-15", 0}, // future date never counts as stale
	}
	for _, tt := range tests {
		from, err := time.Parse("2006-01-02", tt.from)
		require.NoError(t, err)
		to, err := time.Parse("2006-01-02", tt.to)
		require.NoError(t, err)
		assert.Equal(t, tt.want, monthsBetween(from, to), "%s -> %s", tt.from, tt.to)
	}
}

func datePtr(year int, month time.Month, day int) *time.Time {
	d := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	return &d
}

func planLinks(date *time.Time, recs ...string) []domain.ArticleLink {
	return []domain.ArticleLink{{
		ArticleNumber:   "68",
		Recommendations: recs,
		DocumentDate:    date,
	}}
}

func TestSynthesizePlanMergesSimilarRecommendations(t *testing.T) {
	now := time.Date(2025, time.June, 15, 0, 0, 0, 0, time.UTC)
	links := planLinks(datePtr(2025, time.May, 1),
		"сдать общий анализ крови",
		"сдать общий анализ крови и биохимию",
		"пройти МРТ головного мозга",
	)

	plan := SynthesizePlan(links, now)

	require.NotEmpty(t, plan)
	lines := strings.Split(plan, "\n")
	assert.Equal(t, "1. Анализы:", lines[0])
	assert.Equal(t, "   - Сдать анализы крови и мочи.", lines[1])
	assert.Equal(t, "2. Обследования:", lines[2])
	assert.Contains(t, lines[3], "МРТ")
	// Both blood-test strings collapse into the single lab entry.
	assert.Equal(t, 1, strings.Count(plan, "анализы крови"))
}

func TestSynthesizePlanSkipsEmptySectionsAndRenumbers(t *testing.T) {
	now := time.Date(2025, time.June, 15, 0, 0, 0, 0, time.UTC)
	links := planLinks(datePtr(2025, time.May, 1), "консультация невролога и кардиолога")

	plan := SynthesizePlan(links, now)

	lines := strings.Split(plan, "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "1. Консультации:", lines[0])
	assert.Contains(t, lines[1], "невролог")
	assert.Contains(t, lines[1], "кардиолог")
}

func TestSynthesizePlanEmptyWithoutRecommendations(t *testing.T) {
	now := time.Date(2025, time.June, 15, 0, 0, 0, 0, time.UTC)

	assert.Empty(t, SynthesizePlan(nil, now))
	assert.Empty(t, SynthesizePlan(planLinks(nil), now))
}

func TestSynthesizePlanStaleBucketMentionsAge(t *testing.T) {
	now := time.Date(2025, time.June, 15, 0, 0, 0, 0, time.UTC)
	links := planLinks(datePtr(2024, time.October, 15), "сдать общий анализ крови")

	plan := SynthesizePlan(links, now)

	assert.Contains(t, plan, "8 мес. назад")
	assert.Contains(t, plan, "Обновить анализы")
}

func TestSynthesizePlanMajorityStaleAdvisory(t *testing.T) {
	now := time.Date(2025, time.June, 15, 0, 0, 0, 0, time.UTC)
	old := datePtr(2024, time.January, 10)
	fresh := datePtr(2025, time.May, 1)

	links := append(
		planLinks(old, "сдать общий анализ крови", "пройти МРТ головного мозга"),
		planLinks(fresh, "консультация невролога")...,
	)

	plan := SynthesizePlan(links, now)
	assert.Contains(t, plan, "Большинство документов старше 6 месяцев")

	// Mostly fresh evidence: no advisory.
	links = append(
		planLinks(fresh, "сдать общий анализ крови", "консультация невролога"),
		planLinks(old, "пройти МРТ головного мозга")...,
	)
	plan = SynthesizePlan(links, now)
	assert.NotContains(t, plan, "Большинство документов")
}

func TestImagingSentenceListsModalities(t *testing.T) {
	now := time.Date(2025, time.June, 15, 0, 0, 0, 0, time.UTC)
	links := planLinks(datePtr(2025, time.May, 1),
		"выполнить КТ грудной клетки",
		"сделать УЗИ брюшной полости",
		"пройти МРТ головного мозга",
	)

	plan := SynthesizePlan(links, now)

	assert.Contains(t, plan, "КТ")
	assert.Contains(t, plan, "УЗИ")
	assert.Contains(t, plan, "МРТ")
	// One merged examinations entry, not three.
	assert.Equal(t, 1, strings.Count(plan, "   - "))
}

func TestExtractSpecialtiesGuardsEmbeddedNames(t *testing.T) {
	names := extractSpecialties([]string{"консультация нейрохирурга"})
	assert.Equal(t, []string{"нейрохирург"}, names)

	names = extractSpecialties([]string{"консультация психотерапевта"})
	assert.Equal(t, []string{"психотерапевт"}, names)

	names = extractSpecialties([]string{"осмотр ЛОР"})
	assert.Equal(t, []string{"оториноларинголог"}, names)
}

func TestFlattenSkipsBlankRecommendations(t *testing.T) {
	links := []domain.ArticleLink{{
		Recommendations: []string{"  ", "", "сдать анализ", " пройти ЭКГ "},
	}}

	recs := Flatten(links)

	require.Len(t, recs, 2)
	assert.Equal(t, "сдать анализ", recs[0].Text)
	assert.Equal(t, "пройти ЭКГ", recs[1].Text)
}
