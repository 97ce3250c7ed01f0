package reference

import (
	"context"

	"medassess/internal/domain"
	"medassess/internal/ports"
)

// SeedProvider serves the bootstrap reference catalogs from memory. It
// backs tests and first-run database seeding; production reads go through
// the Postgres-backed provider.
type SeedProvider struct{}

var _ ports.ReferenceProvider = (*SeedProvider)(nil)

// NewSeedProvider returns the in-memory catalog provider.
func NewSeedProvider() *SeedProvider {
	return &SeedProvider{}
}

// DocumentTypes returns the seeded document-type catalog.
func (p *SeedProvider) DocumentTypes(_ context.Context) ([]domain.DocumentType, error) {
	return SeedDocumentTypes(), nil
}

// Articles returns the seeded statutory article catalog.
func (p *SeedProvider) Articles(_ context.Context) ([]domain.Article, error) {
	return SeedArticles(), nil
}

// SeedDocumentTypes lists the document representations the pipeline
// understands.
func SeedDocumentTypes() []domain.DocumentType {
	return []domain.DocumentType{
		{ID: 1, Code: "discharge", Name: "Выписка из стационара"},
		{ID: 2, Code: "outpatient", Name: "Выписка из амбулаторной карты"},
		{ID: 3, Code: "lab", Name: "Результаты анализов"},
		{ID: 4, Code: "imaging", Name: "Результаты инструментального исследования"},
		{ID: 5, Code: "specialist", Name: "Заключение специалиста"},
		{ID: 6, Code: "certificate", Name: "Медицинская справка"},
		{ID: 7, Code: "questionnaire", Name: "Анкета с жалобами"},
	}
}

// SeedArticles lists a working subset of the statutory schedule.
func SeedArticles() []domain.Article {
	return []domain.Article{
		{ID: 1, Number: "13", Title: "Болезни эндокринной системы, расстройства питания и нарушения обмена веществ", Category: "В", Active: true},
		{ID: 2, Number: "14", Title: "Психические расстройства вследствие органического поражения головного мозга", Category: "В", Active: true},
		{ID: 3, Number: "17", Title: "Невротические, связанные со стрессом и соматоформные расстройства", Category: "В", Active: true},
		{ID: 4, Number: "23", Title: "Эпилепсия и эпилептические приступы", Category: "В", Active: true},
		{ID: 5, Number: "24", Title: "Сосудистые заболевания головного и спинного мозга", Category: "В", Active: true},
		{ID: 6, Number: "25", Title: "Последствия травм головного и спинного мозга", Category: "В", Active: true},
		{ID: 7, Number: "34", Title: "Нарушения рефракции и аккомодации", Category: "В", Active: true},
		{ID: 8, Number: "42", Title: "Ревматизм, болезни сердца и перикарда", Category: "В", Active: true},
		{ID: 9, Number: "43", Title: "Гипертоническая болезнь", Category: "В", Active: true},
		{ID: 10, Number: "47", Title: "Нейроциркуляторная астения", Category: "Б", Active: true},
		{ID: 11, Number: "52", Title: "Бронхиальная астма", Category: "В", Active: true},
		{ID: 12, Number: "57", Title: "Болезни пищевода, кишечника и брюшины", Category: "В", Active: true},
		{ID: 13, Number: "58", Title: "Язвенная болезнь желудка и двенадцатиперстной кишки", Category: "В", Active: true},
		{ID: 14, Number: "66", Title: "Болезни позвоночника и их последствия", Category: "В", Active: true},
		{ID: 15, Number: "68", Title: "Плоскостопие и другие деформации стопы", Category: "В", Active: true},
		{ID: 16, Number: "72", Title: "Болезни почек и мочевыводящих путей", Category: "В", Active: true},
		{ID: 17, Number: "80", Title: "Недостаточное физическое развитие", Category: "Б", Active: true},
	}
}
