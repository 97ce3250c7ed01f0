package assessment

import "medassess/internal/domain"

// overrideReserve is the share always left to "insufficient data" when any
// positive signal exists, so no split ever claims full certainty.
const overrideReserve = 5

// Score aggregates all links for one article across a person's documents
// into the three-way split {applies, does not apply, insufficient data}.
//
// Precedence, strictly in order: a manual assessment overrides everything;
// zero links means the data is insufficient; links with no positive
// confidence lean towards "does not apply"; otherwise the maximum link
// confidence wins. Maximum, not average: one strong document (for example a
// hospital discharge summary) must not be diluted by several
// low-information ones.
func Score(links []domain.ArticleLink, override *domain.Assessment) domain.ArticleScore {
	if override != nil {
		applies := clampPercent(override.Confidence)
		return domain.ArticleScore{
			Applies:          applies,
			DoesNotApply:     remainder(applies),
			InsufficientData: overrideReserve,
			RelevantCount:    len(links),
		}
	}

	if len(links) == 0 {
		return domain.ArticleScore{InsufficientData: 100}
	}

	maxConfidence := 0
	for _, link := range links {
		if link.Confidence > maxConfidence {
			maxConfidence = link.Confidence
		}
	}

	if maxConfidence <= 0 {
		return domain.ArticleScore{
			DoesNotApply:     70,
			InsufficientData: 30,
			RelevantCount:    len(links),
		}
	}

	applies := clampPercent(maxConfidence)
	return domain.ArticleScore{
		Applies:          applies,
		DoesNotApply:     remainder(applies),
		InsufficientData: overrideReserve,
		RelevantCount:    len(links),
	}
}

func remainder(applies int) int {
	rest := 100 - applies - overrideReserve
	if rest < 0 {
		return 0
	}
	return rest
}

func clampPercent(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
