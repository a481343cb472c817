package classifier

import (
	"github.com/rajasatyajit/brocante/internal/models"
	"github.com/rajasatyajit/brocante/internal/taxonomy"
	"github.com/rajasatyajit/brocante/pkg/utils"
)

// Verdict is the outcome of classifying one record's text. Exactly one of
// Category or Reason is set.
type Verdict struct {
	Category models.Category
	Reason   models.Reason
	Keyword  string
}

// Accepted reports whether the text was assigned a category
func (v Verdict) Accepted() bool {
	return v.Reason == ""
}

// Classifier assigns taxonomy categories by keyword match
type Classifier struct {
	taxonomy *taxonomy.Taxonomy
}

// New creates a classifier over t, falling back to the embedded taxonomy
func New(t *taxonomy.Taxonomy) *Classifier {
	if t == nil {
		t = taxonomy.Default()
	}
	return &Classifier{taxonomy: t}
}

// Classify normalizes text and checks it against the exclusion set, then
// against each category in priority order. An exclusion hit always wins.
func (c *Classifier) Classify(text string) Verdict {
	normalized := utils.NormalizeText(text)

	if phrase, ok := c.taxonomy.Excluded(normalized); ok {
		return Verdict{Reason: models.ReasonExcluded, Keyword: phrase}
	}

	if cat, kw, ok := c.taxonomy.Match(normalized); ok {
		return Verdict{Category: cat, Keyword: kw}
	}

	return Verdict{Reason: models.ReasonNoCategory}
}
