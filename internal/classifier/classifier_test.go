package classifier

import (
	"testing"

	"github.com/rajasatyajit/brocante/internal/models"
	"github.com/rajasatyajit/brocante/internal/taxonomy"
)

func TestClassifier_Classify(t *testing.T) {
	classifier := New(nil)

	tests := []struct {
		name             string
		text             string
		expectedCategory models.Category
		expectedReason   models.Reason
	}{
		{
			name:             "Flea market",
			text:             "Grande Brocante du Village",
			expectedCategory: models.CategoryFleaMarket,
		},
		{
			name:             "Accents and punctuation",
			text:             "VIDE-GRENIER de l'Été",
			expectedCategory: models.CategoryGradeSale,
		},
		{
			name:             "Regional synonym folds into grade sale",
			text:             "Foire à Tout - Place de la Mairie",
			expectedCategory: models.CategoryGradeSale,
		},
		{
			name:             "Type string contributes",
			text:             "Dimanche matin Garage Sale",
			expectedCategory: models.CategoryGradeSale,
		},
		{
			name:             "Generic secondhand term",
			text:             "Braderie de la rentrée",
			expectedCategory: models.CategoryOther,
		},
		{
			name:           "Exclusion wins over taxonomy",
			text:           "Job fair with a small flea market corner",
			expectedReason: models.ReasonExcluded,
		},
		{
			name:           "Exclusion with accents",
			text:           "Conférence sur les antiquaires",
			expectedReason: models.ReasonExcluded,
		},
		{
			name:           "Off topic",
			text:           "Fête de la musique",
			expectedReason: models.ReasonNoCategory,
		},
		{
			name:           "Empty text",
			text:           "",
			expectedReason: models.ReasonNoCategory,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := classifier.Classify(tt.text)

			if v.Category != tt.expectedCategory {
				t.Errorf("Expected category %q, got %q", tt.expectedCategory, v.Category)
			}
			if v.Reason != tt.expectedReason {
				t.Errorf("Expected reason %q, got %q", tt.expectedReason, v.Reason)
			}
			if v.Accepted() != (tt.expectedReason == "") {
				t.Errorf("Accepted() mismatch for %+v", v)
			}
		})
	}
}

func TestClassifier_Deterministic(t *testing.T) {
	classifier := New(taxonomy.Default())
	text := "vide grenier brocante troc braderie"
	first := classifier.Classify(text)
	for i := 0; i < 20; i++ {
		if got := classifier.Classify(text); got != first {
			t.Fatalf("classification changed between calls: %+v vs %+v", first, got)
		}
	}
	if first.Category != models.CategoryGradeSale {
		t.Errorf("Expected highest priority category, got %s", first.Category)
	}
}

func TestClassifier_CustomTaxonomy(t *testing.T) {
	tax, err := taxonomy.Parse([]byte(`
categories:
  - name: swapMeet
    keywords: [troc]
exclusions: [payant]
`))
	if err != nil {
		t.Fatal(err)
	}
	classifier := New(tax)

	if v := classifier.Classify("Grand troc"); v.Category != models.CategorySwapMeet {
		t.Errorf("Expected swapMeet, got %+v", v)
	}
	if v := classifier.Classify("Brocante"); v.Reason != models.ReasonNoCategory {
		t.Errorf("Expected noCategory with custom taxonomy, got %+v", v)
	}
	if v := classifier.Classify("troc payant"); v.Reason != models.ReasonExcluded {
		t.Errorf("Expected excluded, got %+v", v)
	}
}
