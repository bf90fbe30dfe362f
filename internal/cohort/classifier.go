// Package cohort maps free-text interests to a fixed taxonomy of audience cohorts.
package cohort

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Label is a cohort category name.
type Label = string

// Built-in cohort labels. The first four are the default taxonomy categories in
// precedence order; Other is returned when no category matches.
const (
	Sports  Label = "Sports"
	Tech    Label = "Tech"
	Movies  Label = "Movies"
	Finance Label = "Finance"
	Other   Label = "Other"
)

// Category is one taxonomy entry.
type Category struct {
	Label    Label    `yaml:"label"`
	Keywords []string `yaml:"keywords"`
}

// Taxonomy is an ordered list of categories. Earlier categories win.
type Taxonomy []Category

// DefaultTaxonomy returns the built-in taxonomy.
func DefaultTaxonomy() Taxonomy {
	return Taxonomy{
		{Label: Sports, Keywords: []string{"sports", "football", "basketball", "cricket", "tennis"}},
		{Label: Tech, Keywords: []string{"tech", "ai", "gadgets", "programming", "blockchain"}},
		{Label: Movies, Keywords: []string{"movies", "hollywood", "bollywood", "action", "drama"}},
		{Label: Finance, Keywords: []string{"finance", "stock market", "investment", "banking", "crypto"}},
	}
}

// LoadTaxonomy reads a taxonomy from a YAML file of the form:
//
//	categories:
//	  - label: Sports
//	    keywords: [sports, football]
func LoadTaxonomy(path string) (Taxonomy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read taxonomy file: %w", err)
	}

	var doc struct {
		Categories Taxonomy `yaml:"categories"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse taxonomy file: %w", err)
	}
	if len(doc.Categories) == 0 {
		return nil, fmt.Errorf("taxonomy file %s has no categories", path)
	}
	for i, c := range doc.Categories {
		if strings.TrimSpace(c.Label) == "" {
			return nil, fmt.Errorf("taxonomy category %d has no label", i)
		}
		if c.Label == Other {
			return nil, fmt.Errorf("taxonomy category %q is reserved", Other)
		}
	}

	return doc.Categories, nil
}

// Normalize lowercases an interest and trims surrounding whitespace.
func Normalize(interest string) string {
	return strings.ToLower(strings.TrimSpace(interest))
}

type category struct {
	label    Label
	keywords map[string]struct{}
}

// Classifier assigns a cohort label to a set of interests.
// It holds no mutable state and is safe for concurrent use.
type Classifier struct {
	categories []category
}

// NewClassifier builds a classifier over the given taxonomy.
func NewClassifier(taxonomy Taxonomy) *Classifier {
	categories := make([]category, 0, len(taxonomy))
	for _, c := range taxonomy {
		keywords := make(map[string]struct{}, len(c.Keywords))
		for _, k := range c.Keywords {
			keywords[Normalize(k)] = struct{}{}
		}
		categories = append(categories, category{label: c.Label, keywords: keywords})
	}
	return &Classifier{categories: categories}
}

// Classify returns the first category, in taxonomy order, with a keyword equal to any normalized interest.
func (c *Classifier) Classify(interests []string) Label {
	if len(interests) == 0 {
		return Other
	}

	normalized := make(map[string]struct{}, len(interests))
	for _, i := range interests {
		normalized[Normalize(i)] = struct{}{}
	}

	for _, cat := range c.categories {
		for interest := range normalized {
			if _, ok := cat.keywords[interest]; ok {
				return cat.label
			}
		}
	}
	return Other
}

// Labels returns the category labels in declaration order followed by Other.
func (c *Classifier) Labels() []Label {
	labels := make([]Label, 0, len(c.categories)+1)
	for _, cat := range c.categories {
		labels = append(labels, cat.label)
	}
	return append(labels, Other)
}
