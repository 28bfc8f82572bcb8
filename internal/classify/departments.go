// Package classify assigns departments, sentiment and topic clusters to
// article candidates.
package classify

import (
	"context"
	"strings"

	"github.com/local/newsdigest/internal/article"
)

// DefaultDepartment is used whenever no department can be determined.
const DefaultDepartment = "General Administration"

// Departments is the official department catalogue, in match priority order.
var Departments = []string{
	"Agriculture & Cooperation",
	"Animal Husbandry & Fisheries",
	"Backward Classes Welfare",
	"Energy",
	"Finance & Planning",
	"Health, Medical & Family Welfare",
	"Higher Education",
	"Home & Law and Order",
	"Housing",
	"Irrigation & Water Resources",
	"Municipal Admin & Urban Dev",
	"Panchayat Raj & Rural Dev",
	"Revenue & Land Administration",
	"School Education",
	"Social Welfare",
	"Transport, Roads & Buildings",
	"Women & Child Welfare",
	DefaultDepartment,
	"Civil Supplies",
}

// keywordDepartments maps loose labels to catalogue entries, checked in order.
var keywordDepartments = []struct {
	keywords   []string
	department string
}{
	{[]string{"education"}, "School Education"},
	{[]string{"health"}, "Health, Medical & Family Welfare"},
	{[]string{"police"}, "Home & Law and Order"},
	{[]string{"water"}, "Irrigation & Water Resources"},
	{[]string{"farm", "agri"}, "Agriculture & Cooperation"},
}

// MatchDepartment maps free-form model output onto the catalogue. The first
// catalogue entry contained in the label wins; otherwise keyword fallbacks
// apply; otherwise DefaultDepartment.
func MatchDepartment(label string) string {
	l := strings.ToLower(strings.TrimSpace(label))
	if l == "" {
		return DefaultDepartment
	}
	for _, d := range Departments {
		if strings.Contains(l, strings.ToLower(d)) {
			return d
		}
	}
	for _, k := range keywordDepartments {
		for _, w := range k.keywords {
			if strings.Contains(l, w) {
				return k.department
			}
		}
	}
	return DefaultDepartment
}

// KeywordDepartments classifies by matching the article text itself against
// the keyword table. It needs no model and never fails.
type KeywordDepartments struct{}

func (KeywordDepartments) Department(_ context.Context, c article.Candidate) (string, error) {
	text := strings.ToLower(c.Headline + " " + c.Body)
	for _, k := range keywordDepartments {
		for _, w := range k.keywords {
			if strings.Contains(text, w) {
				return k.department, nil
			}
		}
	}
	return DefaultDepartment, nil
}
