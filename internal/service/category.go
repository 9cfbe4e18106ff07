package service

import (
	"strings"

	"github.com/familyhub/calendar-sync-api/internal/models"
)

// categoryKeywords are evaluated in order; the first group with a matching
// keyword wins. This is a best-effort heuristic, not a classifier with
// correctness guarantees.
var categoryKeywords = []struct {
	category models.EventCategory
	keywords []string
}{
	{models.CategorySchool, []string{"school", "class", "homework", "test", "exam", "pta", "teacher"}},
	{models.CategorySports, []string{"practice", "game", "tournament", "sport", "soccer", "basketball", "baseball"}},
	{models.CategoryBirthday, []string{"birthday", "bday"}},
	{models.CategoryWork, []string{"meeting", "work", "office"}},
}

// InferCategory labels an event from case-insensitive substring matches on
// its title and description. Events matching nothing default to family.
func InferCategory(title, description string) models.EventCategory {
	text := strings.ToLower(title + " " + description)
	for _, group := range categoryKeywords {
		for _, keyword := range group.keywords {
			if strings.Contains(text, keyword) {
				return group.category
			}
		}
	}
	return models.CategoryFamily
}
