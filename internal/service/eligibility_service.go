package service

import (
	"strings"

	"github.com/amanar-edu/carnet-api/internal/models"
	"github.com/amanar-edu/carnet-api/pkg/templatestore"
)

// Category is a language-specific completion bucket derived from template
// content.
type Category string

// Completion categories.
const (
	CategoryArabic     Category = "arabic"
	CategoryEnglish    Category = "english"
	CategoryPolyvalent Category = "polyvalent"
)

// categoryOrder fixes the presentation order of derived categories.
var categoryOrder = []Category{CategoryArabic, CategoryEnglish, CategoryPolyvalent}

// CategoryStatus reports, for one required category, which teachers are
// responsible and how far their completions have progressed.
type CategoryStatus struct {
	Category   Category `json:"category"`
	TeacherIDs []uint   `json:"teacher_ids"`
	Sem1Done   bool     `json:"sem1_done"`
	Sem2Done   bool     `json:"sem2_done"`
}

// EligibilityEvaluator derives the categories a carnet requires and decides
// whether teacher completions satisfy a requested signature type.
type EligibilityEvaluator struct{}

// NewEligibilityEvaluator constructs the evaluator.
func NewEligibilityEvaluator() EligibilityEvaluator {
	return EligibilityEvaluator{}
}

// ClassifyLanguage maps a language code or label onto its category.
func ClassifyLanguage(code, label string) Category {
	normalizedCode := strings.ToLower(strings.TrimSpace(code))
	normalizedLabel := strings.ToLower(strings.TrimSpace(label))

	switch {
	case normalizedCode == "ar" || strings.Contains(normalizedLabel, "arabe") || strings.Contains(normalizedLabel, "arabic"):
		return CategoryArabic
	case normalizedCode == "en" || strings.Contains(normalizedLabel, "anglais") || strings.Contains(normalizedLabel, "english"):
		return CategoryEnglish
	default:
		return CategoryPolyvalent
	}
}

// RequiredCategories scans the template's language toggle blocks and returns
// the categories that apply at the student's level. An empty result means the
// carnet needs no category gating.
func (e EligibilityEvaluator) RequiredCategories(template templatestore.Template, level string) []Category {
	found := make(map[Category]bool)
	for _, block := range template.Blocks {
		toggle, ok := block.LanguageToggle()
		if !ok {
			continue
		}
		for _, item := range toggle.Items {
			if !itemAppliesToLevel(item, level) {
				continue
			}
			found[ClassifyLanguage(item.Code, item.Label)] = true
		}
	}

	categories := make([]Category, 0, len(found))
	for _, category := range categoryOrder {
		if found[category] {
			categories = append(categories, category)
		}
	}
	return categories
}

// ResponsibleTeachers resolves which teachers answer for a category on the
// carnet's class. When the class has no links at all, the carnet's directly
// assigned teachers answer for every category.
func (e EligibilityEvaluator) ResponsibleTeachers(links []models.TeacherClassLink, category Category, assignedTeacherIDs []uint) []uint {
	if len(links) == 0 {
		return append([]uint(nil), assignedTeacherIDs...)
	}

	var teacherIDs []uint
	for _, link := range links {
		if linkCoversCategory(link, category) {
			teacherIDs = append(teacherIDs, link.TeacherID)
		}
	}
	return teacherIDs
}

// CategoryStatuses builds the per-category progress rows for a carnet.
func (e EligibilityEvaluator) CategoryStatuses(categories []Category, links []models.TeacherClassLink, assignedTeacherIDs []uint, completions []models.TeacherCompletion) []CategoryStatus {
	byTeacher := completionIndex(completions)

	statuses := make([]CategoryStatus, 0, len(categories))
	for _, category := range categories {
		teacherIDs := e.ResponsibleTeachers(links, category, assignedTeacherIDs)
		status := CategoryStatus{Category: category, TeacherIDs: teacherIDs}
		for _, teacherID := range teacherIDs {
			completion, ok := byTeacher[teacherID]
			if !ok {
				continue
			}
			if completion.DoneForSemester(1) {
				status.Sem1Done = true
			}
			if completion.DoneForSemester(2) {
				status.Sem2Done = true
			}
		}
		statuses = append(statuses, status)
	}
	return statuses
}

// EligibleFor reports whether the carnet can take a signature of the given
// type. A completed or signed status is an authoritative override; otherwise
// every required category must be complete for the type's semester.
func (e EligibilityEvaluator) EligibleFor(assignment models.CarnetAssignment, statuses []CategoryStatus, sigType models.SignatureType) bool {
	if assignment.Status.ReviewReady() {
		return true
	}

	for _, status := range statuses {
		if sigType == models.SignatureTypeEndOfYear {
			if !status.Sem2Done {
				return false
			}
			continue
		}
		if !status.Sem1Done {
			return false
		}
	}
	return true
}

func itemAppliesToLevel(item templatestore.ToggleItem, level string) bool {
	if len(item.Levels) == 0 {
		return true
	}
	for _, restricted := range item.Levels {
		if strings.EqualFold(restricted, level) {
			return true
		}
	}
	return false
}

// linkCoversCategory decides responsibility: declared languages answer for
// their own category, generalist or language-less links answer for the
// polyvalent bucket.
func linkCoversCategory(link models.TeacherClassLink, category Category) bool {
	if category == CategoryPolyvalent {
		if link.IsGeneralist || len(link.Languages) == 0 {
			return true
		}
		for _, language := range link.Languages {
			if ClassifyLanguage(language, language) == CategoryPolyvalent {
				return true
			}
		}
		return false
	}

	for _, language := range link.Languages {
		if ClassifyLanguage(language, language) == category {
			return true
		}
	}
	return false
}

func completionIndex(completions []models.TeacherCompletion) map[uint]models.TeacherCompletion {
	index := make(map[uint]models.TeacherCompletion, len(completions))
	for _, completion := range completions {
		index[completion.TeacherID] = completion
	}
	return index
}
