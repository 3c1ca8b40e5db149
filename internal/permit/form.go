package permit

import (
	"strings"
	"time"

	"github.com/ukydev/workorder-safety/internal/apperr"
	"github.com/ukydev/workorder-safety/internal/models"
)

const (
	dateLayout = "2006-01-02"
	timeLayout = "15:04"
)

// OpenForm returns the initial values of a permit form. Checkboxes start
// unchecked, date and time fields start at now, other fields at their default.
func OpenForm(pt models.PermitType, now time.Time) models.FormData {
	data := make(models.FormData, len(pt.FormFields))
	for _, f := range pt.FormFields {
		switch f.Type {
		case models.FieldCheckbox:
			data[f.ID] = strings.EqualFold(f.Default, "true")
		case models.FieldDate:
			data[f.ID] = now.Format(dateLayout)
		case models.FieldTime:
			data[f.ID] = now.Format(timeLayout)
		default:
			data[f.ID] = f.Default
		}
	}
	return data
}

// Validate checks that every required field is filled in. A required checkbox
// must be checked. The error names the first missing field in form order.
func Validate(pt models.PermitType, data models.FormData) error {
	for _, f := range pt.FormFields {
		v, present := data[f.ID]
		if f.Type == models.FieldSelect && present && len(f.Options) > 0 {
			if s, ok := v.(string); ok && s != "" && !contains(f.Options, s) {
				return apperr.Validation("validate", f.ID, "%s has an invalid option %q", label(f), s)
			}
		}
		if !f.Required {
			continue
		}
		if !present || isEmpty(f.Type, v) {
			return apperr.Validation("validate", f.ID, "%s is required", label(f))
		}
	}
	return nil
}

func isEmpty(t models.FieldType, v interface{}) bool {
	if t == models.FieldCheckbox {
		b, ok := v.(bool)
		return !ok || !b
	}
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(val) == ""
	default:
		return false
	}
}

func label(f models.FormField) string {
	if f.Label != "" {
		return f.Label
	}
	return f.ID
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
