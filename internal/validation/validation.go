package validation

import "strings"

type Violations map[string]string

func (v Violations) Empty() bool { return len(v) == 0 }

// Basic validators
func Required(field, value string, v Violations) {
	if strings.TrimSpace(value) == "" {
		v[field] = "required"
	}
}

func PositiveInt(field string, val int, v Violations) {
	if val <= 0 {
		v[field] = "must_be_positive"
	}
}

func MaxLen(field, value string, max int, v Violations) {
	if len(value) > max {
		v[field] = "too_long"
	}
}

// Alphanumeric rejects values containing anything besides ASCII letters and digits.
func Alphanumeric(field, value string, v Violations) {
	for _, r := range value {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			v[field] = "must_be_alphanumeric"
			return
		}
	}
}
