package enums

import "fmt"

// CustomFieldType controls how a buyer-supplied custom field answer is coerced.
type CustomFieldType string

const (
	CustomFieldTypeText     CustomFieldType = "text"
	CustomFieldTypeCheckbox CustomFieldType = "checkbox"
	CustomFieldTypeTerms    CustomFieldType = "terms"
)

var validCustomFieldTypes = []CustomFieldType{
	CustomFieldTypeText,
	CustomFieldTypeCheckbox,
	CustomFieldTypeTerms,
}

// IsValid reports whether the value is known.
func (c CustomFieldType) IsValid() bool {
	for _, candidate := range validCustomFieldTypes {
		if candidate == c {
			return true
		}
	}
	return false
}

// IsBoolean reports whether answers are stored as booleans.
func (c CustomFieldType) IsBoolean() bool {
	return c == CustomFieldTypeCheckbox || c == CustomFieldTypeTerms
}

// ParseCustomFieldType converts raw input into a CustomFieldType.
func ParseCustomFieldType(value string) (CustomFieldType, error) {
	for _, candidate := range validCustomFieldTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid custom field type %q", value)
}
