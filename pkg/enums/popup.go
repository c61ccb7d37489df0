package enums

import "fmt"

// PopupType maps to the popups.type column.
type PopupType string

const (
	PopupTypeOptIn     PopupType = "OPT_IN"
	PopupTypeSpinWheel PopupType = "SPIN_WHEEL"
)

var validPopupTypes = []PopupType{
	PopupTypeOptIn,
	PopupTypeSpinWheel,
}

// String implements fmt.Stringer.
func (p PopupType) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PopupType.
func (p PopupType) IsValid() bool {
	for _, candidate := range validPopupTypes {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePopupType converts raw input into a PopupType.
func ParsePopupType(value string) (PopupType, error) {
	for _, candidate := range validPopupTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid popup type %q", value)
}
