package types

import "fmt"

// IsValid checks if the severity is one of the defined levels.
func (s Severity) IsValid() bool {
	return s <= SeverityUnrecoverable
}

// IsValid checks if the reason is one of the defined background origins.
func (r Reason) IsValid() bool {
	return r <= ReasonAutoRecovery
}

// MaxSeverity returns the more severe of a and b.
func MaxSeverity(a, b Severity) Severity {
	if a > b {
		return a
	}
	return b
}

// ParseReason returns the Reason whose String form is name.
func ParseReason(name string) (Reason, error) {
	for r := ReasonWriteCallback; r <= ReasonAutoRecovery; r++ {
		if r.String() == name {
			return r, nil
		}
	}
	return 0, fmt.Errorf("unknown reason %q", name)
}
