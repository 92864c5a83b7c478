package sqlutil

import (
	libinjection "github.com/corazawaf/libinjection-go"
)

// InjectionCheckResult describes a value that tripped the injection detector.
type InjectionCheckResult struct {
	IsSQLi      bool   // True if a SQL injection pattern was detected
	Fingerprint string // libinjection fingerprint of the detected pattern
	Name        string // Name of the value that failed the check
	Value       any    // The value that was checked
}

// CheckValueForInjection uses libinjection to detect SQL injection patterns
// in a value bound for a raw statement. Only string values are checked;
// numbers and booleans cannot carry injection payloads and return nil.
func CheckValueForInjection(name string, value any) *InjectionCheckResult {
	strValue, ok := value.(string)
	if !ok {
		return nil
	}

	isSQLi, fingerprint := libinjection.IsSQLi(strValue)
	if isSQLi {
		return &InjectionCheckResult{
			IsSQLi:      true,
			Fingerprint: string(fingerprint),
			Name:        name,
			Value:       value,
		}
	}

	return nil
}
