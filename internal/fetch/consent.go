package fetch

import (
	"encoding/json"
	"fmt"
)

// consentShape is the error body the identity-aware backend returns when
// the user still needs to accept a usage agreement. Both fields must be
// present for the body to count as a consent error.
type consentShape struct {
	ErrorDescription *string `json:"error_description"`
	ResolutionURL    *string `json:"resolution_url"`
}

// TranslateConsentError inspects a failure body for the consent-required
// shape. When it matches, it returns a user-facing remediation message and
// the approval URL; otherwise ok is false and callers fall back to generic
// failure handling. A body that is not JSON is simply not a consent error.
func TranslateConsentError(body []byte) (message, resolutionURL string, ok bool) {
	var shape consentShape
	if err := json.Unmarshal(body, &shape); err != nil {
		return "", "", false
	}
	if shape.ErrorDescription == nil || shape.ResolutionURL == nil {
		return "", "", false
	}
	msg := fmt.Sprintf("Request could not be completed because you need to agree to the EULA at %s",
		*shape.ResolutionURL)
	return msg, *shape.ResolutionURL, true
}

// isConsentError reports whether the body matches the consent-required
// shape without building the message.
func isConsentError(body []byte) bool {
	_, _, ok := TranslateConsentError(body)
	return ok
}
