package analyst

import "fmt"

// ProviderID represents a unique provider identifier.
type ProviderID string

// Known provider identifiers
const (
	// ProviderAnthropic is Anthropic's Messages API
	ProviderAnthropic ProviderID = "anthropic"

	// ProviderLorem is the scripted mock provider for demos and tests
	ProviderLorem ProviderID = "lorem"
)

// String returns the string representation of the provider ID
func (p ProviderID) String() string {
	return string(p)
}

// IsValid returns true if the provider ID is a known provider
func (p ProviderID) IsValid() bool {
	switch p {
	case ProviderAnthropic, ProviderLorem:
		return true
	default:
		return false
	}
}

// ParseProviderID converts a configured name into a ProviderID.
func ParseProviderID(name string) (ProviderID, error) {
	id := ProviderID(name)
	if !id.IsValid() {
		return "", &ValidationError{
			Field:  "provider",
			Value:  name,
			Reason: fmt.Sprintf("must be %q or %q", ProviderAnthropic, ProviderLorem),
			Err:    ErrInvalidRequest,
		}
	}
	return id, nil
}
