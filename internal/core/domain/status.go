package domain

// CredentialStatus is the result of the last credential validation of a tenant.
type CredentialStatus string

const (
	// CredentialUnknown means the credentials have never been checked.
	CredentialUnknown CredentialStatus = "unknown"
	// CredentialValid means the last check obtained a token successfully.
	CredentialValid CredentialStatus = "valid"
	// CredentialInvalid means the last check was rejected by the identity provider.
	CredentialInvalid CredentialStatus = "invalid"
)

// CredentialStatuses lists every credential status.
func CredentialStatuses() []CredentialStatus {
	return []CredentialStatus{CredentialUnknown, CredentialValid, CredentialInvalid}
}

// ParseCredentialStatus maps a server value to a CredentialStatus.
// Empty or unrecognised values map to CredentialUnknown.
func ParseCredentialStatus(s string) CredentialStatus {
	switch CredentialStatus(s) {
	case CredentialValid:
		return CredentialValid
	case CredentialInvalid:
		return CredentialInvalid
	case CredentialUnknown:
		return CredentialUnknown
	default:
		return CredentialUnknown
	}
}

// Label returns the operator-facing label.
func (s CredentialStatus) Label() string {
	switch s {
	case CredentialValid:
		return "credentials valid"
	case CredentialInvalid:
		return "credentials invalid"
	case CredentialUnknown:
		return "not checked"
	default:
		return "not checked"
	}
}

// SpoStatus is the SharePoint Online availability of a tenant.
type SpoStatus string

const (
	// SpoUnknown means availability has never been checked, or the check
	// returned an unexpected upstream status.
	SpoUnknown SpoStatus = "unknown"
	// SpoAvailable means the root site drive is reachable.
	SpoAvailable SpoStatus = "available"
	// SpoUnavailable means the root site exists but is not usable.
	SpoUnavailable SpoStatus = "unavailable"
	// SpoNoSubscription means the tenant has no SharePoint Online licence.
	SpoNoSubscription SpoStatus = "no_subscription"
	// SpoError means the check itself failed.
	SpoError SpoStatus = "error"
)

// SpoStatuses lists every SPO status.
func SpoStatuses() []SpoStatus {
	return []SpoStatus{SpoUnknown, SpoAvailable, SpoUnavailable, SpoNoSubscription, SpoError}
}

// ParseSpoStatus maps a server value to a SpoStatus.
// Empty or unrecognised values map to SpoUnknown.
func ParseSpoStatus(s string) SpoStatus {
	switch SpoStatus(s) {
	case SpoAvailable:
		return SpoAvailable
	case SpoUnavailable:
		return SpoUnavailable
	case SpoNoSubscription:
		return SpoNoSubscription
	case SpoError:
		return SpoError
	case SpoUnknown:
		return SpoUnknown
	default:
		return SpoUnknown
	}
}

// Label returns the operator-facing label.
func (s SpoStatus) Label() string {
	switch s {
	case SpoAvailable:
		return "SPO available"
	case SpoUnavailable:
		return "SPO unavailable"
	case SpoNoSubscription:
		return "no SPO subscription"
	case SpoError:
		return "SPO check failed"
	case SpoUnknown:
		return "SPO not checked"
	default:
		return "SPO not checked"
	}
}

// Checked reports whether a check has produced a definite result.
func (s SpoStatus) Checked() bool {
	return s != SpoUnknown && s != ""
}
