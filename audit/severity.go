package audit

// Severity grades an event for the canonical hash and for operators.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

var actionSeverity = map[Action]Severity{
	ActionSQLInjection:       SeverityCritical,
	ActionBruteForceDetected: SeverityHigh,
	ActionXSS:                SeverityHigh,
	ActionIPBlocked:          SeverityHigh,
	ActionCSRF:               SeverityMedium,
	ActionSuspiciousActivity: SeverityMedium,
	ActionAccountLocked:      SeverityMedium,
	ActionSecurityEvent:      SeverityMedium,
	ActionAccessDenied:       SeverityMedium,
	ActionSystemError:        SeverityMedium,
	ActionRoleChanged:        SeverityMedium,
	ActionUserDeleted:        SeverityMedium,
	ActionBackupRestored:     SeverityMedium,
	ActionPasswordChange:     SeverityLow,
	ActionLogin:              SeverityLow,
	ActionLogout:             SeverityLow,
	ActionProfileUpdate:      SeverityLow,
	ActionSessionCreated:     SeverityLow,
	ActionSessionExpired:     SeverityLow,
	ActionTokenRefresh:       SeverityLow,
	ActionAccountUnlocked:    SeverityLow,
	ActionUserCreated:        SeverityLow,
	ActionSettingsChanged:    SeverityLow,
	ActionBackupCreated:      SeverityLow,
	ActionIPUnblocked:        SeverityLow,
}

// SeverityOf derives severity from action and status only. A failed low-severity
// action is raised to medium; a detected medium-severity action is raised to high.
func SeverityOf(action Action, status Status) Severity {
	sev, ok := actionSeverity[action]
	if !ok {
		sev = SeverityMedium
	}
	switch {
	case status == StatusFailure && sev == SeverityLow:
		return SeverityMedium
	case status == StatusDetected && sev == SeverityMedium:
		return SeverityHigh
	}
	return sev
}
