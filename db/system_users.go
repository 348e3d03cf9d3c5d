package db

// System User UUIDs for automated actions
// These correspond to system users created by the initial migration
const (
	// SystemUserGrafana represents Grafana alerting
	SystemUserGrafana = "00000000-0000-0000-0000-000000000001"

	// SystemUserSLAWorker represents the SLA escalation worker
	SystemUserSLAWorker = "00000000-0000-0000-0000-000000000002"

	// SystemUserScheduler represents the report scheduler
	SystemUserScheduler = "00000000-0000-0000-0000-000000000003"

	// SystemUserAPI represents API system actions
	SystemUserAPI = "00000000-0000-0000-0000-000000000004"
)

// GetSystemUserBySource returns the appropriate system user ID based on case source
func GetSystemUserBySource(source string) string {
	switch source {
	case CaseSourceGrafana:
		return SystemUserGrafana
	case CaseSourceAPI:
		return SystemUserAPI
	default:
		return SystemUserAPI
	}
}
