package models

// Role identifies the kind of work a task carries. Dispatch to an execution
// capability is keyed on the role.
type Role string

const (
	// RoleArchitect designs the approach before implementation.
	RoleArchitect Role = "architect"
	// RoleCoder produces the implementation.
	RoleCoder Role = "coder"
	// RoleReviewer critiques produced work.
	RoleReviewer Role = "reviewer"
	// RoleTester writes and evaluates tests.
	RoleTester Role = "tester"
	// RoleDocumenter writes documentation for produced work.
	RoleDocumenter Role = "documenter"
	// RoleDebugger diagnoses reported failures.
	RoleDebugger Role = "debugger"
	// RoleSecurity audits produced work for vulnerabilities.
	RoleSecurity Role = "security"
	// RoleOutputReviewer reviews a team's assembled output against the objective.
	RoleOutputReviewer Role = "output_reviewer"
	// RoleTaskVerifier verifies a single task's output against its requirements.
	RoleTaskVerifier Role = "task_verifier"
)

// Valid returns true if the role is a known value.
func (r Role) Valid() bool {
	switch r {
	case RoleArchitect, RoleCoder, RoleReviewer, RoleTester, RoleDocumenter,
		RoleDebugger, RoleSecurity, RoleOutputReviewer, RoleTaskVerifier:
		return true
	default:
		return false
	}
}

// AllRoles returns every known role in a stable order.
func AllRoles() []Role {
	return []Role{
		RoleArchitect, RoleCoder, RoleReviewer, RoleTester, RoleDocumenter,
		RoleDebugger, RoleSecurity, RoleOutputReviewer, RoleTaskVerifier,
	}
}
