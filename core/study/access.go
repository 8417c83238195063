package study

import "github.com/telecom-etude/erp/core/user"

// IsAccessible reports whether the viewer may see the study and its MRIs:
// the study is not confidential, or the viewer sits on the executive
// board, or the viewer is an assigned CDP on the study.
//
// Every read AND write path exposed to a viewer must apply this predicate
// (or its SQL equivalent) so confidential studies never leak through
// partial queries.
func IsAccessible(viewer user.User, s Study) bool {
	if !s.Info.Confidential {
		return true
	}
	if viewer.IsExecutiveBoard() {
		return true
	}
	return IsAssignedCDP(viewer, s)
}

// IsAssignedCDP reports whether the viewer is one of the study's CDPs.
func IsAssignedCDP(viewer user.User, s Study) bool {
	for _, cdp := range s.CDPs {
		if cdp.ID == viewer.ID {
			return true
		}
	}
	return false
}
