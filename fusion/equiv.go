package fusion

import "github.com/nickng/loopfuse/loop"

// ControlEquivalent returns true if l1 runs exactly when l2 runs.
//
// Guarded loops must be guarded by identical computations. Unguarded loops
// must have l1's header dominate l2's header, and l2's header post-dominate
// l1's header.
func ControlEquivalent(a *Analysis, l1, l2 *loop.Loop) bool {
	ok, _ := controlEquivalent(a, l1, l2)
	return ok
}

func controlEquivalent(a *Analysis, l1, l2 *loop.Loop) (bool, string) {
	g1, guarded1 := FindGuard(a, l1)
	g2, guarded2 := FindGuard(a, l2)
	switch {
	case guarded1 && guarded2:
		if !a.Func.Identical(g1.Cond, g2.Cond) {
			return false, "guard conditions are not identical"
		}
		return true, ""
	case !guarded1 && !guarded2:
		h1, h2 := l1.Header(), l2.Header()
		if !a.Dom.Dominates(h1, h2) {
			return false, "header of L1 does not dominate header of L2"
		}
		if !a.PostDom.Dominates(h2, h1) {
			return false, "header of L2 does not post-dominate header of L1"
		}
		return true, ""
	}
	return false, "one loop is guarded, the other is not"
}
