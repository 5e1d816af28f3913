package roles

// Reconcile computes the minimal edge deltas that turn current into
// desired: toAdd = desired − current, toRemove = current − desired.
// Comparison is ordinal and case-sensitive; role, user and permission
// identifiers are opaque byte strings throughout the engine. Order of the
// returned slices follows the input order of desired and current
// respectively, so callers get deterministic statements.
//
// Used identically for role→user and role→permission edges, and for
// user→role assignment from the other direction.
func Reconcile(current, desired []string) (toAdd, toRemove []string) {
	currentSet := make(map[string]struct{}, len(current))
	for _, id := range current {
		currentSet[id] = struct{}{}
	}
	desiredSet := make(map[string]struct{}, len(desired))
	for _, id := range desired {
		desiredSet[id] = struct{}{}
	}

	for _, id := range desired {
		if _, ok := currentSet[id]; !ok {
			toAdd = append(toAdd, id)
			currentSet[id] = struct{}{} // dedupe repeated desired entries
		}
	}
	for _, id := range current {
		if _, ok := desiredSet[id]; !ok {
			toRemove = append(toRemove, id)
			desiredSet[id] = struct{}{}
		}
	}
	return toAdd, toRemove
}
