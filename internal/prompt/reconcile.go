// ABOUTME: Variable registry reconciliation against scanned template text
// ABOUTME: Adds entries for new placeholders and never prunes absent ones

package prompt

// Reconcile syncs a variable registry with the placeholders in content.
//
// Existing variables are returned unchanged and in their original order,
// followed by a default entry (see NewVariable) for each scanned name that
// has no registry entry yet, in scan order. Variables whose placeholder is
// no longer in content are kept so their metadata survives an edit that
// temporarily removes the placeholder. The input slice is not modified.
func Reconcile(content string, existing []Variable) []Variable {
	out := Clone(existing)
	if out == nil {
		out = []Variable{}
	}

	known := make(map[string]struct{}, len(out))
	for _, v := range out {
		known[v.Name] = struct{}{}
	}

	for _, name := range Scan(content) {
		if _, ok := known[name]; ok {
			continue
		}
		known[name] = struct{}{}
		out = append(out, NewVariable(name))
	}
	return out
}

// Stale returns the names of registered variables that content no longer
// references, in registry order. Editors use it to flag entries; nothing in
// the pipeline deletes them.
func Stale(content string, vars []Variable) []string {
	present := make(map[string]struct{})
	for _, name := range Scan(content) {
		present[name] = struct{}{}
	}

	stale := []string{}
	for _, v := range vars {
		if _, ok := present[v.Name]; !ok {
			stale = append(stale, v.Name)
		}
	}
	return stale
}
