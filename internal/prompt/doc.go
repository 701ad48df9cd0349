// Package prompt implements the template variable pipeline used by the
// console: scanning placeholders out of template text, reconciling the
// variable registry against that text, and rendering previews.
//
// # Placeholder Syntax
//
// A placeholder is `{{` followed by one or more characters other than `}`
// and then `}}`. The name is the inner text with surrounding whitespace
// trimmed, so `{{ user name }}` names the variable "user name".
//
// # Pipeline
//
//   - Scan: ordered, de-duplicated placeholder names in first-occurrence order
//   - Reconcile: appends registry entries for newly scanned names and keeps
//     every existing entry, including ones no longer referenced
//   - Render: substitutes values, then defaults, then a visible [name] marker
//
// Every function here is pure and never fails. Registry edits that can be
// rejected (rename, add) return errors that callers surface to the user.
//
// # Usage
//
//	vars := prompt.Reconcile(tmpl.Content, tmpl.Variables)
//	out := prompt.Render(tmpl.Content, vars, map[string]string{"name": "Ann"})
package prompt
