// Package params expands template nodes into invocations.
//
// A template declares argument sources (inline CSV, CSV files, literal values or any
// ArgumentSource registered programmatically). The Provider concatenates them into a
// lazy Stream; each argument set is validated against the template's parameters,
// named with the display name pattern and handed to the engine as an
// extension.Invocation with its own child scope.
//
// Display name patterns understand these tokens:
//
//	{index}                   1-based invocation counter
//	{displayName}             the template's display name
//	{default_display_name}    the configured default pattern
//	{arguments}               every argument, comma separated
//	{arguments.description}   the argument set's description
//	{0}, {1}, ...             one argument
//
// Text between single quotes is literal; two single quotes render one.
package params
