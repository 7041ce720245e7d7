// Package scripts bundles the Risor report scripts shipped with lucid.
package scripts

import "embed"

// FS holds lib_graph.risor and the scripts under report/.
//
//go:embed lib_graph.risor report/*.risor
var FS embed.FS
