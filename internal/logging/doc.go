// Package logging writes leveled, printf-style lines through the standard
// log package:
//
//	[INFO] [scan] indexed 120 files in 3.2s
//
// The level comes from LOG_LEVEL (debug, info, warn, error; default info),
// and DEBUG=true forces debug. SetLevel overrides both, which the CLI uses
// to keep its output quiet. Fatal always writes and exits.
//
// Components that log often take a tagged Logger from For("scan"),
// For("discovery") and so on.
package logging
