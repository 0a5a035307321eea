// Command indexctl manages a photo-indexer data directory from the shell.
//
// It opens the same index, settings and thumbnail cache as the server, so
// it must not run against a DATA_DIR a live server is scanning.
//
// Usage:
//
//	indexctl <command> [arguments]
//
// Commands:
//
//	folders list|add <path>|rm <id>   Manage watched folders.
//	ignore  list|add <path>|rm <id>   Manage ignored folders.
//	scan    [folder...]               Index every watched folder, or only
//	                                  the given ones. Renders a progress bar
//	                                  when stdout is a terminal.
//	search  <field> <op> <value>...   Run a search; triples are ANDed.
//	status  Show index counts and the last completed scan.
//
// Environment:
//
//	DATA_DIR - Data directory (default: $XDG_DATA_HOME/photo-indexer or ./data)
package main
