// Package logging configures structured slog output for shardsearch
// processes. Shards and the coordinator log JSON lines to a rotating file
// under ~/.shardsearch/logs/ and, unless running as an MCP stdio server,
// to stderr as well.
package logging
