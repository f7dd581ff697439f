// Package logging provides file-based logging with rotation for
// semtools. Every CLI command writes JSON logs to ~/.semtools/logs/ at
// info level; the --debug flag lowers the level to debug. The CLI does
// not write log records to stderr.
package logging
