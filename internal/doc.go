// Package internal contains the implementation packages of the pagefrag CLI.
//
// # Package Organization
//
// The pipeline packages, in the order a page flows through them:
//
//   - source: template, shared assets and page content from disk
//   - renderer: placeholder substitution and page navigation
//   - escape: CDATA terminator splitting
//   - fragment: the XML envelope and its byte ceiling
//   - validator: well-formedness, schema, security and structure checks
//   - output: atomic fragment writes
//   - batch: the orchestrator, per-page results and exit codes
//
// Supporting packages:
//
//   - config: viper backed configuration and page selections
//   - errors: the shared error taxonomy
//   - logging: slog backed structured logging
//   - report: text, JSON, YAML and HTML summaries
//   - watcher: debounced file watching for incremental re-conversion
//   - version: build metadata
//
// # Failure Handling
//
// A problem with one page is recorded in its PageResult and never stops
// its siblings. Problems every page shares (template, literal assets,
// output directory, colliding output paths) abort the batch before the
// first page is processed.
package internal
