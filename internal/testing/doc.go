// Package testing runs YAML test specs against MCP servers and reports the
// verdicts.
//
// ## Architecture Components
//
// ### Test Specs (spec.go)
// - Parses the agent_name / mcp_server(s) / custom_tests document
// - Validates every test and reports all problems at once
// - Resolves per-test record and replay flags against the spec defaults
//
// ### Batch Runner (runner.go)
// - Fans the servers × tests product out with errgroup
// - Bounds every call with its own timeout
// - Connects lazily, so replayed runs never start a server
// - Persists the run record through the registry store
//
// ### Validator (validator.go, schemas.go)
// - Checks, in order, the call error, expected_schema, expected_keywords
//   and expected_metrics; the first failing check decides the verdict
// - Schemas are JSON Schema documents, the built-in ExpectedTask plus any
//   *.json file in the configured schema directory
//
// ### Reporting (reporter.go)
// - Per-server lipgloss tables and a JSON results file
//
// ### Mock Server (mock_server.go)
// - Serves recorded tool responses over MCP stdio
//
// ## Usage
//
//	spec, err := testing.LoadSpec("tests/echo.yaml")
//	runner := &testing.Runner{Store: store, Schemas: testing.NewSchemaRegistry(), Dial: dial}
//	run, err := runner.Run(ctx, spec, testing.RunOptions{Override: testing.OverrideReplay})
//	testing.NewReporter(os.Stdout, false).Report(run)
package testing
