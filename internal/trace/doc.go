// Package trace implements the explicit trace context and span lifecycle
// used across the gateway, LLM, and vector store services.
//
// Context is never ambient: every downstream call and every span-opening
// operation receives a Context value explicitly. Completed spans are
// handed to a sink (the export queue) and become immutable.
package trace
