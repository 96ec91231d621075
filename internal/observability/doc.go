// Package observability provides structured logging and Prometheus metrics
// shared by the gateway, LLM, and vector store services.
package observability
