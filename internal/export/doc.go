// Package export decouples span production from span delivery. Completed
// spans are buffered in a fixed-capacity queue with a drop-oldest policy
// and shipped to an OTLP collector by a single background worker, so the
// request path never waits on the network.
package export
