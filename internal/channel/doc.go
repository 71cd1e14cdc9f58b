// Package channel implements a long-lived duplex message channel between a
// controller process and a game process.
//
// Messages are JSON objects, one per line. A Session owns a single
// Transport and runs two goroutines against it: a reader that decodes frames
// and hands them to a Handler, and a writer that sends periodic heartbeats and
// any queued outbound messages. Either goroutine ending on a transport fault
// tears the whole Session down.
//
// Server and Client sequence Sessions over time. The server accepts one peer
// at a time on a named pipe or TCP endpoint and re-listens when the peer goes
// away; the client retries Connect on a fixed interval until it succeeds or
// its context is cancelled.
package channel
