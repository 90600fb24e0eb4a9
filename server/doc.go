// Package server implements the session and streaming layer of FundMesh: a
// websocket endpoint where clients submit fund questions and receive ordered
// progress events followed by a final result, a registry of open sessions, a
// small HTTP surface for transcript history, and a coordinated start/stop
// lifecycle that is safe to drive from a foreign goroutine.
//
// Per session the state machine is Idle -> Processing -> Idle (success or
// error) or Idle -> Processing -> Closed (disconnect mid-flight, outcome
// discarded). A disconnect never cancels the in-flight invocation; its
// output is dropped and a global limiter bounds the detached work.
package server
