// Package processor defines the query processing boundary of FundMesh and its
// default implementation. The Processor interface models a long-running,
// cancellable invocation that pushes intermediate progress strings to a sink
// and eventually returns a final answer. Advisor implements it as a bounded
// tool-calling loop: a chat model reasons over the question while MCP tools
// supply live fund data, until the model emits a plain answer.
package processor
