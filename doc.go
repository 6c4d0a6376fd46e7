// Package boardroom implements the core runtime for a federation of
// autonomous conversational agents: a message bus, a cross-node router,
// a stateless per-turn context builder, and the agent autonomy loop that
// ties them together.
//
// # Architecture
//
// An inbound message reaches the Router either from a local caller or
// from the Node Transport. The Router resolves the address through the
// Agent Directory and Group Registry, appends the event to the
// conversation's Append-Only Log, hands local recipients to the
// Message Bus (which wakes the Agent Runtime), and hands remote
// recipients to the Node Transport. The Agent Runtime assembles a bounded PromptView from the
// log, calls the LLM Gateway, optionally invokes the Tool Runtime, and
// routes any reply back out.
//
// Agents carry no state between turns: everything the runtime needs is
// reconstructed from the log for every turn, keyed by a content
// fingerprint so that repeated assembly is deterministic.
//
// # Using as a library
//
//	import "github.com/boardroom-dev/boardroom/pkg/company"
//
// See pkg/company for the New/CreateAgent/Send* surface.
package boardroom
