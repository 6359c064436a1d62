// Channel moderation rules engine.
//
// This package (`github.com/castmod/castmod/automod`) evaluates configurable rule groups against users requesting to join a channel and against new casts in the channel, and applies the resulting moderation actions: hiding casts, cooldowns, mutes, and invites. Channel leads compose rules from a fixed set of rule types (see `automod/rules`) in to nested AND/OR groups, each rule optionally inverted. Many rules consult external services (webhooks, the social network API, EVM RPC nodes); the engine bounds each of those calls and resolves failures with the rule's failure mode, so a slow or broken dependency never blocks or aborts an evaluation.
//
// See `cmd/castmod` for a daemon built on this package.
package automod
