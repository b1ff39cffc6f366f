// Package port runs the per-port protocol state machine: role election,
// master emission, slave measurement and the delay exchanges.
//
// # States
//
// A port is in exactly one of six states, modeled as a sealed sum type:
// Listening, PreMaster, Master, Passive, Uncalibrated and Slave. The
// following pair, Uncalibrated and Slave, carries the identity of the
// parent port being tracked. Transitions are computed by a pure function
// from the current state and one event; the effects of a transition come
// back as data and are executed by the shell against the datasets, the
// filter and the timer set. Election outcomes feed in from the bmca
// package on every accepted Announce and on every receipt timeout.
//
// A port elected master qualifies in PreMaster for one announce interval
// per step removed before emitting. A receipt timeout with no candidates
// left promotes the port directly, or returns it to Listening on a
// slave-only clock.
//
// # Driving the Port
//
// The receive side is sans-I/O. The surrounding runtime reads datagrams
// from its transport and feeds them to HandlePacket together with their
// ingress timestamps; it drives time by calling Tick with the current
// time whenever NextDeadline has passed. Sends go directly to the
// transport handed to New. All methods of a Port must be called from one
// serialized context.
//
// # Measurement
//
// A master emits two-step Sync: the event message is timestamped on
// egress and the precise value travels in the FollowUp. A slave pairs
// Sync with FollowUp to compute (t2 - t1) - corrections, combines it with
// the delay exchange to form offset and mean path delay, and feeds each
// accepted pair to the measurement filter. The end-to-end exchange asks
// the master directly; the peer-to-peer exchange measures the link to the
// immediate neighbor and runs in every state, so a P2P port already knows
// its link delay when it starts following.
//
// # Security
//
// With an SPI configured, outbound messages are signed and inbound
// messages must verify against the security provider before any state
// machine processing. Messages that fail verification are dropped and
// logged, never processed.
package port
