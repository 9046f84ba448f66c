// Package relay routes messages between one bot process and any number of
// dashboard users connected over persistent connections.
//
// All relay state (the connection registry, the per-user session map and
// the singleton bot status) is owned by a single actor goroutine. Transport
// code registers a Peer, feeds raw frames with Deliver and calls Unregister
// when the connection drops; every one of those calls becomes a command on
// the actor's channel, so handlers never interleave and frames from one
// connection are handled in arrival order.
//
// A liveness sweep runs every 15 seconds and marks the bot offline when no
// heartbeat or stats report has arrived for more than 30 seconds.
package relay
