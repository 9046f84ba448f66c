// Package protocol defines the JSON messages exchanged over a relay
// WebSocket connection.
//
// Every frame is an object tagged by its "type" field. Inbound messages are
// sent by clients (the bot or a dashboard user) and are decoded and
// validated before the relay dispatches them; outbound messages are produced
// by the relay. The bot link client uses the same types in the opposite
// direction.
package protocol
