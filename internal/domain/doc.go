// Package domain defines the core domain types and interfaces.
//
// Concept-oriented files (bot.go, session.go, stats.go, incident.go, errors.go) hold the shared
// types and the repository contracts. No implementation code - just contracts.
package domain
