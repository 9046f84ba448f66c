// Package app holds the application services behind the HTTP API: stats
// reads and merges, incident management, and the periodic copy of
// bot-reported counters into the stats store.
package app
