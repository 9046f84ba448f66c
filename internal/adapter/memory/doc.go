// Package memory provides in-process Stats and Incident repositories used
// when no DATABASE_URL is configured, and as fakes in tests.
package memory
