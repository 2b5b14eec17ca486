// Package memory provides in-memory stores for development and tests.
package memory
