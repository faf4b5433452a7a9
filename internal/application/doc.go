// Package application wires the service together: the settings store, the
// carrier client and its response cache, the per-method calculators, the
// HTTP handlers and the server.
package application
