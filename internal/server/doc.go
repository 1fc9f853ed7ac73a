// Package server implements the core WebSocket chat service for Breakroom.
//
// The implementation is organized into specialized files for configuration,
// the session store, the wire protocol, hub management, clients, routing, and
// HTTP handlers to keep the codebase maintainable and testable as the project
// grows.
package server
