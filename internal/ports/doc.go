// Package ports defines the interfaces (ports) that connect the application
// layer to infrastructure adapters.
//
// # Port Interfaces
//
//   - [WordFetcher]: Fetches a contiguous run of bitmap words from a remote node
//   - [Mirror]: Stores fetched words locally
//   - [CheckpointRepository]: Persists the progress of a run for resumption
//   - [Pacer]: Spaces out requests and reacts to group boundaries
//   - [Logger]: Structured logging abstraction
//
// # Usage
//
// The application layer (internal/app) depends only on these interfaces.
// Infrastructure adapters (internal/adapters) implement them with concrete
// implementations (JSON-RPC, leveldb, files, zerolog, etc.).
package ports
