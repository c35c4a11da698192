// Package server exposes the orchestration runtime over HTTP: submit a
// task, poll its status, inspect its checkpoints, and manage its dead
// letter queue. It wraps an orchestrator.Orchestrator and a
// storage.Adapter behind a chi router, with the graceful-shutdown
// lifecycle (Start/Wait/Stop, SIGINT/SIGTERM handling) the reference
// server used for its A2A surface, rebuilt around this module's
// task/checkpoint/dlq types. It does not reload its configuration while
// running.
package server
