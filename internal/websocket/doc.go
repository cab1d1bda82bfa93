// Package websocket pushes report run progress to browser clients.
//
// A Hub owns the set of connected clients. Each client gets a buffered send
// queue drained by its WritePump; a client whose queue is full is dropped
// rather than allowed to stall the others. The hub implements
// pipeline.Observer, so a run's snapshots can be wired straight into it.
package websocket
