// Package log provides protocol trace logging for CoT connections.
//
// Trace events are captured at three layers: the transport (raw wire
// frames and connection state), the CoT codec (decoded events and
// decode failures), and the dispatcher. Events are compact CBOR
// records suitable for long recording sessions and later replay.
//
// Applications pass a Logger into the transport and dispatcher; a nil
// logger disables tracing entirely. FileLogger writes a CBOR trace
// file, SlogAdapter mirrors events to a slog.Logger for development,
// and MultiLogger fans out to several sinks at once. Reader streams a
// trace file back with optional filtering.
package log
