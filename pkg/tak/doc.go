// Package tak assembles the client stack: a transport connection, the
// CoT codec and the event dispatcher, behind one Client type.
//
// A Client owns its connection. Incoming frames are decoded and routed
// through the dispatcher; frames that do not parse as CoT events are
// logged and skipped so one malformed message never stalls the stream.
// Outgoing events go through SendEvent and the convenience senders
// (SendPosition, SendChat).
//
// Configuration comes from a Config value, optionally loaded from a
// YAML file with LoadConfig.
package tak
