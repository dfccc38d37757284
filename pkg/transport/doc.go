// Package transport provides the socket layer for CoT connections.
//
// The transport layer handles:
//   - TCP, UDP and TLS-over-TCP sessions to a CoT server
//   - Reassembly of XML event messages from the byte stream
//   - Connection state management and statistics
//   - Periodic self-report beaconing
//
// # Protocol Stack
//
//	┌────────────────────────────────┐
//	│      CoT XML Events            │
//	├────────────────────────────────┤
//	│   Stream Framing (element or   │
//	│   newline delimited)           │
//	├────────────────────────────────┤
//	│   TLS 1.2+ (optional, mutual)  │
//	├────────────────────────────────┤
//	│        TCP / UDP               │
//	└────────────────────────────────┘
//
// # Framing
//
// CoT servers disagree on message delimiting: most terminate each
// event with a newline, some rely on the receiver finding the
// balanced close of the top-level <event> element. The Framer
// supports both, defaulting to element-boundary scanning which
// handles either style.
//
// # TLS
//
// Deployed CoT servers are typically private-network installations
// with self-signed certificates and, frequently, dated cipher
// support. The TLS configuration therefore defaults to accepting the
// server certificate without verification (TrustAcceptAll) and can be
// widened to TLS 1.0 with legacy AES-CBC suites via AllowLegacy.
// Both behaviors are explicit flags so security-sensitive deployments
// can opt out.
package transport
