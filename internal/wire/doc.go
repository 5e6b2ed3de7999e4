// Package wire encodes and decodes the protocol buffers the session
// layer consumes: pre-key and whisper messages, sender-key messages and
// their distribution records, and the app-state patch/snapshot records.
//
// Frames open with a version byte (high nibble current, low nibble
// minimum) and, depending on kind, close with an 8-byte truncated HMAC
// or a 64-byte signature. The protobuf payload between them is encoded
// field by field with protowire; no generated code is involved.
package wire
