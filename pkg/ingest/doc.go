// ABOUTME: Stream ingestion package
// ABOUTME: Parses transport records and reads them off a websocket
// Package ingest extracts base64 audio payloads from the inbound stream.
//
// Two record shapes carry audio:
//
//	{"bufferBase64": "..."}
//	{"msg": {"data": {"data": {"buffer": "..."}}}}
//
// Records with neither are heartbeats or control messages and are ignored.
// Anything that is not a JSON object is malformed.
package ingest
