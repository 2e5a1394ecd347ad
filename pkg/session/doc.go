// ABOUTME: Session lifecycle package
// ABOUTME: Owns one pipeline instance from prepare to stop
// Package session builds the decode, schedule, bus, analyze and record graph
// for one stream and gates it behind a small state machine:
//
//	Idle --Prepare--> Prepared --Connect--> Connected --first audio--> Running
//	any --Stop--> Stopped
//
// Stop is idempotent and safe to call while a message is being handled or a
// display loop is pulling drawables. A Controller keeps at most one Session live.
package session
