// ABOUTME: Playback package for gapless scheduled-start audio
// ABOUTME: Provides the device Timeline and the cursor-based Scheduler
// Package playback turns irregularly arriving sample buffers into a
// gapless, non-overlapping stream.
//
// The Timeline is the device clock: it counts frames rendered to the output
// and mixes buffers that were placed at absolute start frames. The Scheduler
// owns the "next start" cursor and places each buffer directly after the
// previous one, snapping forward to the device clock after a stall.
//
// Buffers are scheduled as soon as they arrive (pipelined); there is no
// wait-one-buffer sequential mode.
//
// Example:
//
//	tl := playback.NewTimeline()
//	sched := playback.NewScheduler(tl, 16000, logger)
//	sub, err := sched.Submit(buf)
package playback
