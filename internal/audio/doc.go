// Package audio decodes streamed MP3 audio and plays it through the system
// audio device using oto/v3. A Pipeline accepts encoded chunks as they
// arrive from the network, keeps the decoded samples in memory and reports
// the playback position as the device consumes them.
package audio
