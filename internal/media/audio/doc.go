// Package audio provides local audio preparation for upload and playback.
//
// Trim shells out to ffmpeg (argument list assembled with ffmpeg-go) to cut
// reference audio down to the platform's duration ceiling before cloning.
//
// EncodeWAV and DecodeWAV convert between per-channel float samples and
// 16-bit PCM WAV streams so synthesized audio can round-trip through the
// in-memory buffer representation used by the node layer.
package audio
