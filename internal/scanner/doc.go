// Package scanner manages a camera-driven QR scan session.
//
// A Manager owns at most one camera stream at a time and moves through
// these states:
//
//	Uninitialized -> CamerasEnumerated -> Starting -> Scanning
//	Scanning -> Stopping -> CamerasEnumerated
//	Uninitialized | CamerasEnumerated | Starting -> Error
//
// The camera itself is reached through an Engine, which lists devices,
// attaches a decode loop to one of them and reports each frame through
// callbacks. The manager never polls frames.
//
// # Event Loop
//
// Commands (enumerate, select, start, stop, switch, close) and frame
// outcomes share one FIFO queue drained by one goroutine. This gives the
// session guarantees without further locking:
//
//   - a second Start while one is in flight is dropped, not queued
//   - Stop during acquisition waits for it to settle, then releases
//   - SwitchCamera releases the old stream before requesting the new one
//   - frames from a released session are discarded
//
// # Frame Outcomes
//
// A decoded frame is classified with qrpayload and handed to the Sink as a
// Result. A failed frame that only means "no code here" is counted and
// otherwise ignored; any other failure becomes a Warning and scanning
// continues.
//
// # Failures
//
// Enumeration and acquisition failures are returned as *ScanError carrying
// a Cause (permission_denied, no_device, device_busy, surface_missing,
// unknown). Release failures are logged, and the manager is still forced
// back to CamerasEnumerated.
package scanner
