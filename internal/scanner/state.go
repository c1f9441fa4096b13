package scanner

// State is the lifecycle state of a Manager.
type State string

const (
	StateUninitialized     State = "uninitialized"
	StateCamerasEnumerated State = "cameras_enumerated"
	StateStarting          State = "starting"
	StateScanning          State = "scanning"
	StateStopping          State = "stopping"
	StateError             State = "error"
)

// Cause classifies why camera enumeration or acquisition failed.
type Cause string

const (
	CausePermissionDenied Cause = "permission_denied"
	CauseNoDevice         Cause = "no_device"
	CauseDeviceBusy       Cause = "device_busy"
	CauseSurfaceMissing   Cause = "surface_missing"
	CauseUnknown          Cause = "unknown"
)

// FocusMode is a focus preference applied best-effort after acquisition.
type FocusMode string

const (
	FocusNone       FocusMode = ""
	FocusContinuous FocusMode = "continuous"
	FocusAuto       FocusMode = "auto"
	FocusManual     FocusMode = "manual"
)

// ParseFocusMode accepts "", "none", "continuous", "auto" and "manual".
func ParseFocusMode(s string) (FocusMode, bool) {
	switch s {
	case "", "none":
		return FocusNone, true
	case "continuous":
		return FocusContinuous, true
	case "auto":
		return FocusAuto, true
	case "manual":
		return FocusManual, true
	}
	return FocusNone, false
}
