package event

// SentinelDeviceID is used when the camera name has no entry in the
// device table. Startup proceeds; the backend sees the sentinel.
const SentinelDeviceID = "UNDEFINE_SCO_ID"

// Static camera-to-device table of the simulated store.
var cameraDevices = map[string]string{
	"cam1":  "CFRW1CSCOPO6776",
	"cam2":  "CFRW1CSCOPO6541",
	"cam3":  "CFRW1CSCOPO1189",
	"cam4":  "CFRW1CSCOPO6592",
	"cam5":  "CFRW1CSCOPO6591",
	"cam6":  "CFRW1CSCOPO6744",
	"cam7":  "CFRW1CSCOPO6714",
	"cam8":  "CFRW1CSCOPO8300",
	"cam9":  "CFRW1CSCOPO1007",
	"cam10": "CFRW1CSCOPO8209",
	"cam11": "CFRW1CSCOPO8208",
}

// ResolveDevice maps a camera name to its device id, falling back to the
// sentinel. Resolved once at startup.
func ResolveDevice(cameraName string) string {
	if id, ok := cameraDevices[cameraName]; ok {
		return id
	}
	return SentinelDeviceID
}
