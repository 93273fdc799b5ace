// File: medilink/handlers/bundle.go
package handlers

// HandlerBundle groups all endpoint handlers into one struct.
type HandlerBundle struct {
	Emergency *EmergencyHandler
	Doctor    *DoctorHandler
	Session   *SessionHandler
	Chat      *ChatHandler
	Device    *DeviceHandler
}
