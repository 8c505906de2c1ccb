package session

// ConnectionState is the presentation-facing connection status. It is mutated
// only by the event router and the controller.
type ConnectionState string

const (
	StateIdle         ConnectionState = "idle"
	StateConnecting   ConnectionState = "connecting"
	StateListening    ConnectionState = "listening"
	StateSpeaking     ConnectionState = "speaking"
	StateProcessing   ConnectionState = "processing"
	StateError        ConnectionState = "error"
	StateDisconnected ConnectionState = "disconnected"
)

// Lifecycle is the controller's internal phase. The presentation layer sees
// ConnectionState; Lifecycle gates start/stop.
type Lifecycle string

const (
	LifecycleIdle       Lifecycle = "idle"
	LifecycleConnecting Lifecycle = "connecting"
	LifecycleActive     Lifecycle = "active"
	LifecycleEnded      Lifecycle = "ended"
	LifecycleError      Lifecycle = "error"
)
