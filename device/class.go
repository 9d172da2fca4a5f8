package device

// ClassHandler answers class-specific control requests.
//
// HandleClass is called from the interrupt handler for every SETUP packet
// whose type is Class. It returns the IN response (ignored for host-to-device
// requests) and whether the request was recognized. An unrecognized request
// or a non-nil error stalls endpoint 0. The returned slice must remain valid
// until the next call.
type ClassHandler interface {
	HandleClass(setup *SetupPacket) ([]byte, bool, error)
}

// ClassHandlerFunc adapts a function to [ClassHandler].
type ClassHandlerFunc func(setup *SetupPacket) ([]byte, bool, error)

// HandleClass implements [ClassHandler].
func (f ClassHandlerFunc) HandleClass(setup *SetupPacket) ([]byte, bool, error) {
	return f(setup)
}
