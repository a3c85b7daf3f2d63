package slcan

// Line is the serial side of the engine.
type Line interface {
	// Available returns how many bytes can be read without blocking.
	Available() int
	ReadByte() (byte, error)
	Write(p []byte) (int, error)
}

// Notifier is implemented by lines that can signal incoming data instead of
// being polled.
type Notifier interface {
	// Ready is signaled when data arrives or the line fails.
	Ready() <-chan struct{}
	// Err returns the error that ended the line, if any.
	Err() error
}
