package stdiorpc

//go:generate mockgen -source=channel.go -destination=mock/mock_channel.go

// Channel is a bidirectional line-oriented byte stream to a peer.
type Channel interface {
	// Write writes data in a single call.
	Write(data []byte) (int, error)

	// ReadLine blocks until a full line is available and returns it including '\n'.
	// A final fragment without '\n' is returned before io.EOF.
	ReadLine() ([]byte, error)

	// Close releases the channel. It must be safe to call more than once.
	Close() error
}
