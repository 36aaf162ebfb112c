package model

// File is one uploaded file handed to the upload coordinator.
type File struct {
	Name        string
	ContentType string
	Data        []byte

	// Truncated marks a payload the reader stopped short of; Data is partial.
	Truncated bool
}

// Size returns the payload length in bytes.
func (f File) Size() int { return len(f.Data) }
