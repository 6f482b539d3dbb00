package archive

// Config controls the response-archive extension's behavior.
type Config struct {
	// Enabled turns the extension on.
	Enabled bool

	// Path is the SQLite database file archived responses are stored in.
	Path string

	// ThresholdBytes is the result-size cutoff above which a tools/call
	// response is archived and replaced with a pointer. Zero or a negative
	// value means DefaultThresholdBytes.
	ThresholdBytes int
}

const DefaultThresholdBytes = 8 * 1024
