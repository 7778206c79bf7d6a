package types

const secretMask = "***REDACTED***"

// SecretString holds a sensitive value (API key, connection string, signing
// secret) and masks it everywhere it could leak by accident: fmt verbs via
// String, and JSON output via MarshalJSON. Call Unmask only at the point the
// plaintext is actually consumed, such as building an Authorization header
// or opening a database connection.
type SecretString string

func (s SecretString) String() string {
	return secretMask
}

func (s SecretString) MarshalJSON() ([]byte, error) {
	return []byte(`"` + secretMask + `"`), nil
}

// Unmask returns the plaintext value.
func (s SecretString) Unmask() string {
	return string(s)
}
