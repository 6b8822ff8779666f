package models

// Parameters for column encryption. Changing any of these invalidates data
// written by earlier versions.
const (
	KeySize    = 32     // AES-256
	NonceSize  = 12     // GCM standard
	Iterations = 100000 // PBKDF2 rounds
)
