package driven

// Sealer is an authenticated symmetric cipher holding a process-wide key.
// Open must fail for any input that was not produced by Seal with the same key.
type Sealer interface {
	Seal(plaintext []byte) ([]byte, error)
	Open(sealed []byte) ([]byte, error)
}
