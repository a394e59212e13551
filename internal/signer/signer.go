package signer

// Signer signs exported scan reports
type Signer interface {
	// SignDetached creates an armored detached signature (report.json.asc)
	SignDetached(data []byte) ([]byte, error)

	// GetPublicKey returns the public key
	GetPublicKey() ([]byte, error)

	// Fingerprint identifies the signing key
	Fingerprint() string
}
