package signer

// Plaintext concatenates the two secrets. The base string is not used.
type Plaintext struct{}

func (Plaintext) Method() string { return MethodPlaintext }

func (Plaintext) Sign(_, clientSecret, credentialSecret string) (string, error) {
	return clientSecret + "&" + credentialSecret, nil
}

func (Plaintext) SecretDecode(encoded string) (string, error) {
	return SecretDecode(encoded)
}
