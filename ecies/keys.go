package ecies

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"

	eciesgo "github.com/ecies/go/v2"
)

// GenerateKeyPair returns a fresh key pair as JSON {"privateKey", "publicKey"}
// with hex encoded keys, the public key compressed.
func GenerateKeyPair() (string, error) {
	privKey, err := eciesgo.GenerateKey()
	if err != nil {
		return "", err
	}
	keyPair := map[string]string{
		"privateKey": privKey.Hex(),
		"publicKey":  privKey.PublicKey.Hex(true),
	}
	keyPairJSON, err := json.Marshal(keyPair)
	if err != nil {
		return "", fmt.Errorf("failed to marshal key pair to JSON: %w", err)
	}
	return string(keyPairJSON), nil
}

func PubKeyFromPrivateKey(privateKeyHex string) (string, error) {
	privateKey, err := eciesgo.NewPrivateKeyFromHex(privateKeyHex)
	if err != nil {
		return "", fmt.Errorf("failed to decode private key: %w", err)
	}
	return privateKey.PublicKey.Hex(true), nil
}

// EncryptString encrypts data to publicKeyHex. With an empty senderPrivHex an
// ephemeral sender key is used. The payload is returned base64 encoded.
func EncryptString(data, senderPrivHex, publicKeyHex string, opts ...Option) (string, error) {
	pubBytes, err := hex.DecodeString(publicKeyHex)
	if err != nil {
		return "", fmt.Errorf("failed to decode public key: %w", err)
	}
	publicKey, err := parsePublicKey(pubBytes)
	if err != nil {
		return "", err
	}
	var privateKey *eciesgo.PrivateKey
	if senderPrivHex != "" {
		if privateKey, err = eciesgo.NewPrivateKeyFromHex(senderPrivHex); err != nil {
			return "", fmt.Errorf("failed to decode private key: %w", err)
		}
	}
	encrypted, err := New(privateKey, publicKey, opts...).Encrypt([]byte(data))
	if err != nil {
		return "", fmt.Errorf("failed to encrypt data: %w", err)
	}
	return base64.StdEncoding.EncodeToString(encrypted), nil
}

// DecryptString opens a base64 payload with privateKeyHex. senderPubHex is
// only needed for payloads produced with WithNoKey.
func DecryptString(encryptedData, privateKeyHex, senderPubHex string, opts ...Option) (string, error) {
	privateKey, err := eciesgo.NewPrivateKeyFromHex(privateKeyHex)
	if err != nil {
		return "", fmt.Errorf("failed to decode private key: %w", err)
	}
	var publicKey *eciesgo.PublicKey
	if senderPubHex != "" {
		pubBytes, err := hex.DecodeString(senderPubHex)
		if err != nil {
			return "", fmt.Errorf("failed to decode public key: %w", err)
		}
		if publicKey, err = parsePublicKey(pubBytes); err != nil {
			return "", err
		}
	}
	encryptedBytes, err := base64.StdEncoding.DecodeString(encryptedData)
	if err != nil {
		return "", fmt.Errorf("failed to decode encrypted data: %w", err)
	}
	decrypted, err := New(privateKey, publicKey, opts...).Decrypt(encryptedBytes)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt data: %w", err)
	}
	return string(decrypted), nil
}
