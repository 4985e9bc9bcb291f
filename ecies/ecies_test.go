package ecies

import (
	"encoding/json"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	eciesgo "github.com/ecies/go/v2"
	"github.com/stretchr/testify/require"
)

func genKey(t *testing.T) *eciesgo.PrivateKey {
	k, err := eciesgo.GenerateKey()
	require.NoError(t, err)
	return k
}

func TestRoundTrip(t *testing.T) {
	alice, bob := genKey(t), genKey(t)
	for _, msg := range [][]byte{{}, []byte("attack at dawn"), make([]byte, 16), make([]byte, 1000)} {
		payload, err := New(alice, bob.PublicKey).Encrypt(msg)
		require.NoError(t, err)
		require.Equal(t, Magic, string(payload[:4]))
		require.Equal(t, alice.PublicKey.Bytes(true), payload[4:4+pubKeySize])

		plain, err := New(bob, alice.PublicKey).Decrypt(payload)
		require.NoError(t, err)
		require.Equal(t, msg, plain)

		// the sender key travels with the payload
		plain, err = New(bob, nil).Decrypt(payload)
		require.NoError(t, err)
		require.Equal(t, msg, plain)
	}
}

func TestEphemeralSender(t *testing.T) {
	bob := genKey(t)
	payload, err := New(nil, bob.PublicKey).Encrypt([]byte("anon"))
	require.NoError(t, err)
	plain, err := New(bob, nil).Decrypt(payload)
	require.NoError(t, err)
	require.Equal(t, "anon", string(plain))
}

func TestNoKeyShortTag(t *testing.T) {
	alice, bob := genKey(t), genKey(t)
	msg := []byte("compact")

	payload, err := New(alice, bob.PublicKey, WithNoKey(), WithShortTag()).Encrypt(msg)
	require.NoError(t, err)
	require.Len(t, payload, len(Magic)+16+shortTagSize)

	plain, err := New(bob, alice.PublicKey, WithNoKey(), WithShortTag()).Decrypt(payload)
	require.NoError(t, err)
	require.Equal(t, msg, plain)

	_, err = New(bob, nil, WithNoKey()).Decrypt(payload)
	require.ErrorIs(t, err, ErrInvalidKeys)
}

func TestBitFlipsRejected(t *testing.T) {
	alice, bob := genKey(t), genKey(t)
	for _, opts := range [][]Option{nil, {WithShortTag()}, {WithNoKey()}} {
		payload, err := New(alice, bob.PublicKey, opts...).Encrypt([]byte("integrity matters"))
		require.NoError(t, err)

		for i := range payload {
			for bit := 0; bit < 8; bit++ {
				tampered := append([]byte(nil), payload...)
				tampered[i] ^= 1 << bit
				_, err := New(bob, alice.PublicKey, opts...).Decrypt(tampered)
				require.Error(t, err, "byte %d bit %d", i, bit)
				if i >= len(Magic)+pubKeySize {
					require.ErrorIs(t, err, ErrInvalidChecksum, "byte %d bit %d", i, bit)
				}
			}
		}
	}
}

func TestDecryptMalformed(t *testing.T) {
	bob := genKey(t)
	_, err := New(bob, nil).Decrypt([]byte("BIE"))
	require.ErrorIs(t, err, ErrInvalidPayload)

	_, err = New(bob, nil).Decrypt([]byte("XXXX0000000000000000000000000000000000000000000000000000000000000"))
	require.ErrorIs(t, err, ErrInvalidMagic)

	payload, err := New(nil, bob.PublicKey).Encrypt([]byte("short"))
	require.NoError(t, err)
	_, err = New(bob, nil).Decrypt(payload[:len(Magic)+pubKeySize+3])
	require.ErrorIs(t, err, ErrInvalidPayload)

	_, err = New(nil, nil).Encrypt([]byte("x"))
	require.ErrorIs(t, err, ErrInvalidKeys)
}

func TestNewFromBtcec(t *testing.T) {
	a, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	b, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	enc, err := NewFromBtcec(a, b.PubKey())
	require.NoError(t, err)
	payload, err := enc.Encrypt([]byte("btcec"))
	require.NoError(t, err)

	dec, err := NewFromBtcec(b, a.PubKey())
	require.NoError(t, err)
	plain, err := dec.Decrypt(payload)
	require.NoError(t, err)
	require.Equal(t, "btcec", string(plain))
}

func TestStringHelpers(t *testing.T) {
	var sender, recipient map[string]string
	for _, kp := range []*map[string]string{&sender, &recipient} {
		raw, err := GenerateKeyPair()
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal([]byte(raw), kp))
	}
	pub, err := PubKeyFromPrivateKey(recipient["privateKey"])
	require.NoError(t, err)
	require.Equal(t, recipient["publicKey"], pub)

	enc, err := EncryptString("hello", "", recipient["publicKey"])
	require.NoError(t, err)
	dec, err := DecryptString(enc, recipient["privateKey"], "")
	require.NoError(t, err)
	require.Equal(t, "hello", dec)

	enc, err = EncryptString("hidden sender", sender["privateKey"], recipient["publicKey"], WithNoKey())
	require.NoError(t, err)
	dec, err = DecryptString(enc, recipient["privateKey"], sender["publicKey"], WithNoKey())
	require.NoError(t, err)
	require.Equal(t, "hidden sender", dec)

	_, err = EncryptString("x", "", "zz")
	require.Error(t, err)
}

func TestPKCS7(t *testing.T) {
	for n := 0; n < 40; n++ {
		data := make([]byte, n)
		padded := pkcs7Pad(data, 16)
		require.Zero(t, len(padded)%16)
		out, err := pkcs7Unpad(padded, 16)
		require.NoError(t, err)
		require.Equal(t, data, out)
	}
	_, err := pkcs7Unpad(make([]byte, 16), 16)
	require.ErrorIs(t, err, ErrInvalidPadding)
}
