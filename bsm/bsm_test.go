package bsm

import (
	"bytes"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/stretchr/testify/require"
)

const (
	testWIF     = "KzmFJcMXHufPNHixgHNwXBt3mHpErEUG6WFbmuQdy525DezYAi82"
	testAddress = "1ACLHVPVnB8AmLCyD5hPQtPCSCccjiUn7H"
	// Signature of "hello sigma" by testWIF, produced outside this package.
	testSignature = "ILtQ4tiaTtcGY9CAZZ/grUubw+BsF6InQzlmy1nO7gINZ37LRxf45Ew71yFq2OLfq3Wk4bHj3BFtc8stpozlLAA="
)

func testKey(t *testing.T) *btcec.PrivateKey {
	wif, err := btcutil.DecodeWIF(testWIF)
	require.NoError(t, err)
	return wif.PrivKey
}

func TestVarIntLengthClasses(t *testing.T) {
	cases := []struct {
		n      uint64
		size   int
		prefix byte
	}{
		{0, 1, 0x00},
		{252, 1, 0xfc},
		{253, 3, 0xfd},
		{65535, 3, 0xfd},
		{65536, 5, 0xfe},
		{4294967295, 5, 0xfe},
		{4294967296, 9, 0xff},
	}
	for _, c := range cases {
		var buf bytes.Buffer
		writeVarInt(&buf, c.n)
		require.Len(t, buf.Bytes(), c.size, "value %d", c.n)
		require.Equal(t, c.prefix, buf.Bytes()[0], "value %d", c.n)
	}
}

func TestMessageHashFraming(t *testing.T) {
	for _, n := range []int{0, 252, 253, 70000} {
		msg := bytes.Repeat([]byte{'a'}, n)

		var framed []byte
		framed = append(framed, byte(len(MessageMagic)))
		framed = append(framed, MessageMagic...)
		switch {
		case n <= 252:
			framed = append(framed, byte(n))
		case n <= 0xffff:
			framed = append(framed, 0xfd, byte(n), byte(n>>8))
		default:
			framed = append(framed, 0xfe, byte(n), byte(n>>8), byte(n>>16), byte(n>>24))
		}
		framed = append(framed, msg...)
		require.Equal(t, chainhash.DoubleHashB(framed), MessageHash(msg), "len %d", n)
	}
}

func TestKnownSignature(t *testing.T) {
	require.NoError(t, VerifyBase64([]byte("hello sigma"), testSignature, testAddress))

	err := VerifyBase64([]byte("hello sigma!"), testSignature, testAddress)
	require.ErrorIs(t, err, ErrAddressMismatch)
}

func TestSignRecover(t *testing.T) {
	key := testKey(t)
	for _, msg := range [][]byte{[]byte("message"), {}, bytes.Repeat([]byte{0xff}, 300)} {
		sig, err := Sign(key, msg)
		require.NoError(t, err)
		require.Len(t, sig, CompactSignatureSize)

		pub, compressed, err := RecoverCompact(msg, sig)
		require.NoError(t, err)
		require.True(t, compressed)
		require.True(t, pub.IsEqual(key.PubKey()))

		addr, err := RecoverAddress(msg, sig, &chaincfg.MainNetParams)
		require.NoError(t, err)
		require.Equal(t, testAddress, addr)
		require.NoError(t, Verify(msg, sig, testAddress))
	}
}

func TestVerifyOtherNetwork(t *testing.T) {
	key, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	addr, err := Address(key.PubKey(), true, &chaincfg.TestNet3Params)
	require.NoError(t, err)

	sig, err := SignBase64(key, []byte("testnet"))
	require.NoError(t, err)
	require.NoError(t, VerifyBase64([]byte("testnet"), sig, addr))
}

func TestVerifyErrors(t *testing.T) {
	key := testKey(t)
	sig, err := Sign(key, []byte("m"))
	require.NoError(t, err)

	require.ErrorIs(t, Verify([]byte("m"), sig[:64], testAddress), ErrRecoverFailed)
	require.ErrorIs(t, Verify([]byte("m"), sig, "not-an-address"), ErrInvalidAddress)
	require.ErrorIs(t, Verify([]byte("m"), sig, "1Cz3gyTgV7QgMoU6j51pvHdzeeapXfXDtA"), ErrAddressMismatch)

	_, err = Sign(nil, []byte("m"))
	require.ErrorIs(t, err, ErrNilKey)

	require.ErrorIs(t, VerifyBase64([]byte("m"), "%%%", testAddress), ErrInvalidSignature)
}
