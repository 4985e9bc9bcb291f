package sigma

import (
	"bytes"
	"testing"

	"github.com/BoldBitcoinWallet/bsvkit/script"
	"github.com/BoldBitcoinWallet/bsvkit/txbuilder"
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/stretchr/testify/require"
)

const (
	wif1     = "KzmFJcMXHufPNHixgHNwXBt3mHpErEUG6WFbmuQdy525DezYAi82"
	address1 = "1ACLHVPVnB8AmLCyD5hPQtPCSCccjiUn7H"
	wif2     = "L1U5FS1PzJwCiFA43hahBUSLytqVoGjSymKSz5WJ92v8YQBBsGZ1"
	address2 = "1Cz3gyTgV7QgMoU6j51pvHdzeeapXfXDtA"

	// 1Sat ordinals inscription signed by an independent implementation.
	inscriptionTxHex  = "0100000001d70d11131d80dcee954926de96d793585c6bc0ed69619a6cc761a20cef1b1bd7010000006a4730440220466ca5d42bd7a8bd2b6ea5770970b03a0c39fa29847f31e0d949dd36bf523b910220379d1c2718ae3300e833201b227ed8159c93f85bcc6eaea4028dafed2559fee24121036232d22ae556320f5a6516e6e75eab89b33760ccf7b3eb5b791a23883da6b1f5ffffffff020100000000000000a776a914c8fcb96f2f16175d37d602c438eb2f64e59e217788ac0063036f7264510a746578742f706c61696e000774657374696e67686a055349474d410342534d22314535533931716e6f4743586d36314d5931617842435a436d4d50414d5a3675457a41206798f75d8b2bc6b6f2b536a9702dac3533528574d6f46acd8e2747ba63a0e70e146adba068c93e2979d010baf9aa47a1daf501381620adc59a09e10508aff46e013015e16005000000001976a9148d3164e5ed6f5ae76d7cb3860b31af4f369e775d88ac00000000"
	inscriptionSigner = "1E5S91qnoGCXm61MY1axBCZCmMPAMZ6uEz"
)

func wifKey(t *testing.T, s string) *btcec.PrivateKey {
	wif, err := btcutil.DecodeWIF(s)
	require.NoError(t, err)
	return wif.PrivKey
}

func dataTx() *txbuilder.Tx {
	tx := txbuilder.New()
	tx.AddOutputRaw(script.New(
		script.OpCode(txscript.OP_0),
		script.OpCode(txscript.OP_RETURN),
		script.PushOp([]byte("hello world")),
	), 0)
	return tx
}

func addInput(tx *txbuilder.Tx, seed byte) {
	var h chainhash.Hash
	h[0], h[31] = seed, 0x81
	pub := mustKey(wif2).PubKey()
	tx.AddInputP2PKH(pub, 1000, h, uint32(seed), nil, txbuilder.DefaultSequence)
}

func mustKey(s string) *btcec.PrivateKey {
	wif, _ := btcutil.DecodeWIF(s)
	return wif.PrivKey
}

func TestInscriptionVector(t *testing.T) {
	tx, err := txbuilder.FromHex(inscriptionTxHex)
	require.NoError(t, err)

	s := New(tx, 0, 0, 0)
	require.Equal(t, 1, s.SigInstanceCount())
	require.Equal(t, inscriptionSigner, s.Sig().Address)
	require.Equal(t, AlgorithmBSM, s.Sig().Algorithm)
	require.Equal(t, 0, s.Sig().Vin)

	ok, err := s.Verify("")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = s.Verify(inscriptionSigner)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = s.Verify(address1)
	require.NoError(t, err)
	require.False(t, ok)

	// a different reference input changes the signed message
	ok, err = New(tx, 0, 0, 1).Verify("")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestSignVerify(t *testing.T) {
	tx := dataTx()
	s := New(tx, 0, 0, 0)
	res, err := s.Sign(wifKey(t, wif1))
	require.NoError(t, err)
	require.Equal(t, address1, res.Address)
	require.Equal(t, 0, res.Vin)
	require.Equal(t, 5, res.Script.Len())

	ok, err := s.Verify("")
	require.NoError(t, err)
	require.True(t, ok)

	// the original draft is untouched, the context works on the copy
	require.Equal(t, 3, tx.Outputs[0].ScriptPub.Len())
	require.Same(t, res.SignedTx, s.Transaction())
	require.NotSame(t, tx, s.Transaction())

	out := s.Transaction().Outputs[0].ScriptPub
	require.Equal(t, 9, out.Len())
	require.Equal(t, []byte(Separator), out.Ops[3].Data)
	require.Equal(t, 4, s.SigInstancePosition())
}

func TestSignAppendsOpReturn(t *testing.T) {
	tx := txbuilder.New()
	tx.AddOutputP2PKH(wifKey(t, wif2).PubKey(), 1)
	s := New(tx, 0, 0, 0)
	_, err := s.Sign(wifKey(t, wif1))
	require.NoError(t, err)

	out := s.Transaction().Outputs[0].ScriptPub
	require.Equal(t, byte(txscript.OP_RETURN), out.Ops[5].Opcode)

	ok, err := s.Verify(address1)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestSignedTxReverifies(t *testing.T) {
	s := New(dataTx(), 0, 0, 0)
	res, err := s.Sign(wifKey(t, wif1))
	require.NoError(t, err)

	inputHash, err := s.InputHash()
	require.NoError(t, err)
	dataHash, err := s.DataHash()
	require.NoError(t, err)
	msgHash, err := s.MessageHash()
	require.NoError(t, err)

	b, err := res.SignedTx.Hex()
	require.NoError(t, err)
	parsed, err := txbuilder.FromHex(b)
	require.NoError(t, err)

	s2 := New(parsed, 0, 0, 0)
	inputHash2, err := s2.InputHash()
	require.NoError(t, err)
	dataHash2, err := s2.DataHash()
	require.NoError(t, err)
	msgHash2, err := s2.MessageHash()
	require.NoError(t, err)

	require.Equal(t, inputHash, inputHash2)
	require.Equal(t, dataHash, dataHash2)
	require.Equal(t, msgHash, msgHash2)
	require.Equal(t, 1, s2.SigInstanceCount())

	ok, err := s2.Verify("")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestUserAndPlatformSignatures(t *testing.T) {
	s := New(dataTx(), 0, 0, 0)
	res, err := s.Sign(wifKey(t, wif1))
	require.NoError(t, err)

	s2 := New(res.SignedTx, 0, 1, 0)
	_, err = s2.Sign(wifKey(t, wif2))
	require.NoError(t, err)

	ok, err := s2.Verify("")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 2, s2.SigInstanceCount())
	require.Len(t, s2.Instances(), 2)
	// signing instance 1 did not touch the first context's transaction
	require.Equal(t, 1, s.SigInstanceCount())

	s2.SetSigmaInstance(0)
	require.Equal(t, address1, s2.Sig().Address)
	ok, err = s2.Verify(address1)
	require.NoError(t, err)
	require.True(t, ok)

	s2.SetSigmaInstance(1)
	require.Equal(t, address2, s2.Sig().Address)
	ok, err = s2.Verify(address2)
	require.NoError(t, err)
	require.True(t, ok)

	s2.SetSigmaInstance(2)
	require.Nil(t, s2.Sig())
}

func TestReplaceDummySignature(t *testing.T) {
	s := New(dataTx(), 0, 0, 0)
	_, err := s.Sign(wifKey(t, wif1))
	require.NoError(t, err)

	dummyInput, err := s.InputHash()
	require.NoError(t, err)
	require.Equal(t, dummyInputHash, dummyInput)
	dataHash, err := s.DataHash()
	require.NoError(t, err)

	addInput(s.Transaction(), 1)
	inputHash, err := s.InputHash()
	require.NoError(t, err)
	require.NotEqual(t, dummyInput, inputHash)

	// the dummy signature no longer matches the inputs
	ok, err := s.Verify("")
	require.NoError(t, err)
	require.False(t, ok)

	before := s.Transaction().Outputs[0].ScriptPub.Len()
	_, err = s.Sign(wifKey(t, wif1))
	require.NoError(t, err)
	require.Equal(t, before, s.Transaction().Outputs[0].ScriptPub.Len())
	require.Equal(t, 1, s.SigInstanceCount())

	dataHash2, err := s.DataHash()
	require.NoError(t, err)
	require.Equal(t, dataHash, dataHash2)

	ok, err = s.Verify("")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestSpecifyReferenceInput(t *testing.T) {
	tx := dataTx()
	addInput(tx, 1)
	addInput(tx, 2)

	s1 := New(tx, 0, 0, 0)
	res1, err := s1.Sign(wifKey(t, wif1))
	require.NoError(t, err)
	ok, err := s1.Verify("")
	require.NoError(t, err)
	require.True(t, ok)

	s2 := New(tx, 0, 0, 1)
	res2, err := s2.Sign(wifKey(t, wif1))
	require.NoError(t, err)
	ok, err = s2.Verify("")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 1, res2.Vin)

	require.NotEqual(t, res1.Signature, res2.Signature)
	require.Equal(t, []byte("1"), s2.Transaction().Outputs[0].ScriptPub.Ops[8].Data)

	h1, err := s1.InputHash()
	require.NoError(t, err)
	h2, err := s2.InputHash()
	require.NoError(t, err)
	require.False(t, bytes.Equal(h1, h2))
}

func TestUseTargetVout(t *testing.T) {
	tx := dataTx()
	tx.AddOutputRaw(script.New(script.OpCode(txscript.OP_RETURN), script.PushOp([]byte("second"))), 0)
	addInput(tx, 1)
	addInput(tx, 2)

	s := New(tx, 1, 0, UseTargetVout)
	res, err := s.Sign(wifKey(t, wif1))
	require.NoError(t, err)
	require.Equal(t, 1, res.Vin)
	require.Equal(t, 1, res.TargetVout)

	explicit, err := New(tx, 1, 0, 1).InputHash()
	require.NoError(t, err)
	viaTarget, err := s.InputHash()
	require.NoError(t, err)
	require.Equal(t, explicit, viaTarget)
}

func TestVerifyErrors(t *testing.T) {
	_, err := New(nil, 0, 0, 0).Verify("")
	require.ErrorIs(t, err, ErrNoTransaction)

	_, err = New(dataTx(), 0, 0, 0).Verify("")
	require.ErrorIs(t, err, ErrNoSignature)

	_, err = New(dataTx(), 3, 0, 0).Sign(wifKey(t, wif1))
	require.ErrorIs(t, err, ErrTargetVout)

	_, err = New(dataTx(), 0, 0, 0).Sign(nil)
	require.Error(t, err)

	s := New(dataTx(), 0, 0, 0)
	_, err = s.Sign(wifKey(t, wif1))
	require.NoError(t, err)

	ok, err := s.Verify(address2)
	require.NoError(t, err)
	require.False(t, ok)

	// tampering with the signed data makes the signature recover to a
	// different address
	s.Transaction().Outputs[0].ScriptPub.Set(2, script.PushOp([]byte("hello sigma")))
	ok, err = s.Verify("")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestSignInstanceRange(t *testing.T) {
	tx := dataTx()
	_, err := New(tx, 0, 1, 0).Sign(wifKey(t, wif1))
	require.ErrorIs(t, err, ErrInstanceRange)
	require.Equal(t, 3, tx.Outputs[0].ScriptPub.Len())

	_, err = New(tx, 0, -1, 0).Sign(wifKey(t, wif1))
	require.ErrorIs(t, err, ErrInstanceRange)

	// the next free instance is accepted and verifies straight away
	s := New(tx, 0, 0, 0)
	res, err := s.Sign(wifKey(t, wif1))
	require.NoError(t, err)
	_, err = New(res.SignedTx, 0, 2, 0).Sign(wifKey(t, wif2))
	require.ErrorIs(t, err, ErrInstanceRange)

	s2 := New(res.SignedTx, 0, 1, 0)
	_, err = s2.Sign(wifKey(t, wif2))
	require.NoError(t, err)
	ok, err := s2.Verify(address2)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestTestnetAddress(t *testing.T) {
	s := New(dataTx(), 0, 0, 0, WithNetParams(&chaincfg.TestNet3Params))
	res, err := s.Sign(wifKey(t, wif1))
	require.NoError(t, err)
	require.Contains(t, "mn", res.Address[:1])

	ok, err := s.Verify("")
	require.NoError(t, err)
	require.True(t, ok)
}
