package cli

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"strings"
	"testing"

	"github.com/BoldBitcoinWallet/bsvkit/bsm"
	"github.com/BoldBitcoinWallet/bsvkit/script"
	"github.com/BoldBitcoinWallet/bsvkit/txbuilder"
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/fatih/color"
	"github.com/stretchr/testify/require"
)

func init() {
	color.NoColor = true
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv("BSVKIT_CONFIG_DIR", t.TempDir())
	var out bytes.Buffer
	root := NewRootCmd()
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(args)
	err := root.Execute()
	return strings.TrimSpace(out.String()), err
}

func runJSON(t *testing.T, v any, args ...string) {
	t.Helper()
	out, err := run(t, args...)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), v))
}

func testPriv(seed byte) (*btcec.PrivateKey, string) {
	priv, _ := btcec.PrivKeyFromBytes(bytes.Repeat([]byte{seed}, 32))
	wif, _ := btcutil.NewWIF(priv, &chaincfg.MainNetParams, true)
	return priv, wif.String()
}

func TestBSMCommands(t *testing.T) {
	priv, wif := testPriv(1)
	addr, err := bsm.Address(priv.PubKey(), true, &chaincfg.MainNetParams)
	require.NoError(t, err)

	out, err := run(t, "bsm", "address", "--key", wif)
	require.NoError(t, err)
	require.Equal(t, addr, out)

	sig, err := run(t, "bsm", "sign", "hello", "--key", hex.EncodeToString(priv.Serialize()))
	require.NoError(t, err)

	out, err = run(t, "bsm", "verify", "hello", sig, addr)
	require.NoError(t, err)
	require.Equal(t, "valid", out)

	out, err = run(t, "bsm", "recover", "hello", sig)
	require.NoError(t, err)
	require.Equal(t, addr, out)

	_, err = run(t, "bsm", "verify", "goodbye", sig, addr)
	require.Error(t, err)

	_, err = run(t, "bsm", "sign", "hello", "--key", "nope")
	require.Error(t, err)

	testnet, err := bsm.Address(priv.PubKey(), true, &chaincfg.TestNet3Params)
	require.NoError(t, err)
	out, err = run(t, "bsm", "address", "--key", wif, "--network", "testnet3")
	require.NoError(t, err)
	require.Equal(t, testnet, out)
}

func TestInvalidNetwork(t *testing.T) {
	_, wif := testPriv(1)
	_, err := run(t, "bsm", "address", "--key", wif, "--network", "litecoin")
	require.Error(t, err)
}

func TestECIESCommands(t *testing.T) {
	var kp struct {
		PrivateKey string `json:"privateKey"`
		PublicKey  string `json:"publicKey"`
	}
	runJSON(t, &kp, "ecies", "keypair")

	pub, err := run(t, "ecies", "pubkey", kp.PrivateKey)
	require.NoError(t, err)
	require.Equal(t, kp.PublicKey, pub)

	enc, err := run(t, "ecies", "encrypt", "secret", "--public-key", kp.PublicKey)
	require.NoError(t, err)
	dec, err := run(t, "ecies", "decrypt", enc, "--private-key", kp.PrivateKey)
	require.NoError(t, err)
	require.Equal(t, "secret", dec)

	var sender struct {
		PrivateKey string `json:"privateKey"`
		PublicKey  string `json:"publicKey"`
	}
	runJSON(t, &sender, "ecies", "keypair")
	enc, err = run(t, "ecies", "encrypt", "short", "--public-key", kp.PublicKey, "--private-key", sender.PrivateKey, "--no-key", "--short-tag")
	require.NoError(t, err)
	_, err = run(t, "ecies", "decrypt", enc, "--private-key", kp.PrivateKey, "--no-key", "--short-tag")
	require.Error(t, err)
	dec, err = run(t, "ecies", "decrypt", enc, "--private-key", kp.PrivateKey, "--public-key", sender.PublicKey, "--no-key", "--short-tag")
	require.NoError(t, err)
	require.Equal(t, "short", dec)
}

func draftHex(t *testing.T, priv *btcec.PrivateKey) string {
	prev := wire.NewMsgTx(wire.TxVersion)
	h := chainhash.DoubleHashH([]byte("funding"))
	prev.AddTxIn(wire.NewTxIn(wire.NewOutPoint(&h, 0), []byte{txscript.OP_TRUE}, nil))
	prev.AddTxOut(wire.NewTxOut(10_000, script.P2PKHLock(btcutil.Hash160(priv.PubKey().SerializeCompressed())).Bytes()))

	tx := txbuilder.New()
	_, err := tx.AddInputFromTx(prev, 0, priv, txbuilder.DefaultSequence)
	require.NoError(t, err)
	tx.AddOutputP2PKH(priv.PubKey(), 9_000)
	tx.AddOutputRaw(script.New(script.OpCode(txscript.OP_FALSE), script.OpCode(txscript.OP_RETURN), script.PushOp([]byte("note"))), 0)
	ext, err := tx.ExtendedHex()
	require.NoError(t, err)
	return ext
}

func TestTxCommands(t *testing.T) {
	priv, wif := testPriv(2)
	draft := draftHex(t, priv)

	var fee struct {
		Size       int   `json:"size"`
		Fee        int64 `json:"fee"`
		SafeFee    int64 `json:"safe_fee"`
		CurrentFee int64 `json:"current_fee"`
	}
	runJSON(t, &fee, "tx", "fee", draft, "--rate", "1")
	require.Positive(t, fee.Size)
	require.Equal(t, int64(fee.Size), fee.Fee)
	require.Equal(t, int64(1_000), fee.CurrentFee)

	var check struct {
		Signed   bool `json:"signed"`
		Complete bool `json:"complete"`
	}
	runJSON(t, &check, "tx", "check", draft)
	require.False(t, check.Signed)
	require.False(t, check.Complete)

	var signed struct {
		Signed bool   `json:"signed"`
		TxID   string `json:"txid"`
		Hex    string `json:"hex"`
	}
	runJSON(t, &signed, "tx", "sign", draft, "--key", wif)
	require.True(t, signed.Signed)

	runJSON(t, &check, "tx", "check", signed.Hex)
	require.True(t, check.Signed)
	require.True(t, check.Complete)

	_, err := run(t, "tx", "sign", draft, "--sig", "bad")
	require.Error(t, err)
}

func TestSigmaCommands(t *testing.T) {
	priv, wif := testPriv(3)
	draft := draftHex(t, priv)
	addr, err := bsm.Address(priv.PubKey(), true, &chaincfg.MainNetParams)
	require.NoError(t, err)

	var signed struct {
		Address string `json:"address"`
		Vin     int    `json:"vin"`
		Hex     string `json:"hex"`
	}
	runJSON(t, &signed, "sigma", "sign", draft, "--key", wif, "--vout", "1", "--vin", "0")
	require.Equal(t, addr, signed.Address)
	require.Zero(t, signed.Vin)

	var verified struct {
		Valid   bool   `json:"valid"`
		Address string `json:"address"`
	}
	runJSON(t, &verified, "sigma", "verify", signed.Hex, "--vout", "1", "--vin", "0", "--address", addr)
	require.True(t, verified.Valid)
	require.Equal(t, addr, verified.Address)

	_, err = run(t, "sigma", "verify", signed.Hex, "--vout", "1", "--vin", "0", "--address", "1BoatSLRHtKNngkdXEeobR76b53LETtpyT")
	require.Error(t, err)
	_, err = run(t, "sigma", "verify", draft, "--vout", "1")
	require.Error(t, err)
}

func TestPaymailCommands(t *testing.T) {
	var parsed map[string]string
	runJSON(t, &parsed, "paymail", "parse", "satoshi@example.com")
	require.Equal(t, map[string]string{"alias": "satoshi", "domain": "example.com"}, parsed)

	_, err := run(t, "paymail", "parse", "not-a-handle")
	require.Error(t, err)

	out, err := run(t, "paymail", "capabilities")
	require.NoError(t, err)
	require.Contains(t, out, "5f1323cddf31")
	require.Len(t, strings.Split(out, "\n"), 8)
}
