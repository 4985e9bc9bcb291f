//go:build js && wasm
// +build js,wasm

package main

import (
	"encoding/hex"
	"syscall/js"

	"github.com/BoldBitcoinWallet/bsvkit/bsm"
	"github.com/BoldBitcoinWallet/bsvkit/config"
	"github.com/BoldBitcoinWallet/bsvkit/ecies"
	"github.com/BoldBitcoinWallet/bsvkit/logs"
	"github.com/BoldBitcoinWallet/bsvkit/sigma"
	"github.com/BoldBitcoinWallet/bsvkit/txbuilder"
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
)

func jsError(err error) js.Value {
	return js.ValueOf(map[string]interface{}{"error": err.Error()})
}

func jsData(v interface{}) js.Value {
	return js.ValueOf(map[string]interface{}{"data": v})
}

func argError() js.Value {
	return js.ValueOf(map[string]interface{}{"error": "invalid number of arguments"})
}

func privateKey(s string) (*btcec.PrivateKey, error) {
	if wif, err := btcutil.DecodeWIF(s); err == nil {
		return wif.PrivKey, nil
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	priv, _ := btcec.PrivKeyFromBytes(b)
	return priv, nil
}

// Wrapper functions for JavaScript interop
func generateKeyPairJS(this js.Value, args []js.Value) interface{} {
	keypair, err := ecies.GenerateKeyPair()
	if err != nil {
		return jsError(err)
	}
	return keypair
}

// eciesEncrypt(data, publicKeyHex[, senderPrivateKeyHex])
func encryptJS(this js.Value, args []js.Value) interface{} {
	if len(args) < 2 || len(args) > 3 {
		return argError()
	}
	sender := ""
	if len(args) == 3 {
		sender = args[2].String()
	}
	encrypted, err := ecies.EncryptString(args[0].String(), sender, args[1].String())
	if err != nil {
		return jsError(err)
	}
	return jsData(encrypted)
}

// eciesDecrypt(encryptedData, privateKeyHex)
func decryptJS(this js.Value, args []js.Value) interface{} {
	if len(args) != 2 {
		return argError()
	}
	decrypted, err := ecies.DecryptString(args[0].String(), args[1].String(), "")
	if err != nil {
		return jsError(err)
	}
	return jsData(decrypted)
}

// bsmSign(message, privateKey)
func bsmSignJS(this js.Value, args []js.Value) interface{} {
	if len(args) != 2 {
		return argError()
	}
	priv, err := privateKey(args[1].String())
	if err != nil {
		return jsError(err)
	}
	sig, err := bsm.SignBase64(priv, []byte(args[0].String()))
	if err != nil {
		return jsError(err)
	}
	return jsData(sig)
}

// bsmVerify(message, signature, address)
func bsmVerifyJS(this js.Value, args []js.Value) interface{} {
	if len(args) != 3 {
		return argError()
	}
	if err := bsm.VerifyBase64([]byte(args[0].String()), args[1].String(), args[2].String()); err != nil {
		return jsError(err)
	}
	return jsData(true)
}

// sigmaSign(txHex, privateKey, vout, instance, vin)
func sigmaSignJS(this js.Value, args []js.Value) interface{} {
	if len(args) != 5 {
		return argError()
	}
	priv, err := privateKey(args[1].String())
	if err != nil {
		return jsError(err)
	}
	tx, extended, err := txbuilder.ParseAnyHex(args[0].String())
	if err != nil {
		return jsError(err)
	}
	sig, err := sigma.New(tx, args[2].Int(), args[3].Int(), args[4].Int()).Sign(priv)
	if err != nil {
		return jsError(err)
	}
	var h string
	if extended {
		h, err = sig.SignedTx.ExtendedHex()
	} else {
		h, err = sig.SignedTx.Hex()
	}
	if err != nil {
		return jsError(err)
	}
	return js.ValueOf(map[string]interface{}{
		"address":   sig.Address,
		"signature": sig.Signature,
		"data":      h,
	})
}

// sigmaVerify(txHex, vout, instance, vin, expectedAddress)
func sigmaVerifyJS(this js.Value, args []js.Value) interface{} {
	if len(args) != 5 {
		return argError()
	}
	tx, _, err := txbuilder.ParseAnyHex(args[0].String())
	if err != nil {
		return jsError(err)
	}
	ok, err := sigma.New(tx, args[1].Int(), args[2].Int(), args[3].Int()).Verify(args[4].String())
	if err != nil {
		return jsError(err)
	}
	return jsData(ok)
}

// txFee(txHex[, satsPerByte])
func txFeeJS(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 || len(args) > 2 {
		return argError()
	}
	tx, _, err := txbuilder.ParseAnyHex(args[0].String())
	if err != nil {
		return jsError(err)
	}
	rate := config.DefaultFeeSatsPerByte
	if len(args) == 2 {
		rate = args[1].Float()
	}
	return jsData(int64(tx.EstimateFee(rate)))
}

func main() {
	logs.DisableLogs()

	js.Global().Set("generateKeyPair", js.FuncOf(generateKeyPairJS))
	js.Global().Set("eciesEncrypt", js.FuncOf(encryptJS))
	js.Global().Set("eciesDecrypt", js.FuncOf(decryptJS))

	js.Global().Set("bsmSign", js.FuncOf(bsmSignJS))
	js.Global().Set("bsmVerify", js.FuncOf(bsmVerifyJS))

	js.Global().Set("sigmaSign", js.FuncOf(sigmaSignJS))
	js.Global().Set("sigmaVerify", js.FuncOf(sigmaVerifyJS))

	js.Global().Set("txFee", js.FuncOf(txFeeJS))

	<-make(chan struct{})
}
