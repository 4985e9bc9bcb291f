// Package paymail parses paymail handles and maps capabilities to their
// BRFC identifiers.
package paymail

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"github.com/BoldBitcoinWallet/bsvkit/bsm"
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

var handleRegex = regexp.MustCompile(`^[a-zA-Z0-9.!#$%&'*+/=?^_` + "`" + `{|}~-]+@[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?(?:\.[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)*$`)

// Parse splits a handle into alias and domain.
func Parse(handle string) (alias, domain string, ok bool) {
	if !handleRegex.MatchString(handle) {
		return "", "", false
	}
	alias, domain, _ = strings.Cut(handle, "@")
	return alias, domain, true
}

func IsValid(handle string) bool {
	_, _, ok := Parse(handle)
	return ok
}

// IsValidParts validates alias@domain.tld.
func IsValidParts(alias, domain, tld string) bool {
	return IsValid(fmt.Sprintf("%s@%s.%s", alias, domain, tld))
}

type Capability int

const (
	PKI Capability = iota
	PaymentDestination
	SenderValidation
	VerifyPublicKeyOwner
	ReceiverApprovals
	PayToProtocolPrefix
	P2PTx
	P2PPaymentDestination
)

var capabilities = map[Capability][2]string{
	PKI:                   {"pki", "pki"},
	PaymentDestination:    {"paymentDestination", "paymentDestination"},
	SenderValidation:      {"senderValidation", "6745385c3fc0"},
	VerifyPublicKeyOwner:  {"verifyPublicKeyOwner", "a9f510c16bde"},
	ReceiverApprovals:     {"receiverApprovals", "c318d09ed403"},
	PayToProtocolPrefix:   {"payToProtocolPrefix", "7bd25e5a1fc6"},
	P2PTx:                 {"p2pTx", "5f1323cddf31"},
	P2PPaymentDestination: {"p2pPaymentDestination", "2a40af698840"},
}

func (c Capability) String() string {
	if v, ok := capabilities[c]; ok {
		return v[0]
	}
	return fmt.Sprintf("Capability(%d)", int(c))
}

// BrfcID returns the capability key used in .well-known/bsvalias documents,
// or "" for an unknown capability.
func (c Capability) BrfcID() string {
	return capabilities[c][1]
}

// P2PTxContract is the body posted to a receiver's p2p transaction endpoint.
type P2PTxContract struct {
	Hex       string    `json:"hex"`
	Reference string    `json:"reference"`
	Metadata  *Metadata `json:"metadata,omitempty"`
}

type Metadata struct {
	Sender    string `json:"sender,omitempty"`
	PubKey    string `json:"pubkey,omitempty"`
	Signature string `json:"signature,omitempty"`
	Note      string `json:"note,omitempty"`
}

// SignSender fills the sender metadata. The signature is a BSM signature of
// the transaction id, as receivers with sender validation expect.
func (c *P2PTxContract) SignSender(sender string, priv *btcec.PrivateKey, txid chainhash.Hash) error {
	if !IsValid(sender) {
		return fmt.Errorf("invalid sender paymail %q", sender)
	}
	sig, err := bsm.Sign(priv, []byte(txid.String()))
	if err != nil {
		return err
	}
	if c.Metadata == nil {
		c.Metadata = &Metadata{}
	}
	c.Metadata.Sender = sender
	c.Metadata.PubKey = hex.EncodeToString(priv.PubKey().SerializeCompressed())
	c.Metadata.Signature = base64.StdEncoding.EncodeToString(sig)
	return nil
}
