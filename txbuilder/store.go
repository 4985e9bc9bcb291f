package txbuilder

import (
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/patrickmn/go-cache"
)

const (
	DefaultPrevTxTTL     = 5 * time.Minute
	defaultCleanupPeriod = 10 * time.Minute
)

// PrevTxStore keeps recently seen transactions by txid so drafts spending
// them can resolve values and scripts without a lookup service.
type PrevTxStore struct {
	txs *cache.Cache
}

// NewPrevTxStore returns a store whose entries expire after ttl.
func NewPrevTxStore(ttl time.Duration) *PrevTxStore {
	if ttl <= 0 {
		ttl = DefaultPrevTxTTL
	}
	return &PrevTxStore{txs: cache.New(ttl, defaultCleanupPeriod)}
}

// Put stores tx and returns its txid.
func (s *PrevTxStore) Put(tx *wire.MsgTx) chainhash.Hash {
	h := tx.TxHash()
	s.txs.Set(h.String(), tx, cache.DefaultExpiration)
	return h
}

func (s *PrevTxStore) Get(h chainhash.Hash) (*wire.MsgTx, bool) {
	v, found := s.txs.Get(h.String())
	if !found {
		return nil, false
	}
	return v.(*wire.MsgTx), true
}

// Delete removes the transaction and reports whether it was present.
func (s *PrevTxStore) Delete(h chainhash.Hash) bool {
	_, found := s.txs.Get(h.String())
	s.txs.Delete(h.String())
	return found
}

func (s *PrevTxStore) Len() int {
	return s.txs.ItemCount()
}

// ResolvePrevTxs attaches stored previous transactions to inputs that have
// none and fills in missing spent scripts. It returns the number of inputs
// resolved.
func (tx *Tx) ResolvePrevTxs(store *PrevTxStore) int {
	n := 0
	for _, in := range tx.Inputs {
		if in.PrevTx != nil {
			continue
		}
		prev, found := store.Get(in.PrevOut.Hash)
		if !found || int(in.PrevOut.Index) >= len(prev.TxOut) {
			continue
		}
		in.PrevTx = prev
		if in.ScriptPub == nil {
			in.ScriptPub = in.spentScript()
		}
		n++
	}
	if n > 0 {
		log.Debugf("resolved %d previous transactions", n)
	}
	return n
}
