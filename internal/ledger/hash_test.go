package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenesisHash_IsPublishedConstant(t *testing.T) {
	// sha256("trackledger-genesis-v1"); shared with every external verifier.
	assert.Equal(t, GenesisHash, HashBytes([]byte("trackledger-genesis-v1")))
	assert.Len(t, GenesisHash, 64)
}

func TestHashEvent_KnownVector(t *testing.T) {
	e := Event{
		ChainID:  "demo",
		Sequence: 1,
		Type:     EventTradeOpen,
		Payload: TradeOpen{
			Ticket:    1001,
			Symbol:    "EURUSD",
			Direction: "buy",
			Lots:      0.1,
			OpenPrice: 1.1,
		},
		Timestamp: 1700000000,
		PrevHash:  GenesisHash,
	}
	assert.Equal(t, "9189ec1991bf8995b4bbd42a70aa2795a0c0ad114ae685e8080c8be1fbad44ae", HashEvent(&e))
}

func TestHashEvent_IgnoresStoredHash(t *testing.T) {
	e := Event{
		ChainID:   "demo",
		Sequence:  1,
		Type:      EventVerificationPassed,
		Payload:   VerificationPassed{RunID: "r"},
		Timestamp: 1,
		PrevHash:  GenesisHash,
	}
	before := HashEvent(&e)
	e.Hash = "anything"
	assert.Equal(t, before, HashEvent(&e))
}

func TestTruncateHash(t *testing.T) {
	assert.Equal(t, "9189ec1991bf8995", TruncateHash("9189ec1991bf8995b4bbd42a70aa2795a0c0ad114ae685e8080c8be1fbad44ae"))
	assert.Equal(t, "short", TruncateHash("short"))
}
