package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheckpointPolicy_Should(t *testing.T) {
	p := DefaultCheckpointPolicy()

	assert.False(t, p.Should(EventTradeClose, 1))
	assert.False(t, p.Should(EventTradeClose, 99))
	assert.True(t, p.Should(EventTradeClose, 100))
	assert.True(t, p.Should(EventTradeClose, 200))
	assert.True(t, p.Should(EventVerificationPassed, 3))
}

func TestCheckpointPolicy_ZeroIntervalDisablesCadence(t *testing.T) {
	p := CheckpointPolicy{Interval: 0}
	assert.False(t, p.Should(EventTradeClose, 100))
}

func TestSigner_SignAndVerify(t *testing.T) {
	signer := NewSigner([]byte("server-secret"))
	cp := Checkpoint{
		ChainID:  "c",
		Sequence: 100,
		State: DerivedState{
			ChainID: "c", TotalTrades: 40, WonTrades: 25, LostTrades: 15,
			TotalProfit: 812.5, Balance: 10812.5, Equity: 10812.5,
			PeakProfit: 900, MaxDrawdown: 87.5, MaxDrawdownPct: 9.72,
			LastSequence: 100, LastEventHash: "deadbeef",
		},
	}
	cp.HMAC = signer.Sign(&cp)

	assert.Len(t, cp.HMAC, 64)
	assert.True(t, signer.Verify(&cp))
}

func TestSigner_DetectsTampering(t *testing.T) {
	signer := NewSigner([]byte("server-secret"))
	cp := Checkpoint{
		ChainID:  "c",
		Sequence: 100,
		State:    DerivedState{ChainID: "c", TotalProfit: 812.5, LastSequence: 100, LastEventHash: "deadbeef"},
	}
	cp.HMAC = signer.Sign(&cp)

	tampered := cp
	tampered.State.TotalProfit = 9999
	assert.False(t, signer.Verify(&tampered))

	moved := cp
	moved.Sequence = 101
	assert.False(t, signer.Verify(&moved))
}

func TestSigner_DifferentSecretsDisagree(t *testing.T) {
	cp := Checkpoint{ChainID: "c", Sequence: 5, State: DerivedState{LastSequence: 5, LastEventHash: "x"}}
	cp.HMAC = NewSigner([]byte("alpha")).Sign(&cp)
	assert.False(t, NewSigner([]byte("bravo")).Verify(&cp))
}
