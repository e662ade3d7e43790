package strategy

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"focusgate/internal/core"
)

func testSession() *core.Session {
	return &core.Session{ID: "sess_1", StartTime: time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)}
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	registry := NewRegistry()

	_, err := registry.Get(core.StrategyManual)
	assert.ErrorIs(t, err, ErrStrategyNotFound)

	manual := NewManual(nil)
	require.NoError(t, registry.Register(manual))
	assert.ErrorIs(t, registry.Register(NewManual(nil)), ErrStrategyAlreadyExists)

	got, err := registry.Get(core.StrategyManual)
	require.NoError(t, err)
	assert.Equal(t, manual, got)
}

func TestNewDefaultRegistry(t *testing.T) {
	registry := NewDefaultRegistry(nil)
	assert.Equal(t, []core.StrategyKind{
		core.StrategyManual,
		core.StrategyNFC,
		core.StrategyQR,
		core.StrategySchedule,
	}, registry.List())
}

func TestManualAndSchedule_AlwaysAccept(t *testing.T) {
	ctx := context.Background()
	profile := &core.Profile{ID: "prof_1"}

	for _, s := range []core.BlockingStrategy{NewManual(nil), NewSchedule(nil)} {
		assert.True(t, s.BeginSession(ctx, profile, core.StartRequest{}).Accepted)
		assert.True(t, s.RequestEnd(ctx, profile, testSession(), "").Accepted)
	}
}

func TestPhysicalToken_RequestEnd(t *testing.T) {
	ctx := context.Background()
	nfc := NewNFC(nil)
	profile := &core.Profile{ID: "prof_nfc", Strategy: core.StrategyNFC, StrategyData: "abc-123"}

	assert.True(t, nfc.BeginSession(ctx, profile, core.StartRequest{}).Accepted, "blocking starts optimistically")

	tests := []struct {
		name   string
		token  string
		accept bool
	}{
		{"exact match", "abc-123", true},
		{"surrounding whitespace trimmed", "  abc-123\n", true},
		{"case sensitive", "ABC-123", false},
		{"different token", "abc-124", false},
		{"empty", "", false},
		{"injection", "<script>abc-123", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outcome := nfc.RequestEnd(ctx, profile, testSession(), tt.token)
			assert.Equal(t, tt.accept, outcome.Accepted)
			if !tt.accept {
				assert.NotEmpty(t, outcome.Reason)
			}
		})
	}
}

func TestPhysicalToken_QRAcceptsURLs(t *testing.T) {
	qr := NewQR(nil)
	profile := &core.Profile{ID: "prof_qr", Strategy: core.StrategyQR, StrategyData: "https://focus.example/t/42"}

	assert.True(t, qr.RequestEnd(context.Background(), profile, testSession(), "https://focus.example/t/42").Accepted)
	assert.False(t, qr.RequestEnd(context.Background(), profile, testSession(), "https://focus.example/t/43").Accepted)
}
