package token

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPolicy_Process(t *testing.T) {
	tests := []struct {
		name    string
		policy  Policy
		input   string
		want    string
		wantErr error
	}{
		{"nfc identifier passes", NFCPolicy, "abc-123", "abc-123", nil},
		{"nfc uid with colons", NFCPolicy, "04:A2:3B:91", "04:A2:3B:91", nil},
		{"surrounding whitespace trimmed", NFCPolicy, "  abc-123\n", "abc-123", nil},
		{"disallowed chars stripped", NFCPolicy, "abc 123", "abc123", nil},
		{"empty rejected", NFCPolicy, "", "", ErrEmpty},
		{"whitespace only rejected", QRPolicy, "   ", "", ErrEmpty},
		{"only disallowed chars rejected", NFCPolicy, "###", "", ErrEmpty},
		{"script tag rejected", QRPolicy, "<script>", "", ErrInjection},
		{"script tag inside long token rejected", QRPolicy, "aaaaaaaaaaaa<script>alert(1)</script>", "", ErrInjection},
		{"javascript url rejected", QRPolicy, "javascript:alert", "", ErrInjection},
		{"sql quote rejected", NFCPolicy, "abcd';drop", "", ErrInjection},
		{"too short", NFCPolicy, "ab", "", ErrTooShort},
		{"qr url accepted", QRPolicy, "focus/desk.tag_1", "focus/desk.tag_1", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.policy.Process(tt.input)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Empty(t, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPolicy_TooLong(t *testing.T) {
	_, err := NFCPolicy.Process(strings.Repeat("a", NFCPolicy.MaxLength+1))
	assert.ErrorIs(t, err, ErrTooLong)
}

func TestPolicy_Match(t *testing.T) {
	assert.NoError(t, NFCPolicy.Match(" 04:A2:3B:91 ", "04:A2:3B:91"))
	assert.ErrorIs(t, NFCPolicy.Match("04:a2:3b:91", "04:A2:3B:91"), ErrMismatch)
	assert.ErrorIs(t, NFCPolicy.Match("<script>", "04:A2:3B:91"), ErrInjection)
}

func TestPolicyFor(t *testing.T) {
	p, err := PolicyFor(KindQR)
	require.NoError(t, err)
	assert.Equal(t, KindQR, p.Kind)

	_, err = PolicyFor("barcode")
	assert.ErrorIs(t, err, ErrUnknownKind)
}
