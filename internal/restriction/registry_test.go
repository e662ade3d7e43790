package restriction

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"focusgate/internal/core"
)

type mockAuthority struct {
	name string
}

func (m *mockAuthority) Name() string { return m.name }

func (m *mockAuthority) Apply(ctx context.Context, p *core.Profile) error { return nil }

func (m *mockAuthority) Remove(ctx context.Context, p *core.Profile) error { return nil }

func TestRegistry_Register(t *testing.T) {
	registry := NewRegistry()

	require.NoError(t, registry.Register(&mockAuthority{name: "webhook"}))
	require.NoError(t, registry.Register(&mockAuthority{name: "passive"}))

	err := registry.Register(&mockAuthority{name: "passive"})
	assert.ErrorIs(t, err, ErrAuthorityAlreadyExists)

	assert.Equal(t, []string{"passive", "webhook"}, registry.List())
}

func TestRegistry_Get(t *testing.T) {
	registry := NewRegistry()
	authority := &mockAuthority{name: "passive"}

	_, err := registry.Get("passive")
	assert.ErrorIs(t, err, ErrAuthorityNotFound)

	require.NoError(t, registry.Register(authority))

	got, err := registry.Get("passive")
	require.NoError(t, err)
	assert.Equal(t, authority, got)
}
