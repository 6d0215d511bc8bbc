package ratelimit

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAdmit_ExhaustsAtCapacityThenRejects(t *testing.T) {
	l, err := New(Config{TextPerMinute: 3, ImagePerMinute: 2})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		res := l.Admit("key_a", ClassText)
		require.True(t, res.Allowed, "admission %d should be allowed within capacity", i)
	}

	res := l.Admit("key_a", ClassText)
	require.False(t, res.Allowed, "admission beyond capacity must be rejected")
}

func TestAdmit_TextAndImageAreIndependent(t *testing.T) {
	l, err := New(Config{TextPerMinute: 1, ImagePerMinute: 1})
	require.NoError(t, err)

	require.True(t, l.Admit("key_a", ClassText).Allowed)
	require.False(t, l.Admit("key_a", ClassText).Allowed, "text bucket should now be saturated")

	// Image bucket for the same key is untouched by text saturation.
	require.True(t, l.Admit("key_a", ClassImage).Allowed)
}

func TestAdmit_PrincipalIsolation(t *testing.T) {
	l, err := New(Config{TextPerMinute: 1, ImagePerMinute: 1})
	require.NoError(t, err)

	require.True(t, l.Admit("key_a", ClassText).Allowed)
	require.False(t, l.Admit("key_a", ClassText).Allowed)

	// A different key is unaffected by key_a's saturation.
	require.True(t, l.Admit("key_b", ClassText).Allowed)
}

func TestClassifyRoute(t *testing.T) {
	require.Equal(t, ClassImage, ClassifyRoute("/v1/images/generations"))
	require.Equal(t, ClassText, ClassifyRoute("/v1/chat/completions"))
}
