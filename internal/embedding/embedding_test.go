package embedding

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/siteingest/internal/embedding/hash"
	"github.com/JakeFAU/siteingest/internal/embedding/openai"
)

func TestNewSelectsProvider(t *testing.T) {
	t.Parallel()

	e, err := New(Config{}, nil)
	require.NoError(t, err)
	require.IsType(t, &hash.Embedder{}, e)

	e, err = New(Config{Provider: ProviderOpenAI, Host: "http://localhost:1234/v1", Model: "nomic-embed-text"}, nil)
	require.NoError(t, err)
	require.IsType(t, &openai.Embedder{}, e)

	_, err = New(Config{Provider: ProviderOpenAI}, nil)
	require.Error(t, err)

	_, err = New(Config{Provider: "cohere"}, nil)
	require.Error(t, err)
}
