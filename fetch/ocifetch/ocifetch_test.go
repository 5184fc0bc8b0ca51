package ocifetch_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/provis/runtimekit/fetch/ocifetch"
)

func TestNewRejectsInvalidRepository(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		ref  string
	}{
		{name: "empty", ref: ""},
		{name: "no repository", ref: "registry.example.com"},
		{name: "spaces", ref: "registry.example.com/bad repo"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := ocifetch.New(tt.ref)
			require.Error(t, err)
		})
	}
}

func TestFetchUnreachableRegistry(t *testing.T) {
	t.Parallel()

	f, err := ocifetch.New("127.0.0.1:1/runtimes/jre", ocifetch.WithPlainHTTP(true))
	require.NoError(t, err)

	err = f.Fetch(context.Background(), "v21", filepath.Join(t.TempDir(), "jre.zip"))
	require.Error(t, err)
}
