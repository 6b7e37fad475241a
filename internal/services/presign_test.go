package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/model-registry/model-registry/internal/storage/storagetest"
)

func TestValidateExpires(t *testing.T) {
	tests := []struct {
		expires int
		ok      bool
	}{
		{59, false},
		{60, true},
		{3600, true},
		{86400, true},
		{86401, false},
		{0, false},
		{-5, false},
	}
	for _, tt := range tests {
		err := ValidateExpires(tt.expires)
		if tt.ok {
			assert.NoError(t, err, "expires=%d", tt.expires)
		} else {
			assert.True(t, IsKind(err, KindInvalidArgument), "expires=%d: %v", tt.expires, err)
		}
	}
}

func TestIssue(t *testing.T) {
	store := storagetest.NewMemory()
	store.Put("models/org/m/config.json", []byte("{}"))
	issuer := NewURLIssuer(store)

	u, err := issuer.Issue(context.Background(), "models/org/m/config.json", 600)
	require.NoError(t, err)
	assert.Equal(t, "models/org/m/config.json", u.ObjectKey)
	assert.Equal(t, 600, u.ExpiresIn)
	assert.True(t, strings.HasSuffix(u.URL, "ttl=600"), u.URL)
}

func TestIssue_MissingObject(t *testing.T) {
	issuer := NewURLIssuer(storagetest.NewMemory())

	_, err := issuer.Issue(context.Background(), "models/org/m/nope.bin", 600)
	assert.True(t, IsKind(err, KindNotFound))
	assert.Equal(t, "object not accessible: models/org/m/nope.bin", detailOf(err))
}

func TestIssue_BackendError(t *testing.T) {
	store := storagetest.NewMemory()
	store.URLErr = errors.New("credentials expired")
	issuer := NewURLIssuer(store)

	_, err := issuer.Issue(context.Background(), "k", 60)
	assert.True(t, IsKind(err, KindNotFound))
}

func TestIssue_RejectsExpiryBeforeSigning(t *testing.T) {
	store := storagetest.NewMemory()
	store.URLErr = errors.New("must not be called")
	issuer := NewURLIssuer(store)

	_, err := issuer.Issue(context.Background(), "k", 59)
	assert.True(t, IsKind(err, KindInvalidArgument))
}
