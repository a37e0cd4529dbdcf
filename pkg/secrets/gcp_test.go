package secrets

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

type mapAccessor map[string]string

func (m mapAccessor) GetSecret(_ context.Context, name string) (string, error) {
	v, ok := m[name]
	if !ok {
		return "", errors.New("not found")
	}
	return v, nil
}

func TestWithDefault(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	a := mapAccessor{"rit-api-key": "K", "empty": ""}
	ctx := context.Background()

	assert.Equal(t, "K", WithDefault(ctx, a, logger, "rit-api-key", "env"))
	assert.Equal(t, "env", WithDefault(ctx, a, logger, "missing", "env"))
	assert.Equal(t, "env", WithDefault(ctx, a, logger, "empty", "env"))
	assert.Equal(t, "env", WithDefault(ctx, a, logger, "", "env"))
}

func TestDefaultSecretNames(t *testing.T) {
	n := DefaultSecretNames()
	assert.Equal(t, "rit-api-key", n.APIKey)
	assert.NotEmpty(t, n.JWTPrivateKey)
}
