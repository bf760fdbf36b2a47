package stripe

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-checkout/pkg/config"
	"github.com/angelmondragon/storefront-checkout/pkg/logger"
)

func TestNewClientRequiresAPIKey(t *testing.T) {
	_, err := NewClient(context.Background(), config.StripeConfig{Env: "test"}, nil)
	require.ErrorIs(t, err, errAPIKeyRequired)
}

func TestNewClientRejectsKeyForWrongEnvironment(t *testing.T) {
	_, err := NewClient(context.Background(), config.StripeConfig{Env: "live", APIKey: "sk_test_123"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sk_live/rk_live")

	_, err = NewClient(context.Background(), config.StripeConfig{Env: "staging", APIKey: "sk_test_123"}, nil)
	require.ErrorIs(t, err, errInvalidStripeEnv)
}

func TestNewClientDefaultsToTest(t *testing.T) {
	client, err := NewClient(context.Background(), config.StripeConfig{APIKey: "rk_test_abc"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "test", client.Environment())
	assert.False(t, client.Live())
	assert.NotNil(t, client.API())
}

func TestNilClientAccessors(t *testing.T) {
	var client *Client
	assert.Nil(t, client.API())
	assert.Empty(t, client.Environment())
}

func TestLeveledLoggerForwardsWarnings(t *testing.T) {
	buf := &bytes.Buffer{}
	l := leveledLogger{logg: logger.New(logger.Options{ServiceName: "stripe-test", Output: buf})}
	l.Infof("request %s", "req_1")
	assert.Zero(t, buf.Len(), "info is demoted to debug")

	l.Warnf("retrying %s", "req_1")
	assert.Contains(t, buf.String(), "stripe: retrying req_1")

	leveledLogger{}.Errorf("ignored %d", 1)
}
