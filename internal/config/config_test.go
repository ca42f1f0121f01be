package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultReturnURLs(t *testing.T) {
	t.Setenv("MOMO_RETURN_URL", "")
	t.Setenv("VNPAY_RETURN_URL", "")

	cfg, err := Load()
	require.NoError(t, err)

	// The out-of-box redirect must land on the mounted per-gateway route.
	assert.Equal(t, "http://localhost:8080/payments/momo/return", cfg.MomoReturnURL)
	assert.Equal(t, "http://localhost:8080/payments/vnpay/return", cfg.VNPayReturnURL)
}
