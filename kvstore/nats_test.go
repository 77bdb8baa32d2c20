package kvstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEncodeKey(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"rate_limit:product:shop1.myshopify.com", "rate_limit.product.shop1.myshopify.com"},
		{"cache:products/list", "cache.products/list"},
		{"plain-key_0=9", "plain-key_0=9"},
		{"weird key*", "weird_key_"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, encodeKey(tt.in), tt.in)
	}
}

func TestEnvelopeExpired(t *testing.T) {
	now := time.Now()

	assert.False(t, envelope{}.expired(now), "zero deadline never expires")
	assert.False(t, envelope{ExpiresAt: now.Add(time.Second).UnixNano()}.expired(now))
	assert.True(t, envelope{ExpiresAt: now.Add(-time.Second).UnixNano()}.expired(now))
}
