package cache

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSiteKeyIgnoresEquivalentForms(t *testing.T) {
	key := siteKey("https://Shop.test/")
	assert.Equal(t, key, siteKey("https://shop.test:443"))
	assert.NotEqual(t, key, siteKey("http://shop.test"))
	assert.True(t, strings.HasSuffix(key, "-audit"))
	assert.LessOrEqual(t, len(key), 250)
}
