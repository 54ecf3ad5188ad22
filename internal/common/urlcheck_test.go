package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsHTTPURL(t *testing.T) {
	assert.True(t, IsHTTPURL("https://example.com/jobs/1"))
	assert.True(t, IsHTTPURL("http://example.com"))
	assert.True(t, IsHTTPURL("  https://example.com  "))
	assert.False(t, IsHTTPURL("ftp://example.com"))
	assert.False(t, IsHTTPURL("javascript:void(0)"))
	assert.False(t, IsHTTPURL("not a url"))
	assert.False(t, IsHTTPURL(""))
}

func TestShouldSkipURL(t *testing.T) {
	assert.False(t, ShouldSkipURL("https://careers.example.com/req/123"))
	assert.True(t, ShouldSkipURL("mailto:jobs@example.com"))
	assert.True(t, ShouldSkipURL("https://errors.edgesuite.net/some/path"))
	assert.True(t, ShouldSkipURL(""))
}
