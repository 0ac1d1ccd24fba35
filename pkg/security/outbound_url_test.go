package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckRejectsZonedIPv6ByDefault(t *testing.T) {
	_, err := URLPolicy{}.Check("https://[fe80::1%25eth0]/")
	require.Error(t, err)
}

func TestCheckAllowsZonedIPv6WhenLocalNetworksAllowed(t *testing.T) {
	_, err := URLPolicy{AllowLocalNetworks: true}.Check("https://[fe80::1%25eth0]/")
	require.NoError(t, err)
}

func TestCheckMessages(t *testing.T) {
	tests := []struct {
		url     string
		message string
	}{
		{"", "Invalid URL provided - must be a non-empty string"},
		{"example.com/path", "Invalid URL format - must include scheme (http/https) and domain"},
		{"ftp://example.com/file", "Unsupported URL scheme 'ftp' - only http and https are supported"},
		{"http://localhost:8080/", `local hostname "localhost" is not allowed`},
		{"https://10.0.0.5/", `local network IP "10.0.0.5" is not allowed`},
		{"https://0.0.0.0/", `disallowed IP address "0.0.0.0"`},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			_, err := PublicWeb.Check(tt.url)
			require.Error(t, err)
			var ue *URLError
			require.ErrorAs(t, err, &ue)
			assert.Equal(t, tt.message, ue.Message)
		})
	}
}

func TestCheckAcceptsPublicURLs(t *testing.T) {
	u, err := PublicWeb.Check("https://learn.microsoft.com/en-us/copilot")
	require.NoError(t, err)
	assert.Equal(t, "learn.microsoft.com", u.Hostname())

	_, err = URLPolicy{}.Check("http://example.com")
	require.Error(t, err, "plain http needs AllowHTTP")
}

func TestValidateBaseURL(t *testing.T) {
	require.NoError(t, ValidateBaseURL("https://api.openai.com/v1", false))
	require.Error(t, ValidateBaseURL("http://127.0.0.1:8080/v1", false))
	require.NoError(t, ValidateBaseURL("http://127.0.0.1:8080/v1", true))
}
