package validate

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/scrapeflow/scrapeflow/internal/scrape"
)

func TestCheckURL_AcceptsPublicHosts(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{
		"https://example.com",
		"https://example.com/path?q=1",
		"http://example.com:8080",
		"https://sub.domain.example.org",
		"https://93.184.216.34", // public literal IP
	} {
		require.NoError(t, CheckURL(raw), raw)
	}
}

func TestCheckURL_RejectsPrivateAndLocalTargets(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{
		"http://127.0.0.1/admin",
		"http://localhost:6379",
		"http://0.0.0.0",
		"http://[::1]:8080",
		"http://10.0.0.5",
		"http://172.16.3.4",
		"http://192.168.1.1",
		"http://169.254.1.1/latest/meta-data",
		"http://LOCALHOST",
	} {
		err := CheckURL(raw)
		require.Error(t, err, raw)
		apiErr, ok := scrape.AsAPIError(err)
		require.True(t, ok, raw)
		require.Equal(t, scrape.CodeValidation, apiErr.Code, raw)
	}
}

func TestCheckURL_RejectsBadSchemes(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{
		"ftp://example.com",
		"file:///etc/passwd",
		"gopher://example.com",
		"example.com", // no scheme
	} {
		require.Error(t, CheckURL(raw), raw)
	}
}

func TestCheckURL_RejectsEmptyAndOversized(t *testing.T) {
	t.Parallel()

	require.Error(t, CheckURL(""))

	long := "https://example.com/" + strings.Repeat("a", MaxURLLength)
	require.Error(t, CheckURL(long))
}
