package gcp

import (
	"os"
	"strings"

	"google.golang.org/api/option"
)

// Credentials describes where GCP clients get their identity from.
type Credentials struct {
	// Source is "inline", "file" or "adc".
	Source string
	value  string
}

// ResolveCredentials accepts inline service-account JSON or a key file path. An empty value
// falls back to GOOGLE_APPLICATION_CREDENTIALS_JSON, then GOOGLE_APPLICATION_CREDENTIALS,
// then application default credentials.
func ResolveCredentials(configured string) Credentials {
	for _, v := range []string{
		configured,
		os.Getenv("GOOGLE_APPLICATION_CREDENTIALS_JSON"),
		os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"),
	} {
		v = strings.TrimSpace(v)
		switch {
		case v == "":
			continue
		case strings.HasPrefix(v, "{"):
			return Credentials{Source: "inline", value: v}
		default:
			return Credentials{Source: "file", value: v}
		}
	}
	return Credentials{Source: "adc"}
}

func (c Credentials) Options(extra ...option.ClientOption) []option.ClientOption {
	var opts []option.ClientOption
	switch c.Source {
	case "inline":
		opts = append(opts, option.WithCredentialsJSON([]byte(c.value)))
	case "file":
		opts = append(opts, option.WithCredentialsFile(c.value))
	}
	return append(opts, extra...)
}
