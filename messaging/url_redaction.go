package messaging

import (
	"net/url"
	"strings"
)

// #nosec G101 -- Placeholder text for redacted URLs, not actual credentials
const redactedAMQPPlaceholder = "amqp://****:****@<host>:<port>/<vhost>"

// redactAMQPURL masks the password in an AMQP URL for logging and keeps the
// username, host and vhost. Unparseable or non-AMQP input yields a placeholder.
func redactAMQPURL(amqpURL string) string {
	u, err := url.Parse(amqpURL)
	if amqpURL == "" || err != nil || u.Host == "" || (u.Scheme != "amqp" && u.Scheme != "amqps") {
		return redactedAMQPPlaceholder
	}

	userInfo := "****:****"
	if u.User != nil && u.User.Username() != "" {
		userInfo = u.User.Username() + ":****"
	}

	// Built by hand so the asterisks are not percent-encoded.
	var b strings.Builder
	b.WriteString(u.Scheme)
	b.WriteString("://")
	b.WriteString(userInfo)
	b.WriteString("@")
	b.WriteString(u.Host)
	b.WriteString(u.EscapedPath())
	if u.RawQuery != "" {
		b.WriteString("?")
		b.WriteString(u.RawQuery)
	}
	return b.String()
}
