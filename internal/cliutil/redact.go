package cliutil

import "regexp"

const redactedPlaceholder = "[redacted]"

// Manifest env blocks name secrets by convention rather than from a fixed
// vocabulary, so matching goes by key suffix: any variable ending in one of
// the sensitive classes gets its value masked when a child echoes it.
var (
	templateVarPattern = regexp.MustCompile(`\$\{[^}]+\}`)
	secretKeyPattern   = regexp.MustCompile(`(?i)\b([A-Z0-9_]*(?:PASSWORD|PASSPHRASE|SECRET|TOKEN|API_KEY|ACCESS_KEY|PRIVATE_KEY|CREDENTIALS?))\b(\s*[:=]\s*)(["']?)([^"'\s]+)(["']?)`)
)

// RedactSecrets masks secret placeholders and sensitive key values from the
// supplied string. Task environments may carry secret markers, and child
// output echoing them must not leak through the supervisor log.
func RedactSecrets(message string) string {
	if message == "" {
		return message
	}
	redacted := templateVarPattern.ReplaceAllStringFunc(message, func(match string) string {
		return "${" + redactedPlaceholder + "}"
	})
	return secretKeyPattern.ReplaceAllString(redacted, "$1$2$3"+redactedPlaceholder+"$5")
}
