package logger

import (
	"net/url"
	"regexp"
	"strings"
)

// passwordParam matches password settings in keyword/value DSNs
// ("host=db password='p w'") and in URL query strings.
var passwordParam = regexp.MustCompile(`(?i)(\bpassword\s*=\s*)('(?:[^'\\]|\\.)*'|[^\s&]+)`)

// RedactSecret masks a credential for safe logging.
// "s3cr3t-token" → "s3***"
// Short values (≤4 chars) are fully masked.
func RedactSecret(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) > 4 {
		return secret[:2] + "***"
	}
	return "***"
}

// RedactDSN masks the password of a connection string, either a URL or a
// keyword/value DSN.
// "postgres://etl:hunter2@db:5432/wh" → "postgres://etl:***@db:5432/wh"
// "host=db user=etl password=hunter2" → "host=db user=etl password=***"
func RedactDSN(dsn string) string {
	dsn = passwordParam.ReplaceAllString(dsn, "${1}***")
	if !strings.Contains(dsn, "@") {
		return dsn
	}
	u, err := url.Parse(dsn)
	if err != nil || u.User == nil {
		return dsn
	}
	if _, ok := u.User.Password(); !ok {
		return dsn
	}
	u.User = url.UserPassword(u.User.Username(), "***")
	return strings.Replace(u.String(), "%2A%2A%2A", "***", 1)
}
