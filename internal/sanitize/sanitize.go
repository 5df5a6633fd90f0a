// Package sanitize redacts credential-shaped substrings from error strings
// before they are surfaced to a caller, per the error message sanitization
// rules of the spec's External Interfaces section.
package sanitize

import "regexp"

var (
	credentialAssignment = regexp.MustCompile(`(?i)([A-Za-z_]*(?:key|token|secret|password|credential)[A-Za-z_]*)=\S+`)
	bearerToken           = regexp.MustCompile(`(?i)bearer\s+\S+`)
	unixHome              = regexp.MustCompile(`/(home|Users)/([^/\s]+)`)
	windowsProfile        = regexp.MustCompile(`(?i)(C:\\Users\\)([^\\\s]+)`)
)

// Error redacts credential-shaped text from msg:
//   - "name=value" pairs where name looks like a credential field keep the
//     name and replace the value with "***".
//   - "bearer <anything>" becomes "bearer ***".
//   - Unix home paths (/home/<user>, /Users/<user>) and Windows user profile
//     paths (C:\Users\<user>) have the user segment replaced with "***".
func Error(msg string) string {
	msg = credentialAssignment.ReplaceAllString(msg, "$1=***")
	msg = bearerToken.ReplaceAllString(msg, "bearer ***")
	msg = unixHome.ReplaceAllString(msg, "/$1/***")
	msg = windowsProfile.ReplaceAllString(msg, "${1}***")
	return msg
}
