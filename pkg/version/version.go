// Package version holds the release version reported by the CLI, the API
// and the HTTP user agent.
package version

// Version is the current version of tripreel.
const Version = "v0.4.0"
