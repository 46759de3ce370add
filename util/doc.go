// Package util provides small parsing helpers shared by configuration and the
// command line: human-readable byte sizes and escaped delimiter strings.
package util
