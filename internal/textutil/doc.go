// Package textutil provides small text helpers shared by the CLI and the
// exporters.
//
// Fingerprints are character trigram vectors used to suggest the closest
// known name when a user mistypes a preset or quality flag. SanitizeToken
// turns arbitrary input names into filesystem-safe output name tokens.
package textutil
