// Package changes holds the built-in change modules of the public API. Each
// resource file declares how its payloads cross a version boundary; the
// package exposes them grouped by channel for registration at startup.
package changes
