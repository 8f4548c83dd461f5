package cli

// version is stamped at build time via -ldflags "-X ...cli.version=v1.2.3".
var version = "dev"

// Version reports the build version string.
func Version() string { return version }
