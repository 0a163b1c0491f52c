package main

import "fmt"

// overridden at build time via -ldflags
var (
	BuildVersion = "dev"
	BuildCommit  = "unknown"
	BuildDate    = "unknown"
)

func printVersion(writer func(c string)) {
	writer(fmt.Sprintf("Version: %s", BuildVersion))
	writer(fmt.Sprintf("Commit: %s", BuildCommit))
	writer(fmt.Sprintf("Build date: %s", BuildDate))
}
