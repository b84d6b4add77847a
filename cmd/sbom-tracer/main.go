// sbom-tracer runs a build command under eBPF and process tracing and
// collects the evidence needed to describe what the build pulled in.
package main

import "os"

// Version information injected at build time.
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	os.Exit(Execute())
}
