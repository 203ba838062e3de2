// Package buildinfo exposes version data injected at link time, e.g.
//
//	go build -ldflags "-X github.com/dmitrijs2005/ankisync/internal/buildinfo.buildVersion=1.2.0"
package buildinfo

import (
	"fmt"
	"io"
	"runtime"
)

var (
	buildVersion = "N/A"
	buildDate    = "N/A"
	buildCommit  = "N/A"
)

// PrintBuildData writes the version banner shown when the CLI starts.
func PrintBuildData(w io.Writer) {
	fmt.Fprintf(w, "Build version: %s\n", buildVersion)
	fmt.Fprintf(w, "Build date: %s\n", buildDate)
	fmt.Fprintf(w, "Build commit: %s\n", buildCommit)
}

// ClientVersion is the "cv" string the sync server uses to identify the
// client: name, version and platform separated by commas.
func ClientVersion() string {
	return fmt.Sprintf("ankisync,%s,%s:%s", buildVersion, runtime.GOOS, runtime.GOARCH)
}
