// Package version reports build metadata of the batchd binary.
//
// Release builds stamp it through ldflags:
//
//	go build -ldflags "-X github.com/studio233/batchd/version.Version=v1.4.0 \
//	  -X github.com/studio233/batchd/version.BuiltAt=$(date -u +%FT%TZ)" ./cmd/batchd
//
// Without ldflags the revision and commit time come from the VCS stamp the
// go tool embeds.
package version
