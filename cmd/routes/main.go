// Command routes prints the route manifest discovered in a routes directory.
package main

import (
	"encoding/json"
	"flag"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"skillbase/internal/routes"
)

func main() {
	dir := flag.String("dir", "app/routes", "routes directory")
	ignore := flag.String("ignore", "", "extra comma separated ignore patterns")
	flag.Parse()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr})

	patterns := append([]string{}, routes.DefaultIgnore...)
	for _, p := range strings.Split(*ignore, ",") {
		if p = strings.TrimSpace(p); p != "" {
			patterns = append(patterns, p)
		}
	}

	found, err := routes.Discover(os.DirFS(*dir), routes.Options{Ignore: patterns})
	if err != nil {
		logger.Fatal().Err(err).Str("dir", *dir).Msg("discover routes")
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(routes.NewManifest(found)); err != nil {
		logger.Fatal().Err(err).Msg("encode manifest")
	}
}
