package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"

	"stories-api/pkg/httpclient"
	"stories-api/pkg/title"
)

// Resolves and prints the title a story would get for each URL given on the command line.
func main() {
	if len(os.Args) < 2 {
		log.Fatalf("usage: %s URL [URL...]", os.Args[0])
	}

	resolver := title.NewResolver(
		httpclient.NewClient(httpclient.DefaultClient),
		slog.New(slog.NewTextHandler(os.Stderr, nil)),
	)

	ctx := context.Background()
	for _, url := range os.Args[1:] {
		fmt.Printf("%s\n  Title: %q\n", url, resolver.Resolve(ctx, url))
	}
}
