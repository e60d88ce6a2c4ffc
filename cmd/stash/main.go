package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"stash/internal/client"
)

func main() {
	configPath := flag.String("config", "", "path to config.yml (default: user config dir)")
	flag.Parse()

	cfg, err := client.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	paths, err := client.ParseArgs(flag.Args())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	c := client.New(cfg)
	ctx := context.Background()

	failed := 0
	for _, path := range paths {
		resp, err := c.Upload(ctx, path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error uploading %s: %v\n", path, err)
			failed++
			continue
		}
		fmt.Printf("✓ %s (%s)\n  %s\n  delete: %s\n",
			path, resp.File.Size, resp.File.URL, resp.File.DeleteURL)
	}

	if failed > 0 {
		os.Exit(1)
	}
}
