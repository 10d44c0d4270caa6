package main

import (
	"context"
	"flag"
	"log"
	"os"
	"path/filepath"

	"github.com/embermud/ember/server"
)

func main() {
	config := server.DefaultConfig()

	flag.StringVar(&config.Dir, "dir", filepath.Join(os.Getenv("HOME"), ".ember"), "Where to save databases and logs.")
	flag.StringVar(&config.ConfigPath, "config", "", "World config JSON file; defaults apply when empty.")

	flag.Parse()

	srv, err := server.New(config)
	if err != nil {
		log.Fatal(err)
	}

	log.Fatal(srv.Start(context.Background()))
}
