package config

import (
	"flag"
	"os"

	"github.com/dpavlenko/marksync/internal/flagx"
)

// parseFlags overlays selected Config fields from command-line flags.
//
// Supported flags:
//
//	-a string   websocket address of the replication channel
//	-o string   origin (domain) this agent syncs
//	-f string   path to the SQLite event log
//	-k string   path to the bbolt key-value store
//	-vault      enable domain-scoped encryption of synced payloads
//
// os.Args is filtered to only the flags handled here so other components
// can define their own.
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-o", "-f", "-k", "-vault"})

	fs := flag.NewFlagSet("agent", flag.ContinueOnError)

	fs.StringVar(&cfg.ChannelURL, "a", cfg.ChannelURL, "address of the replication channel")
	fs.StringVar(&cfg.Origin, "o", cfg.Origin, "origin (domain) to sync highlights for")
	fs.StringVar(&cfg.EventDBPath, "f", cfg.EventDBPath, "path to the event log database")
	fs.StringVar(&cfg.KVPath, "k", cfg.KVPath, "path to the key-value store")
	fs.BoolVar(&cfg.VaultEnabled, "vault", cfg.VaultEnabled, "enable vault mode")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}
}
