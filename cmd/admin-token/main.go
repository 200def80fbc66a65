// Command admin-token mints a short-lived bearer token for the admin API.
package main

import (
	"flag"
	"fmt"
	"os"

	"bookmarks-billing/internal/config"
	"bookmarks-billing/internal/infra/web"
)

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	subject := flag.String("sub", "ops", "token subject")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	tok, err := web.NewAuthManager(cfg.Admin.JWTSecret, cfg.Admin.TokenTTL).Mint(*subject)
	if err != nil {
		fmt.Fprintf(os.Stderr, "mint: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(tok)
}
