// pdflink prints a signed retrieval link for an uploaded ticket, for support
// staff re-sending a ticket by hand.
package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"ticket-bazaar/internal/auth"
	"ticket-bazaar/internal/config"
	"ticket-bazaar/internal/models"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var ttl time.Duration

	flagSet := pflag.NewFlagSet("pdflink", pflag.ContinueOnError)
	flagSet.DurationVar(&ttl, "ttl", 0, "link lifetime (default: the configured link TTL)")
	flagSet.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: pdflink [--ttl 48h] TICKET_ID")
		flagSet.PrintDefaults()
	}
	if err := flagSet.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}
	if flagSet.NArg() != 1 {
		flagSet.Usage()
		return fmt.Errorf("expected exactly one ticket id")
	}
	ticket, err := strconv.ParseInt(flagSet.Arg(0), 10, 64)
	if err != nil || ticket <= 0 {
		return fmt.Errorf("bad ticket id %q", flagSet.Arg(0))
	}

	_ = godotenv.Load()
	cfg, err := config.Load("conf")
	if err != nil {
		return err
	}
	if ttl == 0 {
		ttl = cfg.Session.LinkTTL
	}

	links := &auth.Links{Signer: auth.NewSigner(cfg.Core.SecretKey), TTL: ttl}
	link, err := (&models.Pdf{Ticket: ticket}).Link(links, cfg.Core.APIHost)
	if err != nil {
		return err
	}
	fmt.Println(link)
	return nil
}
