package main

import (
	"context"
	"fmt"
	"io"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/PorkStudios/PorkLib-sub015/pkg/discovery"
)

// findTimeout bounds --find lookups.
const findTimeout = 5 * time.Second

func runBrowse(ctx context.Context, args []string, stdout io.Writer) error {
	var (
		iface     string
		transport string
		timeout   time.Duration
	)
	fs := flag.NewFlagSet("browse", flag.ContinueOnError)
	fs.StringVar(&iface, "interface", "", "Network interface for mDNS")
	fs.StringVarP(&transport, "transport", "t", "", "Only list servers using this transport")
	fs.DurationVarP(&timeout, "timeout", "w", 3*time.Second, "How long to browse")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	b := discovery.NewBrowser(discovery.BrowserConfig{Interface: iface})
	services, err := b.Browse(ctx, transport)
	if err != nil {
		return err
	}
	n := 0
	for svc := range services {
		n++
		fmt.Fprintf(stdout, "%-24s %-10s %-22s %s\n", svc.Instance, svc.Transport, svc.Addr(), svc.Reliabilities)
	}
	if n == 0 {
		fmt.Fprintln(stdout, "No servers found")
	}
	return nil
}

func findService(ctx context.Context, iface, instance string) (*discovery.Service, error) {
	ctx, cancel := context.WithTimeout(ctx, findTimeout)
	defer cancel()
	b := discovery.NewBrowser(discovery.BrowserConfig{Interface: iface})
	svc, err := b.Find(ctx, instance)
	if err != nil {
		return nil, fmt.Errorf("find %q: %w", instance, err)
	}
	return svc, nil
}
