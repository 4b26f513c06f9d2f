// Package cli implements the quelmap command line. Commands follow the
// Options pattern: flags are bound, completed and validated before Run.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/quelmap-inc/quelmap/internal/analysis"
	"github.com/quelmap-inc/quelmap/internal/client"
	"github.com/quelmap-inc/quelmap/internal/datasets"
	"github.com/quelmap-inc/quelmap/internal/history"
	"github.com/quelmap-inc/quelmap/internal/store"
)

type GlobalOptions struct {
	ConfigPath string
	ServerUrl  string
	DataDir    string

	config *client.Config
}

func DefaultGlobalOptions() GlobalOptions {
	return GlobalOptions{
		ConfigPath: client.DefaultConfigPath(),
	}
}

func (o *GlobalOptions) Bind(fs *pflag.FlagSet) {
	fs.StringVar(&o.ConfigPath, "config", o.ConfigPath, "Path to the client config file")
	fs.StringVarP(&o.ServerUrl, "server-url", "u", o.ServerUrl, "Address of the quelmap server")
	fs.StringVar(&o.DataDir, "data-dir", o.DataDir, "Directory holding the client's durable state")
}

func (o *GlobalOptions) Complete(cmd *cobra.Command, args []string) error {
	config, err := client.ParseConfigFile(o.ConfigPath)
	if err != nil {
		return err
	}
	if o.ServerUrl != "" {
		config.Service.Server = o.ServerUrl
	}
	if o.DataDir != "" {
		config.DataDir = o.DataDir
	}
	if config.DataDir == "" {
		config.DataDir = store.DefaultDataDir()
	}
	o.config = config
	return nil
}

func (o *GlobalOptions) Validate(args []string) error {
	if o.config == nil {
		return fmt.Errorf("options not completed")
	}
	return o.config.Validate()
}

// Runtime holds the process-wide state shared by every command: the
// service client, the durable store and the caches built on top of it. It
// is constructed once per invocation and injected into the command's Run.
type Runtime struct {
	Client      *client.Client
	Store       *store.Store
	Settings    *store.Settings
	Ledger      *history.Ledger
	Coordinator *analysis.Coordinator
	Poller      *analysis.Poller
	Broadcaster *datasets.Broadcaster
	Catalog     *datasets.Catalog
	Pages       *datasets.PageCache
	Mutator     *datasets.Mutator
}

func (o *GlobalOptions) Runtime() (*Runtime, error) {
	c, err := client.New(o.config)
	if err != nil {
		return nil, fmt.Errorf("creating client: %w", err)
	}
	s, err := store.New(o.config.DataDir)
	if err != nil {
		return nil, err
	}
	ledger, err := history.NewLedger(s)
	if err != nil {
		return nil, err
	}
	broadcaster := datasets.NewBroadcaster()

	return &Runtime{
		Client:      c,
		Store:       s,
		Settings:    store.NewSettings(s),
		Ledger:      ledger,
		Coordinator: analysis.NewCoordinator(c, ledger),
		Poller:      analysis.NewPoller(c),
		Broadcaster: broadcaster,
		Catalog:     datasets.NewCatalog(c, broadcaster),
		Pages:       datasets.NewPageCache(c, broadcaster),
		Mutator:     datasets.NewMutator(c, broadcaster),
	}, nil
}
