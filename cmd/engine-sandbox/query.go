package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/scott-cotton/cli"

	"pixlise-client/client"
	"pixlise-client/config"
	"pixlise-client/export"
)

// connConfig holds the flags shared by the commands that talk to an engine.
type connConfig struct {
	target     string
	configPath string
	timeout    int
	dev        bool
}

// connect dials the engine and authenticates with the same configuration,
// sent inline since the engine may not share this filesystem.
func (cfg connConfig) connect(ctx context.Context) (*client.Client, error) {
	file, err := config.Resolve(cfg.configPath)
	if err != nil {
		return nil, err
	}
	if cfg.target != "" {
		file.Engine.Target = cfg.target
	}
	if file.Engine.Target == "" {
		return nil, fmt.Errorf("%w: no engine target in %s, use -target", cli.ErrUsage, file.Source)
	}
	logger, err := newLogger(cfg.dev)
	if err != nil {
		return nil, err
	}
	opts := []client.Option{client.WithLogger(logger)}
	if cfg.timeout > 0 {
		opts = append(opts, client.WithCallTimeout(time.Duration(cfg.timeout)*time.Second))
	}
	c, err := client.DialConfig(ctx, file, opts...)
	if err != nil {
		return nil, err
	}
	if err := c.AuthenticateConfig(ctx, file); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

type scansConfig struct {
	*cli.Command

	Target     string `cli:"name=target desc='engine target such as tcp://127.0.0.1:7400, overrides the config file'"`
	ConfigPath string `cli:"name=config desc='client config file (default $HOME/.pixlise-config.json or $PIXLISE_CLIENT_CONFIG)'"`
	Timeout    int    `cli:"name=timeout desc='seconds allowed per call'"`
	Dev        bool   `cli:"name=dev desc='human readable debug logging'"`
}

func (cfg *scansConfig) conn() connConfig {
	return connConfig{cfg.Target, cfg.ConfigPath, cfg.Timeout, cfg.Dev}
}

func ScansCommand() *cli.Command {
	cfg := &scansConfig{Timeout: 10}
	opts, err := cli.StructOpts(cfg)
	if err != nil {
		panic(err)
	}
	return cli.NewCommandAt(&cfg.Command, "scans").
		WithSynopsis("scans [opts] [scan-id]").
		WithDescription("list scans and their quantifications").
		WithOpts(opts...).
		WithRun(cfg.run)
}

func (cfg *scansConfig) run(cc *cli.Context, args []string) error {
	args, err := cfg.Parse(cc, args)
	if err != nil {
		return err
	}
	scanID := ""
	if len(args) > 0 {
		scanID = args[0]
	}
	ctx := context.Background()
	c, err := cfg.conn().connect(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	scans, err := c.ListScans(ctx, scanID)
	if err != nil {
		return err
	}
	for _, s := range scans.Scans {
		fmt.Fprintf(cc.Out, "%s\t%s\t%s\n", s.ID, s.Title, s.Instrument)
		quants, err := c.ListScanQuants(ctx, s.ID)
		if err != nil {
			return err
		}
		for _, q := range quants.Quants {
			fmt.Fprintf(cc.Out, "\t%s\t%s\t%v\n", q.ID, q.Name, q.Detectors)
		}
	}
	return nil
}

type columnConfig struct {
	*cli.Command

	Target     string `cli:"name=target desc='engine target such as tcp://127.0.0.1:7400, overrides the config file'"`
	ConfigPath string `cli:"name=config desc='client config file (default $HOME/.pixlise-config.json or $PIXLISE_CLIENT_CONFIG)'"`
	Timeout    int    `cli:"name=timeout desc='seconds allowed per call'"`
	Dev        bool   `cli:"name=dev desc='human readable debug logging'"`
	Detector   string `cli:"name=detector desc='quantification detector'"`
	Out        string `cli:"name=o desc='arrow output file (default stdout)'"`
}

func (cfg *columnConfig) conn() connConfig {
	return connConfig{cfg.Target, cfg.ConfigPath, cfg.Timeout, cfg.Dev}
}

func ColumnCommand() *cli.Command {
	cfg := &columnConfig{Timeout: 10, Detector: "Combined"}
	opts, err := cli.StructOpts(cfg)
	if err != nil {
		panic(err)
	}
	return cli.NewCommandAt(&cfg.Command, "column").
		WithSynopsis("column [opts] <quant-id> <column>...").
		WithDescription("export quantified columns as an Arrow IPC stream").
		WithOpts(opts...).
		WithRun(cfg.run)
}

func (cfg *columnConfig) run(cc *cli.Context, args []string) error {
	args, err := cfg.Parse(cc, args)
	if err != nil {
		return err
	}
	if len(args) < 2 {
		return fmt.Errorf("%w: column needs a quantification id and at least one column", cli.ErrUsage)
	}
	ctx := context.Background()
	c, err := cfg.conn().connect(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	quantID := args[0]
	var cols []export.Column
	for _, name := range args[1:] {
		values, err := c.GetQuantColumn(ctx, quantID, name, cfg.Detector)
		if err != nil {
			return err
		}
		cols = append(cols, export.Column{Name: name, Values: values})
	}

	out := cc.Out
	if cfg.Out != "" {
		f, err := os.Create(cfg.Out)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}
	return export.WriteColumns(out, cols...)
}

type mapsConfig struct {
	*cli.Command

	Target     string `cli:"name=target desc='engine target such as tcp://127.0.0.1:7400, overrides the config file'"`
	ConfigPath string `cli:"name=config desc='client config file (default $HOME/.pixlise-config.json or $PIXLISE_CLIENT_CONFIG)'"`
	Timeout    int    `cli:"name=timeout desc='seconds allowed per call'"`
	Dev        bool   `cli:"name=dev desc='human readable debug logging'"`
	Detector   string `cli:"name=detector desc='spectrum detector'"`
	Start      int    `cli:"name=start desc='first channel summed, -1 for the first'"`
	End        int    `cli:"name=end desc='channel after the last one summed, -1 for all'"`
	Save       string `cli:"name=save desc='also save the channel sums on the engine under this key'"`
	Out        string `cli:"name=o desc='arrow output file (default stdout)'"`
}

func (cfg *mapsConfig) conn() connConfig {
	return connConfig{cfg.Target, cfg.ConfigPath, cfg.Timeout, cfg.Dev}
}

func MapsCommand() *cli.Command {
	cfg := &mapsConfig{Timeout: 10, Detector: "A", Start: -1, End: -1}
	opts, err := cli.StructOpts(cfg)
	if err != nil {
		panic(err)
	}
	return cli.NewCommandAt(&cfg.Command, "maps").
		WithSynopsis("maps [opts] <scan-id>").
		WithDescription("export per entry channel sums, diffraction peak counts and roughness as an Arrow IPC stream").
		WithOpts(opts...).
		WithRun(cfg.run)
}

func (cfg *mapsConfig) run(cc *cli.Context, args []string) error {
	args, err := cfg.Parse(cc, args)
	if err != nil {
		return err
	}
	if len(args) != 1 {
		return fmt.Errorf("%w: maps needs a scan id", cli.ErrUsage)
	}
	ctx := context.Background()
	c, err := cfg.conn().connect(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	scanID := args[0]
	sums, err := c.GetScanSpectrumRangeAsMap(ctx, scanID, int32(cfg.Start), int32(cfg.End), cfg.Detector)
	if err != nil {
		return err
	}
	if cfg.Save != "" {
		if err := c.SaveMapData(ctx, cfg.Save, sums); err != nil {
			return err
		}
	}
	peaks, err := c.GetDiffractionAsMap(ctx, scanID, client.CalibrationBulkSum, -1, -1)
	if err != nil {
		return err
	}
	rough, err := c.GetRoughnessAsMap(ctx, scanID, client.CalibrationBulkSum)
	if err != nil {
		return err
	}

	out := cc.Out
	if cfg.Out != "" {
		f, err := os.Create(cfg.Out)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}
	return export.WriteColumns(out,
		export.Column{Name: "counts_" + cfg.Detector, Values: sums},
		export.Column{Name: "diffraction_peaks", Values: peaks},
		export.Column{Name: "roughness", Values: rough},
	)
}
