package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/urfave/cli/v2"

	"github.com/StrathCole/gpu-index/pkg/config"
	"github.com/StrathCole/gpu-index/pkg/feeder/gate"
	"github.com/StrathCole/gpu-index/pkg/feeder/keystore"
	"github.com/StrathCole/gpu-index/pkg/feeder/notify"
	"github.com/StrathCole/gpu-index/pkg/feeder/oracle"
	"github.com/StrathCole/gpu-index/pkg/feeder/price"
	"github.com/StrathCole/gpu-index/pkg/feeder/store"
	"github.com/StrathCole/gpu-index/pkg/feeder/updater"
	"github.com/StrathCole/gpu-index/pkg/logging"
	"github.com/StrathCole/gpu-index/pkg/metrics"
	"github.com/StrathCole/gpu-index/pkg/pipeline"
	"github.com/StrathCole/gpu-index/pkg/version"
)

// appState is the configuration and logger shared by the commands of one run.
type appState struct {
	cfg    *config.Config
	logger *logging.Logger
}

// setup loads and validates configuration and initializes logging and metrics.
func (s *appState) setup(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return asConfigError(err)
	}
	if v := c.String("log-level"); v != "" {
		cfg.Logging.Level = v
	}
	if v := c.String("data-dir"); v != "" {
		cfg.Index.DataDir = v
	}
	if err := config.Validate(cfg); err != nil {
		return asConfigError(err)
	}

	logger, err := logging.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	if err != nil {
		return asConfigError(fmt.Errorf("failed to initialize logger: %w", err))
	}
	logging.SetGlobal(logger)

	if cfg.Metrics.Enabled {
		metrics.Init()
	}

	s.cfg = cfg
	s.logger = logger
	logger.Info("Starting gpu-index", "version", version.Version, "command", c.Command.Name)
	return nil
}

// pushMetrics sends the run's metrics to the Pushgateway, if configured.
func (s *appState) pushMetrics(c *cli.Context) error {
	if s.cfg == nil || !s.cfg.Metrics.Enabled || s.cfg.Metrics.PushGateway == "" {
		return nil
	}
	instance, _ := os.Hostname()
	if err := metrics.Push(c.Context, s.cfg.Metrics.PushGateway, s.cfg.Metrics.Job, instance); err != nil {
		// metrics never change the run's outcome
		s.logger.Warn("Failed to push metrics", "error", err, "url", s.cfg.Metrics.PushGateway)
	}
	return nil
}

func calculateCommand(st *appState) *cli.Command {
	return &cli.Command{
		Name:  "calculate",
		Usage: "Compute the index and write the report and history, without publishing",
		Action: func(c *cli.Context) error {
			if err := st.setup(c); err != nil {
				return err
			}

			p, err := pipeline.New(st.cfg, nil, nil, st.logger.ZerologLogger())
			if err != nil {
				return asConfigError(err)
			}

			res, err := p.Calculate(c.Context)
			if res != nil {
				printReport(res)
			}
			if err != nil {
				return err
			}
			metrics.RecordSuccess("calculate")
			return nil
		},
	}
}

func publishCommand(st *appState) *cli.Command {
	return &cli.Command{
		Name:  "publish",
		Usage: "Compute the index and publish it to the store when it passes the drift gate",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "from-report",
				Usage: "Publish a previously written report instead of recomputing",
			},
		},
		Action: func(c *cli.Context) error {
			if err := st.setup(c); err != nil {
				return err
			}
			cfg := st.cfg
			zl := st.logger.ZerologLogger()

			if !cfg.StoreEnabled() {
				return asConfigError(fmt.Errorf("publish needs a store: set store.dsn or %s", config.EnvDatabaseURL))
			}
			s, err := store.Open(c.Context, store.Config{
				Driver:         cfg.Store.Driver,
				DSN:            cfg.Store.DSN,
				ConnectTimeout: cfg.Store.ConnectTimeout.ToDuration(),
			}, zl)
			if err != nil {
				return err
			}
			defer s.Close()

			var notifier pipeline.Notifier
			if cfg.NotifyEnabled() {
				pub, err := notify.NewPublisher(notify.Config{
					Brokers:      cfg.Notify.Brokers,
					Topic:        cfg.Notify.Topic,
					WriteTimeout: cfg.Notify.WriteTimeout.ToDuration(),
				}, zl)
				if err != nil {
					return asConfigError(err)
				}
				defer pub.Close()
				notifier = pub
			}

			p, err := pipeline.New(cfg, s, notifier, zl)
			if err != nil {
				return asConfigError(err)
			}

			var res *pipeline.Result
			if path := c.String("from-report"); path != "" {
				res, err = p.FromReport(path)
				if err != nil {
					return err
				}
				err = p.Publish(c.Context, res)
			} else {
				res, err = p.Run(c.Context)
			}
			if res != nil {
				printReport(res)
			}
			if err != nil {
				return err
			}
			metrics.RecordSuccess("publish")
			return nil
		},
	}
}

func pushCommand(st *appState) *cli.Command {
	return &cli.Command{
		Name:  "push",
		Usage: "Push the latest index price to the MultiAssetOracle contract",
		Flags: []cli.Flag{
			&cli.Float64Flag{
				Name:  "price",
				Usage: "Manual price override in USD/hour (bypasses the CSV)",
			},
			&cli.StringFlag{
				Name:  "csv",
				Usage: "Index history CSV to read the latest price from (default: configured history file)",
			},
			&cli.StringFlag{
				Name:  "report",
				Usage: "Read the price from an index report instead of the CSV",
			},
			&cli.BoolFlag{
				Name:  "read-only",
				Usage: "Only read and display the current on-chain price",
			},
			&cli.BoolFlag{
				Name:  "force",
				Usage: "Skip the drift check against the on-chain price",
			},
		},
		Action: func(c *cli.Context) error {
			if err := st.setup(c); err != nil {
				return err
			}
			return runPush(c, st)
		},
	}
}

func runPush(c *cli.Context, st *appState) error {
	cfg := st.cfg
	zl := st.logger.ZerologLogger()
	readOnly := c.Bool("read-only")

	if err := config.ValidateOracle(&cfg.Oracle, readOnly); err != nil {
		return asConfigError(err)
	}

	clientCfg := oracle.ClientConfig{
		RPCURL:         cfg.Oracle.RPCURL,
		Address:        common.HexToAddress(cfg.Oracle.ContractAddress),
		ChainID:        cfg.Oracle.ChainID,
		GasLimit:       cfg.Oracle.GasLimit,
		ReceiptTimeout: cfg.Oracle.ReceiptTimeout.ToDuration(),
		Logger:         zl,
	}
	if !readOnly {
		key, addr, err := keystore.LoadKey(cfg.Oracle.PrivateKey)
		if err != nil {
			return asConfigError(err)
		}
		clientCfg.Key = key
		st.logger.Info("Loaded updater key", "address", addr.Hex())
	}

	client, err := oracle.Dial(c.Context, clientCfg)
	if err != nil {
		if errors.Is(err, oracle.ErrChainIDMismatch) {
			return asConfigError(err)
		}
		return err
	}
	defer client.Close()

	var g *gate.Gate
	if !c.Bool("force") {
		g = gate.New(cfg.Gate.Tolerance, zl)
	}
	audit := updater.NewAuditLog(cfg.Oracle.AuditLog, cfg.Oracle.AuditLogSize, zl)

	u, err := updater.New(updater.Config{
		Asset:        cfg.Oracle.Asset,
		Network:      cfg.Oracle.Network,
		MaxSanePrice: cfg.Oracle.MaxSanePrice,
		ReadOnly:     readOnly,
	}, client, g, audit, zl)
	if err != nil {
		return err
	}

	if readOnly {
		pd, err := u.Read(c.Context)
		if err != nil {
			return err
		}
		fmt.Printf("Asset:        %s (%s)\n", cfg.Oracle.Asset, u.AssetID().Hex())
		fmt.Printf("Price:        $%.6f/hr\n", pd.Price())
		fmt.Printf("Raw:          %s\n", rawString(pd))
		fmt.Printf("Last updated: %s\n", pd.LastUpdated())
		metrics.RecordSuccess("push")
		return nil
	}

	quote, err := priceClient(c, cfg).GetPrice(c.Context)
	if err != nil {
		return err
	}
	st.logger.Info("Resolved price",
		"price", quote.Price,
		"source", quote.Source,
		"column", quote.Column,
		"calculation_date", quote.Timestamp)

	res, err := u.Push(c.Context, quote.Price)
	var mismatch *updater.VerificationMismatchError
	if errors.As(err, &mismatch) {
		st.logger.Warn("Update mined but on-chain value differs, not rolled back",
			"tx_hash", res.TxHash.Hex(),
			"error", err)
		return nil
	}
	if err != nil {
		return err
	}

	fmt.Printf("Transaction:  %s\n", res.TxHash.Hex())
	fmt.Printf("Block:        %d\n", res.BlockNumber)
	fmt.Printf("Gas used:     %d\n", res.GasUsed)
	fmt.Printf("Price:        $%.6f/hr (verified)\n", res.Price)
	metrics.RecordSuccess("push")
	return nil
}

func priceClient(c *cli.Context, cfg *config.Config) price.Client {
	switch {
	case c.IsSet("price"):
		return price.NewStaticClient(c.Float64("price"))
	case c.String("report") != "":
		return price.NewReportClient(c.String("report"))
	case c.String("csv") != "":
		return price.NewCSVClient(c.String("csv"))
	default:
		return price.NewCSVClient(cfg.DataPath(cfg.Index.HistoryFile))
	}
}

func versionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Print the version",
		Action: func(*cli.Context) error {
			fmt.Println(version.AgentString())
			return nil
		},
	}
}

func printReport(res *pipeline.Result) {
	r := res.Report
	if r == nil {
		return
	}
	fmt.Printf("Run:          %s\n", res.RunID)
	fmt.Printf("Timestamp:    %s\n", r.Timestamp)
	fmt.Printf("Index price:  $%.2f/hr\n", r.FinalIndexPrice)
	fmt.Printf("Hyperscaler:  $%.4f/hr (%d providers)\n", r.Hyperscaler, len(r.Hyperscalers))
	fmt.Printf("Neocloud:     $%.4f/hr (%d providers)\n", r.Neocloud, len(r.Neoclouds))
	if res.Published {
		fmt.Printf("Stored:       index id %d\n", res.IndexID)
	}
}

func rawString(pd oracle.PriceData) string {
	if pd.Scaled == nil {
		return "0"
	}
	return pd.Scaled.String()
}
