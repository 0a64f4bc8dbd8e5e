package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/urfave/cli.v1"

	"github.com/eigerco/tribunal/internal/crypto"
	"github.com/eigerco/tribunal/internal/primitives"
	"github.com/eigerco/tribunal/pkg/config"
	"github.com/eigerco/tribunal/pkg/log"
)

func main() {
	app := cli.NewApp()
	app.Name = "tribunal"
	app.Usage = "juror court for disputed market reports"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:   "config, c",
			Usage:  "path to a TOML configuration file",
			EnvVar: "TRIBUNAL_CONFIG",
		},
	}
	app.Commands = []cli.Command{
		{
			Name:   "simulate",
			Usage:  "run scripted disputes through the court and report the outcome",
			Action: simulateAction,
			Flags: []cli.Flag{
				cli.IntFlag{Name: "jurors", Value: 8, Usage: "number of jurors joining the court"},
				cli.IntFlag{Name: "markets", Value: 2, Usage: "number of disputed markets"},
				cli.IntFlag{Name: "appeals", Value: 1, Usage: "appeals to file against each court"},
				cli.Uint64Flag{Name: "max-blocks", Value: 2_000, Usage: "stop after this many blocks"},
			},
		},
		{
			Name:      "commitment",
			Usage:     "compute the vote commitment of a juror for a categorical outcome",
			ArgsUsage: "<account hex> <category> <salt hex>",
			Action:    commitmentAction,
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig(c *cli.Context) (config.Config, error) {
	cfg, err := config.Load(c.GlobalString("config"))
	if err != nil {
		return config.Config{}, err
	}
	opts, err := cfg.LogOptions()
	if err != nil {
		return config.Config{}, err
	}
	log.Init(opts)
	return cfg, nil
}

func simulateAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}
	report, err := simulate(cfg, scenario{
		jurors:    c.Int("jurors"),
		markets:   c.Int("markets"),
		appeals:   c.Int("appeals"),
		maxBlocks: primitives.BlockNumber(c.Uint64("max-blocks")),
	})
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}
	report.print(os.Stdout)
	return nil
}

func commitmentAction(c *cli.Context) error {
	if c.NArg() != 3 {
		return cli.NewExitError("expected <account hex> <category> <salt hex>", 2)
	}
	account, err := primitives.ParseAccountID(c.Args().Get(0))
	if err != nil {
		return cli.NewExitError(err.Error(), 2)
	}
	category, err := strconv.ParseUint(c.Args().Get(1), 10, 16)
	if err != nil {
		return cli.NewExitError(fmt.Sprintf("invalid category: %v", err), 2)
	}
	salt, err := parseSalt(c.Args().Get(2))
	if err != nil {
		return cli.NewExitError(err.Error(), 2)
	}

	commitment, err := crypto.Commitment(account, primitives.OutcomeItem(primitives.CategoricalReport(uint16(category))), salt)
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}
	fmt.Println(commitment)
	return nil
}

func parseSalt(s string) (crypto.Salt, error) {
	if len(s) >= 2 && s[:2] == "0x" {
		s = s[2:]
	}
	raw, err := hex.DecodeString(s)
	if err != nil || len(raw) > crypto.SaltSize {
		return crypto.Salt{}, fmt.Errorf("invalid salt %q", s)
	}
	var salt crypto.Salt
	copy(salt[crypto.SaltSize-len(raw):], raw)
	return salt, nil
}
