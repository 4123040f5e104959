package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/okian/trailvote/internal/adapters/chain"
	"github.com/okian/trailvote/internal/config"
	"github.com/okian/trailvote/internal/traileval"
)

const defaultTimeout = 30 * time.Second

func main() {
	var (
		voter    = flag.String("voter", "", "Account casting the vote")
		author   = flag.String("author", "", "Content author")
		permlink = flag.String("permlink", "", "Content permlink")
		weight   = flag.Int("weight", traileval.MaxWeight, "Vote weight in hundredths of a percent")
		at       = flag.String("at", "", "Vote time, RFC3339 (default now)")
		asJSON   = flag.Bool("json", false, "Print the report as JSON")
		verbose  = flag.Bool("verbose", false, "Log each trail decision")
		help     = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		traileval.ShowHelp(os.Stdout)
		return
	}

	if err := traileval.SetupLogging(*verbose); err != nil {
		fail("failed to setup logging: " + err.Error())
	}

	evalCfg := &traileval.Config{
		Voter:    *voter,
		Author:   *author,
		Permlink: *permlink,
		Weight:   *weight,
		JSON:     *asJSON,
	}
	if *at != "" {
		t, err := time.Parse(time.RFC3339, *at)
		if err != nil {
			fail("invalid -at; must be RFC3339: " + err.Error())
		}
		evalCfg.At = t
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	cfg, err := config.Load(ctx)
	if err != nil {
		fail("failed to load config: " + err.Error())
	}
	rules, err := cfg.Rules()
	if err != nil {
		fail(err.Error())
	}
	voters, err := cfg.VoterList()
	if err != nil {
		fail(err.Error())
	}

	client, err := chain.NewClient(cfg.ChainURL)
	if err != nil {
		fail("failed to create chain client: " + err.Error())
	}

	report, err := traileval.Run(ctx, evalCfg, client, rules, voters, time.Now().UTC())
	if err != nil {
		fail("evaluation failed: " + err.Error())
	}
	if err := traileval.Write(os.Stdout, report, evalCfg.JSON); err != nil {
		fail("failed to write report: " + err.Error())
	}
}

func fail(msg string) {
	_, _ = os.Stderr.WriteString(msg + "\n")
	os.Exit(1)
}
