package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/AlecAivazis/survey/v2"
	"github.com/samber/lo"
	"github.com/urfave/cli/v2"

	awscloud "github.com/hemantobora/cloudcheck/internal/cloud/aws"
	"github.com/hemantobora/cloudcheck/internal/config"
	"github.com/hemantobora/cloudcheck/internal/log"
	"github.com/hemantobora/cloudcheck/internal/probe"
	"github.com/hemantobora/cloudcheck/internal/ui"
	"github.com/hemantobora/cloudcheck/internal/verify"
)

const (
	suiteCompute  = "compute"
	suiteIdentity = "identity"
)

var allSuites = []string{suiteCompute, suiteIdentity}

// settings is what setup resolves once per invocation
type settings struct {
	cfg config.Config
	exp config.Expectations
}

const settingsKey = "settings"

// setup merges flags over the environment, initializes logging and loads
// the expectations before any command runs
func setup(c *cli.Context) error {
	cfg, err := config.FromEnv()
	if err != nil {
		return fmt.Errorf("environment: %w", err)
	}
	cfg = applyFlags(c, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}
	log.Init(cfg.LogLevel)

	exp, err := config.LoadExpectations(cfg.Expectations)
	if err != nil {
		return err
	}
	if c.App.Metadata == nil {
		c.App.Metadata = map[string]interface{}{}
	}
	c.App.Metadata[settingsKey] = &settings{cfg: cfg, exp: exp}
	return nil
}

func applyFlags(c *cli.Context, cfg config.Config) config.Config {
	if c.IsSet("profile") {
		cfg.Profile = c.String("profile")
	}
	if c.IsSet("region") {
		cfg.Region = c.String("region")
	}
	if c.IsSet("expectations") {
		cfg.Expectations = c.String("expectations")
	}
	if c.IsSet("output") {
		cfg.Output = config.Output(c.String("output"))
	}
	if c.IsSet("log-level") {
		cfg.LogLevel = c.String("log-level")
	}
	return cfg
}

func settingsFrom(c *cli.Context) *settings {
	return c.App.Metadata[settingsKey].(*settings)
}

func openSession(c *cli.Context, s *settings) (*awscloud.Session, error) {
	return awscloud.NewSession(c.Context,
		awscloud.WithProfile(s.cfg.Profile),
		awscloud.WithRegion(s.cfg.Region),
	)
}

func runCommand(c *cli.Context) error {
	names, err := resolveSuites(c.StringSlice("suite"), ui.IsTerminal(os.Stdin) && ui.IsTerminal(os.Stderr), askSuites)
	if err != nil {
		return err
	}
	return runSuites(c, names)
}

// resolveSuites validates the requested suite names. With none requested it
// asks when interactive and otherwise selects every suite.
func resolveSuites(requested []string, interactive bool, ask func(options []string) ([]string, error)) ([]string, error) {
	if len(requested) == 0 {
		if !interactive {
			return allSuites, nil
		}
		chosen, err := ask(allSuites)
		if err != nil {
			return nil, err
		}
		if len(chosen) == 0 {
			return nil, fmt.Errorf("no suite selected")
		}
		requested = chosen
	}
	if unknown := lo.Without(requested, allSuites...); len(unknown) > 0 {
		return nil, fmt.Errorf("unknown suite(s) %s (expected %s)", strings.Join(unknown, ", "), strings.Join(allSuites, " or "))
	}
	// run in canonical order whatever order they were given in
	return lo.Filter(allSuites, func(s string, _ int) bool { return lo.Contains(requested, s) }), nil
}

func askSuites(options []string) ([]string, error) {
	var chosen []string
	err := survey.AskOne(&survey.MultiSelect{
		Message: "Suites to run:",
		Options: options,
		Default: options,
	}, &chosen, survey.WithStdio(os.Stdin, os.Stderr, os.Stderr))
	return chosen, err
}

func runSuites(c *cli.Context, names []string) error {
	s := settingsFrom(c)
	session, err := openSession(c, s)
	if err != nil {
		return err
	}
	defer session.Close()

	account, err := session.CallerIdentity(c.Context)
	if err != nil {
		return err
	}
	log.Infof("checking account %s as %s in %s", account.AccountID, account.ARN, account.Region)

	var suites []verify.Suite
	for _, name := range names {
		switch name {
		case suiteCompute:
			prober := probe.NewClient(probe.WithTimeout(s.cfg.ProbeTimeout))
			suites = append(suites, verify.ComputeSuite(session.EC2, prober, s.exp.Compute))
		case suiteIdentity:
			suites = append(suites, verify.IdentitySuite(session.IAM, s.exp.Identity))
		}
	}

	spinner := ui.NewSpinner(os.Stderr, fmt.Sprintf("Running %s checks...", strings.Join(names, " and ")))
	spinner.Start()
	report := verify.RunWithProgress(c.Context, func(_ string, check verify.Check) {
		spinner.SetMessage(fmt.Sprintf("%s %s...", check.ID, check.Description))
	}, suites...)
	spinner.Stop()
	report.Account = &account

	if err := writeReport(os.Stdout, s.cfg.Output, report); err != nil {
		return err
	}
	if report.Failed() {
		counts := report.Counts()
		return cli.Exit(fmt.Sprintf("%d check(s) failed, %d errored", counts[verify.StatusFail], counts[verify.StatusError]), 1)
	}
	return nil
}

func writeReport(w io.Writer, output config.Output, report verify.Report) error {
	if output == config.OutputJSON {
		return report.WriteJSON(w)
	}
	return report.WriteTable(w)
}

func instancesCommand(c *cli.Context) error {
	s := settingsFrom(c)
	session, err := openSession(c, s)
	if err != nil {
		return err
	}
	defer session.Close()

	instances, err := awscloud.ListRunningInstances(c.Context, session.EC2)
	if err != nil {
		return err
	}
	if s.cfg.Output == config.OutputJSON {
		return writeJSON(os.Stdout, instances)
	}
	return writeInstances(os.Stdout, instances)
}

func policyCommand(c *cli.Context) error {
	if c.Args().Len() != 1 {
		return cli.Exit("usage: cloudcheck policy <name>", 2)
	}
	name := c.Args().First()

	s := settingsFrom(c)
	session, err := openSession(c, s)
	if err != nil {
		return err
	}
	defer session.Close()

	policy, err := awscloud.ResolvePolicyByName(c.Context, session.IAM, name)
	if err != nil {
		return err
	}
	if !policy.Found() {
		return cli.Exit(fmt.Sprintf("policy %s not found", name), 1)
	}
	if s.cfg.Output == config.OutputJSON {
		return writeJSON(os.Stdout, policy)
	}
	return writePolicy(os.Stdout, policy)
}

func whoamiCommand(c *cli.Context) error {
	s := settingsFrom(c)
	account, err := awscloud.ValidateCredentials(c.Context,
		awscloud.WithProfile(s.cfg.Profile),
		awscloud.WithRegion(s.cfg.Region),
	)
	if err != nil {
		return err
	}
	if s.cfg.Output == config.OutputJSON {
		return writeJSON(os.Stdout, account)
	}
	_, err = fmt.Fprintf(os.Stdout, "account: %s\narn:     %s\nuser id: %s\nregion:  %s\n",
		account.AccountID, account.ARN, account.UserID, account.Region)
	return err
}
