package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "cloudcheck:", err)
		stop()
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "cloudcheck",
		Usage: "Verify a provisioned AWS environment against its expected EC2 and IAM state",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "profile",
				Usage: "AWS shared config profile (default: credentials from the environment)",
			},
			&cli.StringFlag{
				Name:  "region",
				Usage: "AWS region to check (default: CLOUDCHECK_REGION or eu-central-1)",
			},
			&cli.StringFlag{
				Name:  "expectations",
				Usage: "YAML file overriding the built-in expectations",
			},
			&cli.StringFlag{
				Name:  "output",
				Usage: "report format: table or json",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "debug, info, warn or error",
			},
		},
		Before: setup,
		Commands: []*cli.Command{
			{
				Name:   "compute",
				Usage:  "Check the EC2 instances, security groups and application endpoint",
				Action: func(c *cli.Context) error { return runSuites(c, []string{suiteCompute}) },
			},
			{
				Name:   "identity",
				Usage:  "Check the IAM users, groups, roles and policies",
				Action: func(c *cli.Context) error { return runSuites(c, []string{suiteIdentity}) },
			},
			{
				Name:  "run",
				Usage: "Run several suites (prompts for them on a terminal when --suite is omitted)",
				Flags: []cli.Flag{
					&cli.StringSliceFlag{
						Name:  "suite",
						Usage: "suite to run: compute or identity (repeatable)",
					},
				},
				Action: runCommand,
			},
			{
				Name:   "instances",
				Usage:  "List the running instances as the checks see them",
				Action: instancesCommand,
			},
			{
				Name:      "policy",
				Usage:     "Show the default version of a managed policy",
				ArgsUsage: "<name>",
				Action:    policyCommand,
			},
			{
				Name:   "whoami",
				Usage:  "Show the account and principal the checks run as",
				Action: whoamiCommand,
			},
		},
		Action: func(c *cli.Context) error {
			return cli.ShowAppHelp(c)
		},
	}
}
