// submodule cmd contains command definitions
package main

import (
	"github.com/urfave/cli/v3"

	"github.com/repteam/rep/internal/formatter"
)

// inputFlags read a callable's JSON payload, the same body the HTTP endpoint takes inside "data".
func inputFlags(required bool) []cli.Flag {
	usage := "JSON request body"
	if !required {
		usage += " (optional)"
	}
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "data",
			Aliases: []string{"d"},
			Usage:   usage,
		},
		&cli.StringFlag{
			Name:    "file",
			Aliases: []string{"f"},
			Usage:   "Read the JSON request body from a file, - for stdin",
		},
	}
}

func formatFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "format",
			Usage: "Output format: " + formatter.FormatNames(),
			Value: string(formatter.Text),
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Write to a file instead of stdout",
		},
	}
}

// setupCommand initializes the run ledger.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Create the config file if missing and migrate the run ledger",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "rollback",
				Usage: "Roll back the most recent migration instead",
			},
		},
		Action: r.Setup,
	}
}

func configCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Configuration file helpers",
		Commands: []*cli.Command{
			{
				Name:   "init",
				Usage:  "Write the example configuration to --config",
				Action: r.ConfigInit,
			},
		},
	}
}

// serveCommand runs the HTTP server for callables and event triggers.
func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the callable endpoints and event triggers over HTTP",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "host",
				Usage: "Listen host, overrides server.host",
			},
			&cli.IntFlag{
				Name:  "port",
				Usage: "Listen port, overrides server.port",
			},
		},
		Action: r.Serve,
	}
}

// triggerCommand replays document events by hand.
func triggerCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "trigger",
		Usage: "Run an event trigger against a stored document",
		Commands: []*cli.Command{
			{
				Name:  "placed",
				Usage: "Run the placement-to-billing handoff for a user",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "user",
						Usage:    "User ID",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "before",
						Usage: "JSON file with the user document before the update (default: the stored document without status)",
					},
					&cli.StringFlag{
						Name:  "after",
						Usage: "JSON file with the user document after the update (default: the stored document)",
					},
				},
				Action: r.TriggerPlaced,
			},
			{
				Name:  "application",
				Usage: "Assign an advisor and send the application emails",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "id"},
				},
				Action: r.TriggerApplication,
			},
			{
				Name:  "intake",
				Usage: "Create the engagement for an intake response",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "id"},
				},
				Action: r.TriggerIntake,
			},
		},
	}
}

func clientCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "client",
		Usage: "Client account operations",
		Commands: []*cli.Command{
			{
				Name:  "provision",
				Usage: "Create a client account, engagement and retainer record",
				Flags: append([]cli.Flag{
					&cli.StringFlag{
						Name:     "rep",
						Usage:    "UID of the rep the client is assigned to",
						Required: true,
					},
				}, inputFlags(true)...),
				Action: r.ClientProvision,
			},
			{
				Name:   "repair",
				Usage:  "Re-enable or recreate a client's login and profile",
				Flags:  inputFlags(true),
				Action: r.ClientRepair,
			},
		},
	}
}

func applicationCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "application",
		Aliases: []string{"app"},
		Usage:   "Application responses, drafts and ATS simulations",
		Commands: []*cli.Command{
			{
				Name:  "respond",
				Usage: "Send an advisor response to an applicant",
				Flags: append([]cli.Flag{
					&cli.StringFlag{
						Name:  "as-uid",
						Usage: "UID of the advisor sending the response",
						Value: "cli",
					},
					&cli.StringFlag{
						Name:  "as-email",
						Usage: "Reply-To address of the advisor",
					},
				}, inputFlags(true)...),
				Action: r.ApplicationRespond,
			},
			{
				Name:   "draft",
				Usage:  "Generate an HTML response draft",
				Flags:  inputFlags(true),
				Action: r.ApplicationDraft,
			},
			{
				Name:  "ats",
				Usage: "Run an ATS compliance simulation for a resume",
				Flags: append([]cli.Flag{
					&cli.StringFlag{
						Name:  "role",
						Usage: "Target role, or a full job description",
					},
					&cli.StringFlag{
						Name:  "comp",
						Usage: "Target compensation",
					},
					&cli.StringFlag{
						Name:  "resume",
						Usage: "Resume file, PDF or plain text",
					},
					&cli.StringFlag{
						Name:  "resume-url",
						Usage: "Resume URL",
					},
					&cli.StringFlag{
						Name:  "user",
						Usage: "Store the simulation under this user",
					},
				}, inputFlags(false)...),
				Action: r.ApplicationATS,
			},
		},
	}
}

func aiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "ai",
		Usage: "Generative text helpers",
		Commands: []*cli.Command{
			{
				Name:  "diagnose",
				Usage: "List the visible Gemini models per API version and ping the best one",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.AIDiagnose,
			},
			{
				Name:  "generate",
				Usage: "Generate text with the model fallback list",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "prompt"},
				},
				Flags: []cli.Flag{
					&cli.StringSliceFlag{
						Name:  "model",
						Usage: "Model to try, in order (repeatable, default: ai.models)",
					},
					&cli.FloatFlag{
						Name:  "temperature",
						Usage: "Sampling temperature (default: ai.temperature)",
					},
					&cli.IntFlag{
						Name:  "max-tokens",
						Usage: "Maximum output tokens (default: ai.max_output_tokens)",
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Ask the model for a JSON response",
					},
					&cli.BoolFlag{
						Name:  "strip",
						Usage: "Strip markdown code fences from the answer",
						Value: true,
					},
				},
				Action: r.AIGenerate,
			},
		},
	}
}

func billingCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "billing",
		Usage: "Placement handoff records",
		Commands: []*cli.Command{
			{
				Name:  "handoffs",
				Usage: "List recorded placement handoffs",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "partial",
						Usage: "Only handoffs that cancelled the retainer without an ISA in place",
					},
					&cli.StringFlag{
						Name:  "user",
						Usage: "Filter by user ID",
					},
					&cli.StringFlag{
						Name:  "outcome",
						Usage: "Filter by outcome (skipped, aborted, completed, failed)",
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of handoffs",
						Value: 50,
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.BillingHandoffs,
			},
			{
				Name:  "handoff",
				Usage: "Show the steps of one handoff",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "id"},
				},
				Action: r.BillingHandoff,
			},
		},
	}
}

// dataCommand holds the maintenance tasks, one subcommand per task plus inspection helpers.
func dataCommand(r *Runner) *cli.Command {
	commands := make([]*cli.Command, 0, len(taskCatalog)+4)
	for _, entry := range taskCatalog {
		commands = append(commands, &cli.Command{
			Name:   entry.name,
			Usage:  entry.usage,
			Flags:  taskFlags(),
			Action: r.dataAction(entry.name),
		})
	}

	commands = append(commands,
		&cli.Command{
			Name:   "duplicate-users",
			Usage:  "Report users sharing an email address",
			Flags:  formatFlags(),
			Action: r.DataDuplicateUsers,
		},
		&cli.Command{
			Name:  "inspect",
			Usage: "Read one document, or list a collection",
			Arguments: []cli.Argument{
				&cli.StringArg{Name: "collection"},
				&cli.StringArg{Name: "id"},
			},
			Flags: append([]cli.Flag{
				&cli.StringSliceFlag{
					Name:    "where",
					Aliases: []string{"w"},
					Usage:   "Equality filter path=value (repeatable)",
				},
				&cli.IntFlag{
					Name:  "limit",
					Usage: "Maximum number of documents",
					Value: 20,
				},
			}, formatFlags()...),
			Action: r.DataInspect,
		},
		&cli.Command{
			Name:  "runs",
			Usage: "List recorded task runs",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:  "name",
					Usage: "Filter by task name",
				},
				&cli.StringFlag{
					Name:  "status",
					Usage: "Filter by status (running, succeeded, failed)",
				},
				&cli.IntFlag{
					Name:  "limit",
					Usage: "Maximum number of runs",
					Value: 20,
				},
				&cli.BoolFlag{
					Name:  "json",
					Usage: "Output raw JSON",
				},
			},
			Action: r.DataRuns,
		},
		&cli.Command{
			Name:    "tui",
			Aliases: []string{"interactive", "ui"},
			Usage:   "Pick and run a data task interactively",
			Action:  r.DataTUI,
		},
	)

	return &cli.Command{
		Name:     "data",
		Usage:    "Data maintenance tasks",
		Commands: commands,
	}
}

func taskFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:  "dry-run",
			Usage: "Log the intended writes and commit nothing",
		},
		&cli.BoolFlag{
			Name:  "tui",
			Usage: "Show progress in the terminal UI",
		},
	}
}
