package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"hall_roster/internal/app"
	"hall_roster/internal/attendance"
	"hall_roster/internal/export"
	"hall_roster/internal/prayer"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
)

// handler runs one command against the wired services and returns the value
// printed as JSON.
type handler func(c *cli.Context, s *app.Services) (interface{}, error)

func main() {
	app.SetupEnvironment()

	cliApp := &cli.App{
		Name:  "hall-roster",
		Usage: "Read and edit the hall attendance, prayer and user sheets.",
		Commands: []*cli.Command{
			namespacesCommand(),
			datesCommand(),
			regionsCommand(),
			attendanceCommand(),
			markCommand(),
			addMemberCommand(),
			updateMemberCommand(),
			removeMemberCommand(),
			statsCommand(),
			prayerCommand(),
			usersCommand(),
			exportCommand(),
		},
	}

	if err := cliApp.Run(os.Args); err != nil {
		class := app.Classify(err)
		log.Error().Err(err).Str("class", class.String()).Msg("Command failed")
		if class == app.ClassClient {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func run(h handler) cli.ActionFunc {
	return func(c *cli.Context) error {
		services := app.InitializeServices(c.Context)

		result, err := h(c, services)
		if services.Notifier != nil {
			sent, failed, retries := services.Notifier.GetMetrics()
			log.Debug().
				Int64("sent", sent).
				Int64("failed", failed).
				Int64("retries", retries).
				Msg("Notification metrics")
		}
		if err != nil {
			return err
		}
		if result == nil {
			return nil
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}
}

func hallFlag() cli.Flag {
	return &cli.StringFlag{Name: "hall", Usage: "hall id from the layout", Required: true}
}

func dateFlag() cli.Flag {
	return &cli.StringFlag{Name: "date", Usage: "date code, e.g. G", Required: true}
}

func groupFlag() cli.Flag {
	return &cli.StringFlag{Name: "group", Usage: "prayer group id from the layout", Required: true}
}

func idFlag() cli.Flag {
	return &cli.IntFlag{Name: "id", Usage: "prayer item id (sheet row)", Required: true}
}

func memberFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "region"},
		&cli.StringFlag{Name: "name"},
		&cli.StringFlag{Name: "caregiver"},
		&cli.StringFlag{Name: "identity"},
		&cli.StringFlag{Name: "department"},
	}
}

func memberFrom(c *cli.Context) attendance.Member {
	return attendance.Member{
		Region:     c.String("region"),
		Name:       c.String("name"),
		Caregiver:  c.String("caregiver"),
		Identity:   c.String("identity"),
		Department: c.String("department"),
	}
}

func namespacesCommand() *cli.Command {
	return &cli.Command{
		Name:  "namespaces",
		Usage: "List the configured halls, prayer groups, date codes and options.",
		Action: run(func(c *cli.Context, s *app.Services) (interface{}, error) {
			return s.Namespaces(), nil
		}),
	}
}

func datesCommand() *cli.Command {
	return &cli.Command{
		Name:  "dates",
		Usage: "List the configured date ranges and their codes.",
		Action: run(func(c *cli.Context, s *app.Services) (interface{}, error) {
			return s.Settings.DateRanges(c.Context)
		}),
	}
}

func regionsCommand() *cli.Command {
	return &cli.Command{
		Name:  "regions",
		Usage: "List the regions of a hall.",
		Flags: []cli.Flag{hallFlag()},
		Action: run(func(c *cli.Context, s *app.Services) (interface{}, error) {
			return s.Settings.Regions(c.Context, c.String("hall"))
		}),
	}
}

func attendanceCommand() *cli.Command {
	return &cli.Command{
		Name:  "attendance",
		Usage: "Show attendance for one hall and date, grouped by caregiver.",
		Flags: []cli.Flag{hallFlag(), dateFlag()},
		Action: run(func(c *cli.Context, s *app.Services) (interface{}, error) {
			return s.Attendance.Fetch(c.Context, c.String("hall"), c.String("date"))
		}),
	}
}

func markCommand() *cli.Command {
	return &cli.Command{
		Name:      "mark",
		Usage:     "Set the attendance marks of one member.",
		ArgsUsage: "MARK[,MARK...]",
		Flags: []cli.Flag{
			hallFlag(),
			dateFlag(),
			&cli.StringFlag{Name: "name", Required: true},
		},
		Action: run(func(c *cli.Context, s *app.Services) (interface{}, error) {
			marks := attendance.SplitMarks(strings.Join(c.Args().Slice(), ","))
			err := s.Attendance.SetMarks(c.Context, c.String("hall"), c.String("date"), c.String("name"), marks)
			if err != nil {
				return nil, err
			}
			return map[string]interface{}{"name": c.String("name"), "attendance": marks}, nil
		}),
	}
}

func addMemberCommand() *cli.Command {
	return &cli.Command{
		Name:  "add-member",
		Usage: "Append a member below the last row of a hall.",
		Flags: append([]cli.Flag{hallFlag()}, memberFlags()...),
		Action: run(func(c *cli.Context, s *app.Services) (interface{}, error) {
			row, err := s.Attendance.Append(c.Context, c.String("hall"), memberFrom(c))
			if err != nil {
				return nil, err
			}
			return map[string]int{"row": row}, nil
		}),
	}
}

func updateMemberCommand() *cli.Command {
	return &cli.Command{
		Name:  "update-member",
		Usage: "Rewrite the member found by --match-name and --match-caregiver.",
		Flags: append([]cli.Flag{
			hallFlag(),
			&cli.StringFlag{Name: "match-name", Required: true},
			&cli.StringFlag{Name: "match-caregiver"},
		}, memberFlags()...),
		Action: run(func(c *cli.Context, s *app.Services) (interface{}, error) {
			err := s.Attendance.Update(c.Context, c.String("hall"), c.String("match-name"), c.String("match-caregiver"), memberFrom(c))
			return nil, err
		}),
	}
}

func removeMemberCommand() *cli.Command {
	return &cli.Command{
		Name:  "remove-member",
		Usage: "Delete the row of a member. Rows below move up.",
		Flags: []cli.Flag{
			hallFlag(),
			&cli.StringFlag{Name: "name", Required: true},
			&cli.StringFlag{Name: "caregiver"},
		},
		Action: run(func(c *cli.Context, s *app.Services) (interface{}, error) {
			return nil, s.Attendance.Delete(c.Context, c.String("hall"), c.String("name"), c.String("caregiver"))
		}),
	}
}

func statsCommand() *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "Count attendance marks for one hall and date.",
		Flags: []cli.Flag{hallFlag(), dateFlag()},
		Action: run(func(c *cli.Context, s *app.Services) (interface{}, error) {
			return s.Attendance.Stats(c.Context, c.String("hall"), c.String("date"))
		}),
	}
}

// prayerInput leaves Status empty when --status is not given, so updates
// keep the current status.
func prayerInput(c *cli.Context) (prayer.Input, error) {
	in := prayer.Input{Name: c.String("name"), Request: c.String("request")}
	if c.IsSet("status") {
		status, err := prayer.ParseStatus(c.String("status"))
		if err != nil {
			return prayer.Input{}, err
		}
		in.Status = status
	}
	return in, nil
}

func prayerItemFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "name"},
		&cli.StringFlag{Name: "request"},
		&cli.StringFlag{Name: "status", Usage: "done, declined, unknown or not-contacted"},
	}
}

func prayerCommand() *cli.Command {
	return &cli.Command{
		Name:  "prayer",
		Usage: "Manage prayer requests.",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Flags: []cli.Flag{groupFlag()},
				Action: run(func(c *cli.Context, s *app.Services) (interface{}, error) {
					return s.Prayer.List(c.Context, c.String("group"))
				}),
			},
			{
				Name:  "add",
				Flags: append([]cli.Flag{groupFlag()}, prayerItemFlags()...),
				Action: run(func(c *cli.Context, s *app.Services) (interface{}, error) {
					in, err := prayerInput(c)
					if err != nil {
						return nil, err
					}
					id, err := s.Prayer.Append(c.Context, c.String("group"), in)
					if err != nil {
						return nil, err
					}
					return map[string]int{"id": id}, nil
				}),
			},
			{
				Name:  "update",
				Flags: append([]cli.Flag{groupFlag(), idFlag()}, prayerItemFlags()...),
				Action: run(func(c *cli.Context, s *app.Services) (interface{}, error) {
					in, err := prayerInput(c)
					if err != nil {
						return nil, err
					}
					return nil, s.Prayer.Update(c.Context, c.String("group"), c.Int("id"), in)
				}),
			},
			{
				Name:      "status",
				ArgsUsage: "STATUS",
				Flags:     []cli.Flag{groupFlag(), idFlag()},
				Action: run(func(c *cli.Context, s *app.Services) (interface{}, error) {
					if c.NArg() != 1 {
						return nil, fmt.Errorf("%w: expected exactly one status", app.ErrInvalidInput)
					}
					status, err := prayer.ParseStatus(c.Args().First())
					if err != nil {
						return nil, err
					}
					return nil, s.Prayer.SetStatus(c.Context, c.String("group"), c.Int("id"), status)
				}),
			},
			{
				Name:  "clear",
				Flags: []cli.Flag{groupFlag(), idFlag()},
				Action: run(func(c *cli.Context, s *app.Services) (interface{}, error) {
					return nil, s.Prayer.Clear(c.Context, c.String("group"), c.Int("id"))
				}),
			},
			{
				Name:  "stats",
				Flags: []cli.Flag{groupFlag()},
				Action: run(func(c *cli.Context, s *app.Services) (interface{}, error) {
					return s.Prayer.Stats(c.Context, c.String("group"))
				}),
			},
		},
	}
}

func usersCommand() *cli.Command {
	return &cli.Command{
		Name:  "users",
		Usage: "Manage user roles.",
		Subcommands: []*cli.Command{
			{
				Name: "list",
				Action: run(func(c *cli.Context, s *app.Services) (interface{}, error) {
					return s.Users.List(c.Context)
				}),
			},
			{
				Name:      "login",
				ArgsUsage: "EXTERNAL_ID [DISPLAY_NAME]",
				Action: run(func(c *cli.Context, s *app.Services) (interface{}, error) {
					if c.NArg() < 1 || c.NArg() > 2 {
						return nil, fmt.Errorf("%w: expected an external id and an optional display name", app.ErrInvalidInput)
					}
					return s.Users.Login(c.Context, c.Args().Get(0), c.Args().Get(1))
				}),
			},
			{
				Name:      "role",
				ArgsUsage: "EXTERNAL_ID ROLE",
				Action: run(func(c *cli.Context, s *app.Services) (interface{}, error) {
					if c.NArg() != 2 {
						return nil, fmt.Errorf("%w: expected an external id and a role", app.ErrInvalidInput)
					}
					return s.Users.SetRole(c.Context, c.Args().Get(0), c.Args().Get(1))
				}),
			},
		},
	}
}

func exportCommand() *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Write attendance and counts for one hall and date to an .xlsx file.",
		Flags: []cli.Flag{
			hallFlag(),
			dateFlag(),
			&cli.StringFlag{Name: "out", Usage: "output path (default HALL-DATE.xlsx)"},
		},
		Action: run(func(c *cli.Context, s *app.Services) (interface{}, error) {
			hall, code := c.String("hall"), c.String("date")

			projection, err := s.Attendance.Fetch(c.Context, hall, code)
			if err != nil {
				return nil, err
			}
			stats, err := s.Attendance.Stats(c.Context, hall, code)
			if err != nil {
				return nil, err
			}

			label := ""
			ranges, err := s.Settings.DateRanges(c.Context)
			if err != nil {
				log.Warn().Err(err).Msg("Failed to read date labels, exporting without one")
			}
			for _, r := range ranges {
				if r.Code == code {
					label = r.Label
					break
				}
			}

			path := c.String("out")
			if path == "" {
				path = hall + "-" + code + ".xlsx"
			}
			snap := export.Snapshot{Hall: hall, DateCode: code, DateLabel: label, Projection: projection, Stats: stats}
			if err := export.Attendance(snap, path); err != nil {
				return nil, err
			}
			return map[string]interface{}{"path": path, "people": len(projection.NameToRow)}, nil
		}),
	}
}
