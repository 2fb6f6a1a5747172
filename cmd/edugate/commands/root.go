package commands

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"github.com/edugate-dev/edugate/internal/app"
	"github.com/edugate-dev/edugate/internal/authapi"
	"github.com/edugate-dev/edugate/internal/observability"
)

// Execute runs the root command with the given context and arguments.
func Execute(ctx context.Context, args []string) error {
	cmd := &cli.Command{
		Name:  "edugate",
		Usage: "authenticated client for the education platform API",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to config file",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "log level (debug|info|warn|error)",
				Value: slog.LevelInfo.String(),
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "log format (text|json|otel|otlp|otlp-grpc)",
				Value: string(app.DefaultConfigLogFormat),
			},
			&cli.StringFlag{
				Name:  "api--base-url",
				Usage: "platform API base URL",
				Value: app.DefaultConfigAPIBaseURL,
			},
		},
		Commands: []*cli.Command{
			loginCommand(),
			registerCommand(),
			logoutCommand(),
			statusCommand(),
			getCommand(),
		},
	}

	return cmd.Run(ctx, args)
}

// setup loads configuration, installs logging, and builds the application.
// The returned cleanup flushes log export and releases the credential store.
func setup(ctx context.Context, cmd *cli.Command) (*app.App, func(), error) {
	cfg, err := loadConfig(cmd.String("config"), cmd, os.Environ)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	flush, err := observability.Instrument(ctx, cfg.LogLevel, string(cfg.LogFormat))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to set up logging: %w", err)
	}

	application, err := app.New(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create app: %w", err)
	}

	cleanup := func() {
		if err := application.Close(); err != nil {
			slog.Error("failed to close credential store", "error", err)
		}
		if err := flush(context.Background()); err != nil {
			slog.Error("failed to flush logs", "error", err)
		}
	}
	return application, cleanup, nil
}

func loginCommand() *cli.Command {
	return &cli.Command{
		Name:  "login",
		Usage: "authenticate and store the credential pair",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "username", Aliases: []string{"u"}, Usage: "account username"},
			&cli.StringFlag{Name: "password", Aliases: []string{"p"}, Usage: "account password (prompted when omitted)"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			application, cleanup, err := setup(ctx, cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			username := cmd.String("username")
			if username == "" {
				if username, err = promptLine("Username: "); err != nil {
					return err
				}
			}
			password := cmd.String("password")
			if password == "" {
				if password, err = promptPassword("Password: "); err != nil {
					return err
				}
			}

			if err := application.Login(ctx, username, password); err != nil {
				return err
			}
			slog.InfoContext(ctx, "logged in", "username", username)
			return nil
		},
	}
}

func registerCommand() *cli.Command {
	return &cli.Command{
		Name:  "register",
		Usage: "create an account and store the credential pair",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "username", Aliases: []string{"u"}, Usage: "account username", Required: true},
			&cli.StringFlag{Name: "email", Usage: "account email", Required: true},
			&cli.StringFlag{Name: "password", Aliases: []string{"p"}, Usage: "account password (prompted when omitted)"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			application, cleanup, err := setup(ctx, cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			password := cmd.String("password")
			if password == "" {
				if password, err = promptPassword("Password: "); err != nil {
					return err
				}
			}

			err = application.Register(ctx, authapi.RegisterParams{
				Username: cmd.String("username"),
				Email:    cmd.String("email"),
				Password: password,
			})
			if err != nil {
				return err
			}
			slog.InfoContext(ctx, "registered", "username", cmd.String("username"))
			return nil
		},
	}
}

func logoutCommand() *cli.Command {
	return &cli.Command{
		Name:  "logout",
		Usage: "clear the stored credential pair",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			application, cleanup, err := setup(ctx, cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			if err := application.Logout(ctx); err != nil {
				return err
			}
			slog.InfoContext(ctx, "logged out")
			return nil
		},
	}
}

func statusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "report which credentials are currently stored",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			application, cleanup, err := setup(ctx, cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			hasAccess, hasRefresh, err := application.CredentialStatus(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("access credential:  %s\n", storedWord(hasAccess))
			fmt.Printf("refresh credential: %s\n", storedWord(hasRefresh))
			return nil
		},
	}
}

func getCommand() *cli.Command {
	return &cli.Command{
		Name:      "get",
		Usage:     "perform authenticated GET requests against API paths",
		ArgsUsage: "path [path...]",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			paths := cmd.Args().Slice()
			if len(paths) == 0 {
				return fmt.Errorf("at least one API path is required")
			}

			application, cleanup, err := setup(ctx, cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			application.SetSessionLossHandler(func() {
				slog.Warn("session expired, run 'edugate login' to authenticate again")
			})

			bodies := make([][]byte, len(paths))
			g, gCtx := errgroup.WithContext(ctx)
			g.SetLimit(4)
			for i, path := range paths {
				g.Go(func() error {
					body, err := fetch(gCtx, application, path)
					if err != nil {
						return fmt.Errorf("%s: %w", path, err)
					}
					bodies[i] = body
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}

			for _, body := range bodies {
				fmt.Println(strings.TrimRight(string(body), "\n"))
			}
			return nil
		},
	}
}

func fetch(ctx context.Context, application *app.App, path string) ([]byte, error) {
	target, err := application.ResolveURL(path)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}

	resp, err := application.Client().Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return body, nil
}

func promptLine(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func promptPassword(prompt string) (string, error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return promptLine(prompt)
	}
	fmt.Fprint(os.Stderr, prompt)
	password, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(password), nil
}

func storedWord(stored bool) string {
	if stored {
		return "stored"
	}
	return "absent"
}
