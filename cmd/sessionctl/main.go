// sessionctl drives the session manager from a terminal. Each --tab name is a
// separate tab with its own tab-scoped state; the cross-tab state is shared by
// every tab through a state file or, with --redis-addr, through Redis.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-session-identity/apimodel"
	"github.com/jrsteele09/go-session-identity/authclient"
	"github.com/jrsteele09/go-session-identity/broadcast"
	"github.com/jrsteele09/go-session-identity/broadcast/redisnotify"
	"github.com/jrsteele09/go-session-identity/credentials"
	"github.com/jrsteele09/go-session-identity/impersonation"
	"github.com/jrsteele09/go-session-identity/internal/config"
	"github.com/jrsteele09/go-session-identity/kvstore"
	"github.com/jrsteele09/go-session-identity/kvstore/filekv"
	"github.com/jrsteele09/go-session-identity/kvstore/rediskv"
	"github.com/jrsteele09/go-session-identity/session"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
)

type options struct {
	tab       string
	stateDir  string
	apiURL    string
	redisAddr string
	password  string
	timeout   time.Duration
	verbose   bool

	firstName      string
	lastName       string
	restaurantName string
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(argv []string) error {
	cfg := config.New()
	opts := options{}

	flagSet := pflag.NewFlagSet("sessionctl", pflag.ContinueOnError)
	flagSet.StringVar(&opts.tab, "tab", "default", "tab name; each tab keeps its own impersonation state")
	flagSet.StringVar(&opts.stateDir, "state-dir", cfg.GetStateDir(), "directory holding the state files")
	flagSet.StringVar(&opts.apiURL, "api", cfg.GetAPIBaseURL(), "authorization API base URL")
	flagSet.StringVar(&opts.redisAddr, "redis-addr", cfg.GetRedisAddr(), "Redis address for cross-tab state (empty uses a state file)")
	flagSet.StringVarP(&opts.password, "password", "p", os.Getenv("SESSION_PASSWORD"), "password for login and register")
	flagSet.DurationVar(&opts.timeout, "timeout", cfg.GetRequestTimeout(), "timeout for each API call")
	flagSet.BoolVarP(&opts.verbose, "verbose", "v", false, "debug logging")
	flagSet.StringVar(&opts.firstName, "first-name", "", "first name for register")
	flagSet.StringVar(&opts.lastName, "last-name", "", "last name for register")
	flagSet.StringVar(&opts.restaurantName, "restaurant", "", "restaurant to create for register")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(argv); err != nil {
		if err == pflag.ErrHelp {
			printHelp(flagSet)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help || flagSet.NArg() == 0 {
		printHelp(flagSet)
		return nil
	}
	setupLogging(opts.verbose)

	env, err := newEnvironment(cfg, opts)
	if err != nil {
		return err
	}
	defer env.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	args := flagSet.Args()
	return dispatch(ctx, env, opts, args[0], args[1:])
}

func setupLogging(verbose bool) {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	zerolog.SetGlobalLevel(zerolog.WarnLevel)
	if verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}

type environment struct {
	machine    *session.Machine
	controller *impersonation.Controller
	notifier   broadcast.Notifier
	cross      bool // notifier reaches other processes
	closers    []func() error
}

func newEnvironment(cfg config.Config, opts options) (*environment, error) {
	if err := os.MkdirAll(opts.stateDir, 0o700); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	env := &environment{}

	tab := filekv.NewFileRepo(filepath.Join(opts.stateDir, "tab-"+opts.tab+".yaml"))
	var shared kvstore.Repo
	if opts.redisAddr != "" {
		client := rediskv.NewClient(opts.redisAddr, cfg.GetRedisPassword(), cfg.GetRedisDB())
		env.closers = append(env.closers, client.Close)
		shared = rediskv.NewRedisRepo(client, cfg.GetRedisNamespace())
		env.notifier = redisnotify.NewRedisNotifier(client, cfg.GetRedisNamespace())
		env.cross = true
	} else {
		shared = filekv.NewFileRepo(filepath.Join(opts.stateDir, "shared.yaml"))
		env.notifier = broadcast.NewHub()
	}

	store := credentials.New(tab, shared, credentials.WithNotifier(env.notifier, uuid.NewString()))
	env.machine = session.New(store)
	api := authclient.New(opts.apiURL, store.TokenSource(context.Background()),
		authclient.WithHTTPClient(&http.Client{Timeout: opts.timeout}))
	env.controller = impersonation.NewController(env.machine, api, impersonation.WithRequestTimeout(opts.timeout))
	return env, nil
}

func (e *environment) close() {
	for _, c := range e.closers {
		if err := c(); err != nil {
			log.Debug().Err(err).Msg("close failed")
		}
	}
}

func dispatch(ctx context.Context, env *environment, opts options, command string, args []string) error {
	switch command {
	case "login":
		if len(args) != 1 {
			return fmt.Errorf("usage: sessionctl login <email> --password <password>")
		}
		return report(env.controller.Login(ctx, args[0], opts.password))
	case "register":
		if len(args) != 1 {
			return fmt.Errorf("usage: sessionctl register <email> --password <password>")
		}
		return report(env.controller.Register(ctx, apimodel.RegisterRequest{
			Email:          args[0],
			Password:       opts.password,
			FirstName:      opts.firstName,
			LastName:       opts.lastName,
			RestaurantName: opts.restaurantName,
		}))
	case "logout":
		return report(env.controller.Logout(ctx))
	case "impersonate":
		if len(args) != 1 {
			return fmt.Errorf("usage: sessionctl impersonate <email>")
		}
		return report(env.controller.ImpersonateUser(ctx, args[0]))
	case "start":
		if len(args) != 1 {
			return fmt.Errorf("usage: sessionctl start <user-id>")
		}
		return report(env.controller.StartImpersonation(ctx, args[0]))
	case "switch":
		if len(args) != 1 {
			return fmt.Errorf("usage: sessionctl switch <user-id>")
		}
		return report(env.controller.SwitchImpersonation(ctx, args[0]))
	case "stop":
		return report(env.controller.StopImpersonation(ctx))
	case "status":
		return printJSON(env.machine.Snapshot(ctx))
	case "watch":
		if !env.cross {
			return fmt.Errorf("watch needs --redis-addr so changes from other tabs can be seen")
		}
		stop := session.NewWatcher(env.machine, env.notifier).Start(ctx, func(s session.Snapshot) {
			if err := printJSON(s); err != nil {
				log.Err(err).Msg("print snapshot")
			}
		})
		<-ctx.Done()
		stop()
		return nil
	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

func report(res impersonation.Result) error {
	if err := printJSON(res); err != nil {
		return err
	}
	if !res.Success {
		return res.Err()
	}
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `sessionctl drives a session against the authorization API.

Usage:
  sessionctl [flags] <command> [args]

Commands:
  login <email>         log in (password from --password or SESSION_PASSWORD)
  register <email>      create an account and log in
  logout                end the session in every tab
  impersonate <email>   act as another user (super admin only)
  start <user-id>       impersonate a user by id
  switch <user-id>      move the current impersonation to another user
  stop                  return to the super admin identity
  status                print the session snapshot
  watch                 print the snapshot whenever another tab changes it

Flags:
`)
	flagSet.PrintDefaults()
}
