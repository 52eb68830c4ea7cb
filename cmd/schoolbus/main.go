package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/go-auth-client/api"
	"github.com/jrsteele09/go-auth-client/authclient"
	"github.com/jrsteele09/go-auth-client/identity/oidcidentity"
	"github.com/jrsteele09/go-auth-client/internal/config"
	"github.com/jrsteele09/go-auth-client/internal/logging"
	"github.com/jrsteele09/go-auth-client/session"
	"github.com/jrsteele09/go-auth-client/users"
	"github.com/rs/zerolog/log"
)

const passwordEnvVar = "SCHOOLBUS_PASSWORD"

type options struct {
	email    string
	password string
	register bool
	data     string
	watch    bool
	signOut  bool
	quiet    bool
	args     []string
}

func main() {
	opts := parseFlags()
	if err := run(opts); err != nil {
		log.Fatal().Err(err).Msg("schoolbus failed")
	}
}

func parseFlags() options {
	var opts options
	flag.StringVar(&opts.email, "email", "", "sign in with this email")
	flag.StringVar(&opts.password, "password", os.Getenv(passwordEnvVar), "password for -email (defaults to $"+passwordEnvVar+")")
	flag.BoolVar(&opts.register, "register", false, "create the account before signing in")
	flag.StringVar(&opts.data, "data", "", "JSON request body")
	flag.BoolVar(&opts.watch, "watch", false, "print session changes until interrupted")
	flag.BoolVar(&opts.signOut, "signout", false, "sign out before exiting")
	flag.BoolVar(&opts.quiet, "quiet", false, "skip the banner")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] [method path]\n\n", os.Args[0])
		fmt.Fprintln(flag.CommandLine.Output(), "Without method and path the signed-in profile is printed.")
		flag.PrintDefaults()
	}
	flag.Parse()
	opts.args = flag.Args()
	return opts
}

func run(opts options) (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("Recovered from panic")
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	c := config.New()
	logging.Setup(c.GetEnv(), c.GetLogLevel(), os.Stderr)
	if err := config.FileError(); err != nil {
		log.Warn().Err(err).Msg("Ignoring config file")
	}
	if !opts.quiet {
		displayAppname(c.GetAppName())
	}

	if len(opts.args) != 0 && len(opts.args) != 2 {
		return fmt.Errorf("expected method and path, got %d arguments", len(opts.args))
	}
	var body any
	if opts.data != "" {
		if !json.Valid([]byte(opts.data)) {
			return errors.New("-data is not valid JSON")
		}
		body = json.RawMessage(opts.data)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		waitForStopSignal()
		cancel()
	}()

	provider, client, err := newClient(ctx, c)
	if err != nil {
		return err
	}

	runDone := make(chan error, 1)
	go func() { runDone <- client.Run(ctx) }()
	defer func() {
		// closing the provider ends the session loop once in-flight work settles
		provider.Close()
		if err := <-runDone; err != nil && !errors.Is(err, context.Canceled) {
			log.Warn().Err(err).Msg("Session loop stopped")
		}
	}()

	if _, err := client.WaitSettled(ctx); err != nil {
		return fmt.Errorf("waiting for session: %w", err)
	}

	if opts.email != "" {
		if err := signIn(ctx, client, opts); err != nil {
			return err
		}
	}

	switch {
	case len(opts.args) == 2:
		if err := request(ctx, client, opts.args[0], opts.args[1], body); err != nil {
			return err
		}
	case !opts.watch:
		if err := printJSON(client.Profile()); err != nil {
			return err
		}
	}

	if opts.watch {
		watch(ctx, client)
	}

	if opts.signOut {
		if err := client.SignOut(context.Background()); err != nil {
			return fmt.Errorf("signing out: %w", err)
		}
	}
	return nil
}

func newClient(ctx context.Context, c config.Config) (*oidcidentity.Provider, *authclient.Client, error) {
	provider, err := oidcidentity.New(ctx, oidcidentity.Config{
		Issuer:        c.GetIssuerURL(),
		ClientID:      c.GetClientID(),
		ClientSecret:  c.GetClientSecret(),
		Scopes:        c.GetScopes(),
		TokenURL:      c.GetTokenURL(),
		SignUpURL:     c.GetSignUpURL(),
		RevocationURL: c.GetRevocationURL(),
	}, oidcidentity.WithLogger(logging.Component("identity")))
	if err != nil {
		return nil, nil, fmt.Errorf("identity provider: %w", err)
	}

	client, err := authclient.New(c.GetAPIBaseURL(), provider,
		authclient.WithAPIVersion(c.GetAPIVersion()),
		authclient.WithHTTPClient(api.NewHTTPClient(c.GetRequestTimeout())),
		authclient.WithLogger(logging.Component("authclient")),
	)
	if err != nil {
		provider.Close()
		return nil, nil, fmt.Errorf("auth client: %w", err)
	}
	return provider, client, nil
}

func signIn(ctx context.Context, client *authclient.Client, opts options) error {
	if opts.password == "" {
		return fmt.Errorf("-password or $%s is required with -email", passwordEnvVar)
	}

	if opts.register {
		if err := users.ValidatePasswordStrength(opts.password); err != nil {
			return err
		}
		if _, err := client.Register(ctx, opts.email, opts.password); err != nil {
			return fmt.Errorf("registering %s: %w", opts.email, err)
		}
	} else if _, err := client.Login(ctx, opts.email, opts.password); err != nil {
		return fmt.Errorf("signing in %s: %w", opts.email, err)
	}

	st, err := waitForIdentity(ctx, client)
	if err != nil {
		return err
	}
	if st.Profile == nil {
		log.Warn().Str("uid", st.Identity.UID).Msg("Signed in without a backend profile")
	}
	return nil
}

// waitForIdentity blocks until the sign-in transition has been reconciled.
func waitForIdentity(ctx context.Context, client *authclient.Client) (session.State, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	for st := range client.Watch(ctx) {
		if st.Identity != nil && !st.Loading {
			return st, nil
		}
	}
	return session.State{}, fmt.Errorf("waiting for sign-in: %w", ctx.Err())
}

func request(ctx context.Context, client *authclient.Client, method, path string, body any) error {
	var out json.RawMessage
	if err := client.Do(ctx, method, path, body, &out); err != nil {
		var upstream *api.UpstreamError
		if errors.As(err, &upstream) && len(upstream.Body) > 0 {
			fmt.Fprintln(os.Stderr, string(upstream.Body))
		}
		return err
	}
	if len(out) == 0 {
		return nil
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, out, "", "  "); err != nil {
		_, err = os.Stdout.Write(out)
		return err
	}
	fmt.Println(pretty.String())
	return nil
}

func watch(ctx context.Context, client *authclient.Client) {
	for st := range client.Watch(ctx) {
		ev := log.Info().Str("decision", session.Admit(st).String()).Bool("loading", st.Loading)
		if st.Identity != nil {
			ev = ev.Str("uid", st.Identity.UID)
		}
		if st.Profile != nil {
			ev = ev.Str("profile_id", st.Profile.ID).Str("role", string(st.Profile.Role))
		}
		ev.Msg("Session changed")
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func waitForStopSignal() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
