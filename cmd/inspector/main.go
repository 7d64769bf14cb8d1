// Command inspector verifies, counts and exports ledger chains, and mints
// development tokens.
//
//	inspector verify [-chain id] [-from t] [-to t]
//	inspector count  [-chain id] [-actor id] [-action a] [-status s]
//	inspector export [-chain id] [-out file.csv]
//	inspector issue-token -community id -user id [-role r] [-ttl 1h]
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/GoPolymarket/guildgate/internal/config"
	"github.com/GoPolymarket/guildgate/internal/ledger"
	"github.com/GoPolymarket/guildgate/internal/pkg/logger"
	"github.com/GoPolymarket/guildgate/internal/repository"
	"github.com/GoPolymarket/guildgate/internal/service"
	"github.com/golang-jwt/jwt/v5"
)

var errUsage = errors.New("usage: inspector <verify|count|export|issue-token> [flags]")

// errBroken makes the process exit non-zero when a chain fails verification.
var errBroken = errors.New("ledger integrity check failed")

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger.Init("warn", "console")

	if err := run(context.Background(), cfg, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}
	switch args[0] {
	case "verify":
		return runVerify(ctx, cfg, args[1:], out)
	case "count":
		return runCount(ctx, cfg, args[1:], out)
	case "export":
		return runExport(ctx, cfg, args[1:], out)
	case "issue-token":
		return runIssueToken(cfg, args[1:], out)
	default:
		return fmt.Errorf("unknown command %q\n%w", args[0], errUsage)
	}
}

type filterFlags struct {
	chain, actor, action, status, from, to string
}

func (f *filterFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&f.chain, "chain", "", "chain id (community id, or __system__); empty means all chains")
	fs.StringVar(&f.actor, "actor", "", "actor id")
	fs.StringVar(&f.action, "action", "", "action name")
	fs.StringVar(&f.status, "status", "", "success, failure or blocked")
	fs.StringVar(&f.from, "from", "", "RFC3339 lower bound")
	fs.StringVar(&f.to, "to", "", "RFC3339 upper bound")
}

func (f *filterFlags) filter() (ledger.Filter, error) {
	lf := ledger.Filter{ChainID: f.chain, ActorID: f.actor, Action: f.action, Status: f.status}
	var err error
	if lf.From, err = optionalTime(f.from); err != nil {
		return lf, err
	}
	if lf.To, err = optionalTime(f.to); err != nil {
		return lf, err
	}
	return lf, nil
}

func optionalTime(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, fmt.Errorf("invalid time %q: %w", raw, err)
	}
	return &t, nil
}

func openLedger(cfg *config.Config) (*ledger.Ledger, error) {
	db, err := repository.NewDB(cfg)
	if err != nil {
		return nil, err
	}
	return ledger.New(db)
}

func runVerify(ctx context.Context, cfg *config.Config, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("verify", flag.ContinueOnError)
	var ff filterFlags
	ff.register(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	f, err := ff.filter()
	if err != nil {
		return err
	}
	l, err := openLedger(cfg)
	if err != nil {
		return err
	}
	res, err := l.VerifyIntegrity(ctx, ledger.VerifyFilter{ChainID: f.ChainID, From: f.From, To: f.To})
	if err != nil {
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		return err
	}
	if !res.Valid {
		return fmt.Errorf("%w: %v", errBroken, res.Err())
	}
	return nil
}

func runCount(ctx context.Context, cfg *config.Config, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("count", flag.ContinueOnError)
	var ff filterFlags
	ff.register(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	f, err := ff.filter()
	if err != nil {
		return err
	}
	l, err := openLedger(cfg)
	if err != nil {
		return err
	}
	n, err := l.Count(ctx, f)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, n)
	return err
}

func runExport(ctx context.Context, cfg *config.Config, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	var ff filterFlags
	ff.register(fs)
	path := fs.String("out", "", "write CSV to this file instead of stdout")
	if err := fs.Parse(args); err != nil {
		return err
	}
	f, err := ff.filter()
	if err != nil {
		return err
	}
	l, err := openLedger(cfg)
	if err != nil {
		return err
	}

	w := out
	if *path != "" {
		file, err := os.Create(*path)
		if err != nil {
			return err
		}
		defer file.Close()
		w = file
	}
	rows, err := l.ExportCSV(ctx, w, f)
	if err != nil {
		return err
	}
	if *path != "" {
		fmt.Fprintf(out, "exported %d entries to %s\n", rows, *path)
	}
	return nil
}

func runIssueToken(cfg *config.Config, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("issue-token", flag.ContinueOnError)
	community := fs.String("community", "", "communityId claim")
	user := fs.String("user", "", "userId claim")
	role := fs.String("role", "member", "role claim")
	ttl := fs.Duration("ttl", time.Hour, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *community == "" || *user == "" {
		return errors.New("issue-token requires -community and -user")
	}
	if cfg.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is not configured")
	}

	now := time.Now()
	token, err := service.SignToken(jwt.SigningMethodHS256, []byte(cfg.Auth.JWTSecret), &service.TokenClaims{
		CommunityID: *community,
		UserID:      *user,
		Role:        *role,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(*ttl)),
		},
	})
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, token)
	return err
}
