// haken-token manages the Ed25519 key pair behind haken's bearer tokens and
// issues tokens for schedulers, operators and admins.
//
// Usage:
//
//	haken-token keygen [-dir data]
//	haken-token issue -account acct-1 -subject scheduler-7 -role scheduler [-ttl 720h]
//
// issue reads HAKEN_JWT_PRIVATE_KEY and HAKEN_JWT_PUBLIC_KEY (or .env) so the
// token verifies against a server configured with the same key pair.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/ashita-ai/haken/internal/auth"
	"github.com/ashita-ai/haken/internal/model"
)

const usage = "usage: haken-token keygen [-dir data] | issue -account ID -subject NAME [-role operator] [-ttl 24h]"

func main() {
	_ = godotenv.Load()

	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 0 {
		return errors.New(usage)
	}
	switch args[0] {
	case "keygen":
		fs := flag.NewFlagSet("keygen", flag.ContinueOnError)
		dir := fs.String("dir", "data", "directory for jwt_private.pem and jwt_public.pem")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		privPath, pubPath, err := generateKeyPair(*dir)
		if err != nil {
			return err
		}
		fmt.Printf("wrote %s\nwrote %s\n", privPath, pubPath)
		fmt.Println("Set HAKEN_JWT_PRIVATE_KEY and HAKEN_JWT_PUBLIC_KEY to these paths.")
		return nil

	case "issue":
		fs := flag.NewFlagSet("issue", flag.ContinueOnError)
		account := fs.String("account", "", "account id the token is scoped to (required)")
		subject := fs.String("subject", "", "caller name recorded in the token (required)")
		role := fs.String("role", string(model.RoleOperator), "admin, scheduler or operator")
		ttl := fs.Duration("ttl", 24*time.Hour, "token lifetime")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		token, expiresAt, err := issue(os.Getenv("HAKEN_JWT_PRIVATE_KEY"), os.Getenv("HAKEN_JWT_PUBLIC_KEY"),
			*account, *subject, model.Role(*role), *ttl)
		if err != nil {
			return err
		}
		fmt.Println(token)
		fmt.Fprintf(os.Stderr, "expires %s\n", expiresAt.Format(time.RFC3339))
		return nil

	default:
		return fmt.Errorf("unknown command %q\n%s", args[0], usage)
	}
}

func issue(privPath, pubPath, account, subject string, role model.Role, ttl time.Duration) (string, time.Time, error) {
	// An ephemeral key would mint a token no server accepts.
	if privPath == "" || pubPath == "" {
		return "", time.Time{}, errors.New("HAKEN_JWT_PRIVATE_KEY and HAKEN_JWT_PUBLIC_KEY must be set (run haken-token keygen first)")
	}
	mgr, err := auth.NewJWTManager(privPath, pubPath, ttl)
	if err != nil {
		return "", time.Time{}, err
	}
	return mgr.IssueToken(account, subject, role)
}
