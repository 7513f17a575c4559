// Command keyctl administers the key store directly, without the HTTP server.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"keyhub/internal/engine/licensing"
	"keyhub/internal/pkg/logger"
	"keyhub/internal/pkg/validator"
	"keyhub/internal/platform/auth"
	"keyhub/internal/platform/config"
	"keyhub/internal/platform/repositories"
)

const usage = `usage: keyctl [-config path] <command> [flags]

commands:
  generate       -type permanent|temporary [-days n] [-owner user_id]
  status         <key>
  delete         <key>
  reset          <key>
  reset-user     <user_id>
  list
  stats
  blacklist      <user_id> [-reason text]
  unblacklist    <user_id>
  upload-script  -name text [-description text] [-owner user_id]
  scripts
  token          -subject name -role admin|bot [-ttl duration]
  hash-password  <password>
`

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to config file")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	cfg.Logging.Output = "stderr"
	logger.Init(cfg.Logging)

	if err := run(context.Background(), cfg, flag.Arg(0), flag.Args()[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "keyctl:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, cmd string, args []string, out io.Writer) error {
	// Commands that never touch storage.
	switch cmd {
	case "token":
		return runToken(cfg, args, out)
	case "hash-password":
		if len(args) != 1 {
			return fmt.Errorf("hash-password takes exactly one argument")
		}
		hash, err := auth.HashPassword(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(out, hash)
		return nil
	}

	storage, err := repositories.Open(cfg.Storage)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer storage.Close()

	keystore := licensing.NewKeystore(storage.Backend,
		licensing.WithKeyPrefix(cfg.Licensing.KeyPrefix),
		licensing.WithResetCooldown(cfg.Licensing.ResetCooldown),
	)

	switch cmd {
	case "generate":
		fs := flag.NewFlagSet("generate", flag.ContinueOnError)
		typ := fs.String("type", "permanent", "Key type: permanent or temporary")
		days := fs.Int("days", 0, "Days until a temporary key expires")
		owner := fs.String("owner", "", "Owner user id")
		if err := fs.Parse(args); err != nil {
			return err
		}
		return runGenerate(ctx, keystore, *typ, *days, *owner, out)

	case "status":
		key, err := single(cmd, args)
		if err != nil {
			return err
		}
		rec, err := keystore.Status(ctx, key)
		if err != nil {
			return err
		}
		return printJSON(out, rec)

	case "delete":
		key, err := single(cmd, args)
		if err != nil {
			return err
		}
		if err := keystore.Delete(ctx, key); err != nil {
			return err
		}
		fmt.Fprintln(out, "deleted", key)
		return nil

	case "reset":
		key, err := single(cmd, args)
		if err != nil {
			return err
		}
		rec, err := keystore.Reset(ctx, key)
		if err != nil {
			return err
		}
		return printJSON(out, rec)

	case "reset-user":
		userID, err := single(cmd, args)
		if err != nil {
			return err
		}
		rec, err := keystore.ResetForOwner(ctx, userID)
		if err != nil {
			return err
		}
		return printJSON(out, rec)

	case "list":
		keys, err := keystore.ListKeys(ctx)
		if err != nil {
			return err
		}
		if keys == nil {
			keys = []licensing.KeyRecord{}
		}
		return printJSON(out, keys)

	case "stats":
		stats, err := keystore.Stats(ctx)
		if err != nil {
			return err
		}
		return printJSON(out, stats)

	case "blacklist":
		if len(args) == 0 {
			return fmt.Errorf("blacklist needs a user id")
		}
		userID := args[0]
		fs := flag.NewFlagSet("blacklist", flag.ContinueOnError)
		reason := fs.String("reason", "", "Reason recorded with the entry")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		if err := validator.ValidateUserID(userID); err != nil {
			return err
		}
		entry, err := keystore.BlacklistUser(ctx, userID, *reason, "keyctl")
		if err != nil {
			return err
		}
		return printJSON(out, entry)

	case "unblacklist":
		userID, err := single(cmd, args)
		if err != nil {
			return err
		}
		if err := keystore.UnblacklistUser(ctx, userID); err != nil {
			return err
		}
		fmt.Fprintln(out, "unblacklisted", userID)
		return nil

	case "upload-script":
		fs := flag.NewFlagSet("upload-script", flag.ContinueOnError)
		name := fs.String("name", "", "Script name")
		description := fs.String("description", "", "Script description")
		owner := fs.String("owner", "keyctl", "Owner recorded with the script")
		if err := fs.Parse(args); err != nil {
			return err
		}
		sc, err := keystore.UploadScript(ctx, licensing.UploadParams{Name: *name, Description: *description, Owner: *owner})
		if err != nil {
			return err
		}
		return printJSON(out, sc)

	case "scripts":
		scripts, err := keystore.ListScripts(ctx)
		if err != nil {
			return err
		}
		if scripts == nil {
			scripts = []licensing.Script{}
		}
		return printJSON(out, scripts)
	}

	return fmt.Errorf("unknown command %q", cmd)
}

func runGenerate(ctx context.Context, keystore *licensing.Keystore, typ string, days int, owner string, out io.Writer) error {
	kt, err := licensing.ParseKeyType(typ)
	if err != nil {
		return err
	}
	if owner != "" {
		if err := validator.ValidateUserID(owner); err != nil {
			return err
		}
	}

	p := licensing.GenerateParams{Type: kt, Owner: owner, CreatedBy: "keyctl"}
	switch {
	case kt == licensing.KeyTypeTemporary && days <= 0:
		return fmt.Errorf("temporary keys need -days")
	case kt == licensing.KeyTypePermanent && days > 0:
		return fmt.Errorf("permanent keys cannot expire")
	case days > 0:
		exp := time.Now().Add(time.Duration(days) * 24 * time.Hour).Unix()
		p.ExpiresAt = &exp
	}

	rec, err := keystore.Generate(ctx, p)
	if err != nil {
		return err
	}
	return printJSON(out, rec)
}

func runToken(cfg *config.Config, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	subject := fs.String("subject", "", "Token subject")
	role := fs.String("role", auth.RoleBot, "Role: admin or bot")
	ttl := fs.Duration("ttl", 0, "Lifetime, 0 for a token that never expires")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *subject == "" {
		return fmt.Errorf("token needs -subject")
	}
	if *role != auth.RoleAdmin && *role != auth.RoleBot {
		return fmt.Errorf("unknown role %q", *role)
	}

	token, err := auth.NewTokenService(cfg.JWT).GenerateServiceToken(*subject, *role, *ttl)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, token)
	return nil
}

func single(cmd string, args []string) (string, error) {
	if len(args) != 1 {
		return "", fmt.Errorf("%s takes exactly one argument", cmd)
	}
	return args[0], nil
}

func printJSON(out io.Writer, v interface{}) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
