// Command reservectl runs operator tasks against the reservation database:
// schema migration, expiry of abandoned checkouts, gap reports and token
// minting for local testing.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/iliyamo/hotel-reservation/internal/database"
	"github.com/iliyamo/hotel-reservation/internal/logger"
	"github.com/iliyamo/hotel-reservation/internal/model"
	"github.com/iliyamo/hotel-reservation/internal/repository"
	"github.com/iliyamo/hotel-reservation/internal/service"
	"github.com/iliyamo/hotel-reservation/internal/utils"
)

const (
	flagDriver     = "driver"
	flagSQLitePath = "sqlite-path"
	flagDBUser     = "db-user"
	flagDBPass     = "db-pass"
	flagDBHost     = "db-host"
	flagDBPort     = "db-port"
	flagDBName     = "db-name"
	flagEnv        = "app-env"

	driverMySQL  = "mysql"
	driverSQLite = "sqlite"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "reservectl: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "reservectl",
		Short:         "Operator tasks for the reservation engine",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_ = godotenv.Load()
			return bindConfig(cmd)
		},
	}

	f := cmd.PersistentFlags()
	f.String(flagDriver, driverMySQL, "database driver: mysql or sqlite")
	f.String(flagSQLitePath, "reservations.db", "SQLite file used with --driver sqlite")
	f.String(flagDBUser, "", "MySQL user (DB_USER)")
	f.String(flagDBPass, "", "MySQL password (DB_PASS)")
	f.String(flagDBHost, "127.0.0.1", "MySQL host (DB_HOST)")
	f.String(flagDBPort, "3306", "MySQL port (DB_PORT)")
	f.String(flagDBName, "", "MySQL database (DB_NAME)")
	f.String(flagEnv, "dev", "log format: prod for JSON, anything else for console (APP_ENV)")

	cmd.AddCommand(newMigrateCommand())
	cmd.AddCommand(newExpireCommand())
	cmd.AddCommand(newGapsCommand())
	cmd.AddCommand(newTokenCommand())
	return cmd
}

// bindConfig lets every flag fall back to the server's environment
// variable of the same meaning.
func bindConfig(cmd *cobra.Command) error {
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	envs := map[string]string{
		flagDBUser:       "DB_USER",
		flagDBPass:       "DB_PASS",
		flagDBHost:       "DB_HOST",
		flagDBPort:       "DB_PORT",
		flagDBName:       "DB_NAME",
		flagEnv:          "APP_ENV",
		"jwt-secret":     "JWT_SECRET",
		"pending-expiry": "PENDING_EXPIRY",
	}
	for key, env := range envs {
		if err := viper.BindEnv(key, env); err != nil {
			return err
		}
	}
	return viper.BindPFlags(cmd.Flags())
}

type store struct {
	db      *sql.DB
	dialect repository.Dialect
	schema  database.Dialect
}

func openStore() (*store, error) {
	switch driver := strings.ToLower(viper.GetString(flagDriver)); driver {
	case driverMySQL:
		if viper.GetString(flagDBUser) == "" || viper.GetString(flagDBName) == "" {
			return nil, fmt.Errorf("--%s and --%s (or DB_USER and DB_NAME) are required for mysql", flagDBUser, flagDBName)
		}
		db, err := database.Open(viper.GetString(flagDBUser), viper.GetString(flagDBPass),
			viper.GetString(flagDBHost), viper.GetString(flagDBPort), viper.GetString(flagDBName))
		if err != nil {
			return nil, fmt.Errorf("connect mysql: %w", err)
		}
		return &store{db: db, dialect: repository.MySQL, schema: database.MySQL}, nil
	case driverSQLite:
		db, err := database.OpenSQLite(viper.GetString(flagSQLitePath))
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		return &store{db: db, dialect: repository.SQLite, schema: database.SQLite}, nil
	default:
		return nil, fmt.Errorf("unknown driver %q", driver)
	}
}

func newLogger() (*zap.Logger, error) {
	return logger.New(viper.GetString(flagEnv))
}

func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
}

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the reservation tables if they do not exist",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext(cmd)
			defer stop()
			st, err := openStore()
			if err != nil {
				return err
			}
			defer st.db.Close()
			if err := database.Migrate(ctx, st.db, st.schema); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema up to date (%s)\n", st.schema)
			return nil
		},
	}
}

func newExpireCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "expire-pending",
		Short: "Cancel pending reservations and event bookings older than --older-than",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext(cmd)
			defer stop()
			olderThan := viper.GetDuration("older-than")
			if olderThan <= 0 {
				olderThan = viper.GetDuration("pending-expiry")
			}
			log, err := newLogger()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()
			st, err := openStore()
			if err != nil {
				return err
			}
			defer st.db.Close()

			lc := service.NewLifecycle(repository.NewReservationRepo(st.db, st.dialect),
				repository.NewEventBookingRepo(st.db, st.dialect), nil, service.SystemClock, log)
			report, err := lc.ExpirePending(ctx, olderThan)
			if err != nil {
				return err
			}
			return printJSON(cmd, report)
		},
	}
	cmd.Flags().Duration("older-than", 0, "age after which pending bookings expire (default PENDING_EXPIRY or 30m)")
	viper.SetDefault("pending-expiry", 30*time.Minute)
	return cmd
}

func newGapsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gaps <room-type-id>",
		Short: "Print the free date ranges of a room type",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext(cmd)
			defer stop()
			var typeID uint64
			if _, err := fmt.Sscan(args[0], &typeID); err != nil || typeID == 0 {
				return fmt.Errorf("invalid room type id %q", args[0])
			}
			from := model.DateOf(time.Now())
			if s := viper.GetString("from"); s != "" {
				d, err := model.ParseDate(s)
				if err != nil {
					return err
				}
				from = d
			}
			log, err := newLogger()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()
			st, err := openStore()
			if err != nil {
				return err
			}
			defer st.db.Close()

			finder := service.NewGapFinder(repository.NewCatalogRepo(st.db, st.dialect),
				repository.NewReservationRepo(st.db, st.dialect), 0, log)
			report, err := finder.FindGaps(ctx, typeID, from, viper.GetInt("horizon-days"))
			if err != nil {
				return err
			}
			return printJSON(cmd, report)
		},
	}
	cmd.Flags().String("from", "", "first day to search, YYYY-MM-DD (default today)")
	cmd.Flags().Int("horizon-days", service.DefaultGapHorizonDays, "days to search")
	return cmd
}

func newTokenCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token <user-id>",
		Short: "Mint an access token for local testing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var userID uint64
			if _, err := fmt.Sscan(args[0], &userID); err != nil || userID == 0 {
				return fmt.Errorf("invalid user id %q", args[0])
			}
			secret := viper.GetString("jwt-secret")
			if secret == "" {
				return fmt.Errorf("JWT_SECRET is not set")
			}
			tok, err := utils.NewAccessToken(secret, userID, strings.ToUpper(viper.GetString("role")), viper.GetInt("ttl-min"))
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]any{"access_token": tok.Token, "expires_at": tok.Exp})
		},
	}
	cmd.Flags().String("role", "CUSTOMER", "role claim: CUSTOMER or ADMIN")
	cmd.Flags().Int("ttl-min", 60, "lifetime in minutes")
	return cmd
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
