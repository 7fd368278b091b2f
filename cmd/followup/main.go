package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ufmn/followup/internal/config"
	"github.com/ufmn/followup/internal/domain/followup"
	"github.com/ufmn/followup/internal/platform/db"
	"github.com/ufmn/followup/internal/platform/metrics"
	"github.com/ufmn/followup/internal/platform/source"
	"github.com/ufmn/followup/internal/platform/table"
	"github.com/ufmn/followup/migrations"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "followup",
		Short:         "ALS follow-up fusion and staging",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(fuseCmd())
	rootCmd.AddCommand(resampleCmd())
	rootCmd.AddCommand(stagesCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// app holds what every command needs: configuration, a logger, the source
// loader and, when configured, a database pool.
type app struct {
	cfg     *config.Config
	logger  zerolog.Logger
	pool    *pgxpool.Pool
	loader  source.Loader
	metrics *metrics.Metrics
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: newLogger(cfg)}

	if cfg.NeedsDatabase() {
		a.pool, err = db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return nil, err
		}
		a.logger.Info().Msg("connected to database")
	}

	schema, err := loaderSchema(cfg.SchemaFile)
	if err != nil {
		a.close()
		return nil, err
	}
	switch cfg.Source {
	case config.SourcePostgres:
		a.loader = source.NewPGLoader(a.pool, schema)
	default:
		a.loader = source.NewDirLoader(cfg.DataDir, schema)
	}
	return a, nil
}

func (a *app) close() {
	if a.pool != nil {
		a.pool.Close()
	}
}

func (a *app) pipeline() *followup.Pipeline {
	return &followup.Pipeline{Workers: a.cfg.Workers, Logger: a.logger, Metrics: a.metrics}
}

func (a *app) fuse(ctx context.Context) (*table.Table, error) {
	return a.pipeline().LoadFollowupData(ctx, followup.Sources{Loader: a.loader})
}

func newLogger(cfg *config.Config) zerolog.Logger {
	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()
	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	return logger.Level(level)
}

// loaderSchema types the follow-up columns, overlaid with the optional
// schema file.
func loaderSchema(path string) (source.Schema, error) {
	schema := source.Schema(followup.Schema())
	if path == "" {
		return schema, nil
	}
	extra, err := source.LoadSchemaFile(path)
	if err != nil {
		return nil, err
	}
	return schema.Merge(extra), nil
}

func fuseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fuse",
		Short: "Merge, fill and stage the follow-up sources",
		RunE: func(cmd *cobra.Command, args []string) error {
			out, _ := cmd.Flags().GetString("out")
			export, _ := cmd.Flags().GetBool("export")

			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			t, err := a.fuse(ctx)
			if err != nil {
				return err
			}
			if export {
				patients, err := a.loader.Load(ctx, followup.DatasetPatients)
				if err != nil {
					return err
				}
				if t, err = followup.Export(t, patients); err != nil {
					return err
				}
			}
			return writeTable(out, t, "followup")
		},
	}
	cmd.Flags().StringP("out", "o", "-", "Output file (.csv or .xlsx); - writes CSV to stdout")
	cmd.Flags().Bool("export", false, "Join the patient registry and keep the export columns")
	return cmd
}

func resampleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resample",
		Short: "Resample each patient's follow-ups onto a calendar grid",
		RunE: func(cmd *cobra.Command, args []string) error {
			out, _ := cmd.Flags().GetString("out")
			freqFlag, _ := cmd.Flags().GetString("freq")
			startsDataset, _ := cmd.Flags().GetString("starts")
			startColumn, _ := cmd.Flags().GetString("start-column")

			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			if freqFlag == "" {
				freqFlag = a.cfg.ResampleFreq
			}
			freq, err := followup.ParseFrequency(freqFlag)
			if err != nil {
				return err
			}

			var starts map[string]time.Time
			if startsDataset != "" {
				st, err := a.loader.Load(ctx, startsDataset)
				if err != nil {
					return err
				}
				if starts, err = followup.StartDates(st, startColumn); err != nil {
					return err
				}
			}

			t, err := a.fuse(ctx)
			if err != nil {
				return err
			}
			resampled, err := followup.Resample(t, starts, freq, a.cfg.Workers)
			if err != nil {
				return err
			}
			a.logger.Info().
				Str("freq", freq.String()).
				Int("starts", len(starts)).
				Int("rows", resampled.Len()).
				Msg("follow-ups resampled")
			return writeTable(out, resampled, "resampled")
		},
	}
	cmd.Flags().StringP("out", "o", "-", "Output file (.csv or .xlsx); - writes CSV to stdout")
	cmd.Flags().String("freq", "", "Sampling frequency: D, W, M or <n>D (default RESAMPLE_FREQ)")
	cmd.Flags().String("starts", "", "Dataset with per-patient start dates; patients without one start at their last visit")
	cmd.Flags().String("start-column", "fecha_inicio", "Date column of the starts dataset")
	return cmd
}

func stagesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stages",
		Short: "List the first visit at which each King's and MiToS stage was reached",
		RunE: func(cmd *cobra.Command, args []string) error {
			out, _ := cmd.Flags().GetString("out")

			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			t, err := a.fuse(ctx)
			if err != nil {
				return err
			}
			onsets, err := followup.StageOnsets(t)
			if err != nil {
				return err
			}
			return writeTable(out, onsets, "stages")
		},
	}
	cmd.Flags().StringP("out", "o", "-", "Output file (.csv or .xlsx); - writes CSV to stdout")
	return cmd
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the follow-up API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	// migrate up
	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			target, _ := cmd.Flags().GetInt("to")

			ctx := cmd.Context()
			migrator, schema, done, err := newMigrator(ctx, cmd)
			if err != nil {
				return err
			}
			defer done()

			fmt.Printf("Running migrations on schema: %s\n", schema)
			count, err := migrator.UpTo(ctx, schema, target)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("schema", "", "Target schema (default DB_SCHEMA)")
	upCmd.Flags().Int("to", 0, "Stop after this version; 0 applies all")
	cmd.AddCommand(upCmd)

	// migrate status
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			migrator, schema, done, err := newMigrator(ctx, cmd)
			if err != nil {
				return err
			}
			defer done()

			statuses, err := migrator.Status(ctx, schema)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("Migration status for schema: %s\n", schema)
			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("schema", "", "Target schema (default DB_SCHEMA)")
	cmd.AddCommand(statusCmd)

	return cmd
}

func newMigrator(ctx context.Context, cmd *cobra.Command) (*db.Migrator, string, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, "", nil, err
	}
	if cfg.DatabaseURL == "" {
		return nil, "", nil, errors.New("DATABASE_URL is required for migrations")
	}
	schema, _ := cmd.Flags().GetString("schema")
	if schema == "" {
		schema = cfg.DBSchema
	}

	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return nil, "", nil, err
	}
	return db.NewMigrator(pool, migrations.FS), schema, pool.Close, nil
}
