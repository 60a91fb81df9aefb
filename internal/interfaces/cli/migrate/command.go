package migrate

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/codedrop-io/codedrop/internal/infrastructure/config"
	"github.com/codedrop-io/codedrop/internal/infrastructure/database"
	"github.com/codedrop-io/codedrop/internal/infrastructure/migration"
	"github.com/codedrop-io/codedrop/internal/infrastructure/persistence/seeds"
	"github.com/codedrop-io/codedrop/internal/infrastructure/repository"
	"github.com/codedrop-io/codedrop/internal/shared/logger"
)

var (
	env      string
	steps    int
	seedFile string
)

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Database migration tools",
		Long: `Apply the account directory schema and inspect its status.
Development databases use GORM AutoMigrate; test and production databases use the versioned goose scripts.`,
	}

	cmd.PersistentFlags().StringVarP(&env, "env", "e", "development", "Environment (development, test, production)")

	cmd.AddCommand(
		newUpCommand(),
		newDownCommand(),
		newStatusCommand(),
		newSeedCommand(),
	)

	return cmd
}

func newUpCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply the schema",
		RunE:  runUp,
	}
}

func newDownCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "down",
		Short: "Roll back versioned migrations",
		RunE:  runDown,
	}
	cmd.Flags().IntVarP(&steps, "steps", "n", 1, "Number of versions to roll back")
	return cmd
}

func newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show schema status",
		RunE:  runStatus,
	}
}

func newSeedCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Provision accounts from a YAML file",
		Long: `Create or update the accounts listed in a YAML file:

  accounts:
    - username: alice
      display_name: Alice
      telegram_chat_id: 123456
      notify: true`,
		RunE: runSeed,
	}
	cmd.Flags().StringVarP(&seedFile, "file", "f", "", "Seed file path")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

type session struct {
	cfg      *config.Config
	log      logger.Interface
	strategy migration.Strategy
}

func setup() (*session, error) {
	cfg, err := config.Load(env)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := logger.Init(&cfg.Logger, cfg.Server.Mode); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	log := logger.NewLogger()
	if err := database.Init(&cfg.Database, log); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return &session{
		cfg:      cfg,
		log:      log,
		strategy: migration.StrategyFor(env, cfg.Database.Driver, log),
	}, nil
}

func runUp(cmd *cobra.Command, args []string) error {
	s, err := setup()
	if err != nil {
		return err
	}
	defer database.Close()

	manager := migration.NewManager(s.strategy, s.log)
	if err := manager.Migrate(database.Get(), migration.AutoMigrateModels()...); err != nil {
		return err
	}

	fmt.Printf("Migrations applied successfully (%s)\n", s.strategy.GetName())
	return nil
}

func runDown(cmd *cobra.Command, args []string) error {
	s, err := setup()
	if err != nil {
		return err
	}
	defer database.Close()

	gooseStrategy, ok := s.strategy.(*migration.GooseStrategy)
	if !ok {
		return fmt.Errorf("down migration is only supported with goose strategy")
	}
	if err := gooseStrategy.MigrateDown(database.Get(), steps); err != nil {
		return err
	}

	fmt.Printf("Rolled back %d migration(s)\n", steps)
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	s, err := setup()
	if err != nil {
		return err
	}
	defer database.Close()

	if gooseStrategy, ok := s.strategy.(*migration.GooseStrategy); ok {
		version, err := gooseStrategy.GetVersion(database.Get())
		if err != nil {
			return err
		}
		fmt.Printf("Current version: %d\n", version)
		return gooseStrategy.Status(database.Get())
	}

	migrator := database.Get().Migrator()
	for _, model := range migration.AutoMigrateModels() {
		state := "missing"
		if migrator.HasTable(model) {
			state = "present"
		}
		fmt.Printf("%-24s %s\n", tableName(model), state)
	}
	return nil
}

func runSeed(cmd *cobra.Command, args []string) error {
	f, err := os.Open(seedFile)
	if err != nil {
		return fmt.Errorf("failed to open seed file: %w", err)
	}
	defer f.Close()

	file, err := seeds.ParseAccountSeeds(f)
	if err != nil {
		return err
	}

	s, err := setup()
	if err != nil {
		return err
	}
	defer database.Close()

	repo := repository.NewAccountRepository(database.Get(), s.log.Named("seed"))
	report, err := seeds.SeedAccounts(context.Background(), repo, file, time.Now().UTC())
	if err != nil {
		return err
	}

	fmt.Printf("Seeded accounts: %d created, %d updated\n", report.Created, report.Updated)
	return nil
}

func tableName(model interface{}) string {
	if t, ok := model.(interface{ TableName() string }); ok {
		return t.TableName()
	}
	return fmt.Sprintf("%T", model)
}
