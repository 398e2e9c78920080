package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/promptelt/promptelt/internal/config"
	"github.com/promptelt/promptelt/internal/model"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage promptelt configuration",
		Long:  "Initialize a default configuration file, display the effective configuration or change stored settings.",
	}

	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigSetCmd())

	return cmd
}

// ---------- config init ----------

func newConfigInitCmd() *cobra.Command {
	var (
		force bool
		path  string
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a default promptelt.yaml configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigInit(path, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing config file")
	cmd.Flags().StringVarP(&path, "output", "o", "promptelt.yaml", "Path of the file to create")

	return cmd
}

func runConfigInit(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
	}

	if err := config.WriteDefaultConfig(path); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	fmt.Printf("Created %s\n", path)
	fmt.Println("Add your databases under 'databases:', then run 'promptelt serve'.")
	return nil
}

// ---------- config show ----------

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration with secrets masked",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigShow()
		},
	}
}

func runConfigShow() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if configFile := viper.ConfigFileUsed(); configFile != "" {
		fmt.Printf("# Config file: %s\n", configFile)
	} else {
		fmt.Println("# Config file: (none found, using defaults)")
	}
	fmt.Printf("# Data dir:    %s\n", resolveDataDir())

	shown := *cfg
	shown.Assistant.APIKey = maskSecret(cfg.Assistant.APIKey)
	shown.Archive.SecretKey = maskSecret(cfg.Archive.SecretKey)
	shown.Databases = make([]config.DatabaseYAML, len(cfg.Databases))
	for i, d := range cfg.Databases {
		d.ConnectionString = model.MaskConnectionString(d.ConnectionString)
		shown.Databases[i] = d
	}
	return printYAMLDirect(&shown)
}

func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	return "****"
}

// ---------- config set ----------

func newConfigSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Store a runtime setting (for example metrics.enabled false)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := config.NewStore(resolveDataDir())
			if err != nil {
				return fmt.Errorf("open config store: %w", err)
			}
			defer store.Close()
			if err := store.SetSetting(cmd.Context(), args[0], args[1]); err != nil {
				return fmt.Errorf("store setting: %w", err)
			}
			fmt.Printf("Set %s = %s\n", args[0], args[1])
			return nil
		},
	}
}
