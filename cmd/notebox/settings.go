package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/saltyorg/notebox/internal/config"
	"github.com/saltyorg/notebox/internal/database"
)

func settingsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change runtime settings stored in the database",
	}
	cmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "", "SQLite database path (or set DB_PATH env var)")

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List all settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openSettingsDB()
			if err != nil {
				return err
			}
			defer db.Close()

			settings, err := db.GetAllSettings()
			if err != nil {
				return err
			}
			keys := make([]string, 0, len(settings))
			for k := range settings {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Fprintf(cmd.OutOrStdout(), "%s=%s\n", k, settings[k])
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a setting (e.g. maintenance.schedule \"@daily\")",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openSettingsDB()
			if err != nil {
				return err
			}
			defer db.Close()

			if err := db.SetSetting(args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s=%s\n", args[0], args[1])
			return nil
		},
	})

	return cmd
}

func openSettingsDB() (*database.DB, error) {
	if dbPath == "" {
		env, err := config.ParseEnv()
		if err != nil {
			return nil, err
		}
		dbPath = env.DBPath
	}

	db, err := database.New(dbPath)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
