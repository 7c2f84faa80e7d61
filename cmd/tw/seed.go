package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/taskwell/taskwell/internal/store"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed a database with sample users and tasks",
	RunE: func(cmd *cobra.Command, args []string) error {
		dbPath, _ := cmd.Flags().GetString("db")
		force, _ := cmd.Flags().GetBool("force")

		st, err := store.Open(dbPath)
		if err != nil {
			return err
		}
		defer st.Close()

		ctx := context.Background()
		if err := st.InitSchema(ctx); err != nil {
			return err
		}
		if err := st.Seed(ctx, force); err != nil {
			return err
		}
		fmt.Println("Database seeded")
		return nil
	},
}

func init() {
	seedCmd.Flags().String("db", "data/app.db", "database path or libsql:// URL")
	seedCmd.Flags().Bool("force", false, "seed even if tasks already exist")
	rootCmd.AddCommand(seedCmd)
}
