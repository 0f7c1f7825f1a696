package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"nlud/internal/defs"
	"nlud/internal/engine"
)

func buildHashCmd(root *rootOptions) *cobra.Command {
	var botDir string
	cmd := &cobra.Command{
		Use:     "hash",
		Short:   "Print the model id each language of a bot would train to",
		Example: "  nlud hash --bot-dir ./bots/support-bot",
		RunE: func(cmd *cobra.Command, args []string) error {
			if botDir == "" {
				return fmt.Errorf("--bot-dir is required")
			}
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			bc, err := defs.LoadBotConfig(botDir)
			if err != nil {
				return err
			}
			rt := engine.NewRuntime(engine.Options{
				Backend:         cfg.Engine.Backend,
				Languages:       cfg.Languages,
				DefaultLanguage: cfg.Engine.DefaultLanguage,
				Epochs:          cfg.Engine.Epochs,
				BatchSize:       cfg.Engine.BatchSize,
			})
			svc, err := defs.Open(defs.Options{Dir: botDir, Languages: bc.Languages, Hasher: rt.NewEngine(bc.ID)})
			if err != nil {
				return err
			}
			return printHashes(context.Background(), cmd, bc.ID, bc.Languages, svc)
		},
	}
	cmd.Flags().StringVar(&botDir, "bot-dir", "", "Bot directory holding bot.yaml, intents/ and entities/")
	return cmd
}

func printHashes(ctx context.Context, cmd *cobra.Command, botID string, langs []string, svc *defs.Service) error {
	for _, lang := range langs {
		id, err := svc.LatestModelID(ctx, lang)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", botID, lang, id)
	}
	return nil
}
