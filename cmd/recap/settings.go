package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pavelanni/recap/internal/model"
	"github.com/pavelanni/recap/internal/store"
)

func settingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change the stored API key and model",
		Example: `  recap settings
  recap settings --api-key AIza... --model gemini-1.5-flash`,
		RunE: runSettings,
	}
	addCommonFlags(cmd)
	f := cmd.Flags()
	f.String("api-key", "", "Store this Gemini API key")
	f.String("model", "", "Store this model ("+strings.Join(model.AllowedModels, ", ")+")")
	return cmd
}

func runSettings(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	st, err := db.LoadSettings()
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	changed := false
	if cmd.Flags().Changed("api-key") {
		st.APIKey = strings.TrimSpace(v.GetString("api-key"))
		changed = true
	}
	if cmd.Flags().Changed("model") {
		name := v.GetString("model")
		if !model.IsAllowedModel(name) {
			return fmt.Errorf("unknown model %q (allowed: %s)", name, strings.Join(model.AllowedModels, ", "))
		}
		st.ModelName = name
		changed = true
	}
	if changed {
		if err := db.SaveSettings(st); err != nil {
			return fmt.Errorf("save settings: %w", err)
		}
	}

	printSettings(cmd.OutOrStdout(), st)
	return nil
}

func printSettings(w io.Writer, st model.Settings) {
	fmt.Fprintf(w, "api key: %s\n", maskKey(st.APIKey))
	fmt.Fprintf(w, "model:   %s\n", st.ModelName)
}

// maskKey hides all but the last four characters of an API key.
func maskKey(key string) string {
	if key == "" {
		return "(not set)"
	}
	if len(key) <= 4 {
		return strings.Repeat("*", len(key))
	}
	return strings.Repeat("*", len(key)-4) + key[len(key)-4:]
}
