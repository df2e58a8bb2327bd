package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"tripreel/pkg/config"
	"tripreel/pkg/version"
)

func newInitConfigCommand(configFlag *string) *cobra.Command {
	return &cobra.Command{
		Use:         "init-config",
		Short:       "Generate the default configuration file",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			path := defaultConfigPath
			if configFlag != nil && strings.TrimSpace(*configFlag) != "" {
				path = strings.TrimSpace(*configFlag)
			}
			if err := config.GenerateDefault(path); err != nil {
				return fmt.Errorf("failed to generate config: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Config file generated: %s\n", path)
			return nil
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "version",
		Short:       "Print the version",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{"skipConfigLoad": "true"},
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "tripreel %s\n", version.Version)
		},
	}
}
