package main

import (
	"fmt"

	"github.com/nimasrn/matatu-pay/internal/bootstrap"
	"github.com/nimasrn/matatu-pay/internal/config"
	"github.com/nimasrn/matatu-pay/internal/repository"
	"github.com/nimasrn/matatu-pay/internal/services"
	"github.com/spf13/cobra"
)

func settingsService() (*services.SettingsService, error) {
	db, err := bootstrap.Postgres(config.Get())
	if err != nil {
		return nil, err
	}
	return services.NewSettingsService(repository.NewSettingRepository(db)), nil
}

func settingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Read and change business settings",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get [key]",
		Short: "Print a setting",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := settingsService()
			if err != nil {
				return err
			}
			s, err := svc.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Printf("%s=%s\n", s.Key, s.Value)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set [key] [value]",
		Short: "Change a setting; applies to payments initiated afterwards",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := settingsService()
			if err != nil {
				return err
			}
			return svc.Update(cmd.Context(), args[0], args[1])
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "defaults",
		Short: "Write every setting with its default value",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := settingsService()
			if err != nil {
				return err
			}
			return svc.Defaults(cmd.Context())
		},
	})
	return cmd
}
