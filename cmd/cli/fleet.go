package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/nimasrn/matatu-pay/internal/bootstrap"
	"github.com/nimasrn/matatu-pay/internal/config"
	"github.com/nimasrn/matatu-pay/internal/model"
	"github.com/nimasrn/matatu-pay/internal/repository"
	"github.com/nimasrn/matatu-pay/internal/services"
	"github.com/spf13/cobra"
)

func fleetService() (*services.FleetService, error) {
	db, err := bootstrap.Postgres(config.Get())
	if err != nil {
		return nil, err
	}
	return services.NewFleetService(repository.NewAccountRepository(db), repository.NewVehicleRepository(db)), nil
}

func accountCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Manage owner and platform accounts",
	}

	var name, typ, listTyp string
	add := &cobra.Command{
		Use:   "add [account-number]",
		Short: "Register an active account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := fleetService()
			if err != nil {
				return err
			}
			acc, err := svc.RegisterAccount(cmd.Context(), args[0], name, model.AccountType(strings.ToUpper(typ)))
			if err != nil {
				return err
			}
			fmt.Printf("account %s (%s) registered with id %d\n", acc.AccountNumber, acc.Type, acc.ID)
			return nil
		},
	}
	add.Flags().StringVar(&name, "name", "", "display name")
	add.Flags().StringVar(&typ, "type", string(model.AccountTypeOwner), "OWNER or PLATFORM")

	list := &cobra.Command{
		Use:   "list",
		Short: "List accounts of a type",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := fleetService()
			if err != nil {
				return err
			}
			accounts, err := svc.Accounts(cmd.Context(), model.AccountType(strings.ToUpper(listTyp)))
			if err != nil {
				return err
			}
			for _, a := range accounts {
				fmt.Printf("%d\t%s\t%s\tactive=%t\n", a.ID, a.AccountNumber, a.Name, a.IsActive)
			}
			return nil
		},
	}
	list.Flags().StringVar(&listTyp, "type", string(model.AccountTypeOwner), "OWNER or PLATFORM")

	cmd.AddCommand(add, list)
	cmd.AddCommand(toggleCmds("account-number", (*services.FleetService).SetAccountActive)...)
	return cmd
}

func vehicleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vehicle",
		Short: "Manage vehicles",
	}

	var route, owner string
	add := &cobra.Command{
		Use:   "add [code]",
		Short: "Register an active vehicle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := fleetService()
			if err != nil {
				return err
			}
			v, err := svc.RegisterVehicle(cmd.Context(), args[0], route, owner)
			if err != nil {
				return err
			}
			fmt.Printf("vehicle %s registered with id %d\n", v.Code, v.ID)
			return nil
		},
	}
	add.Flags().StringVar(&route, "route", "", "route served by the vehicle")
	add.Flags().StringVar(&owner, "owner", "", "owner account number")
	_ = add.MarkFlagRequired("owner")

	cmd.AddCommand(add)
	cmd.AddCommand(toggleCmds("code", (*services.FleetService).SetVehicleActive)...)
	return cmd
}

type activeSetter func(svc *services.FleetService, ctx context.Context, key string, active bool) error

// toggleCmds builds the activate and deactivate subcommands around one setter.
func toggleCmds(arg string, set activeSetter) []*cobra.Command {
	build := func(use string, active bool) *cobra.Command {
		return &cobra.Command{
			Use:   fmt.Sprintf("%s [%s]", use, arg),
			Short: fmt.Sprintf("Set active=%t", active),
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				svc, err := fleetService()
				if err != nil {
					return err
				}
				if err := set(svc, cmd.Context(), args[0], active); err != nil {
					return err
				}
				fmt.Printf("%s active=%t\n", args[0], active)
				return nil
			},
		}
	}
	return []*cobra.Command{build("activate", true), build("deactivate", false)}
}
