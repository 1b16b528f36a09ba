package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"tasksync/backend"
	"tasksync/internal/cli"
	"tasksync/internal/operations"
	"tasksync/internal/utils"
)

func newDomainCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "domain",
		Aliases: []string{"domains", "d"},
		Short:   "Manage task domains (Work, Home, ...)",
	}

	cmd.AddCommand(newDomainAddCmd(app))
	cmd.AddCommand(newDomainListCmd(app))
	cmd.AddCommand(newDomainDeleteCmd(app))
	return cmd
}

func newDomainAddCmd(app *App) *cobra.Command {
	var in operations.DomainInput

	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Add a domain",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := app.service()
			if err != nil {
				return err
			}
			in.Name = args[0]
			domain, err := svc.AddDomain(in)
			if err != nil {
				return err
			}
			if app.output != utils.FormatText {
				return utils.Write(os.Stdout, app.output, domain)
			}
			fmt.Printf("Added domain %s\n", domain.Name)
			return nil
		},
	}

	cmd.Flags().StringVar(&in.Color, "color", "", "hex color, e.g. #3b82f6")
	cmd.Flags().StringVar(&in.Icon, "icon", "", "icon name or emoji")
	cmd.Flags().StringVarP(&in.Description, "description", "d", "", "domain description")
	cmd.Flags().BoolVar(&in.IsDefault, "default", false, "make this the default domain for new tasks")
	return cmd
}

func newDomainListCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List domains with their open task counts",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := app.service()
			if err != nil {
				return err
			}
			domains, err := svc.ListDomains()
			if err != nil {
				return err
			}
			if app.output != utils.FormatText {
				return utils.Write(os.Stdout, app.output, domains)
			}

			tasks, err := svc.ListTasks(operations.TaskFilter{
				Statuses: []backend.TaskStatus{backend.StatusTodo, backend.StatusInProgress},
			}, "")
			if err != nil {
				return err
			}
			counts := make(map[string]int)
			for _, t := range tasks {
				counts[t.DomainID]++
			}
			cli.ShowDomains(os.Stdout, domains, counts)
			return nil
		},
	}
}

func newDomainDeleteCmd(app *App) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:     "rm <name>",
		Aliases: []string{"delete"},
		Short:   "Delete a domain",
		Args:    cobra.ExactArgs(1),
		ValidArgsFunction: cli.DomainCompletion(func() ([]backend.Domain, error) {
			store, err := app.openStore()
			if err != nil {
				return nil, err
			}
			return store.Domains()
		}),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := app.service()
			if err != nil {
				return err
			}
			domain, err := svc.FindDomain(args[0])
			if err != nil {
				return err
			}
			if !force && !utils.PromptYesNo(fmt.Sprintf("Delete domain %q? Its tasks are kept.", domain.Name)) {
				fmt.Println("Cancelled")
				return nil
			}
			if _, err := svc.DeleteDomain(domain.ID); err != nil {
				return err
			}
			fmt.Printf("Deleted domain %s\n", domain.Name)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "do not ask for confirmation")
	return cmd
}
