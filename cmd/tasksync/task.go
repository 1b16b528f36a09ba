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

func newTaskCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "task",
		Aliases: []string{"tasks", "t"},
		Short:   "Manage tasks in the local store",
		Long: `Create, complete and delete tasks. Every change is written to the local
store first and picked up by the next sync.

Examples:
  tasksync task add "Write report" --priority 3 --due 2026-11-02 --domain Work
  tasksync task list --status todo,in_progress --sort priority
  tasksync task start 3f2a
  tasksync task done 3f2a --actual 45
  tasksync task rm 3f2a`,
	}

	loadTasks := func() ([]backend.Task, error) {
		store, err := app.openStore()
		if err != nil {
			return nil, err
		}
		return store.Tasks()
	}

	cmd.AddCommand(newTaskAddCmd(app))
	cmd.AddCommand(newTaskListCmd(app))
	cmd.AddCommand(newTaskStatusCmd(app, "done", "Mark a task as done", backend.StatusDone, loadTasks))
	cmd.AddCommand(newTaskStatusCmd(app, "start", "Mark a task as in progress", backend.StatusInProgress, loadTasks))
	cmd.AddCommand(newTaskStatusCmd(app, "reopen", "Move a task back to todo", backend.StatusTodo, loadTasks))
	cmd.AddCommand(newTaskDeleteCmd(app, loadTasks))
	return cmd
}

func newTaskAddCmd(app *App) *cobra.Command {
	var (
		description string
		status      string
		priority    int
		domain      string
		due         string
		estimate    string
	)

	cmd := &cobra.Command{
		Use:   "add <title>",
		Short: "Add a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dueDate, err := utils.ParseDateFlag(due)
			if err != nil {
				return err
			}
			estimated, err := utils.ParseMinutesFlag(estimate)
			if err != nil {
				return err
			}

			svc, err := app.service()
			if err != nil {
				return err
			}
			task, err := svc.AddTask(operations.TaskInput{
				Title:             args[0],
				Description:       description,
				Status:            status,
				Priority:          priority,
				Domain:            domain,
				DueDate:           dueDate,
				EstimatedDuration: estimated,
			})
			if err != nil {
				return err
			}

			if app.output != utils.FormatText {
				return utils.Write(os.Stdout, app.output, task)
			}
			fmt.Printf("Added task %s: %s\n", task.ID[:8], task.Title)
			return nil
		},
	}

	cmd.Flags().StringVarP(&description, "description", "d", "", "task description")
	cmd.Flags().StringVarP(&status, "status", "s", "todo", "initial status (todo, in_progress, done)")
	cmd.Flags().IntVarP(&priority, "priority", "p", 0, "priority from 0 (none) to 3 (high)")
	cmd.Flags().StringVar(&domain, "domain", "", "domain name or ID")
	cmd.Flags().StringVar(&due, "due", "", "due date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&estimate, "estimate", "", "estimated duration (minutes or a duration like 1h30m)")
	_ = cmd.RegisterFlagCompletionFunc("domain", cli.DomainCompletion(func() ([]backend.Domain, error) {
		store, err := app.openStore()
		if err != nil {
			return nil, err
		}
		return store.Domains()
	}))
	return cmd
}

func newTaskListCmd(app *App) *cobra.Command {
	var (
		statuses []string
		domain   string
		sortBy   string
	)

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List live tasks",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := app.service()
			if err != nil {
				return err
			}

			filter := operations.TaskFilter{}
			if filter.Statuses, err = operations.ParseStatusFilter(statuses); err != nil {
				return err
			}
			if domain != "" {
				d, err := svc.FindDomain(domain)
				if err != nil {
					return err
				}
				filter.DomainID = d.ID
			}

			tasks, err := svc.ListTasks(filter, sortBy)
			if err != nil {
				return err
			}
			if app.output != utils.FormatText {
				return utils.Write(os.Stdout, app.output, tasks)
			}

			domains, err := svc.ListDomains()
			if err != nil {
				return err
			}
			names := make(map[string]string, len(domains))
			for _, d := range domains {
				names[d.ID] = d.Name
			}
			cli.ShowTasks(os.Stdout, tasks, names)
			return nil
		},
	}

	cmd.Flags().StringSliceVarP(&statuses, "status", "s", nil, "filter by status (comma separated)")
	cmd.Flags().StringVar(&domain, "domain", "", "filter by domain name or ID")
	cmd.Flags().StringVar(&sortBy, "sort", "order", "sort by order, priority, due, created or title")
	return cmd
}

func newTaskStatusCmd(app *App, use, short string, status backend.TaskStatus, load func() ([]backend.Task, error)) *cobra.Command {
	var actual string

	cmd := &cobra.Command{
		Use:               use + " <task-id>",
		Short:             short,
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: cli.TaskCompletion(load),
		RunE: func(cmd *cobra.Command, args []string) error {
			minutes, err := utils.ParseMinutesFlag(actual)
			if err != nil {
				return err
			}
			svc, err := app.service()
			if err != nil {
				return err
			}
			task, err := svc.UpdateTaskStatus(args[0], string(status), minutes)
			if err != nil {
				return err
			}
			if app.output != utils.FormatText {
				return utils.Write(os.Stdout, app.output, task)
			}
			fmt.Printf("%s: %s\n", task.Title, task.Status)
			return nil
		},
	}

	if status == backend.StatusDone {
		cmd.Flags().StringVar(&actual, "actual", "", "time actually spent (minutes or a duration like 1h30m)")
	}
	return cmd
}

func newTaskDeleteCmd(app *App, load func() ([]backend.Task, error)) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:               "rm <task-id>",
		Aliases:           []string{"delete"},
		Short:             "Delete a task",
		Long:              "Delete a task. The deletion is kept as a tombstone so other devices remove it on their next sync.",
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: cli.TaskCompletion(load),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := app.service()
			if err != nil {
				return err
			}
			task, err := svc.FindTask(args[0])
			if err != nil {
				return err
			}
			if !force && !utils.PromptYesNo(fmt.Sprintf("Delete %q?", task.Title)) {
				fmt.Println("Cancelled")
				return nil
			}
			if _, err := svc.DeleteTask(task.ID); err != nil {
				return err
			}
			fmt.Printf("Deleted task %s\n", task.Title)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "do not ask for confirmation")
	return cmd
}
