package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"tasksync/backend"
)

// TaskCompletion completes the first argument with task ID prefixes, showing titles as descriptions
func TaskCompletion(load func() ([]backend.Task, error)) func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
	return func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		if len(args) > 0 {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}

		tasks, err := load()
		if err != nil {
			return nil, cobra.ShellCompDirectiveError
		}

		var completions []string
		for _, t := range tasks {
			id := shortID(t.ID)
			if strings.HasPrefix(id, toComplete) {
				completions = append(completions, id+"\t"+t.Title)
			}
		}
		return completions, cobra.ShellCompDirectiveNoFileComp
	}
}

// DomainCompletion completes domain names
func DomainCompletion(load func() ([]backend.Domain, error)) func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
	return func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		domains, err := load()
		if err != nil {
			return nil, cobra.ShellCompDirectiveError
		}

		var completions []string
		for _, d := range domains {
			if strings.HasPrefix(strings.ToLower(d.Name), strings.ToLower(toComplete)) {
				completions = append(completions, d.Name)
			}
		}
		return completions, cobra.ShellCompDirectiveNoFileComp
	}
}
