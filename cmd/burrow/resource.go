package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var resourceCmd = &cobra.Command{
	Use:     "resource",
	Aliases: []string{"resources", "res"},
	Short:   "Manage resources",
}

var resourceListCmd = &cobra.Command{
	Use:   "list",
	Short: "List resources",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withLocal(func(l *local) error {
			resources, err := l.controller.ListResources()
			if err != nil {
				return err
			}
			if len(resources) == 0 {
				fmt.Println("No resources found")
				return nil
			}
			fmt.Printf("%-24s  %-24s  %-11s  %s\n", "ID", "NAME", "ALLOCATABLE", "TECHNOLOGIES")
			for _, r := range resources {
				technologies := make([]string, 0, len(r.Technologies))
				for _, t := range r.Technologies {
					technologies = append(technologies, string(t))
				}
				fmt.Printf("%-24s  %-24s  %-11t  %s\n", r.ID, r.Name, r.Allocatable, strings.Join(technologies, ","))
			}
			return nil
		})
	},
}

var resourceGetCmd = &cobra.Command{
	Use:   "get ID",
	Short: "Show a resource as YAML",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withLocal(func(l *local) error {
			resource, err := l.controller.GetResource(args[0])
			if err != nil {
				return err
			}
			out, err := yaml.Marshal(resource)
			if err != nil {
				return err
			}
			fmt.Print(string(out))
			return nil
		})
	},
}

var resourceDeleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Delete a resource without future reservations",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withLocal(func(l *local) error {
			if err := l.controller.DeleteResource(principal(cmd), args[0]); err != nil {
				return err
			}
			fmt.Printf("✓ Resource deleted: %s\n", args[0])
			return nil
		})
	},
}

func init() {
	resourceCmd.AddCommand(resourceListCmd)
	resourceCmd.AddCommand(resourceGetCmd)
	resourceCmd.AddCommand(resourceDeleteCmd)
}
