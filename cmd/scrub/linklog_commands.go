package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"scrub/internal/config"
	"scrub/internal/linklog"
	"scrub/internal/logging"
)

func newLinkLogCommand(configFlag *string) *cobra.Command {
	linkLogCmd := &cobra.Command{
		Use:   "linklog",
		Short: "Inspect the identity link log",
	}

	linkLogCmd.AddCommand(newLinkLogListCommand(configFlag))
	linkLogCmd.AddCommand(newLinkLogVerifyCommand(configFlag))

	return linkLogCmd
}

func resolveLinkLogDir(configFlag *string, dirFlag string) (string, error) {
	if strings.TrimSpace(dirFlag) != "" {
		return dirFlag, nil
	}
	cfg, _, _, err := config.Load(strings.TrimSpace(*configFlag))
	if err != nil {
		return "", err
	}
	return cfg.Paths.LinkLogDir, nil
}

func newLinkLogListCommand(configFlag *string) *cobra.Command {
	var dirFlag string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the study/accession entries in the link log",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := resolveLinkLogDir(configFlag, dirFlag)
			if err != nil {
				return err
			}
			entries, err := linklog.ReadEntries(dir)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(out, "Link log is empty.")
				return nil
			}

			rows := make([][]string, 0, len(entries))
			for _, entry := range entries {
				rows = append(rows, []string{
					strconv.FormatInt(entry.StudyID, 10),
					strconv.FormatInt(entry.Accession, 10),
				})
			}
			fmt.Fprintln(out, renderTable([]string{"Study ID", "Accession"}, rows, []columnAlignment{alignRight, alignRight}))
			fmt.Fprintf(out, "%d entries\n", len(entries))
			return nil
		},
	}

	cmd.Flags().StringVarP(&dirFlag, "linklog", "l", "", "Link log directory (defaults to the configured path)")
	return cmd
}

func newLinkLogVerifyCommand(configFlag *string) *cobra.Command {
	var dirFlag string

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check the link log for corruption and inconsistencies",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := resolveLinkLogDir(configFlag, dirFlag)
			if err != nil {
				return err
			}

			log, err := linklog.Open(dir, logging.NewNop())
			if err != nil {
				return err
			}
			defer log.Close()

			if err := log.Verify(cmd.Context()); err != nil {
				return err
			}

			stats, err := log.Stats(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Link log is consistent.")
			fmt.Fprintf(out, "Patients: %d  Studies: %d  Series: %d  Instances: %d  Entries: %d\n",
				stats.Patients, stats.Studies, stats.Series, stats.Instances, stats.Entries)
			return nil
		},
	}

	cmd.Flags().StringVarP(&dirFlag, "linklog", "l", "", "Link log directory (defaults to the configured path)")
	return cmd
}
