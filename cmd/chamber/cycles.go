// Copyright (C) 2025 Josh Simonot
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package main

import (
	"chamber/internal/config"
	"chamber/internal/store"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var cyclesCmd = &cobra.Command{
	Use:   "cycles",
	Short: "Inspect and manage recorded cycles",
}

var cyclesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cycles",
	Args:  cobra.NoArgs,
	RunE:  runCyclesList,
}

var cyclesDeleteCmd = &cobra.Command{
	Use:   "delete NAME",
	Short: "Delete a finished cycle and its readings",
	Args:  cobra.ExactArgs(1),
	RunE:  runCyclesDelete,
}

var cyclesReadingsCmd = &cobra.Command{
	Use:   "readings NAME",
	Short: "Export a cycle's readings as CSV",
	Args:  cobra.ExactArgs(1),
	RunE:  runCyclesReadings,
}

func init() {
	cyclesDeleteCmd.Flags().Bool("yes", false, "confirm deletion")
	cyclesDeleteCmd.Flags().Bool("force", false, "also delete a cycle that is still marked running")
	cyclesCmd.AddCommand(cyclesListCmd, cyclesDeleteCmd, cyclesReadingsCmd)
}

// openStore opens the database named by the config without starting any
// service.
func openStore(cmd *cobra.Command) (*store.Store, error) {
	rootdir := projectRoot(cmd)
	conf, err := config.Load(configPath(cmd, rootdir))
	if err != nil {
		return nil, err
	}
	path := inRoot(rootdir, conf.DataLog.DBPath)
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("database %s: %w", path, err)
	}
	return store.Open(path)
}

func runCyclesList(cmd *cobra.Command, args []string) error {
	st, err := openStore(cmd)
	if err != nil {
		return err
	}
	cycles, err := st.ListCycles(cmd.Context())
	if err != nil {
		return err
	}
	return printCycles(cmd.OutOrStdout(), cycles)
}

func printCycles(out io.Writer, cycles []store.Cycle) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSTART\tEND")
	for _, c := range cycles {
		end := "running"
		if c.EndTime != nil {
			end = c.EndTime.Local().Format(time.DateTime)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", c.ID, c.Name, c.StartTime.Local().Format(time.DateTime), end)
	}
	return tw.Flush()
}

func runCyclesDelete(cmd *cobra.Command, args []string) error {
	name := strings.TrimSpace(args[0])
	if yes, _ := cmd.Flags().GetBool("yes"); !yes {
		return fmt.Errorf("cycle delete is destructive; rerun with --yes")
	}

	st, err := openStore(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	c, err := st.CycleByName(ctx, name)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("cycle %q not found", name)
	}
	if err != nil {
		return err
	}
	if force, _ := cmd.Flags().GetBool("force"); c.Running() && !force {
		return fmt.Errorf("cycle %q is still marked running; stop it first or rerun with --force", name)
	}

	if _, err := st.DeleteCycle(ctx, name); err != nil {
		return fmt.Errorf("deleting cycle: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Cycle %s deleted.\n", name)
	return nil
}

func runCyclesReadings(cmd *cobra.Command, args []string) error {
	st, err := openStore(cmd)
	if err != nil {
		return err
	}
	return exportReadings(cmd.Context(), st, strings.TrimSpace(args[0]), cmd.OutOrStdout())
}

func exportReadings(ctx context.Context, st *store.Store, name string, out io.Writer) error {
	readings, err := st.Readings(ctx, name)
	if err != nil {
		return err
	}

	w := csv.NewWriter(out)
	_ = w.Write([]string{"reading_id", "sensor_id", "timestamp", "temperature"})
	for _, r := range readings {
		temp := ""
		if r.Temperature != nil {
			temp = strconv.FormatFloat(*r.Temperature, 'f', 2, 64)
		}
		_ = w.Write([]string{
			strconv.FormatInt(r.ID, 10),
			r.SensorID,
			r.Timestamp.Format(time.RFC3339Nano),
			temp,
		})
	}
	w.Flush()
	return w.Error()
}
