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
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           "chamber",
	Short:         "Thermal chamber controller and data logger",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runServe,
}

func init() {
	rootCmd.PersistentFlags().String("root", "", "project root holding var/ (default $PROJECT_ROOT or .)")
	rootCmd.PersistentFlags().String("config", "", "config file (default <root>/var/config/chamber.json)")

	rootCmd.AddCommand(serveCmd, cyclesCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the controller, data logger and web interface",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

// projectRoot resolves the --root flag, then PROJECT_ROOT, then ".".
func projectRoot(cmd *cobra.Command) string {
	if root, _ := cmd.Flags().GetString("root"); root != "" {
		return root
	}
	if root := os.Getenv("PROJECT_ROOT"); root != "" {
		return root
	}
	return "."
}

func configPath(cmd *cobra.Command, rootdir string) string {
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		return path
	}
	return filepath.Join(rootdir, "var/config/chamber.json")
}

// inRoot resolves relative config paths against the project root.
func inRoot(rootdir, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(rootdir, path)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
