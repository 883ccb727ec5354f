/*
Copyright 2025 Memris Contributors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Thejuampi/memris-sub010/internal/common"
	"github.com/Thejuampi/memris-sub010/pkg/memris"
)

var (
	execute string
	verbose bool
	demo    bool
)

var rootCmd = &cobra.Command{
	Use:   "memris",
	Short: "Memris in-memory columnar query engine CLI",
	Long: `Memris is an embedded in-memory columnar query engine with MVCC
snapshots, secondary indexes and a cost-based planner. This CLI provides
an interactive shell over a fresh in-memory engine.`,
	Version: common.VersionString,
	RunE:    runRootCommand,
}

func init() {
	rootCmd.Flags().StringVarP(&execute, "execute", "e", "", "Execute a single command and exit")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Log engine activity to stderr")
	rootCmd.Flags().BoolVar(&demo, "demo", true, "Seed the engine with demo tables")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runRootCommand(cmd *cobra.Command, args []string) error {
	var opts []memris.Option
	if verbose {
		logger, err := zap.NewDevelopment()
		if err != nil {
			return err
		}
		opts = append(opts, memris.WithLogger(logger))
	}

	eng, err := memris.New(opts...)
	if err != nil {
		return fmt.Errorf("error creating engine: %v", err)
	}
	defer eng.Close()

	if demo {
		if err := seedDemo(eng); err != nil {
			return fmt.Errorf("error seeding demo data: %v", err)
		}
	}

	shell, err := NewShell(eng)
	if err != nil {
		return fmt.Errorf("error initializing shell: %v", err)
	}
	defer shell.Close()

	if execute != "" {
		return shell.Eval(execute)
	}
	return shell.Run()
}
