/*
Copyright (c) Facebook, Inc. and its affiliates.

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

package cmd

import (
	"os"

	"github.com/fatih/color"
	"github.com/gocarina/gocsv"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/olekukonko/tablewriter"
)

var sessionsCSV bool

func init() {
	RootCmd.AddCommand(sessionsCmd)
	sessionsCmd.Flags().BoolVar(&sessionsCSV, "csv", false, "export as CSV instead of a table")
}

var sessionsCmd = &cobra.Command{
	Use:   "sessions <stats-addr>",
	Short: "Show session counters from a running coap-endpoint daemon",
	Args:  cobra.ExactArgs(1),
	Run: func(_ *cobra.Command, args []string) {
		ConfigureVerbosity()
		if err := runSessions(args[0]); err != nil {
			log.Fatal(err)
		}
	},
}

func runSessions(statsAddr string) error {
	counters, err := fetchCounters(statsAddr)
	if err != nil {
		return err
	}
	rows := filterCounters(counters, "sessions.")
	if sessionsCSV {
		return gocsv.Marshal(rows, os.Stdout)
	}
	renderCounterTable(rows, "sessions")
	return nil
}

// renderCounterTable writes rows as a two-column table, coloring zero
// counters yellow and all others green when stdout is a terminal -- a
// CI log or a pipe gets plain, colorless text instead.
func renderCounterTable(rows []counterRow, title string) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{title, "count"})
	tty := term.IsTerminal(int(os.Stdout.Fd()))
	for _, r := range rows {
		value := colorizeCount(r.Value, tty)
		table.Append([]string{r.Key, value})
	}
	table.Render()
}

func colorizeCount(v int64, tty bool) string {
	s := formatCount(v)
	if !tty {
		return s
	}
	if v == 0 {
		return color.YellowString(s)
	}
	return color.GreenString(s)
}
