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

	"github.com/gocarina/gocsv"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var statusCSV bool

func init() {
	RootCmd.AddCommand(statusCmd)
	statusCmd.Flags().BoolVar(&statusCSV, "csv", false, "export as CSV instead of a table")
}

var statusCmd = &cobra.Command{
	Use:   "status <stats-addr>",
	Short: "Show the coap-endpoint daemon process's RSS and CPU usage",
	Args:  cobra.ExactArgs(1),
	Run: func(_ *cobra.Command, args []string) {
		ConfigureVerbosity()
		if err := runStatus(args[0]); err != nil {
			log.Fatal(err)
		}
	},
}

func runStatus(statsAddr string) error {
	counters, err := fetchCounters(statsAddr)
	if err != nil {
		return err
	}
	rows := filterCounters(counters, "process.")
	if statusCSV {
		return gocsv.Marshal(rows, os.Stdout)
	}
	renderCounterTable(rows, "status")
	return nil
}
