/*
Copyright © 2025 blacktop

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in
all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
THE SOFTWARE.
*/
package cmd

import (
	"fmt"
	"strconv"

	"github.com/blacktop/go-ept"
	"github.com/spf13/cobra"
)

var (
	walkScenario string
	walkAddr     string
)

func init() {
	walkCmd.Flags().StringVarP(&walkScenario, "scenario", "s", "", "scenario TOML file")
	walkCmd.Flags().StringVarP(&walkAddr, "addr", "a", "", "guest physical address (e.g. 0x401000)")
	walkCmd.MarkFlagRequired("scenario")
	walkCmd.MarkFlagRequired("addr")
	rootCmd.AddCommand(walkCmd)
}

var walkCmd = &cobra.Command{
	Use:   "walk",
	Short: "Dump both views' entry chains for a guest physical address",
	RunE: func(cmd *cobra.Command, args []string) error {
		gpa, err := strconv.ParseUint(walkAddr, 0, 64)
		if err != nil {
			return fmt.Errorf("bad address %q: %w", walkAddr, err)
		}

		scenario, err := loadScenario(walkScenario)
		if err != nil {
			return err
		}
		shared, err := scenario.build()
		if err != nil {
			return err
		}

		primary, secondary, err := ept.DumpViews(shared, gpa)
		if err != nil {
			return err
		}
		fmt.Printf("primary view, %s", ept.FormatEntryChain(gpa, primary))
		fmt.Printf("secondary view, %s", ept.FormatEntryChain(gpa, secondary))
		return nil
	},
}
