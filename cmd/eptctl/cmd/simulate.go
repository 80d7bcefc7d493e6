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
	"encoding/json"
	"fmt"

	"github.com/blacktop/go-ept"
	"github.com/spf13/cobra"
)

var simScenario string

func init() {
	simulateCmd.Flags().StringVarP(&simScenario, "scenario", "s", "", "scenario TOML file")
	simulateCmd.MarkFlagRequired("scenario")
	rootCmd.AddCommand(simulateCmd)
}

// softVMCS is an in-memory VMCS for offline replay.
type softVMCS struct {
	fields        map[uint32]uint64
	invalidations int
}

func newSoftVMCS() *softVMCS {
	return &softVMCS{fields: make(map[uint32]uint64)}
}

func (m *softVMCS) Read(field uint32) uint64         { return m.fields[field] }
func (m *softVMCS) Write(field uint32, value uint64) { m.fields[field] = value }
func (m *softVMCS) InvalidateEPT()                   { m.invalidations++ }

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Replay a scenario's EPT exits against a software VMCS",
	RunE: func(cmd *cobra.Command, args []string) error {
		scenario, err := loadScenario(simScenario)
		if err != nil {
			return err
		}
		shared, err := scenario.build()
		if err != nil {
			return err
		}

		ept.ResetMetrics()
		vmcs := newSoftVMCS()
		vcpu := ept.NewVCPU(0, vmcs, shared, ept.Primary)
		vmcs.Write(ept.VMCSEPTPointer, shared.EPTP(ept.Primary))

		for i, ev := range scenario.Events {
			vmcs.Write(ept.VMCSGuestPhysicalAddress, ev.GPA)

			if ev.Misconfig {
				exit := ept.HandleEPTMisconfiguration(vcpu)
				fmt.Printf("#%02d misconfig gpa=0x%-10x -> %s\n", i, ev.GPA, exit)
				break
			}

			var qual uint64 = 1 << 0 // data read
			if ev.Fetch {
				qual = 1 << 2
			}
			vmcs.Write(ept.VMCSExitQualification, qual)

			from := vcpu.ActiveView()
			exit := ept.HandleEPTViolation(vcpu)
			fmt.Printf("#%02d violation gpa=0x%-10x fetch=%-5v %s -> %s (%s)\n",
				i, ev.GPA, ev.Fetch, from, vcpu.ActiveView(), exit)
		}

		fmt.Printf("invalidations: %d\n", vmcs.invalidations)
		out, err := json.MarshalIndent(ept.GetMetrics(), "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}
