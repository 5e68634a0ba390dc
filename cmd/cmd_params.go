// cmd_params.go - params Command
// Hauptfunktionen: ParamsHandler
package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/7blacky7/nmt/format"
	"github.com/7blacky7/nmt/fs"
	"github.com/7blacky7/nmt/ml"
	"github.com/7blacky7/nmt/model"
)

// newParamsCmd - Erstellt den params Command
func newParamsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "params",
		Short: "List model parameters and their sizes",
		Args:  cobra.NoArgs,
		RunE:  ParamsHandler,
	}
}

// ParamsHandler - Listet alle Parameter mit Form, Anzahl und Groesse auf,
// danach die Modell-Konfiguration
func ParamsHandler(cmd *cobra.Command, args []string) error {
	m, err := newModel(cmd)
	if err != nil {
		return err
	}

	b := m.Backend()
	defer b.Close()

	ctx := b.NewContext()
	defer ctx.Close()

	var data [][]string
	var f32, f16 int64
	for _, p := range b.Parameters() {
		shape := make([]string, len(p.Tensor.Shape()))
		count := 1
		for i, d := range p.Tensor.Shape() {
			shape[i] = strconv.Itoa(d)
			count *= d
		}

		f32 += int64(len(p.Tensor.Bytes()))
		f16 += int64(len(p.Tensor.Cast(ctx, ml.DTypeF16).Bytes()))
		data = append(data, []string{p.Name, strings.Join(shape, "x"), strconv.Itoa(count)})
	}

	table := tablewriter.NewWriter(cmd.OutOrStdout())
	table.SetHeader([]string{"NAME", "SHAPE", "PARAMS"})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	table.AppendBulk(data)
	table.Render()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "\ntotal %s parameters, %s (f32, %s), %s (f16, %s)\n",
		format.HumanNumber(model.ParameterCount(b)),
		format.HumanBytes(f32), format.HumanBytes2(uint64(f32)),
		format.HumanBytes(f16), format.HumanBytes2(uint64(f16)))

	if kv, ok := m.Config().(fs.KV); ok {
		fmt.Fprintf(out, "\n%s config (%d keys)\n", kv.Architecture(), kv.Len())
		for key := range kv.Keys() {
			fmt.Fprintf(out, "  %s = %v\n", key, kv.Value(key))
		}
	}

	return nil
}
