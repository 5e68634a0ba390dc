// cmd_decode.go - decode Command
// Hauptfunktionen: DecodeHandler, parseSources
package cmd

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/7blacky7/nmt/ml"
	"github.com/7blacky7/nmt/model/models/seq2seq"
)

// newDecodeCmd - Erstellt den decode Command
func newDecodeCmd() *cobra.Command {
	decodeCmd := &cobra.Command{
		Use:   "decode SOURCE [SOURCE...]",
		Short: "Greedily decode comma separated token index sequences",
		Args:  cobra.MinimumNArgs(1),
		RunE:  DecodeHandler,
	}

	decodeCmd.Flags().Int("start", 1, "Start token index")
	decodeCmd.Flags().Int("end", 2, "End token index (-1 to always decode all steps)")
	decodeCmd.Flags().Int("steps", 10, "Maximum number of decoding steps")
	decodeCmd.Flags().Bool("attention", false, "Show attention weights per sentence")
	decodeCmd.Flags().Bool("dump", false, "Dump the attention tensor of every step")

	return decodeCmd
}

// parseSources - Liest "3,4,5"-Argumente in einen mit pad aufgefuellten Batch
func parseSources(args []string, pad int32) (tokens []int32, lengths []int32, maxLen int, err error) {
	var sentences [][]int32
	for _, arg := range args {
		var sentence []int32
		for _, field := range strings.Split(arg, ",") {
			id, err := strconv.ParseInt(strings.TrimSpace(field), 10, 32)
			if err != nil {
				return nil, nil, 0, fmt.Errorf("invalid token %q in %q", field, arg)
			}
			sentence = append(sentence, int32(id))
		}

		sentences = append(sentences, sentence)
		maxLen = max(maxLen, len(sentence))
	}

	for _, s := range sentences {
		tokens = append(tokens, s...)
		for range maxLen - len(s) {
			tokens = append(tokens, pad)
		}
		lengths = append(lengths, int32(len(s)))
	}

	return tokens, lengths, maxLen, nil
}

// DecodeHandler - Dekodiert die Quellsaetze mit zufaelligen Gewichten
func DecodeHandler(cmd *cobra.Command, args []string) error {
	m, err := newModel(cmd)
	if err != nil {
		return err
	}

	b := m.Backend()
	defer b.Close()

	tokens, lengths, maxLen, err := parseSources(args, int32(m.Options.PadIndex))
	if err != nil {
		return err
	}

	start, _ := cmd.Flags().GetInt("start")
	end, _ := cmd.Flags().GetInt("end")
	steps, _ := cmd.Flags().GetInt("steps")

	ctx := b.NewContext()
	defer ctx.Close()

	batch := len(args)
	tr, err := m.Greedy(ctx,
		ctx.FromInts(tokens, batch, maxLen),
		ctx.FromInts(lengths, batch),
		seq2seq.DecodeOptions{Start: int32(start), End: int32(end), MaxSteps: steps},
	)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	showAttention, _ := cmd.Flags().GetBool("attention")
	for i, out := range tr.Tokens {
		ids := make([]string, len(out))
		for j, id := range out {
			ids[j] = strconv.Itoa(int(id))
		}
		fmt.Fprintf(w, "%s\t->\t%s\t(%.4f)\n", args[i], strings.Join(ids, ","), tr.Scores[i])

		if showAttention && tr.Attention != nil {
			writeAttention(w, tr.Attention, i, int(lengths[i]))
		}
	}

	if dump, _ := cmd.Flags().GetBool("dump"); dump {
		for step, weights := range tr.Attention {
			fmt.Fprintf(w, "step %d\n%s\n", step, ml.Dump(ctx, weights, ml.DumpWithPrecision(3)))
		}
	}

	return nil
}

// writeAttention - Schreibt die Gewichte eines Satzes als Tabelle (Schritt x Quellposition)
func writeAttention(w io.Writer, attention []ml.Tensor, sentence, length int) {
	header := []string{"STEP"}
	for pos := range length {
		header = append(header, strconv.Itoa(pos))
	}

	var data [][]string
	for step, weights := range attention {
		srcLen := weights.Dim(1)
		row := weights.Floats()[sentence*srcLen : (sentence+1)*srcLen]

		line := []string{strconv.Itoa(step)}
		for _, v := range row[:length] {
			line = append(line, strconv.FormatFloat(float64(v), 'f', 3, 32))
		}
		data = append(data, line)
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("  ")
	table.AppendBulk(data)
	table.Render()
}
