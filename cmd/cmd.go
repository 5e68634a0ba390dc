// cmd.go - Haupt-CLI Setup und Root Command
// Hauptfunktionen: NewCLI, appendEnvDocs, newModel
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/7blacky7/nmt/envconfig"
	"github.com/7blacky7/nmt/logutil"
	"github.com/7blacky7/nmt/ml"
	"github.com/7blacky7/nmt/ml/nn"
	"github.com/7blacky7/nmt/model"
	"github.com/7blacky7/nmt/model/models/seq2seq"
)

// appendEnvDocs - Fuegt Umgebungsvariablen-Dokumentation zum Command hinzu
func appendEnvDocs(cmd *cobra.Command, envs []envconfig.EnvVar) {
	if len(envs) == 0 {
		return
	}

	envUsage := `
Environment Variables:
`
	for _, e := range envs {
		envUsage += fmt.Sprintf("      %-24s   %s\n", e.Name, e.Description)
	}

	cmd.SetUsageTemplate(cmd.UsageTemplate() + envUsage)
}

// NewCLI - Erstellt das Haupt-CLI mit allen Commands
func NewCLI() *cobra.Command {
	cobra.EnableCommandSorting = false

	rootCmd := &cobra.Command{
		Use:           "nmt",
		Short:         "Sequence to sequence translation model",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			slog.SetDefault(logutil.NewLogger(os.Stderr, envconfig.LogLevel()))
		},
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Print(cmd.UsageString())
		},
	}

	paramsCmd := newParamsCmd()
	decodeCmd := newDecodeCmd()
	envCmd := newEnvCmd()

	// Environment-Dokumentation hinzufuegen
	envVars := envconfig.AsMap()
	for _, cmd := range []*cobra.Command{paramsCmd, decodeCmd} {
		addModelFlags(cmd)
		appendEnvDocs(cmd, []envconfig.EnvVar{
			envVars["NMT_DEBUG"],
			envVars["NMT_DEVICE"],
			envVars["NMT_SEED"],
			envVars["NMT_NUM_THREADS"],
			envVars["NMT_PAD_IDX"],
			envVars["NMT_CELL_TYPE"],
			envVars["NMT_NO_ATTENTION"],
		})
	}

	rootCmd.AddCommand(
		paramsCmd,
		decodeCmd,
		envCmd,
	)

	return rootCmd
}

// addModelFlags - Registriert die Hyperparameter; Defaults kommen aus der Umgebung
func addModelFlags(cmd *cobra.Command) {
	cmd.Flags().Int("src-vocab", 1000, "Source vocabulary size")
	cmd.Flags().Int("tgt-vocab", 1000, "Target vocabulary size")
	cmd.Flags().Int("embed", 64, "Embedding dimension")
	cmd.Flags().Int("hidden", 64, "Encoder hidden size per direction (decoder uses twice this)")
	cmd.Flags().Int("layers", 1, "Number of recurrent layers")
	cmd.Flags().String("cell", envconfig.CellType(), "Encoder cell type (lstm or gru)")
	cmd.Flags().Bool("no-attention", envconfig.NoAttention(), "Disable decoder attention")
	cmd.Flags().Int("pad", int(envconfig.PadIndex()), "Padding index")
	cmd.Flags().Uint64("seed", envconfig.Seed(), "Seed for weight initialization (0 = random)")
	cmd.Flags().String("device", envconfig.Device(), "Compute device")
}

// newModel - Erstellt ein Modell mit zufaelligen Gewichten aus den Flags
func newModel(cmd *cobra.Command) (*seq2seq.Model, error) {
	flags := cmd.Flags()

	cellName, _ := flags.GetString("cell")
	cell, err := nn.ParseCellType(cellName)
	if err != nil {
		return nil, err
	}

	noAttention, _ := flags.GetBool("no-attention")
	opts := seq2seq.Options{
		CellType:   cell,
		Attention:  !noAttention,
		Dropout:    seq2seq.DefaultDropout,
		RNNDropout: seq2seq.DefaultRNNDropout,
	}

	for name, dst := range map[string]*int{
		"src-vocab": &opts.SourceVocabSize,
		"tgt-vocab": &opts.TargetVocabSize,
		"embed":     &opts.EmbedDim,
		"hidden":    &opts.HiddenSize,
		"layers":    &opts.NumLayers,
		"pad":       &opts.PadIndex,
	} {
		if *dst, err = flags.GetInt(name); err != nil {
			return nil, err
		}
	}

	if err := opts.Validate(); err != nil {
		return nil, err
	}

	device, _ := flags.GetString("device")
	seed, _ := flags.GetUint64("seed")

	m, err := model.New(ml.BackendParams{
		Device:     device,
		Seed:       seed,
		NumThreads: int(envconfig.NumThreads()),
	}, opts.Config())
	if err != nil {
		return nil, err
	}

	return m.(*seq2seq.Model), nil
}
