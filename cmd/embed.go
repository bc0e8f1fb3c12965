package cmd

import (
	"context"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"lecture-avatar/config"
	"lecture-avatar/pkg/pyexec"
	"lecture-avatar/service"
)

// embed precomputes a speaker embedding from reference audio so lecturer
// voices can be registered without going through the HTTP pipeline.
func embed(config *config.Config) *cobra.Command {
	var speaker string

	cmd := &cobra.Command{
		Use:   "embed [audio file]",
		Short: "extract a speaker embedding from reference audio",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			ctx := log.Logger.WithContext(context.Background())

			if err := service.EnsureScripts(config.Paths.ScriptsDir); err != nil {
				log.Fatal().Err(err).Send()
			}

			audioPath := args[0]
			if speaker == "" {
				speaker = strippedName(audioPath)
			}

			encoder := service.NewSpeakerEncoder(config.Python.Bin, config.Paths.ScriptsDir, pyexec.ExecRunner{})
			embedding, err := encoder.Extract(ctx, audioPath, speaker)
			if err != nil {
				log.Fatal().Err(err).Send()
			}

			out := filepath.Join(config.Paths.EmbeddingsDir, speaker+".json")
			meta := map[string]string{"source_audio": audioPath}
			if err := encoder.Save(out, speaker, embedding, meta); err != nil {
				log.Fatal().Err(err).Send()
			}

			zerolog.Ctx(ctx).Info().
				Str("speaker", speaker).
				Int("dimensions", len(embedding)).
				Str("path", out).
				Msg("speaker embedding saved")
		},
	}
	cmd.Flags().StringVar(&speaker, "speaker", "", "speaker name for the embedding (defaults to the audio file name)")

	return cmd
}

func strippedName(path string) string {
	base := filepath.Base(path)
	return base[:len(base)-len(filepath.Ext(base))]
}
