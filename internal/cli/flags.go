package cli

import (
	"github.com/spf13/cobra"

	"github.com/hupe1980/livemirror/internal/config"
	"github.com/hupe1980/livemirror/internal/fingerprint"
	"github.com/hupe1980/livemirror/internal/protocol"
)

// The flags below carry no destination variables: they are bound into
// viper by config.Load, and commands read the merged config.Config.

// registerTreeFlags adds the source/mirror tree flags to a cobra command.
func registerTreeFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("src", config.DefaultSrc, "source directory to watch")
	f.String("dest", config.DefaultDest, "mirror directory")
	f.StringSlice("ignore", []string{".git", "node_modules"}, "path names never mirrored or watched")
	f.String("hash", config.HashSHA256, "fingerprint algorithm: sha256, blake3")
	f.Int("workers", 0, "parallel reconciliation workers (0 = GOMAXPROCS)")

	completeValues(cmd, "hash", fingerprint.AlgorithmSHA256, fingerprint.AlgorithmBLAKE3)
	completeDirs(cmd, "src", "dest")
}

// registerChannelFlags adds the notification channel flags to a cobra command.
func registerChannelFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("host", "", "channel bind address (empty = all interfaces)")
	f.Int("port", config.DefaultPort, "channel port")
	f.Duration("debounce", config.DefaultDebounce, "quiet period before a change is broadcast")
	f.String("strategy", string(protocol.StrategyHashChange), "client invalidation strategy: none, always-trigger-hashchange")
	f.Bool("mirror", false, "copy every live change into the mirror before notifying")
	f.Bool("serve", false, "also serve the page files over HTTP on the channel port")

	completeValues(cmd, "strategy", "none", string(protocol.StrategyHashChange))
}
