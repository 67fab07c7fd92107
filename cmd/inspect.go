package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/radiosim/eventgen/sim/shard"
)

// inspectCmd prints the attributes and row count of a shard
var inspectCmd = &cobra.Command{
	Use:   "inspect <shard>",
	Short: "Print the attributes and row count of a shard file",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		c, err := shard.ReadShard(cmd.Context(), args[0])
		if err != nil {
			logrus.Fatalf("unable to read shard: %v", err)
		}
		printShard(os.Stdout, args[0], c)
	},
}

// verifyCmd checks a finished run against its manifest
var verifyCmd = &cobra.Command{
	Use:   "verify <base>",
	Short: "Check that every shard of a run matches its manifest",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		m, err := shard.ReadManifest(args[0])
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		if err := m.Verify(); err != nil {
			logrus.Fatalf("%v", err)
		}
		fmt.Printf("run %s: %d shard(s), %d events, OK\n", m.RunID, len(m.Shards), m.TotalNumberOfEvents)
	},
}

func printShard(w io.Writer, path string, c *shard.Contents) {
	_, _ = fmt.Fprintf(w, "=== %s ===\n", path)
	for _, a := range c.Attributes {
		if a.Key == "header" {
			continue
		}
		_, _ = fmt.Fprintf(w, "%-24s %s\n", a.Key, a.Value)
	}
	groups := len(c.Table.EventGroupIDs())
	_, _ = fmt.Fprintf(w, "rows: %d, event groups: %d\n", len(c.Table), groups)
}
