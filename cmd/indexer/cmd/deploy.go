package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/chaingraph/indexer/model"
	"github.com/chaingraph/indexer/registry"
	"github.com/chaingraph/indexer/service/logger"
	"github.com/chaingraph/indexer/store/postgres"
)

var (
	deployName        string
	deployNetwork     string
	deployManifestCID string
	deploySchemaCID   string
	deployMappingCID  string
)

func init() {
	deployCmd.Flags().StringVar(&deployName, "name", "", "indexer name")
	deployCmd.Flags().StringVar(&deployNetwork, "network", "", "network the indexer's data sources subscribe to")
	deployCmd.Flags().StringVar(&deployManifestCID, "manifest", "", "content id of the manifest YAML blob")
	deployCmd.Flags().StringVar(&deploySchemaCID, "schema", "", "content id of the GraphQL schema blob")
	deployCmd.Flags().StringVar(&deployMappingCID, "mapping", "", "content id of the compiled mapping shared library blob")
	deployCmd.MarkFlagRequired("name")
	deployCmd.MarkFlagRequired("network")
	deployCmd.MarkFlagRequired("manifest")
	deployCmd.MarkFlagRequired("schema")
	deployCmd.MarkFlagRequired("mapping")
}

// deployCmd is the CLI-local stand-in for the deploy(Indexer) entry point
// that the (out-of-scope) HTTP control plane's POST /indexers/deploy
// handler calls once it has published the operator's multipart-form
// artifacts to the content-addressed fetcher and obtained their CIDs.
var deployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "Register a new indexer deployment in the catalog (Draft status)",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		pool, err := postgres.NewPool(ctx, postgres.WithAppName("indexer-deploy"))
		if err != nil {
			return fmt.Errorf("connect catalog: %w", err)
		}
		defer pool.Close()

		reg := registry.New(pool)
		ix, err := reg.Deploy(ctx, model.Indexer{
			Name:        deployName,
			Network:     deployNetwork,
			ManifestCID: deployManifestCID,
			SchemaCID:   deploySchemaCID,
			MappingCID:  deployMappingCID,
		})
		if err != nil {
			return fmt.Errorf("deploy %s: %w", deployName, err)
		}

		logger.For(ctx).Infof("deploy: registered %s (hash=%s, v_id=%d, status=%s)", ix.Name, ix.Hash, ix.VID, ix.Status)
		return nil
	},
}
