package cmd

import (
	"context"
	"errors"
	"os"

	"mcptape/internal/config"
	"mcptape/internal/mcpclient"
	"mcptape/internal/metrics"
	"mcptape/internal/registry"
	mcptesting "mcptape/internal/testing"
	"mcptape/internal/workflow"
	"mcptape/pkg/logging"
)

// openStore opens the registry under the configured data directory and, when
// configured, migrates a legacy mocks.json found next to it.
func openStore() (*registry.Store, error) {
	store, err := registry.Open(appConfig.DataDir)
	if err != nil {
		return nil, err
	}
	if !appConfig.Registry.MigrateLegacy {
		return store, nil
	}

	legacy := appConfig.Registry.LegacyPath
	if legacy == "" {
		legacy = config.DefaultLegacyPath
	}
	if _, err := os.Stat(legacy); errors.Is(err, os.ErrNotExist) {
		return store, nil
	}
	report, err := store.ImportLegacy(legacy)
	if err != nil {
		logging.Error("Registry", err, "Legacy mock migration of %s failed", legacy)
		return store, nil
	}
	logging.Info("Registry", "Migrated %d legacy mocks from %s (%d skipped)", report.Imported, legacy, len(report.Skipped))
	return store, nil
}

// dialServer connects to a server named in a spec or workflow.
func dialServer(ctx context.Context, id string) (mcpclient.Client, error) {
	def, err := appConfig.ResolveServer(id)
	if err != nil {
		return nil, err
	}
	client, err := mcpclient.Connect(ctx, def.ClientOptions())
	if err != nil {
		return nil, err
	}
	return client, nil
}

// loadSchemas returns the built-in schemas plus those in the schemas directory.
func loadSchemas() (*mcptesting.SchemaRegistry, error) {
	schemas := mcptesting.NewSchemaRegistry()
	names, err := schemas.LoadDir(appConfig.SchemasDir)
	if err != nil {
		return nil, err
	}
	if len(names) > 0 {
		logging.Debug("Batch", "Loaded schemas %v from %s", names, appConfig.SchemasDir)
	}
	return schemas, nil
}

// newBatchRunner wires a batch runner to the store, schemas, retry policy and
// configured servers.
func newBatchRunner(store *registry.Store) (*mcptesting.Runner, error) {
	schemas, err := loadSchemas()
	if err != nil {
		return nil, err
	}
	ctrl, err := appConfig.Retry.Controller()
	if err != nil {
		return nil, err
	}
	return &mcptesting.Runner{
		Store:             store,
		Schemas:           schemas,
		Retry:             ctrl,
		Dial:              dialServer,
		DefaultTimeoutSec: appConfig.Defaults.TimeoutSec,
	}, nil
}

func openWorkflowRegistry() (*workflow.Registry, error) {
	return workflow.NewRegistry(appConfig.DataDir, appConfig.WorkflowsDir)
}

// exportMetrics writes the run to the configured Prometheus textfile.
func exportMetrics(run *registry.RunRecord, path string) error {
	if path == "" {
		return nil
	}
	c := metrics.NewCollector(metrics.DefaultNamespace)
	c.ObserveRun(run)
	return c.WriteToTextfile(path)
}

// isDir reports whether path names an existing directory.
func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
