package app

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/flowstate-dev/flowstate/pkg/logger"
)

func newRunCmd() *cobra.Command {
	var (
		instanceID string
		dataFlags  []string
		dataFile   string
	)

	cmd := &cobra.Command{
		Use:   "run <workflow.yaml>",
		Short: "Run a workflow from a YAML definition",
		Long: `Run a workflow defined in a YAML file and drive it until it completes,
parks waiting for input, or fails. Initial workflow data can be supplied
with repeated --set key=value flags or a YAML file via --data.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorkflow(cmd, args[0], instanceID, dataFlags, dataFile)
		},
	}

	cmd.Flags().StringVar(&instanceID, "id", "", "Instance ID (generated when empty)")
	cmd.Flags().StringArrayVar(&dataFlags, "set", nil, "Initial data entry as key=value (repeatable)")
	cmd.Flags().StringVar(&dataFile, "data", "", "YAML file with initial workflow data")
	return cmd
}

func runWorkflow(cmd *cobra.Command, path, instanceID string, dataFlags []string, dataFile string) error {
	ctx := cmd.Context()

	definition, err := os.ReadFile(path) // #nosec G304 -- user-supplied workflow file
	if err != nil {
		return fmt.Errorf("reading workflow file: %w", err)
	}

	initialData, err := collectInitialData(dataFlags, dataFile)
	if err != nil {
		return err
	}

	eng, store, err := newEngine(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	id, err := eng.Start(ctx, instanceID, definition, initialData)
	if err != nil {
		if id != "" {
			logger.Errorf("Workflow %s failed: %v", id, err)
		}
		return err
	}

	summary, err := eng.Status(ctx, id)
	if err != nil {
		return err
	}
	cmd.Printf("%s\t%s\t%s\t%.0f%%\n", summary.ID, summary.Name, summary.State, summary.Progress)
	return nil
}

// collectInitialData merges --data file entries with --set flags, the
// flags winning.
func collectInitialData(dataFlags []string, dataFile string) (map[string]any, error) {
	data := make(map[string]any)

	if dataFile != "" {
		raw, err := os.ReadFile(dataFile) // #nosec G304 -- user-supplied data file
		if err != nil {
			return nil, fmt.Errorf("reading data file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &data); err != nil {
			return nil, fmt.Errorf("parsing data file: %w", err)
		}
	}

	for _, entry := range dataFlags {
		key, value, ok := splitKeyValue(entry)
		if !ok {
			return nil, fmt.Errorf("invalid --set entry %q, want key=value", entry)
		}
		data[key] = value
	}

	if len(data) == 0 {
		return nil, nil
	}
	return data, nil
}

func splitKeyValue(entry string) (string, string, bool) {
	for i := 0; i < len(entry); i++ {
		if entry[i] == '=' {
			return entry[:i], entry[i+1:], entry[:i] != ""
		}
	}
	return "", "", false
}
