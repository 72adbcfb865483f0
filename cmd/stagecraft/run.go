package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/stagecraft/internal/config"
	"github.com/fyrsmithlabs/stagecraft/internal/decision"
	"github.com/fyrsmithlabs/stagecraft/internal/executor"
	"github.com/fyrsmithlabs/stagecraft/internal/flavor"
	"github.com/fyrsmithlabs/stagecraft/internal/logging"
	"github.com/fyrsmithlabs/stagecraft/internal/orchestrator"
	"github.com/fyrsmithlabs/stagecraft/internal/rules"
)

var (
	// run command flags
	runConfigPath     string
	runStagePath      string
	runBetTitle       string
	runBetDescription string
	runArtifacts      []string
	runLearnings      []string
	runKatakaID       string
	runOutputJSON     bool
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&runConfigPath, "config", "", "Config file path (defaults to ~/.config/stagecraft/config.yaml)")
	runCmd.Flags().StringVar(&runStagePath, "stage", "", "Stage definition YAML file (required)")
	runCmd.Flags().StringVar(&runBetTitle, "bet-title", "", "Title of the current bet/task")
	runCmd.Flags().StringVar(&runBetDescription, "bet-description", "", "Description of the current bet/task")
	runCmd.Flags().StringArrayVar(&runArtifacts, "artifact", nil, "Available artifact name (repeatable)")
	runCmd.Flags().StringArrayVar(&runLearnings, "learning", nil, "Prior learning text (repeatable)")
	runCmd.Flags().StringVar(&runKatakaID, "kataka", "", "Active agent id")
	runCmd.Flags().BoolVar(&runOutputJSON, "json", true, "Output the result as JSON")
	_ = runCmd.MarkFlagRequired("stage")
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one stage through the orchestration pipeline",
	Long: `Run loads a stage definition, scores its flavors against the provided
context and the active rule set, executes the selected flavors with the
built-in static executor, and prints the full orchestration result.

Example stage file:

  stage:
    category: build
    available_flavors: [tdd, spike]
    vocabulary:
      keywords: [test, refactor, prototype]
  flavors:
    - name: tdd
      stage_category: build
      steps: [write-tests, implement]
      synthesis_artifact: build-notes
  values:
    tdd: "implemented with tests first"`,
	RunE: runStage,
}

// stageFile is the YAML layout of a stage definition.
type stageFile struct {
	Stage   orchestrator.Stage   `koanf:"stage"`
	Flavors []flavor.Flavor      `koanf:"flavors"`
	Context orchestrator.Context `koanf:"context"`
	Values  map[string]any       `koanf:"values"`
}

func runStage(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(runConfigPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logging.New(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	spec, err := loadStageFile(runStagePath)
	if err != nil {
		return err
	}

	flavors, err := flavor.NewFileRegistry(cfg.Registries.FlavorsPath)
	if err != nil {
		return err
	}
	// Stage-file flavors are registered before the run so a stage file
	// is self-contained.
	for i := range spec.Flavors {
		if err := flavors.Put(&spec.Flavors[i]); err != nil {
			return fmt.Errorf("invalid flavor %s: %w", spec.Flavors[i].Name, err)
		}
	}

	ruleStore, err := rules.NewFileStore(cfg.Registries.RulesPath)
	if err != nil {
		return err
	}
	decisions, err := decision.NewFileStore(cfg.Registries.DecisionsPath, ruleStore)
	if err != nil {
		return err
	}

	orch, err := orchestrator.New(orchestrator.Config{
		Flavors:            flavors,
		Rules:              ruleStore,
		Decisions:          decisions,
		Executor:           &executor.Static{Values: spec.Values},
		Logger:             log,
		MaxParallelFlavors: cfg.Orchestrator.MaxParallelFlavors,
		Metrics:            orchestrator.NewMetrics(prometheus.NewRegistry()),
	})
	if err != nil {
		return err
	}

	runCtx := spec.Context
	if runBetTitle != "" {
		runCtx.BetTitle = runBetTitle
	}
	if runBetDescription != "" {
		runCtx.BetDescription = runBetDescription
	}
	if len(runArtifacts) > 0 {
		runCtx.Artifacts = runArtifacts
	}
	if len(runLearnings) > 0 {
		runCtx.Learnings = runLearnings
	}
	if runKatakaID != "" {
		runCtx.ActiveKatakaID = runKatakaID
	}

	result, err := orch.Run(cmd.Context(), spec.Stage, runCtx)
	if err != nil {
		return err
	}

	if runOutputJSON {
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal result: %w", err)
		}
		fmt.Println(string(data))
		return nil
	}

	fmt.Printf("Stage:    %s\n", result.StageCategory)
	fmt.Printf("Flavors:  %v (%s)\n", result.SelectedFlavors, result.ExecutionMode)
	fmt.Printf("Artifact: %s\n", result.StageArtifact.Name)
	fmt.Printf("Quality:  %s\n", result.Reflection.OverallQuality)
	for _, gap := range result.Gaps {
		fmt.Printf("Gap [%s]: %s\n", gap.Severity, gap.Description)
	}
	return nil
}

// loadStageFile parses a stage definition YAML file.
func loadStageFile(path string) (*stageFile, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read stage file: %w", err)
	}

	k := koanf.New(".")
	if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to parse stage file %s: %w", path, err)
	}

	var spec stageFile
	if err := k.Unmarshal("", &spec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal stage file: %w", err)
	}

	if spec.Stage.Category == "" {
		return nil, fmt.Errorf("stage file %s: stage.category is required", path)
	}
	if len(spec.Stage.AvailableFlavors) == 0 && len(spec.Stage.PinnedFlavors) == 0 {
		return nil, fmt.Errorf("stage file %s: stage must list available or pinned flavors", path)
	}

	return &spec, nil
}
