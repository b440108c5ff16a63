package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/emicklei/dot"
	sw "github.com/filanov/stateswitch"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/metal-toolbox/assetkeeper/internal/model"
)

type exportFlags struct {
	file    string
	links   bool
	mermaid bool
	json    bool
}

var (
	exportFlagSet = &exportFlags{}
)

var cmdExport = &cobra.Command{
	Use:   "export [--file assets.yaml]",
	Short: "Export every asset as records, YAML unless the file name ends with .json",
	Run: func(cmd *cobra.Command, _ []string) {
		exportRecords(cmd.Context())
	},
}

var cmdImport = &cobra.Command{
	Use:   "import --file assets.yaml [--links]",
	Short: "Restore assets from an export file",
	Run: func(cmd *cobra.Command, _ []string) {
		importRecords(cmd.Context())
	},
}

var cmdExportGraph = &cobra.Command{
	Use:   "export-graph [--mermaid]",
	Short: "Export the asset hierarchy and links as a graph in the DOT format",
	Run: func(cmd *cobra.Command, _ []string) {
		exportGraph(cmd.Context())
	},
}

var cmdExportStatemachine = &cobra.Command{
	Use:   "export-statemachine [--json|--mermaid]",
	Short: "Export the asset status statemachine",
	Run: func(cmd *cobra.Command, _ []string) {
		exportStatemachine(cmd.Context())
	},
}

func isJSON(file string) bool {
	return filepath.Ext(file) == ".json"
}

func exportRecords(ctx context.Context) {
	k := newKeeper(ctx, model.AppKindClient)
	defer k.Close()

	records, err := k.engine.Export(ctx)
	if err != nil {
		k.Logger.Fatal(err)
	}

	var out []byte
	if isJSON(exportFlagSet.file) {
		out, err = json.MarshalIndent(records, "", "  ")
	} else {
		out, err = yaml.Marshal(records)
	}

	if err != nil {
		k.Logger.Fatal(err)
	}

	if exportFlagSet.file == "" {
		fmt.Println(string(out))
		return
	}

	if err := os.WriteFile(exportFlagSet.file, out, 0o600); err != nil {
		k.Logger.Fatal(err)
	}

	k.Logger.WithField("records", len(records)).Info("wrote " + exportFlagSet.file)
}

func importRecords(ctx context.Context) {
	if exportFlagSet.file == "" {
		log.Fatal("--file is required")
	}

	b, err := os.ReadFile(exportFlagSet.file)
	if err != nil {
		log.Fatal(err)
	}

	records := []model.Record{}
	if isJSON(exportFlagSet.file) {
		err = json.Unmarshal(b, &records)
	} else {
		err = yaml.Unmarshal(b, &records)
	}

	if err != nil {
		log.Fatal(err)
	}

	k := newKeeper(ctx, model.AppKindClient)
	defer k.Close()

	if err := k.engine.Import(ctx, records, exportFlagSet.links); err != nil {
		k.Logger.Fatal(err)
	}
}

func exportGraph(ctx context.Context) {
	k := newKeeper(ctx, model.AppKindClient)
	defer k.Close()

	g, err := k.engine.Graph(ctx)
	if err != nil {
		k.Logger.Fatal(err)
	}

	if exportFlagSet.mermaid {
		fmt.Println(dot.MermaidGraph(g, dot.MermaidTopDown))
		return
	}

	fmt.Println(g.String())
}

func asGraph(s *sw.StateMachineJSON) *dot.Graph {
	g := dot.NewGraph(dot.Directed)
	nodes := map[string]dot.Node{}

	for _, transition := range s.TransitionRules {
		_, exists := nodes[transition.DestinationState]
		if !exists {
			nodes[transition.DestinationState] = g.Node(transition.DestinationState)
		}

		for _, sourceState := range transition.SourceStates {
			_, exists := nodes[sourceState]
			if !exists {
				nodes[sourceState] = g.Node(sourceState)
			}

			g.Edge(nodes[sourceState], nodes[transition.DestinationState], transition.Name)
		}
	}

	return g
}

func exportStatemachine(ctx context.Context) {
	k := newKeeper(ctx, model.AppKindClient)
	defer k.Close()

	j, err := k.engine.DescribeStatusStateMachine()
	if err != nil {
		k.Logger.Fatal(err)
	}

	if exportFlagSet.json {
		fmt.Println(string(j))
		return
	}

	t := &sw.StateMachineJSON{}
	if err := json.Unmarshal(j, t); err != nil {
		k.Logger.Fatal(err)
	}

	if exportFlagSet.mermaid {
		fmt.Println(dot.MermaidGraph(asGraph(t), dot.MermaidTopDown))
		return
	}

	fmt.Println(asGraph(t).String())
}

func init() {
	cmdExport.PersistentFlags().StringVar(&exportFlagSet.file, "file", "", "write the records to the file instead of stdout")
	cmdImport.PersistentFlags().StringVar(&exportFlagSet.file, "file", "", "export file to restore")
	cmdImport.PersistentFlags().BoolVar(&exportFlagSet.links, "links", false, "restore the links between assets")
	cmdExportGraph.PersistentFlags().BoolVar(&exportFlagSet.mermaid, "mermaid", false, "export the graph in the mermaid format")
	cmdExportStatemachine.PersistentFlags().BoolVar(&exportFlagSet.mermaid, "mermaid", false, "export the statemachine in the mermaid format")
	cmdExportStatemachine.PersistentFlags().BoolVar(&exportFlagSet.json, "json", false, "export the statemachine in the JSON format")

	rootCmd.AddCommand(cmdExport, cmdImport, cmdExportGraph, cmdExportStatemachine)
}
