package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	qnet "github.com/guxinyi-hitsz/RTC-queueing-network-model"
)

var (
	topologyFile string   // network description, yaml or json; built-in criss-cross when empty
	expFile      string   // experiment parameters applied to the description
	seed         int64    // seed of the random streams; rngstream streams when not given
	steps        int      // number of monitor intervals to run
	controls     []string // fixed effort weights, port=w1,w2,...
	logLevel     string   // log verbosity level
	reportFile   string   // where to write the report, if anywhere
	traceFile    string   // where to write the job trace, if anywhere
	outFile      string   // where the topology command writes the description
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "qnetsim",
	Short: "Discrete-event simulator for multi-class queueing networks",
}

// parseControls turns "port=w1,w2" strings into weight vectors by port
func parseControls(args []string) (map[string][]float64, error) {
	weights := make(map[string][]float64)
	for _, arg := range args {
		port, values, found := strings.Cut(arg, "=")
		if !found || len(port) == 0 {
			return nil, fmt.Errorf("control %q is not of the form port=w1,w2,...", arg)
		}
		vector, err := qnet.ParseFloatList(values)
		if err != nil {
			return nil, fmt.Errorf("control %q: %w", arg, err)
		}
		weights[port] = vector
	}
	return weights, nil
}

// loadDesc reads the description and applies the experiment parameters
func loadDesc(cmd *cobra.Command) (*qnet.NetworkDesc, error) {
	nd := qnet.CrissCrossDesc()
	if len(topologyFile) > 0 {
		if _, err := qnet.CheckReadableFiles([]string{topologyFile}); err != nil {
			return nil, err
		}
		var err error
		nd, err = qnet.ReadNetworkDesc(topologyFile, qnet.UseYAML(topologyFile), nil)
		if err != nil {
			return nil, err
		}
	}

	if len(expFile) > 0 {
		expCfg, err := qnet.ReadExpCfg(expFile, qnet.UseYAML(expFile), nil)
		if err != nil {
			return nil, err
		}
		nd, err = qnet.ApplyExpCfg(nd, expCfg)
		if err != nil {
			return nil, err
		}
	}

	if cmd.Flags().Changed("seed") {
		nd.SetSeed(seed)
	}
	return nd, nil
}

// runCmd builds the network, holds the given weights, and steps it
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a queueing network for a number of monitor intervals",
	Run: func(cmd *cobra.Command, args []string) {
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			logrus.Fatalf("Invalid log level: %s", logLevel)
		}
		logrus.SetLevel(level)

		if _, err := qnet.CheckOutputFiles([]string{reportFile, traceFile}); err != nil {
			logrus.Fatalf("cannot write output: %v", err)
		}

		nd, err := loadDesc(cmd)
		if err != nil {
			logrus.Fatalf("unable to load network description; %v", err)
		}
		weights, err := parseControls(controls)
		if err != nil {
			logrus.Fatalf("%v", err)
		}

		tm := qnet.CreateTraceManager(nd.Name, len(traceFile) > 0)
		net, err := qnet.BuildNetwork(nd, tm)
		if err != nil {
			logrus.Fatalf("unable to build network %s; %v", nd.Name, err)
		}
		for port, vector := range weights {
			if err := net.Control(port, vector); err != nil {
				logrus.Fatalf("%v", err)
			}
		}

		logrus.Infof("Starting simulation of %s for %d steps", nd.Name, steps)
		for step := 1; step <= steps; step++ {
			if err := net.Step(); err != nil {
				logrus.Fatalf("%v", err)
			}
			logrus.Infof("step %d time %g observation %v cost %g", step, net.Now(), net.Observation(), net.HoldingCost())
		}

		if len(reportFile) > 0 {
			if err := net.Report().WriteToFile(reportFile); err != nil {
				logrus.Fatalf("unable to write report; %v", err)
			}
		}
		if len(traceFile) > 0 {
			if err := tm.WriteToFile(traceFile); err != nil {
				logrus.Fatalf("unable to write trace; %v", err)
			}
		}
		logrus.Info("Simulation complete.")
	},
}

// topologyCmd writes the built-in criss-cross description, and the route of every generator
var topologyCmd = &cobra.Command{
	Use:   "topology",
	Short: "Write the built-in criss-cross network description",
	Run: func(cmd *cobra.Command, args []string) {
		nd := qnet.CrissCrossDesc()
		for _, gd := range nd.Generators {
			route, err := qnet.FlowPath(nd, gd.Name)
			if err != nil {
				logrus.Fatalf("%v", err)
			}
			fmt.Printf("%s: %s\n", gd.Name, qnet.ShowFlowPath(route))
		}
		if len(outFile) > 0 {
			if err := nd.WriteToFile(outFile); err != nil {
				logrus.Fatalf("unable to write %s; %v", outFile, err)
			}
		}
	},
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// init sets up CLI flags and subcommands
func init() {
	runCmd.Flags().StringVar(&topologyFile, "topology", "", "Network description file (yaml or json); built-in criss-cross when empty")
	runCmd.Flags().StringVar(&expFile, "exp", "", "Experiment parameter file (yaml or json)")
	runCmd.Flags().Int64Var(&seed, "seed", 0, "Seed for the random streams; rngstream streams when not given")
	runCmd.Flags().IntVar(&steps, "steps", 20, "Number of monitor intervals to run")
	runCmd.Flags().StringArrayVar(&controls, "control", nil, "Effort weights of a port, port=w1,w2,... (repeatable)")
	runCmd.Flags().StringVar(&logLevel, "log", "info", "Log level (trace, debug, info, warn, error, fatal, panic)")
	runCmd.Flags().StringVar(&reportFile, "report", "", "Write the final report here (yaml or json by extension)")
	runCmd.Flags().StringVar(&traceFile, "trace", "", "Write the job trace here (yaml or json by extension)")

	topologyCmd.Flags().StringVar(&outFile, "out", "", "Write the description here (yaml or json by extension)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(topologyCmd)
}
