/*
Copyright © 2025 the WindFlow authors.
This file is part of WindFlow.

WindFlow is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

WindFlow is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with WindFlow.  If not, see <http://www.gnu.org/licenses/>.
*/

package windutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/lnashier/viper"
	"github.com/spatialmodel/windflow"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Cfg holds configuration information.
var Cfg *viper.Viper

var options []struct {
	name, usage, shorthand string
	defaultVal             interface{}
	flagsets               []*pflag.FlagSet
}

func init() {
	// Options are the configuration options available to WindFlow.
	options = []struct {
		name, usage, shorthand string
		defaultVal             interface{}
		flagsets               []*pflag.FlagSet
	}{
		{
			name: "config",
			usage: `
              config specifies the configuration file location.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "OutputFile",
			usage: `
              OutputFile is the path to the desired JSON results file.`,
			shorthand:  "o",
			defaultVal: "windflow_output.json",
			flagsets:   []*pflag.FlagSet{runCmd.PersistentFlags()},
		},
		{
			name: "CSVFile",
			usage: `
              CSVFile is the path where the sampled vector field should
              additionally be written in CSV form. If it is empty, no CSV
              file is written.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.PersistentFlags()},
		},
		{
			name: "LogFile",
			usage: `
              LogFile is the path to the desired logfile location. If LogFile is
              left blank, the logfile will be saved in the same location as the
              OutputFile.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.PersistentFlags()},
		},
		{
			name: "SaveFile",
			usage: `
              SaveFile is the path where the computed velocity field should be
              saved in gob form for later reuse. If it is empty, the field is
              not saved.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.PersistentFlags()},
		},
		{
			name: "OutputVariables",
			usage: `
              OutputVariables specifies derived metrics to be included in the
              results document, mapping names to expressions over the model
              variables ux, uy, and magnitude. Each expression must reduce the
              whole-grid values to a single number, for example
              "max(magnitude)" or "sum(ux)/count(ux)".`,
			defaultVal: map[string]string{
				"PeakSpeed": "max(magnitude)",
			},
			flagsets: []*pflag.FlagSet{runCmd.PersistentFlags()},
		},
		{
			name: "NumIterations",
			usage: `
              NumIterations is the number of lattice iterations to run. The
              flow field is taken to be steady after this fixed number of passes.`,
			defaultVal: 4000,
			flagsets:   []*pflag.FlagSet{runCmd.PersistentFlags()},
		},
		{
			name: "RelaxationRate",
			usage: `
              RelaxationRate is the BGK collision relaxation rate ω. It must be
              within (0, 2); values closer to 2 give lower viscosity.`,
			defaultVal: 1.4,
			flagsets:   []*pflag.FlagSet{runCmd.PersistentFlags()},
		},
		{
			name: "Grid.Ny",
			usage: `
              Grid.Ny specifies the number of grid rows in the simulation
              domain.`,
			defaultVal: 100,
			flagsets:   []*pflag.FlagSet{runCmd.PersistentFlags()},
		},
		{
			name: "Grid.Nx",
			usage: `
              Grid.Nx specifies the number of grid columns in the simulation
              domain.`,
			defaultVal: 100,
			flagsets:   []*pflag.FlagSet{runCmd.PersistentFlags()},
		},
		{
			name: "Grid.MaskFile",
			usage: `
              Grid.MaskFile is the path to a GeoJSON file holding a Polygon or
              MultiPolygon of the obstacle outlines, in grid cell coordinates.
              Cells whose centers fall inside the geometry are treated as
              solid. If it is empty, the domain has no obstacles.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.PersistentFlags()},
		},
		{
			name: "Grid.ObstacleFile",
			usage: `
              Grid.ObstacleFile is the path to a TOML file describing synthetic
              obstacle shapes (rectangles and circles) in grid cell
              coordinates, as an alternative to Grid.MaskFile. Both may be
              given; their shapes are combined.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.PersistentFlags()},
		},
		{
			name: "Wind.Speed",
			usage: `
              Wind.Speed is the free-stream wind speed, in the units given by
              Wind.Units.`,
			defaultVal: 5.0,
			flagsets:   []*pflag.FlagSet{runCmd.PersistentFlags()},
		},
		{
			name: "Wind.Direction",
			usage: `
              Wind.Direction is the bearing the wind blows from, in degrees
              clockwise from North. For example, 270 is a westerly wind.`,
			defaultVal: 270.0,
			flagsets:   []*pflag.FlagSet{runCmd.PersistentFlags()},
		},
		{
			name: "Wind.Units",
			usage: `
              Wind.Units gives the units Wind.Speed is in. Acceptable values
              are 'm/s' and 'km/h'.`,
			defaultVal: "m/s",
			flagsets:   []*pflag.FlagSet{runCmd.PersistentFlags()},
		},
		{
			name: "Wind.Temperature",
			usage: `
              Wind.Temperature is the air temperature of the weather
              observation in degrees Celsius. It does not influence the flow
              solution but is recorded in the results document.`,
			defaultVal: 20.0,
			flagsets:   []*pflag.FlagSet{runCmd.PersistentFlags()},
		},
		{
			name: "Wind.Humidity",
			usage: `
              Wind.Humidity is the relative humidity of the weather observation
              in percent. It does not influence the flow solution but is
              recorded in the results document.`,
			defaultVal: 60.0,
			flagsets:   []*pflag.FlagSet{runCmd.PersistentFlags()},
		},
		{
			name: "Wind.Source",
			usage: `
              Wind.Source names where the weather observation came from.`,
			defaultVal: "default",
			flagsets:   []*pflag.FlagSet{runCmd.PersistentFlags()},
		},
		{
			name: "BufferSize",
			usage: `
              BufferSize is the width in cells of the border zone that is
              excluded from the flow statistics.`,
			defaultVal: 10,
			flagsets:   []*pflag.FlagSet{runCmd.PersistentFlags()},
		},
		{
			name: "VectorStride",
			usage: `
              VectorStride is the cell interval at which the velocity field is
              sampled into the output vector field.`,
			defaultVal: 5,
			flagsets:   []*pflag.FlagSet{runCmd.PersistentFlags()},
		},
		{
			name: "OutputPrecision",
			usage: `
              OutputPrecision is the number of decimal places that sampled
              output values are rounded to.`,
			defaultVal: 4,
			flagsets:   []*pflag.FlagSet{runCmd.PersistentFlags()},
		},
		{
			name: "Vorticity",
			usage: `
              Vorticity specifies whether the flow statistics should include
              the mean absolute vorticity and the turbulence intensity.`,
			defaultVal: false,
			flagsets:   []*pflag.FlagSet{runCmd.PersistentFlags()},
		},
		{
			name: "TrackConvergence",
			usage: `
              TrackConvergence specifies whether to record the mean squared
              velocity of the flow while the simulation runs and include the
              history in the results document.`,
			defaultVal: false,
			flagsets:   []*pflag.FlagSet{runCmd.PersistentFlags()},
		},
		{
			name: "Convergence.Interval",
			usage: `
              Convergence.Interval is the number of iterations between
              convergence samples when TrackConvergence is on.`,
			defaultVal: 10,
			flagsets:   []*pflag.FlagSet{runCmd.PersistentFlags()},
		},
		{
			name: "TraceStreamlines",
			usage: `
              TraceStreamlines specifies whether to trace streamlines through
              the finished flow field and include them in the results
              document.`,
			defaultVal: false,
			flagsets:   []*pflag.FlagSet{runCmd.PersistentFlags()},
		},
		{
			name: "Streamlines.Number",
			usage: `
              Streamlines.Number is the number of streamline seed points.`,
			defaultVal: 20,
			flagsets:   []*pflag.FlagSet{runCmd.PersistentFlags()},
		},
		{
			name: "Streamlines.MaxPoints",
			usage: `
              Streamlines.MaxPoints caps the number of points per
              streamline.`,
			defaultVal: 200,
			flagsets:   []*pflag.FlagSet{runCmd.PersistentFlags()},
		},
		{
			name: "Streamlines.Step",
			usage: `
              Streamlines.Step is the streamline integration step in cell
              widths.`,
			defaultVal: 0.5,
			flagsets:   []*pflag.FlagSet{runCmd.PersistentFlags()},
		},
		{
			name: "Streamlines.MinSpeed",
			usage: `
              Streamlines.MinSpeed stops a streamline once the local wind speed
              drops below it [m/s].`,
			defaultVal: 0.001,
			flagsets:   []*pflag.FlagSet{runCmd.PersistentFlags()},
		},
		{
			name: "TraceParticles",
			usage: `
              TraceParticles specifies whether to release tracer particles into
              the finished flow field and include their paths in the results
              document.`,
			defaultVal: false,
			flagsets:   []*pflag.FlagSet{runCmd.PersistentFlags()},
		},
		{
			name: "Particles.Number",
			usage: `
              Particles.Number is the number of tracer particles released.`,
			defaultVal: 40,
			flagsets:   []*pflag.FlagSet{runCmd.PersistentFlags()},
		},
		{
			name: "Particles.MaxSteps",
			usage: `
              Particles.MaxSteps caps the number of steps per particle.`,
			defaultVal: 150,
			flagsets:   []*pflag.FlagSet{runCmd.PersistentFlags()},
		},
		{
			name: "Particles.Dt",
			usage: `
              Particles.Dt is the time step each particle velocity is applied
              for.`,
			defaultVal: 0.5,
			flagsets:   []*pflag.FlagSet{runCmd.PersistentFlags()},
		},
		{
			name: "Particles.MinSpeed",
			usage: `
              Particles.MinSpeed stops a particle once the local wind speed
              drops below it [m/s].`,
			defaultVal: 0.001,
			flagsets:   []*pflag.FlagSet{runCmd.PersistentFlags()},
		},
		{
			name: "Particles.NoiseSigma",
			usage: `
              Particles.NoiseSigma is the standard deviation of the Gaussian
              velocity perturbation applied to each particle at every step,
              modeling subgrid turbulence.`,
			defaultVal: 0.05,
			flagsets:   []*pflag.FlagSet{runCmd.PersistentFlags()},
		},
		{
			name: "RandomSeed",
			usage: `
              RandomSeed seeds the random placement of streamline and particle
              starting points, so repeated runs trace the same paths.`,
			defaultVal: 1,
			flagsets:   []*pflag.FlagSet{runCmd.PersistentFlags()},
		},
		{
			name: "Cache",
			usage: `
              Cache is a directory where computed velocity fields are stored so
              that later runs with the same simulation parameters can reuse
              them. If Cache is empty, fields are only cached in memory.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.PersistentFlags()},
		},
		{
			name: "MaxCacheEntries",
			usage: `
              MaxCacheEntries specifies the maximum number of velocity fields
              to hold in the memory cache.`,
			defaultVal: 10,
			flagsets:   []*pflag.FlagSet{runCmd.PersistentFlags()},
		},
	}

	Cfg = viper.New()

	// Set the prefix for configuration environment variables.
	Cfg.SetEnvPrefix("WINDFLOW")

	for _, option := range options {
		for i, set := range option.flagsets {
			if i != 0 { // We don't want to create the same flag twice.
				set.AddFlag(option.flagsets[0].Lookup(option.name))
				continue
			}
			switch option.defaultVal.(type) {
			case string:
				if option.shorthand == "" {
					set.String(option.name, option.defaultVal.(string), option.usage)
				} else {
					set.StringP(option.name, option.shorthand, option.defaultVal.(string), option.usage)
				}
			case []string:
				if option.shorthand == "" {
					set.StringSlice(option.name, option.defaultVal.([]string), option.usage)
				} else {
					set.StringSliceP(option.name, option.shorthand, option.defaultVal.([]string), option.usage)
				}
			case bool:
				if option.shorthand == "" {
					set.Bool(option.name, option.defaultVal.(bool), option.usage)
				} else {
					set.BoolP(option.name, option.shorthand, option.defaultVal.(bool), option.usage)
				}
			case int:
				if option.shorthand == "" {
					set.Int(option.name, option.defaultVal.(int), option.usage)
				} else {
					set.IntP(option.name, option.shorthand, option.defaultVal.(int), option.usage)
				}
			case float64:
				if option.shorthand == "" {
					set.Float64(option.name, option.defaultVal.(float64), option.usage)
				} else {
					set.Float64P(option.name, option.shorthand, option.defaultVal.(float64), option.usage)
				}
			case map[string]string:
				b := bytes.NewBuffer(nil)
				e := json.NewEncoder(b)
				e.Encode(option.defaultVal)
				s := string(b.Bytes())
				if option.shorthand == "" {
					set.String(option.name, s, option.usage)
				} else {
					set.StringP(option.name, option.shorthand, s, option.usage)
				}
			default:
				panic("invalid argument type")
			}
			Cfg.BindPFlag(option.name, set.Lookup(option.name))
		}
	}
}

func init() {
	// Link the commands together.
	Root.AddCommand(versionCmd)
	Root.AddCommand(runCmd)
	runCmd.AddCommand(steadyCmd)
}

// setConfig finds and reads in the configuration file, if there is one.
func setConfig() error {
	if cfgpath := Cfg.GetString("config"); cfgpath != "" {
		Cfg.SetConfigFile(cfgpath)
		if err := Cfg.ReadInConfig(); err != nil {
			return fmt.Errorf("windflow: problem reading configuration file: %v", err)
		}
	}
	return nil
}

// Root is the main command.
var Root = &cobra.Command{
	Use:   "windflow",
	Short: "A lattice-Boltzmann model of near-ground wind flow.",
	Long: `WindFlow is a model of steady near-ground wind flow around obstacles.
Use the subcommands specified below to access the model functionality.

Refer to the subcommand documentation for configuration options and default
settings. Configuration can be changed by using a configuration file (and
providing the path to the file using the --config flag), by using command-line
arguments, or by setting environment variables in the format 'WINDFLOW_var'
where 'var' is the name of the variable to be set. Many configuration variables
are additionally allowed to contain environment variables within them.
Refer to https://github.com/spf13/viper for additional configuration information.`,
	DisableAutoGenTag: true,
	PersistentPreRunE: func(*cobra.Command, []string) error { return setConfig() },
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Long:  "version prints the version number of this version of WindFlow.",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("WindFlow v%s\n", windflow.Version)
		cmd.Printf("WindFlow v%s\n", windflow.Version)
	},
	DisableAutoGenTag: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the model.",
	Long: `run runs a WindFlow simulation. Use the subcommands specified below to
choose a run mode. (Currently 'steady' is the only available run mode.)`,
	DisableAutoGenTag: true,
}

// steadyCmd is a command that runs a steady-state simulation.
var steadyCmd = &cobra.Command{
	Use:   "steady",
	Short: "Run WindFlow in steady-state mode.",
	Long: `steady runs WindFlow in steady-state mode to calculate the time-averaged
wind field around the configured obstacles, along with its derived artifacts.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		outputFile, err := checkOutputFile(Cfg.GetString("OutputFile"))
		if err != nil {
			return err
		}
		outputVars := checkOutputVars(GetStringMapString("OutputVariables", Cfg))
		ambient, err := ambientFromConfig(Cfg)
		if err != nil {
			return err
		}
		mask, err := maskFromConfig(Cfg)
		if err != nil {
			return err
		}
		cache, err := checkCache(Cfg)
		if err != nil {
			return err
		}
		science, err := DefaultScienceFuncs(Cfg.GetFloat64("RelaxationRate"))
		if err != nil {
			return err
		}

		return Run(
			cmd,
			checkLogFile(Cfg.GetString("LogFile"), outputFile),
			outputFile,
			os.ExpandEnv(Cfg.GetString("CSVFile")),
			os.ExpandEnv(Cfg.GetString("SaveFile")),
			outputVars,
			ambient,
			mask,
			Cfg.GetInt("NumIterations"),
			Cfg.GetFloat64("RelaxationRate"),
			samplerFromConfig(Cfg),
			streamlineConfig(Cfg),
			particleConfig(Cfg),
			convergenceInterval(Cfg),
			cache,
			science, nil, nil, nil)
	},
	DisableAutoGenTag: true,
}
