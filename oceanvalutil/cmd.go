/*
Copyright © 2021 the OceanVal authors.
This file is part of OceanVal.

OceanVal is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

OceanVal is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with OceanVal.  If not, see <http://www.gnu.org/licenses/>.
*/

package oceanvalutil

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/lnashier/viper"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/oceanmodel/oceanval"
)

// Cfg holds configuration information.
var Cfg *viper.Viper

var options []struct {
	name, usage, shorthand string
	defaultVal             interface{}
	flagsets               []*pflag.FlagSet
}

func init() {
	// Options are the configuration options available to OceanVal.
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
			name: "ModelData",
			usage: `
              ModelData is the path to the model output dataset to validate,
              a NetCDF file in the layout this library writes. The path can
              include environment variables.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{validateCmd.Flags(), statsCmd.Flags(), webCmd.Flags()},
		},
		{
			name: "OutputFile",
			usage: `
              OutputFile is the path to the desired output file location.
              The extension selects the format: .shp writes a shapefile and
              .nc a NetCDF dataset. It can include environment variables.`,
			defaultVal: "oceanval_output.nc",
			flagsets:   []*pflag.FlagSet{validateCmd.Flags()},
		},
		{
			name: "LogFile",
			usage: `
              LogFile is the path to the desired logfile location. It can include
              environment variables. If LogFile is left blank, the logfile will be saved in
              the same location as the OutputFile.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{validateCmd.Flags()},
		},
		{
			name: "OutputVariables",
			usage: `
              OutputVariables specifies which stored entries should be included
              in the output file, as a map from output names to expressions
              over the names of stored entries. It can include environment
              variables.`,
			defaultVal: map[string]string{
				"sst_error": "tos_con_error",
			},
			flagsets: []*pflag.FlagSet{validateCmd.Flags()},
		},
		{
			name: "Validate.Variables",
			usage: `
              Validate.Variables lists the validations to run, in order. The
              available validations are sst, sss, mld, siconc, siarea, and
              siext.`,
			defaultVal: []string{"sst"},
			flagsets:   []*pflag.FlagSet{validateCmd.Flags(), statsCmd.Flags(), webCmd.Flags()},
		},
		{
			name: "Validate.Obs",
			usage: `
              Validate.Obs maps validation names to the observational dataset
              to compare against, overriding each validation's default. The
              obs command lists the available datasets.`,
			defaultVal: map[string]string{},
			flagsets:   []*pflag.FlagSet{validateCmd.Flags(), statsCmd.Flags(), webCmd.Flags()},
		},
		{
			name: "Validate.Period",
			usage: `
              Validate.Period names a pre-computed climatology period to
              compare against, for example 1991-2020. If it is left blank,
              the comparison covers the full overlap of the model and the
              observations.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{validateCmd.Flags(), statsCmd.Flags(), webCmd.Flags()},
		},
		{
			name: "Validate.Start",
			usage: `
              Validate.Start is the beginning of an explicit comparison
              period, in the format YYYY-MM-DD. It must be set together with
              Validate.End and cannot be combined with Validate.Period.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{validateCmd.Flags(), statsCmd.Flags(), webCmd.Flags()},
		},
		{
			name: "Validate.End",
			usage: `
              Validate.End is the end of an explicit comparison period, in
              the format YYYY-MM-DD.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{validateCmd.Flags(), statsCmd.Flags(), webCmd.Flags()},
		},
		{
			name: "Validate.Freq",
			usage: `
              Validate.Freq is the climatology frequency for the gridded
              validations: total, seasonal, monthly, or a month such as mar.
              If it is left blank, each validation keeps its default.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{validateCmd.Flags(), statsCmd.Flags(), webCmd.Flags()},
		},
		{
			name: "Validate.RegridTo",
			usage: `
              Validate.RegridTo selects the common comparison grid: "model"
              interpolates the observations onto the model grid, "obs" the
              model onto the observation grid. If it is left blank, the model
              grid is used.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{validateCmd.Flags(), statsCmd.Flags(), webCmd.Flags()},
		},
		{
			name: "Validate.Method",
			usage: `
              Validate.Method is the interpolation method: bilinear,
              conservative, conservative_normed, nearest_s2d, or nearest_d2s.
              If it is left blank, bilinear interpolation is used.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{validateCmd.Flags(), statsCmd.Flags(), webCmd.Flags()},
		},
		{
			name: "Validate.Region",
			usage: `
              Validate.Region selects the polar region for the sea ice
              validations, "arctic" or "antarctic". If it is left blank, the
              arctic region is used.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{validateCmd.Flags(), statsCmd.Flags(), webCmd.Flags()},
		},
		{
			name: "Validate.Stats",
			usage: `
              Validate.Stats specifies whether to compute aggregate
              statistics for each validation in addition to the error fields.
              The stats command always computes them.`,
			defaultVal: false,
			flagsets:   []*pflag.FlagSet{validateCmd.Flags(), webCmd.Flags()},
		},
		{
			name: "Obs.BaseURL",
			usage: `
              Obs.BaseURL overrides the root URL of the observation archive.
              It can be an http(s), gs, s3, or file URL and can include
              environment variables.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{validateCmd.Flags(), fetchCmd.Flags(), statsCmd.Flags(), webCmd.Flags()},
		},
		{
			name: "Obs.CacheDir",
			usage: `
              Obs.CacheDir is the directory that downloaded observation
              objects are stored in. If it is left blank, a directory within
              the system temporary directory is used. It can include
              environment variables.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{validateCmd.Flags(), fetchCmd.Flags(), statsCmd.Flags(), webCmd.Flags()},
		},
		{
			name: "Obs.CacheSize",
			usage: `
              Obs.CacheSize is the number of decoded observation datasets to
              hold in memory. If it is zero, a default of 20 will be used.`,
			defaultVal: 0,
			flagsets:   []*pflag.FlagSet{validateCmd.Flags(), fetchCmd.Flags(), statsCmd.Flags(), webCmd.Flags()},
		},
		{
			name: "datasets",
			usage: `
              datasets lists the observational datasets to fetch. If it is
              left empty, every registered dataset is fetched.`,
			defaultVal: []string{},
			flagsets:   []*pflag.FlagSet{fetchCmd.Flags()},
		},
		{
			name: "variables",
			usage: `
              variables lists the variables to fetch. If it is left empty,
              every variable of each dataset is fetched.`,
			defaultVal: []string{},
			flagsets:   []*pflag.FlagSet{fetchCmd.Flags()},
		},
		{
			name: "region",
			usage: `
              region selects the polar region to fetch for datasets that are
              published per region, "arctic" or "antarctic".`,
			shorthand:  "r",
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{fetchCmd.Flags()},
		},
		{
			name: "period",
			usage: `
              period names the pre-computed climatology period to fetch, for
              example 1991-2020. If it is left blank, the full series is
              fetched.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{fetchCmd.Flags()},
		},
		{
			name: "Stats.OutputFile",
			usage: `
              Stats.OutputFile is the path that the stats command writes an
              xlsx workbook of the statistics to, with one row per statistic.
              If it is left blank, the statistics are only printed. It can
              include environment variables.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{statsCmd.Flags()},
		},
		{
			name: "addr",
			usage: `
              addr is the address to serve the validation results at.`,
			defaultVal: "localhost:9090",
			flagsets:   []*pflag.FlagSet{webCmd.Flags()},
		},
		{
			name: "open",
			usage: `
              open specifies whether to open the served results in a
              browser.`,
			defaultVal: false,
			flagsets:   []*pflag.FlagSet{webCmd.Flags()},
		},
	}

	Cfg = viper.New()

	// Set the prefix for configuration environment variables.
	Cfg.SetEnvPrefix("OCEANVAL")

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
	Root.AddCommand(validateCmd)
	Root.AddCommand(fetchCmd)
	Root.AddCommand(obsCmd)
	Root.AddCommand(statsCmd)
	Root.AddCommand(webCmd)
}

// setConfig finds and reads in the configuration file, if there is one.
func setConfig() error {
	if cfgpath := Cfg.GetString("config"); cfgpath != "" {
		Cfg.SetConfigFile(cfgpath)
		if err := Cfg.ReadInConfig(); err != nil {
			return fmt.Errorf("oceanval: problem reading configuration file: %v", err)
		}
	}
	return nil
}

// Root is the main command.
var Root = &cobra.Command{
	Use:   "oceanval",
	Short: "A validation tool for ocean general circulation models.",
	Long: `OceanVal compares ocean model output against observational datasets.
Use the subcommands specified below to access the validations.

Refer to the subcommand documentation for configuration options and default settings.
Configuration can be changed by using a configuration file (and providing the
path to the file using the --config flag), by using command-line arguments,
or by setting environment variables in the format 'OCEANVAL_var' where 'var' is the
name of the variable to be set. Many configuration variables are additionally
allowed to contain environment variables within them.
Refer to https://github.com/spf13/viper for additional configuration information.`,
	DisableAutoGenTag: true,
	PersistentPreRunE: func(*cobra.Command, []string) error { return setConfig() },
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Long:  "version prints the version number of this version of OceanVal.",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "OceanVal v%s\n", oceanval.Version)
	},
	DisableAutoGenTag: true,
}

// validateCmd is a command that runs the configured validations and
// writes the results to a file.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a model dataset.",
	Long: `validate reads the model dataset given by the ModelData configuration
variable, runs the validations listed in Validate.Variables against their
observational datasets, and writes the variables given by OutputVariables
to OutputFile.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		configureStore(Cfg.GetString("Obs.BaseURL"), Cfg.GetString("Obs.CacheDir"), Cfg.GetInt("Obs.CacheSize"))
		vc, err := validationConfig(Cfg)
		if err != nil {
			return err
		}
		outputFile, err := checkOutputFile(Cfg.GetString("OutputFile"))
		if err != nil {
			return err
		}
		outputVars, err := checkOutputVars(GetStringMapString("OutputVariables", Cfg))
		if err != nil {
			return err
		}
		return Run(
			cmd,
			checkLogFile(Cfg.GetString("LogFile"), outputFile),
			outputFile,
			outputVars,
			os.ExpandEnv(Cfg.GetString("ModelData")),
			vc)
	},
	DisableAutoGenTag: true,
}

// fetchCmd is a command that downloads observation objects into the
// local cache ahead of a validation run.
var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download observations ahead of time.",
	Long: `fetch downloads observation objects into the local cache so later
validations can run without waiting on the network. Failed downloads are
retried with exponential backoff.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		configureStore(Cfg.GetString("Obs.BaseURL"), Cfg.GetString("Obs.CacheDir"), Cfg.GetInt("Obs.CacheSize"))
		return Fetch(
			context.Background(),
			expandStringSlice(Cfg.GetStringSlice("datasets")),
			expandStringSlice(Cfg.GetStringSlice("variables")),
			Cfg.GetString("region"),
			Cfg.GetString("period"))
	},
	DisableAutoGenTag: true,
}

// obsCmd is a command that lists the available observational datasets.
var obsCmd = &cobra.Command{
	Use:   "obs",
	Short: "List the observational datasets",
	Long: `obs lists the registered observational datasets and the variables
each one provides.`,
	Run: func(cmd *cobra.Command, args []string) {
		w := cmd.OutOrStdout()
		for _, name := range oceanval.ObsDatasets() {
			l, err := oceanval.LookupObs(name)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "%s: %s\n", name, strings.Join(l.Variables(), ", "))
		}
	},
	DisableAutoGenTag: true,
}

// statsCmd is a command that runs the configured validations and
// reports their aggregate statistics.
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print aggregate statistics.",
	Long: `stats runs the validations listed in Validate.Variables and prints
the aggregate statistics of each one, named after the validation, for
example sst_rmse. If Stats.OutputFile is set, the statistics are
additionally written to that file as an xlsx workbook with one row per
statistic.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		configureStore(Cfg.GetString("Obs.BaseURL"), Cfg.GetString("Obs.CacheDir"), Cfg.GetInt("Obs.CacheSize"))
		vc, err := validationConfig(Cfg)
		if err != nil {
			return err
		}
		return RunStats(cmd, os.ExpandEnv(Cfg.GetString("ModelData")), vc,
			Cfg.GetString("Stats.OutputFile"))
	},
	DisableAutoGenTag: true,
}

// webCmd is a command that runs the configured validations and serves
// the results over HTTP.
var webCmd = &cobra.Command{
	Use:   "web",
	Short: "Serve the validation results.",
	Long: `web runs the validations listed in Validate.Variables and serves
maps, time series plots, and statistics over HTTP at the address given by
the addr flag.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		configureStore(Cfg.GetString("Obs.BaseURL"), Cfg.GetString("Obs.CacheDir"), Cfg.GetInt("Obs.CacheSize"))
		vc, err := validationConfig(Cfg)
		if err != nil {
			return err
		}
		return RunWeb(os.ExpandEnv(Cfg.GetString("ModelData")), vc,
			Cfg.GetString("addr"), Cfg.GetBool("open"))
	},
	DisableAutoGenTag: true,
}

// StartWebServer runs the configured validations and serves the
// results, opening a browser pointed at the index page.
func StartWebServer() {
	setConfig() // Ignore any errors for now.

	for _, cmd := range []*cobra.Command{Root, versionCmd, validateCmd,
		fetchCmd, obsCmd, statsCmd, webCmd} {
		cmd.SilenceUsage = true
	}

	configureStore(Cfg.GetString("Obs.BaseURL"), Cfg.GetString("Obs.CacheDir"), Cfg.GetInt("Obs.CacheSize"))
	vc, err := validationConfig(Cfg)
	if err != nil {
		log.Println(err)
		return
	}
	if err := RunWeb(os.ExpandEnv(Cfg.GetString("ModelData")), vc,
		Cfg.GetString("addr"), true); err != nil {
		log.Println(err)
	}
}
