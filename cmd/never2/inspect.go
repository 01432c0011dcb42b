package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/gyaneshwarpardhi/never2/internal/config"
	"github.com/gyaneshwarpardhi/never2/internal/params"
	"github.com/gyaneshwarpardhi/never2/internal/project"
	"github.com/gyaneshwarpardhi/never2/internal/scene"
)

var inspectJSON bool

var inspectCmd = &cobra.Command{
	Use:   "inspect <network file>",
	Short: "Draw a saved network as a block chain and print it",
	Args:  cobra.ExactArgs(1),
	RunE:  runInspect,
}

var blocksCmd = &cobra.Command{
	Use:   "blocks",
	Short: "List the layer blocks of the catalog",
	Args:  cobra.NoArgs,
	RunE:  runBlocks,
}

func init() {
	inspectCmd.Flags().BoolVar(&inspectJSON, "json", false, "print the scene as JSON")
}

// offlineConfig loads the config for one-shot commands. A missing default
// config file is not an error.
func offlineConfig(cmd *cobra.Command) (*config.Config, error) {
	path := configPath
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) && !cmd.Flags().Changed("config") {
		path = ""
	}
	loader, err := config.NewLoader(path)
	if err != nil {
		return nil, err
	}
	cfg := loader.Config()
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runInspect(cmd *cobra.Command, args []string) error {
	cfg, err := offlineConfig(cmd)
	if err != nil {
		return err
	}
	sceneConf, err := cfg.SceneConfig()
	if err != nil {
		return err
	}
	cat, err := loadCatalog(cfg.Editor.CatalogPath)
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelWarn}))

	path := args[0]
	p := project.New(sceneConf.InputID, sceneConf.InputDim, project.DefaultRegistry())
	p.SetLogger(logger)
	if err := p.Open(path); err != nil {
		return err
	}
	sc := scene.New(p, cat, sceneConf)
	sc.SetLogger(logger)
	if err := sc.DrawNetwork(); err != nil {
		return err
	}
	if side := project.PropertiesPath(path); fileExists(side) {
		props, err := project.LoadProperties(side)
		if err == nil {
			err = sc.LoadProperties(props)
		}
		if err != nil {
			logger.Warn("properties not loaded", "path", side, "err", err)
		}
	}

	snap := sc.Snapshot()
	if inspectJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	}
	return printScene(cmd.OutOrStdout(), snap)
}

func printScene(out io.Writer, snap scene.Snapshot) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "BLOCK\tTYPE\tTITLE\tIDENTIFIER\tDIMENSION")
	for _, b := range snap.Blocks {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", b.ID, b.Type, b.Title, b.Identifier, params.ShapeToText(b.Dimension, true))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(out)
	for _, e := range snap.Edges {
		label := ""
		if e.Label != "" {
			label = " [" + e.Label + "]"
		}
		fmt.Fprintf(out, "%s -> %s%s\n", e.From, e.To, label)
	}

	for _, pv := range []*scene.PropertyView{snap.Pre, snap.Post} {
		if pv == nil {
			continue
		}
		fmt.Fprintf(out, "\n%s property on %s (%d variables)\n", pv.Kind, pv.Parent, len(pv.Variables))
		fmt.Fprintln(out, strings.TrimSpace(pv.SMT))
	}
	return nil
}

func runBlocks(cmd *cobra.Command, _ []string) error {
	cfg, err := offlineConfig(cmd)
	if err != nil {
		return err
	}
	cat, err := loadCatalog(cfg.Editor.CatalogPath)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SIGNATURE\tLAYER\tPARAMETERS")
	for _, b := range cat.Blocks() {
		names := make([]string, 0, len(b.Params))
		for _, ps := range b.Params {
			if ps.Type == params.TypeReadOnly {
				continue
			}
			if ps.Default != "" {
				names = append(names, ps.Name+"="+ps.Default)
			} else {
				names = append(names, ps.Name)
			}
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", b.Signature(), b.Layer, strings.Join(names, " "))
	}
	return tw.Flush()
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
