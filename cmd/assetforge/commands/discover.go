package commands

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"git.home.luguber.info/inful/assetforge/internal/assets"
)

// DiscoverCmd implements the 'discover' command.
type DiscoverCmd struct {
	JSON bool `help:"Print the listing as JSON"`
}

type discoveredAsset struct {
	Key       string `json:"key"`
	Kind      string `json:"kind"`
	MediaType string `json:"media_type"`
}

func (d *DiscoverCmd) Run(g *Global, root *CLI) error {
	cfg, err := loadConfig(root.Config)
	if err != nil {
		return err
	}

	src, err := assets.Walk(cfg.Assets.Dir, assets.Options{
		IgnorePrefix: cfg.Assets.IgnorePrefix,
		Exclude:      cfg.Assets.Exclude,
	})
	if err != nil {
		return err
	}

	list := make([]discoveredAsset, 0, src.Len())
	for _, group := range [][]assets.Asset{src.Stylesheets, src.Opaque} {
		for _, a := range group {
			list = append(list, discoveredAsset{Key: a.Rel, Kind: string(a.Kind), MediaType: a.MediaType})
		}
	}

	out := g.out()
	if d.JSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(list)
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "KIND\tMEDIA TYPE\tKEY")
	for _, a := range list {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\n", a.Kind, a.MediaType, a.Key)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(out, "%d stylesheet(s), %d other asset(s) under %s\n", len(src.Stylesheets), len(src.Opaque), src.Root)
	return nil
}
