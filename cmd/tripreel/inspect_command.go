package main

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"tripreel/pkg/config"
	"tripreel/pkg/geo"
	"tripreel/pkg/itinerary"
	"tripreel/pkg/model"
	"tripreel/pkg/playback"
)

func newInspectCommand(ctx *commandContext) *cobra.Command {
	var asGeoJSON bool

	cmd := &cobra.Command{
		Use:   "inspect <itinerary>",
		Short: "Show the legs, zoom plan and running time of an itinerary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			it, err := itinerary.Open(args[0])
			if err != nil {
				return err
			}
			if asGeoJSON {
				data, err := itinerary.RouteGeoJSON(it.Waypoints).MarshalJSON()
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return err
			}
			return printInspect(cmd.OutOrStdout(), cfg, it)
		},
	}

	cmd.Flags().BoolVar(&asGeoJSON, "geojson", false, "Print the route as GeoJSON")
	return cmd
}

func printInspect(w io.Writer, cfg *config.Config, it *itinerary.Itinerary) error {
	opts := playback.OptionsFromConfig(cfg)
	zooms := playback.ZoomPlan(it.Waypoints, opts.InitialZoom)

	rows := make([][]string, 0, len(it.Waypoints))
	var total float64
	for i := 0; i+1 < len(it.Waypoints); i++ {
		from, to := it.Waypoints[i], it.Waypoints[i+1]
		d := geo.Distance(from.Coordinates, to.Coordinates)
		total += d
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			from.Label(),
			to.Label(),
			formatKm(d),
			strconv.Itoa(zooms[i]),
			strconv.Itoa(len(to.Photos)),
		})
	}

	fmt.Fprintf(w, "%s: %d waypoints, %d photos\n", it.Title, len(it.Waypoints), countPhotos(it.Waypoints))
	if len(rows) > 0 {
		fmt.Fprintln(w, renderTable(
			[]string{"Leg", "From", "To", "Distance", "Zoom", "Photos"},
			rows,
			[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignRight, alignRight},
		))
	}
	fmt.Fprintf(w, "Total distance: %s\n", formatKm(total))
	fmt.Fprintf(w, "Estimated playback: %s\n", playback.Estimate(it.Waypoints, opts).Round(time.Second))
	return nil
}

func formatKm(meters float64) string {
	return fmt.Sprintf("%.1f km", meters/1000)
}

func countPhotos(wps []model.Waypoint) int {
	n := 0
	for _, wp := range wps {
		n += len(wp.Photos)
	}
	return n
}
