package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/joshp123/purehome/plugins/molekule"
)

func runDevices(ctx context.Context, client *molekule.Client, jsonOut bool) {
	list, err := client.Devices(ctx)
	fatalIf(err)
	if list == nil {
		fatal(fmt.Errorf("no device data returned"))
	}

	if jsonOut {
		printJSON(list)
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SERIAL\tNAME\tMODEL\tSPEED\tMODE\tONLINE\tAQI\tFILTER")
	for _, d := range list.Content {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s%%\n",
			d.SerialNumber, d.Name, d.Model(), d.FanSpeed, d.Mode,
			d.Online, molekule.AQILevel(d.AQI), d.PECOFilter)
	}
	w.Flush()
}

func runSensors(ctx context.Context, client *molekule.Client, serial string, jsonOut bool) {
	readings, err := client.SensorData(ctx, serial)
	fatalIf(err)
	if readings == nil {
		fatal(fmt.Errorf("no sensor data for %s", serial))
	}

	if jsonOut {
		printJSON(readings)
		return
	}

	pollutants := make([]string, 0, len(readings))
	for pollutant := range readings {
		pollutants = append(pollutants, pollutant)
	}
	sort.Strings(pollutants)

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "POLLUTANT\tVALUE")
	for _, pollutant := range pollutants {
		fmt.Fprintf(w, "%s\t%g\n", pollutant, readings[pollutant])
	}
	w.Flush()
}

func runAQI(ctx context.Context, client *molekule.Client, serial string) {
	doc, err := client.AQI(ctx, serial)
	fatalIf(err)
	if doc == nil {
		fatal(fmt.Errorf("no aqi data for %s", serial))
	}
	printJSON(doc)
}

func printJSON(v any) {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	_ = encoder.Encode(v)
}
