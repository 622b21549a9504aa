package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joshp123/purehome/plugins/molekule"
)

const usage = `usage: purehome-cli [-json] <command> [args]

commands:
  devices                      list purifiers on the account
  sensors <serial>             latest sensor readings for a device
  aqi <serial>                 air quality index document
  set-power <serial> on|off    turn a purifier on or off
  set-speed <serial> <1-6>     set manual fan speed
  set-auto <serial> on|off     enable or disable smart mode

credentials are read from MOLEKULE_EMAIL and MOLEKULE_PASSWORD.
`

func main() {
	jsonOut := flag.Bool("json", false, "print raw JSON")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	client, err := newClient()
	if err != nil {
		fatal(err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	switch args[0] {
	case "devices":
		runDevices(ctx, client, *jsonOut)
	case "sensors":
		requireArgs(args, 2)
		runSensors(ctx, client, args[1], *jsonOut)
	case "aqi":
		requireArgs(args, 2)
		runAQI(ctx, client, args[1])
	case "set-power":
		requireArgs(args, 3)
		fatalIf(client.SetPower(ctx, args[1], parseOnOff(args[2])))
		fmt.Println("ok")
	case "set-speed":
		requireArgs(args, 3)
		speed, err := strconv.Atoi(args[2])
		if err != nil {
			fatal(fmt.Errorf("invalid speed %q", args[2]))
		}
		fatalIf(client.SetFanSpeed(ctx, args[1], speed))
		fmt.Println("ok")
	case "set-auto":
		requireArgs(args, 3)
		fatalIf(client.SetAutoMode(ctx, args[1], parseOnOff(args[2]), nil))
		fmt.Println("ok")
	default:
		flag.Usage()
		os.Exit(2)
	}
}

func newClient() (*molekule.Client, error) {
	email := os.Getenv("MOLEKULE_EMAIL")
	password := os.Getenv("MOLEKULE_PASSWORD")
	if email == "" || password == "" {
		return nil, fmt.Errorf("MOLEKULE_EMAIL and MOLEKULE_PASSWORD must be set")
	}
	return molekule.NewStandaloneClient(email, password)
}

func requireArgs(args []string, n int) {
	if len(args) < n {
		flag.Usage()
		os.Exit(2)
	}
}

func parseOnOff(arg string) bool {
	return arg == "on" || arg == "true" || arg == "1"
}

func fatalIf(err error) {
	if err != nil {
		fatal(err)
	}
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "error:", err)
	os.Exit(1)
}
